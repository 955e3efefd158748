package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	gocron "github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/uiharness/uiharness/internal/devices"
	"github.com/uiharness/uiharness/internal/log"
	"github.com/uiharness/uiharness/internal/model"
	"github.com/uiharness/uiharness/internal/runner"
)

// RunFunc executes one supervised automation run end to end.
type RunFunc func(ctx context.Context, saltinel string) runner.Status

type Service struct {
	run       RunFunc
	sinks     []SummarySink
	oneshot   bool
	scheduler gocron.Scheduler
	trigger   chan struct{}
}

func New(ctx context.Context, cfg model.Config) (*Service, error) {
	runCfg, err := runnerConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("translating configuration: %w", err)
	}

	r := runner.New(runCfg, devices.ExecController{})
	r.AddListener(runner.NewLogListener(slog.Default()))

	sinks, err := sinks(cfg.Service)
	if err != nil {
		return nil, fmt.Errorf("initializing summary sinks: %w", err)
	}

	svc := &Service{
		run:     r.Run,
		sinks:   sinks,
		oneshot: cfg.Service.Mode == model.ServiceModeManual,
		trigger: make(chan struct{}, 1),
	}

	if cfg.Service.Mode == model.ServiceModeTimer {
		scheduler, err := newScheduler(ctx, cfg.Service.Schedule, svc.Trigger)
		if err != nil {
			return nil, fmt.Errorf("timer mode failed: %w", err)
		}
		svc.scheduler = scheduler
	}

	return svc, nil
}

// WithRun replaces the run implementation and sinks of an initialized
// Service. This method exists for unit testing only.
func (s *Service) WithRun(run RunFunc, sinks ...SummarySink) *Service {
	s.closeSinks(context.Background())
	s.run = run
	s.sinks = sinks
	return s
}

// Trigger requests one run. It never blocks: when a run is already pending
// the trigger is dropped.
func (s *Service) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
		slog.Debug("run already pending, trigger dropped")
	}
}

// Do runs the service loop: wait for a trigger, execute one run, publish its
// summary. Manual mode triggers itself once and returns that run's error.
// Timer mode logs errors and keeps going until ctx is cancelled.
func (s *Service) Do(ctx context.Context) error {
	slog.DebugContext(ctx, "starting the service loop", "oneshot", s.oneshot)

	if s.scheduler != nil {
		s.scheduler.Start()
		defer func() {
			if err := s.scheduler.Shutdown(); err != nil {
				slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
			}
		}()
	}

	defer s.closeSinks(ctx)

	if s.oneshot {
		s.Trigger()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.trigger:
			err := s.execute(ctx)
			if s.oneshot {
				return err
			}
			if err != nil {
				slog.ErrorContext(ctx, "automation run failed", "error", err)
			}
		}
	}
}

func (s *Service) execute(ctx context.Context) error {
	saltinel := uuid.NewString()
	ctx = log.ContextAttrs(ctx, slog.String("saltinel", saltinel))

	slog.InfoContext(ctx, "starting automation run")
	started := time.Now().UTC()
	status := s.run(ctx, saltinel)
	stopped := time.Now().UTC()

	summary := Summary{
		Saltinel:    saltinel,
		Started:     started,
		Stopped:     stopped,
		Normal:      status.Normal,
		FatalError:  status.FatalError,
		FatalReason: status.FatalReason,
	}
	if err := s.publish(ctx, summary); err != nil {
		slog.ErrorContext(ctx, "publishing run summary failed", "error", err)
	}

	switch {
	case status.FatalError:
		return fmt.Errorf("automation failed fatally: %s", status.FatalReason)
	case !status.Normal:
		return errors.New("automation did not end normally")
	}
	slog.InfoContext(ctx, "automation run ended normally")
	return nil
}

func (s *Service) publish(ctx context.Context, sum Summary) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, sum); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) closeSinks(ctx context.Context) {
	for _, sink := range s.sinks {
		if closer, ok := sink.(SinkCloser); ok {
			if err := closer.Close(); err != nil {
				slog.ErrorContext(ctx, "closing summary sink has failed", "error", err)
			}
		}
	}
	s.sinks = nil
}

func newScheduler(ctx context.Context, cfgp *model.Schedule, triggerFunc func()) (gocron.Scheduler, error) {
	if cfgp == nil {
		return nil, errors.New("service.schedule is nil")
	}
	cfg := *cfgp
	var job gocron.JobDefinition
	switch {
	case cfg.Cron != "":
		if err := model.ParseCron(cfg.Cron); err != nil {
			return nil, fmt.Errorf("parsing service.schedule.cron: %w", err)
		}
		job = gocron.CronJob(cfg.Cron, false)
		slog.DebugContext(ctx, "successfully parsed", "cron", cfg.Cron)
	case cfg.Duration != "":
		d, err := model.ParseDuration(cfg.Duration)
		if err != nil {
			return nil, fmt.Errorf("parsing service.schedule.duration: %w", err)
		}
		job = gocron.DurationJob(d)
		slog.DebugContext(ctx, "successfully parsed", "duration", d.String())
	default:
		return nil, errors.New("both cron and duration are empty")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		job,
		gocron.NewTask(triggerFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return scheduler, nil
}

func sinks(cfg model.Service) ([]SummarySink, error) {
	if cfg.Summaries == "" {
		return []SummarySink{NewWriteSink(os.Stdout)}, nil
	}
	sink, err := NewDirSink(cfg.Summaries)
	if err != nil {
		return nil, err
	}
	return []SummarySink{sink}, nil
}
