package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/uiharness/uiharness/internal/launch"
	"github.com/uiharness/uiharness/internal/model"
	"github.com/uiharness/uiharness/internal/runner"
)

// runnerConfig translates the validated file configuration into the
// supervisor's runtime configuration. Durations arrive as compact strings;
// the CUE schema guarantees the syntax, parsing still guards the semantics.
func runnerConfig(cfg model.Config) (runner.Config, error) {
	if cfg.Version != 0 {
		return runner.Config{}, fmt.Errorf("config version %d is not supported, expected 0", cfg.Version)
	}

	if cfg.Target.HardwareID == "" && cfg.Target.SimDevice == "" {
		return runner.Config{}, errors.New("target needs hardware_id or sim_device")
	}

	spec := launch.Spec{
		Tool:         cfg.Automation.Tool,
		TemplatePath: cfg.Automation.Template,
		AppLocation:  cfg.App,
		ScriptPath:   cfg.Automation.Script,
		ResultsDir:   cfg.Automation.ResultsDir,
		HardwareID:   cfg.Target.HardwareID,
		SimDevice:    cfg.Target.SimDevice,
		SimLanguage:  cfg.Target.SimLanguage,
		SimLocale:    cfg.Target.SimLocale,
	}

	startup, err := duration(cfg.Automation.StartupTimeout)
	if err != nil {
		return runner.Config{}, fmt.Errorf("parsing automation.startup_timeout: %w", err)
	}
	silence, err := duration(cfg.Automation.MaxSilence)
	if err != nil {
		return runner.Config{}, fmt.Errorf("parsing automation.max_silence: %w", err)
	}

	return runner.Config{
		Launch:         spec,
		Attempts:       cfg.Automation.Attempts,
		StartupTimeout: startup,
		MaxSilence:     silence,
	}, nil
}

func duration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return model.ParseDuration(s)
}
