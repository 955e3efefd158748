package model

import (
	"io"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

// Enum helpers (optional).
const (
	ServiceModeManual = "manual"
	ServiceModeTimer  = "timer"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
}

// The yaml tags mirror the json ones: CUE decodes through json tags, the
// config command re-encodes through yaml.
type Config struct {
	Version    int        `json:"version" yaml:"version"` // fixed 0 for now
	App        string     `json:"app" yaml:"app"`         // app bundle path handed to the tool
	Target     Target     `json:"target" yaml:"target"`
	Automation Automation `json:"automation" yaml:"automation"`
	Service    Service    `json:"service" yaml:"service"`
}

// Target selects where the automation runs. HardwareID and SimDevice are
// alternatives; when both are present the hardware id wins.
type Target struct {
	HardwareID  string `json:"hardware_id,omitempty" yaml:"hardware_id,omitempty"`
	SimDevice   string `json:"sim_device,omitempty" yaml:"sim_device,omitempty"`
	SimLanguage string `json:"sim_language,omitempty" yaml:"sim_language,omitempty"`
	SimLocale   string `json:"sim_locale,omitempty" yaml:"sim_locale,omitempty"`
}

// Automation configures the supervised tool invocation and the retry loop.
// Durations use the compact day/hour/minute/second form, e.g. "2m30s".
type Automation struct {
	Template       string `json:"template" yaml:"template"`
	Script         string `json:"script" yaml:"script"`
	ResultsDir     string `json:"results_dir" yaml:"results_dir"`
	Tool           string `json:"tool,omitempty" yaml:"tool,omitempty"`
	Attempts       int    `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	StartupTimeout string `json:"startup_timeout,omitempty" yaml:"startup_timeout,omitempty"`
	MaxSilence     string `json:"max_silence,omitempty" yaml:"max_silence,omitempty"`
}

// Service selects how runs are triggered: manual runs once, timer re-runs
// on a schedule.
type Service struct {
	Mode      string    `json:"mode" yaml:"mode"`
	Verbose   bool      `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	Summaries string    `json:"summaries,omitempty" yaml:"summaries,omitempty"` // directory for run summaries; empty means stdout
	Schedule  *Schedule `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// Schedule is either a cron expression or a fixed interval.
type Schedule struct {
	Cron     string `json:"cron,omitempty" yaml:"cron,omitempty"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// LoadConfig validates YAML from r against the embedded CUE schema and
// decodes it, defaults applied.
func LoadConfig(r io.Reader) (*Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return nil, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),
		cue.Concrete(true),
	); err != nil {
		return nil, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
