package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/uiharness/uiharness/internal/log"
	"github.com/uiharness/uiharness/internal/model"
	"github.com/uiharness/uiharness/internal/results"
	"github.com/uiharness/uiharness/internal/service"
)

var (
	userConfigPath string // /default/config/path/uiharness on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "uiharness")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is uiharness.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	// load the config, setup logging
	rootCmd.PersistentPreRunE = initHarness

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("uiharness failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "uiharness",
	Short:        "Supervisor for UI test-automation runs",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run reads the configuration and supervises the automation suite",
	RunE:  doRun,
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "clean removes the configured results directory",
	RunE:  doClean,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "config prints the effective configuration with defaults applied",
	RunE:  doConfig,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides version of uiharness",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("uiharness: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:    %s\n", configPath)
		}
		fmt.Printf("uiharness: %s\n", info.Main.Version)
		fmt.Printf("go:        %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:    %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:      %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:     %s\n", s.Value)
			}
		}
	},
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("uiharness",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	svc, err := service.New(ctx, config)
	if err != nil {
		return err
	}
	return svc.Do(ctx)
}

func doClean(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dir := config.Automation.ResultsDir
	slog.InfoContext(ctx, "removing results directory", "dir", dir)
	return results.Clean(dir)
}

func doConfig(cmd *cobra.Command, args []string) error {
	enc := yaml.NewEncoder(os.Stdout)
	defer func() {
		_ = enc.Close()
	}()
	return enc.Encode(config)
}

func initHarness(cmd *cobra.Command, _ []string) error {
	// version must work without any configuration around
	if cmd.Name() == "version" {
		slog.SetDefault(log.New(flagVerbose))
		return nil
	}

	if envConfig, ok := os.LookupEnv("UIHARNESSCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "uiharness.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	if configPath == "" {
		return errors.New("no configuration found, pass --config or create uiharness.yaml")
	}

	f, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	cfg, err := model.LoadConfig(f)
	if err != nil {
		for _, d := range model.CueErrDetails(err) {
			slog.Error(d)
		}
		return fmt.Errorf("parsing config: %w", err)
	}
	config = *cfg

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Service.Verbose = true
	}

	slog.SetDefault(log.New(config.Service.Verbose))

	slog.Debug("uiharness run", "configPath", configPath)
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
