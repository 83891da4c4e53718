package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envstate/internal/config"
	"github.com/blackwell-systems/envstate/internal/engine"
	"github.com/blackwell-systems/envstate/internal/logging"
)

var (
	configPath string
	statePath  string
	jsonOutput bool
	logLevel   string

	// engineOptions lets tests substitute collaborators.
	engineOptions engine.Options

	// RootCmd is the root command for envstate
	RootCmd = &cobra.Command{
		Use:   "envstate",
		Short: "Track installed packages and orchestrate installs across package managers",
		Long: `envstate keeps a persisted snapshot of the packages installed on this
machine and decides, for any requested package, whether to install, update,
repair or skip it. Installs run candidate commands as a fallback chain and
are verified afterwards; uninstalls record a restore point first.

Quick Start:
  1. envstate detect
  2. envstate scan
  3. envstate decide node python3 jq
  4. envstate install --file deps.yaml

Examples:
  # Check for upgrades and mark outdated packages
  envstate updates

  # Remove a package (a restore point is recorded first)
  envstate uninstall jq

  # Undo the last uninstall
  envstate undo latest

  # Share the current state
  envstate export --format markdown`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(logging.WithOperationID(contextOf(cmd), uuid.NewString()))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "envstate: environment state and installation orchestration")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Run 'envstate scan' to record the installed packages.")
			fmt.Fprintln(out, "Run 'envstate --help' for the full reference.")
			return nil
		},
	}
)

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.config/envstate/config.toml)")
	RootCmd.PersistentFlags().StringVar(&statePath, "state", "", "state file path (default: ~/.envstate/environment.json)")
	RootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON responses")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if statePath != "" {
		cfg.StatePath = statePath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openEngine builds the Engine for one command invocation. Callers must
// Close it.
func openEngine(cmd *cobra.Command) (*engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.Init(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	opts := engineOptions
	opts.Logger = logging.FromContext(contextOf(cmd), logger)
	e, err := engine.New(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return e, nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// render prints v as JSON under --json, otherwise calls text.
func render(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), v)
	}
	text(cmd.OutOrStdout())
	return nil
}

func stderrf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), format, args...)
}
