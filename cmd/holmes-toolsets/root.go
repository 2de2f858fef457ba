package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"holmes/internal/app"
)

type cliOptions struct {
	configPath  string
	jsonOutput  bool
	metricsAddr string
}

func newRootCommand() *cobra.Command {
	opts := cliOptions{}

	root := &cobra.Command{
		Use:           "holmes-toolsets",
		Short:         "Inspect and refresh investigation toolset availability",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			applyRootFlagBindings(cmd.Flags(), &opts)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (defaults only when empty)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")
	root.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address (watch only)")

	root.AddCommand(
		newListCmd(&opts),
		newRefreshCmd(&opts),
		newValidateCmd(&opts),
		newWatchCmd(&opts),
	)
	return root
}

func applyRootFlagBindings(flags *pflag.FlagSet, opts *cliOptions) {
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "config":
			opts.configPath, _ = flags.GetString("config")
		case "json":
			opts.jsonOutput, _ = flags.GetBool("json")
		case "metrics-addr":
			opts.metricsAddr, _ = flags.GetString("metrics-addr")
		}
	})
	opts.configPath = strings.TrimSpace(opts.configPath)
	opts.metricsAddr = strings.TrimSpace(opts.metricsAddr)
}

// withApplication builds the application from opts, runs fn and releases
// every resource afterwards.
func withApplication(opts *cliOptions, fn func(*app.Application) error) error {
	cfg, err := app.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.metricsAddr != "" {
		cfg.Observability.Enabled = true
		cfg.Observability.ListenAddress = opts.metricsAddr
	}
	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	application, cleanup, err := app.InitializeApplication(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(application)
}

func newListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Load toolsets and show their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApplication(opts, func(application *app.Application) error {
				if _, err := application.Load(cmd.Context()); err != nil {
					return err
				}
				return printToolsets(cmd.OutOrStdout(), application.Toolsets(), application.Issues(), opts.jsonOutput)
			})
		},
	}
}

func newRefreshCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-evaluate every prerequisite and rewrite the status cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApplication(opts, func(application *app.Application) error {
				report, err := application.Refresh(cmd.Context(), true)
				if err != nil {
					return err
				}
				return printRefresh(cmd.OutOrStdout(), report, application.Toolsets(), opts.jsonOutput)
			})
		},
	}
}

func newValidateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check toolset definitions without evaluating prerequisites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApplication(opts, func(application *app.Application) error {
				result, err := application.Validate(cmd.Context())
				if err != nil {
					return err
				}
				if err := printValidation(cmd.OutOrStdout(), result, opts.jsonOutput); err != nil {
					return err
				}
				if len(result.Issues) > 0 {
					return exitError{code: 2, message: fmt.Sprintf("%d definition issue(s)", len(result.Issues)), silent: opts.jsonOutput}
				}
				return nil
			})
		},
	}
}

func newWatchCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep toolsets loaded and reload them when definitions change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()
			return withApplication(opts, func(application *app.Application) error {
				return application.Serve(ctx, opts.configPath)
			})
		},
	}
}
