// Package cmd defines the CLI commands of the cjeu-harvester executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cjeu-harvester/internal/app"
	"github.com/JakeFAU/cjeu-harvester/internal/config"
	"github.com/JakeFAU/cjeu-harvester/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

type options struct {
	configPath  string
	development bool
}

// newApp is the application factory. It's a variable so tests can swap in
// in-memory backends.
var newApp = func(ctx context.Context, opts options) (*app.App, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewWithLevel(cfg.Logging.Development || opts.development, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "cjeu-harvester",
		Short: "Incrementally harvests CJEU case law into a dataset.",
		Long: `cjeu-harvester scans the Curia case-law listings for CELEX identifiers,
fetches the Dutch EUR-Lex rendition of every case it has not seen before,
cuts out the text between "Trefwoorden" and "Dictum" and appends the
records to the configured dataset in batches.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML, JSON or TOML)")
	cmd.PersistentFlags().BoolVar(&opts.development, "dev", false, "human-readable development logging")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSeenCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// withApp adapts fn into a cobra RunE. The App is closed and its logger
// flushed when fn returns, including on error.
func withApp(fn func(cmd *cobra.Command, appInstance *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			appInstance.Close()
			_ = appInstance.Logger().Sync()
		}()
		return fn(cmd, appInstance)
	}
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
