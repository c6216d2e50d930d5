// Package cmd defines the affiche command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/affiche/internal/app"
	"github.com/JakeFAU/affiche/internal/config"
)

var cfgFile string

type appKeyType string

const appKey appKeyType = "app"

// App is what the subcommands need from the application.
// Tests swap in a fake through newApp.
type App interface {
	Config() config.Config
	Logger() *zap.Logger
	Run(ctx context.Context) error
	Crawl(ctx context.Context, topCount, popLevel int, exportSnapshot bool) (app.CrawlResult, error)
	Close()
}

var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	a, err := app.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "affiche",
		Short: "Lists the best-rated films currently popular in cinemas.",
		Long: `affiche scans a cinema schedule for films shown in many venues,
resolves each one against a film catalog, ranks them by rating and
enriches the winners with their detail pages.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env AFFICHE_* overrides it)")
	cmd.AddCommand(newServeCmd(), newCrawlCmd())
	return cmd
}

// withApp hands the application built in PersistentPreRunE to run and closes it
// afterwards, whether or not run fails.
func withApp(run func(cmd *cobra.Command, appInstance App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		appInstance, ok := cmd.Context().Value(appKey).(App)
		if !ok || appInstance == nil {
			return fmt.Errorf("application not initialized")
		}
		defer appInstance.Close()
		return run(cmd, appInstance)
	}
}

// Execute runs the root command until it finishes or the process is signaled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "affiche: %v\n", err)
		os.Exit(1)
	}
}
