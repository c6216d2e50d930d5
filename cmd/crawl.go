package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type crawlOptions struct {
	topCount int
	popLevel int
	export   bool
}

func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs the pipeline once and prints the result as JSON",
		Long: `Runs one scan, resolve, rank and enrich pass and writes the enriched
list to stdout. With --export the list is also written as a snapshot to the
configured export backend and announced on Pub/Sub when a topic is set.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, appInstance App) error {
			return runCrawl(cmd, appInstance, opts)
		}),
	}
	cmd.Flags().IntVar(&opts.topCount, "top-count", 0, "number of films to return (default pipeline.top_count)")
	cmd.Flags().IntVar(&opts.popLevel, "pop-level", -1, "venue count a film must exceed (default pipeline.pop_level)")
	cmd.Flags().BoolVar(&opts.export, "export", false, "write the result as a snapshot")
	return cmd
}

func runCrawl(cmd *cobra.Command, appInstance App, opts *crawlOptions) error {
	cfg := appInstance.Config()

	topCount := opts.topCount
	if !cmd.Flags().Changed("top-count") {
		topCount = cfg.Pipeline.TopCount
	}
	popLevel := opts.popLevel
	if !cmd.Flags().Changed("pop-level") {
		popLevel = cfg.Pipeline.PopLevel
	}
	if topCount <= 0 {
		return fmt.Errorf("--top-count must be positive, got %d", topCount)
	}
	if popLevel < 0 {
		return fmt.Errorf("--pop-level must not be negative, got %d", popLevel)
	}

	result, runErr := appInstance.Crawl(cmd.Context(), topCount, popLevel, opts.export)
	if runErr != nil && result.Snapshot == nil {
		return runErr
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	appInstance.Logger().Info("crawl finished",
		zap.Int("count", len(result.Movies)),
		zap.Bool("exported", result.Snapshot != nil),
	)
	return runErr
}
