package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the movie list over HTTP",
		Long: `Starts the HTTP server with the HTML list at /, the JSON list at
/v1/movies and the health and metrics endpoints. SIGINT or SIGTERM drains
in-flight requests before exiting.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, appInstance App) error {
			if err := appInstance.Run(cmd.Context()); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		}),
	}
}
