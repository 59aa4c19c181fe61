// Package cli provides the tabledockctl command-line interface.
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tabledock/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	apiKey    string
	user      string
	timeout   time.Duration

	api *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "tabledockctl",
	Short: "Manage tabledock datasets from the command line",
	Long: `tabledockctl talks to a tabledock server over its HTTP API.

Upload CSV or XLSX files, import them into datasets, export datasets back to
CSV and follow the background tasks that do the work.

The server address, API key and user default to the TABLEDOCK_URL,
TABLEDOCK_API_KEY and TABLEDOCK_USER environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		api = client.New(client.Options{
			BaseURL: serverURL,
			APIKey:  apiKey,
			User:    user,
			Timeout: timeout,
		})
	},
}

// ExecuteContext runs the root command with ctx available to every command.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "server base URL (default $TABLEDOCK_URL or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key (default $TABLEDOCK_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&user, "user", "", "acting user recorded on changes (default $TABLEDOCK_USER)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "request timeout")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(datasetCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(rowCmd)
}
