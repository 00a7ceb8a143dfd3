// Command buildctl drives a HeftCoder server from the terminal: plan an app,
// answer the architect's questions, approve, refine and save the result.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"heftcoder/internal/logging"
)

var (
	version   = "dev"
	serverURL string
	verbose   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "buildctl",
		Short: "Plan and build apps with a HeftCoder server",
		Long: `buildctl talks to a HeftCoder orchestrator. It sends a description of an
app, shows the architect's plan, and after approval streams the build and
writes the generated files to disk.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "warn"
			if verbose {
				level = "debug"
			}
			logging.InitWith(logging.Options{Level: level})
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("HEFTCODER_URL", "http://localhost:8080"), "HeftCoder server URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log requests and stream statistics")

	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("buildctl version %s\n", version)
		},
	})

	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func logger() *zap.Logger {
	return logging.Named("buildctl")
}
