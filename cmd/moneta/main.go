package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/moneta-labs/moneta/cmd/moneta/commands"
	"github.com/moneta-labs/moneta/logger"
)

var rootCmd = &cobra.Command{
	Use:   "moneta",
	Short: "Moneta - asynchronous stock analysis runs",
	Long: `Moneta - run orchestration for slow multi-advisor stock analysis.

Moneta accepts ticker submissions over HTTP, hands them to the analysis
pipeline asynchronously, and tracks each run through its lifecycle
(queued -> running -> completed or failed) in SQLite. Clients poll for
the verdict or subscribe to the live run feed.

Available commands:
  serve    - Start the Moneta server (API + run orchestrator)
  analyze  - Submit a ticker for analysis
  runs     - Inspect and watch analysis runs
  db       - Manage Moneta database operations
  config   - Manage Moneta configuration
  version  - Show version information

Examples:
  moneta serve                  # Start the server in foreground
  moneta analyze AAPL --wait    # Submit AAPL and wait for the verdict
  moneta runs ls                # List recent runs
  moneta runs watch             # Stream run transitions as they happen
  moneta db stats               # Show run statistics`,
}

func init() {
	// Human-readable output for interactive use
	if err := logger.Initialize(false); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize logger: %v\n", err)
	}

	// Add global flags
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	// Add commands
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.AnalyzeCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
