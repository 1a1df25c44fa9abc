package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/moneta-labs/moneta/client"
	"github.com/moneta-labs/moneta/errors"
	"github.com/moneta-labs/moneta/run"
)

// RunsCmd represents the runs command - analysis run inspection
var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect and watch analysis runs",
	Long: `Inspect analysis runs and their lifecycle state.

Runs move forward through a fixed lifecycle:
  queued    - Accepted, waiting for execution
  running   - Analysis pipeline is working on it
  completed - Finished with a result document
  failed    - Finished with an error

Commands read the database directly, so they work whether or not the
server is up. Pass --server to query a running server over HTTP instead
(for example from another host).

Examples:
  moneta runs ls                  # List recent runs
  moneta runs ls --status failed  # List only failed runs
  moneta runs status <run-id>     # Show one run in detail
  moneta runs watch               # Stream transitions from a live server`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// RunsLsCmd lists analysis runs
var RunsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List analysis runs",
	Long: `List analysis runs, newest first.

Examples:
  moneta runs ls                    # Most recent runs
  moneta runs ls --status running   # Only runs currently executing
  moneta runs ls --limit 50         # Show up to 50 runs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		server, _ := cmd.Flags().GetString("server")
		return runRunsLs(statusFilter, limit, server)
	},
}

// RunsStatusCmd shows one run in detail
var RunsStatusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show status of an analysis run",
	Long: `Display detailed information for one analysis run:
- Run ID, ticker, and lifecycle state
- Timestamps (created, last updated)
- The result document once completed, or the failure reason

Example:
  moneta runs status 3f8a1c9e-4b2d-4f6a-9c1e-8d7b5a3e2f10`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		return runRunsStatus(args[0], server)
	},
}

// RunsWatchCmd streams run transitions from a live server
var RunsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream run transitions as they happen",
	Long: `Subscribe to the server's run feed and print every lifecycle
transition as it happens. Requires a running server.

Example:
  moneta runs watch
  moneta runs watch --server http://analysis-host:8000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		return runRunsWatch(server)
	},
}

func init() {
	RunsLsCmd.Flags().String("status", "", "Filter by status (queued, running, completed, failed)")
	RunsLsCmd.Flags().Int("limit", run.DefaultListLimit, "Maximum number of runs to display")
	RunsLsCmd.Flags().String("server", "", "Query a running server over HTTP instead of the database")
	RunsStatusCmd.Flags().String("server", "", "Query a running server over HTTP instead of the database")
	RunsWatchCmd.Flags().String("server", "", "Moneta server URL (default from config)")

	RunsCmd.AddCommand(RunsLsCmd)
	RunsCmd.AddCommand(RunsStatusCmd)
	RunsCmd.AddCommand(RunsWatchCmd)
}

// runRunsLs lists analysis runs
func runRunsLs(statusFilter string, limit int, server string) error {
	if statusFilter != "" && !run.IsValidStatus(statusFilter) {
		return errors.NewInvalidRequestError("invalid status filter: %q (expected queued, running, completed or failed)", statusFilter)
	}

	var runs []*run.Run
	if server != "" {
		listed, err := listRunsRemote(server, statusFilter, limit)
		if err != nil {
			return err
		}
		runs = listed
	} else {
		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()

		store := run.NewStore(database)
		if statusFilter != "" {
			runs, err = store.ListByStatus(run.Status(statusFilter), limit)
		} else {
			runs, err = store.ListRecent(limit)
		}
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
	}

	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	// Print table header
	fmt.Printf("%-36s %-8s %-10s %-17s %s\n", "RUN ID", "TICKER", "STATUS", "CREATED", "ERROR")
	fmt.Printf("%-36s %-8s %-10s %-17s %s\n", "------", "------", "------", "-------", "-----")

	// Print runs
	for _, r := range runs {
		fmt.Printf("%-36s %-8s %-10s %-17s %s\n",
			r.ID,
			r.Ticker,
			r.Status,
			r.CreatedAt.Format("2006-01-02 15:04"),
			truncate(r.Error, 40))
	}

	fmt.Printf("\nTotal: %d run(s)\n", len(runs))
	return nil
}

// listRunsRemote fetches runs from a running server. The list endpoint
// has no status filter, so filtering happens here.
func listRunsRemote(server, statusFilter string, limit int) ([]*run.Run, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	summaries, err := client.New(serverURL(server)).ListRuns(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs from server")
	}

	runs := make([]*run.Run, 0, len(summaries))
	for _, s := range summaries {
		if statusFilter != "" && s.Status != run.Status(statusFilter) {
			continue
		}
		runs = append(runs, &run.Run{
			ID:        s.RunID,
			Ticker:    s.Ticker,
			Status:    s.Status,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		})
	}
	return runs, nil
}

// runRunsStatus displays detailed status for one run
func runRunsStatus(runID, server string) error {
	var r *run.Run
	if server != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		snapshot, err := client.New(serverURL(server)).GetRun(ctx, runID)
		if err != nil {
			return errors.Wrapf(err, "failed to get run %s from server", runID)
		}
		r = &run.Run{
			ID:        snapshot.RunID,
			Ticker:    snapshot.Ticker,
			Status:    snapshot.Status,
			Result:    snapshot.Result,
			Error:     snapshot.Error,
			CreatedAt: snapshot.CreatedAt,
			UpdatedAt: snapshot.UpdatedAt,
		}
	} else {
		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()

		r, err = run.NewStore(database).Get(runID)
		if err != nil {
			return fmt.Errorf("failed to get run: %w", err)
		}
	}

	// Print run details
	fmt.Printf("Run ID: %s\n", r.ID)
	fmt.Printf("  Ticker: %s\n", r.Ticker)
	fmt.Printf("  Status: %s\n", r.Status)
	fmt.Printf("\n")

	// Timestamps
	fmt.Printf("Created: %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated: %s\n", r.UpdatedAt.Format("2006-01-02 15:04:05"))

	// Terminal payload
	if r.Status == run.StatusCompleted && len(r.Result) > 0 {
		fmt.Printf("\nResult:\n")
		return printResult(r.Result)
	}
	if r.Status == run.StatusFailed && r.Error != "" {
		fmt.Printf("\nError: %s\n", r.Error)
	}

	return nil
}

// runRunsWatch subscribes to the server's run feed until interrupted
func runRunsWatch(server string) error {
	baseURL := serverURL(server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ctrl+C ends the subscription cleanly
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	pterm.Info.Printf("Watching run feed at %s (Ctrl+C to stop)\n\n", baseURL)

	err := client.New(baseURL).WatchRuns(ctx, func(event *client.RunEvent) {
		if event.Run == nil {
			return
		}
		line := fmt.Sprintf("%s  %-36s %-8s %s",
			time.Now().Format("15:04:05"),
			event.Run.RunID,
			event.Run.Ticker,
			event.Run.Status)
		switch event.Run.Status {
		case run.StatusCompleted:
			pterm.Success.Println(line)
		case run.StatusFailed:
			pterm.Error.Println(line + "  " + truncate(event.Run.Error, 60))
		default:
			fmt.Println(line)
		}
	})
	if err != nil {
		return errors.Wrap(err, "run feed ended")
	}

	pterm.Info.Println("Run feed closed")
	return nil
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
