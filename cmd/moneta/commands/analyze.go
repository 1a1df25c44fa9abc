package commands

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/moneta-labs/moneta/client"
	"github.com/moneta-labs/moneta/config"
	"github.com/moneta-labs/moneta/errors"
	"github.com/moneta-labs/moneta/logger"
	"github.com/moneta-labs/moneta/run"
)

// AnalyzeCmd submits a ticker to a running Moneta server
var AnalyzeCmd = &cobra.Command{
	Use:   "analyze <ticker>",
	Short: "Submit a ticker for analysis",
	Long: `Submit a stock ticker to a running Moneta server for analysis.

The server queues the run and executes it asynchronously; the command
prints the run ID immediately. With --wait it polls until the run
reaches a terminal state and prints the verdict.

Examples:
  moneta analyze AAPL                 # Submit and return the run ID
  moneta analyze AAPL --wait          # Submit and wait for the verdict
  moneta analyze BRK.B --server http://analysis-host:8000 --wait`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var (
	analyzeWait   bool
	analyzeServer string
)

func init() {
	AnalyzeCmd.Flags().BoolVar(&analyzeWait, "wait", false, "Poll until the run completes or fails")
	AnalyzeCmd.Flags().StringVar(&analyzeServer, "server", "", "Moneta server URL (default from config)")
}

// serverURL resolves the server base URL: flag > configured port on localhost
func serverURL(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	port := config.DefaultServerPort
	if cfg, err := config.Load(); err == nil {
		port = cfg.GetServerPort()
	}
	return fmt.Sprintf("http://localhost:%d", port)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	baseURL := serverURL(analyzeServer)
	c := client.New(baseURL)

	ctx := cmd.Context()

	// Preflight so a missing server reads as one clear message instead
	// of a connection error buried in the submit path
	if err := c.Health(ctx); err != nil {
		return errors.Wrapf(err, "cannot reach Moneta server at %s (is it running? try: moneta serve)", baseURL)
	}

	submission, err := c.Submit(ctx, args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to submit %s", args[0])
	}

	pterm.Info.Printf("Queued analysis of %s (run %s)\n", submission.Ticker, submission.RunID)

	if !analyzeWait {
		fmt.Printf("\nCheck progress with:\n  moneta runs status %s\n", submission.RunID)
		return nil
	}

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Analyzing %s...", submission.Ticker))

	poller := client.NewPoller(c, client.DefaultPollConfig(), logger.Logger)
	snapshot, err := poller.Wait(ctx, submission.RunID)
	if err != nil {
		spinner.Fail(fmt.Sprintf("Analysis of %s did not finish", submission.Ticker))
		return err
	}

	switch snapshot.Status {
	case run.StatusCompleted:
		spinner.Success(fmt.Sprintf("Analysis of %s completed", submission.Ticker))
		return printResult(snapshot.Result)
	case run.StatusFailed:
		spinner.Fail(fmt.Sprintf("Analysis of %s failed", submission.Ticker))
		pterm.Error.Println(snapshot.Error)
		return errors.Newf("run %s failed", snapshot.RunID)
	default:
		// Wait only returns terminal snapshots; anything else is a bug
		return errors.Newf("run %s returned in non-terminal state %s", snapshot.RunID, snapshot.Status)
	}
}

// printResult pretty-prints the pipeline's result document
func printResult(result json.RawMessage) error {
	if len(result) == 0 {
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		// Not valid JSON? Print it raw rather than hiding it
		fmt.Println(string(result))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
