package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moneta-labs/moneta/errors"
	"github.com/moneta-labs/moneta/run"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage Moneta database",
	Long: `db — Manage Moneta database operations

Manage database operations including migrations and run statistics.

Examples:
  moneta db migrate               # Apply pending schema migrations
  moneta db stats                 # Show run statistics
  moneta db stats --limit 10      # Show last 10 failed runs`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long:  "Open the database and apply any schema migrations that have not run yet. Safe to run repeatedly.",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show run statistics",
	Long:  "Display database statistics including run counts by lifecycle state and recent failures",
	RunE:  runDbStats,
}

var (
	statsLimitFlag int
)

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
	dbStatsCmd.Flags().IntVar(&statsLimitFlag, "limit", 20, "Number of recent failed runs to show")
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	// openDatabase migrates as part of opening
	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	fmt.Printf("Database migrated: %s\n", resolveDatabasePath(""))
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	// Open and migrate database
	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	store := run.NewStore(database)
	stats, err := store.GetStats()
	if err != nil {
		return fmt.Errorf("failed to query run stats: %w", err)
	}

	// Schema version from the migrations ledger
	var schemaVersion sql.NullString
	err = database.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&schemaVersion)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to query schema version: %w", err)
	}

	// Print database info
	fmt.Printf("Database Statistics\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path:  %s\n", resolveDatabasePath(""))
	if schemaVersion.Valid {
		fmt.Printf("Schema Version: %s\n", schemaVersion.String)
	}
	fmt.Println()

	fmt.Printf("Runs by Status:\n")
	fmt.Printf("  Queued:       %d\n", stats.Queued)
	fmt.Printf("  Running:      %d\n", stats.Running)
	fmt.Printf("  Completed:    %d\n", stats.Completed)
	fmt.Printf("  Failed:       %d\n", stats.Failed)
	fmt.Printf("  Total:        %d\n", stats.Total)
	fmt.Println()

	// Recent failures with their reasons
	failed, err := store.ListByStatus(run.StatusFailed, statsLimitFlag)
	if err != nil {
		return fmt.Errorf("failed to list failed runs: %w", err)
	}

	fmt.Printf("Recent Failed Runs (last %d):\n", statsLimitFlag)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")

	if len(failed) == 0 {
		fmt.Println("  No failed runs recorded")
		return nil
	}

	for _, r := range failed {
		fmt.Printf("  [%s] %s %s: %s\n",
			r.UpdatedAt.Format("2006-01-02 15:04:05"),
			r.ID,
			r.Ticker,
			truncate(r.Error, 60),
		)
	}

	return nil
}
