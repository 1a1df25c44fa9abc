package run

import (
	"database/sql"
)

// RunScanArgs holds the nullable column targets for scanning a run row.
// The result and error columns are NULL until the run reaches the
// matching terminal state.
type RunScanArgs struct {
	Result   sql.NullString
	ErrorMsg sql.NullString
}

// GetRunScanArgs returns a RunScanArgs struct ready for scanning
func GetRunScanArgs() *RunScanArgs {
	return &RunScanArgs{}
}

// GetRunScanTargets returns scan targets for the run and scan args,
// in the order expected by the standard run SELECT query
func GetRunScanTargets(run *Run, args *RunScanArgs) []interface{} {
	return []interface{}{
		&run.ID,
		&run.Ticker,
		&run.Status,
		&args.Result,
		&args.ErrorMsg,
		&run.CreatedAt,
		&run.UpdatedAt,
	}
}

// ProcessRunScanArgs folds the scanned nullable columns into the run
func ProcessRunScanArgs(run *Run, args *RunScanArgs) {
	if args.Result.Valid {
		run.Result = []byte(args.Result.String)
	}
	if args.ErrorMsg.Valid {
		run.Error = args.ErrorMsg.String
	}
}

// ScanRunFromRow scans a single run from a sql.Row
func ScanRunFromRow(row *sql.Row, run *Run) error {
	args := GetRunScanArgs()
	targets := GetRunScanTargets(run, args)

	if err := row.Scan(targets...); err != nil {
		return err
	}

	ProcessRunScanArgs(run, args)
	return nil
}

// ScanRunFromRows scans a single run from sql.Rows (for use in loops)
func ScanRunFromRows(rows *sql.Rows, run *Run) error {
	args := GetRunScanArgs()
	targets := GetRunScanTargets(run, args)

	if err := rows.Scan(targets...); err != nil {
		return err
	}

	ProcessRunScanArgs(run, args)
	return nil
}

// StandardRunSelectColumns returns the standard column list for run SELECT queries
func StandardRunSelectColumns() string {
	return `id, ticker, status, result_json, error, created_at, updated_at`
}
