package run

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/moneta-labs/moneta/errors"
)

// --- Sqlmock Tests ---
// Failure-path tests that need a misbehaving database: backend outages
// and the re-read classification behind conditional transitions.

func TestInsert_StoreUnavailable_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db)

	mock.ExpectExec(`INSERT INTO analysis_runs`).
		WillReturnError(errTest("disk I/O error"))

	run := testRun("RUN_OUTAGE_001", "AAPL", StatusQueued, time.Now())
	err = store.Insert(run)
	if err == nil {
		t.Fatal("Insert succeeded against a dead database")
	}
	if !errors.IsServiceUnavailableError(err) {
		t.Errorf("Expected a service-unavailable error, got: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestListRecent_StoreUnavailable_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db)

	mock.ExpectQuery(`SELECT (.+) FROM analysis_runs`).
		WillReturnError(errTest("database is locked"))

	_, err = store.ListRecent(10)
	if err == nil {
		t.Fatal("ListRecent succeeded against a dead database")
	}
	if !errors.IsServiceUnavailableError(err) {
		t.Errorf("Expected a service-unavailable error, got: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

// A conditional update that touched no rows triggers a re-read to tell
// "run is gone" apart from "run moved on". This pins the classification.
func TestTransition_LostRaceClassification_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db)

	// The conditional write misses because the run is already completed
	mock.ExpectExec(`UPDATE analysis_runs`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// The re-read finds the run in its terminal state
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "ticker", "status", "result_json", "error", "created_at", "updated_at"}).
		AddRow("RUN_CAS_001", "AAPL", "completed", `{"verdict":"buy"}`, nil, now, now)
	mock.ExpectQuery(`SELECT (.+) FROM analysis_runs WHERE id`).
		WithArgs("RUN_CAS_001").
		WillReturnRows(rows)

	err = store.Transition("RUN_CAS_001", StatusQueued, StatusRunning)
	if !IsInvalidTransition(err) {
		t.Errorf("Expected invalid-transition for a completed run, got: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestComplete_MissingRunClassification_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db)

	mock.ExpectExec(`UPDATE analysis_runs`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// The re-read finds nothing: the run never existed
	mock.ExpectQuery(`SELECT (.+) FROM analysis_runs WHERE id`).
		WithArgs("RUN_CAS_002").
		WillReturnRows(sqlmock.NewRows([]string{"id", "ticker", "status", "result_json", "error", "created_at", "updated_at"}))

	err = store.Complete("RUN_CAS_002", json.RawMessage(`{"verdict":"buy"}`))
	if !errors.IsNotFoundError(err) {
		t.Errorf("Expected not-found for a missing run, got: %v", err)
	}
	if IsInvalidTransition(err) {
		t.Error("Missing runs must classify as not-found, not invalid transition")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestPing_StoreUnavailable_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db)

	mock.ExpectPing().WillReturnError(errTest("connection refused"))

	if err := store.Ping(context.Background()); !errors.IsServiceUnavailableError(err) {
		t.Errorf("Expected a service-unavailable error from ping, got: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}
