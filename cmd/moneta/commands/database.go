package commands

import (
	"database/sql"

	"github.com/moneta-labs/moneta/config"
	"github.com/moneta-labs/moneta/db"
	"github.com/moneta-labs/moneta/errors"
	"github.com/moneta-labs/moneta/logger"
)

// openDatabase opens and migrates a database using the specified path.
// If dbPath is empty, it loads from config. Uses logger.Logger for db operations.
func openDatabase(dbPath string) (*sql.DB, error) {
	// Determine database path
	if dbPath == "" {
		path, err := config.GetDatabasePath()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get database path")
		}
		if path == "" {
			dbPath = "moneta.db"
		} else {
			dbPath = path
		}
	}

	// Open database with logger
	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	// Run migrations with logger
	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, nil
}

// resolveDatabasePath reports the path openDatabase would use for the
// given flag value, for display purposes only.
func resolveDatabasePath(dbPath string) string {
	if dbPath != "" {
		return dbPath
	}
	path, err := config.GetDatabasePath()
	if err != nil || path == "" {
		return "moneta.db"
	}
	return path
}
