package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// registryPragmas run on every new registry connection. WAL keeps downloads
// readable while an upload commits; usages and aliases reference runs and
// artifacts by key.
var registryPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA foreign_keys=ON",
}

// OpenSQLite opens the registry database at path, creating the file if needed.
// The pool is limited to one connection, so callers must not hold rows open
// while issuing another query.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range registryPragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}
