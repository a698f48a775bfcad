// Package cli holds the cobra commands behind the basic-cleaning and tracker
// binaries.
package cli

import (
	"fmt"

	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/config"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/store"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/tracking"
)

// BackendOpener returns the tracker backend a command should use and a
// function releasing it.
type BackendOpener func() (tracking.Backend, func() error, error)

// LocalOpener returns the local registry and blob store a command should use.
type LocalOpener func() (*tracking.Local, func() error, error)

// OpenLocal opens the SQLite registry at cfg.DBPath with payloads under
// cfg.ArtifactDir.
func OpenLocal(cfg config.Config) (*tracking.Local, func() error, error) {
	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	s, err := store.New(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init store: %w", err)
	}
	return tracking.NewLocal(s, cfg.ArtifactDir), db.Close, nil
}

// OpenBackend picks the remote tracker when cfg.TrackerURL is set and the
// local registry otherwise.
func OpenBackend(cfg config.Config) (tracking.Backend, func() error, error) {
	if cfg.UseRemoteTracker() {
		return tracking.NewHTTP(cfg.TrackerURL, cfg.HTTPTimeout, cfg.ArtifactDir), func() error { return nil }, nil
	}
	l, closeFn, err := OpenLocal(cfg)
	if err != nil {
		return nil, nil, err
	}
	return l, closeFn, nil
}
