package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/model"
)

// Verify at compile time that Store implements all interfaces.
var (
	_ RunReader      = (*Store)(nil)
	_ RunWriter      = (*Store)(nil)
	_ ArtifactReader = (*Store)(nil)
	_ ArtifactWriter = (*Store)(nil)
)

// Store provides data access to the SQLite registry.
type Store struct {
	db *sql.DB
}

// New creates a new Store and initialises the schema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema version: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	// Index 0 = migration from v0 to v1, etc.
	migrations := []func() error{
		s.migrateV1, // v0 → v1: runs, artifacts, aliases
		s.migrateV2, // v1 → v2: usage lineage
	}

	for i := version; i < len(migrations); i++ {
		if err := migrations[i](); err != nil {
			return fmt.Errorf("migration v%d→v%d: %w", i, i+1, err)
		}
		if _, err := s.db.Exec(`UPDATE schema_version SET version = ?`, i+1); err != nil {
			return fmt.Errorf("update schema version to %d: %w", i+1, err)
		}
	}

	return nil
}

// migrateV1 creates the initial schema (v0 → v1).
func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		job_type    TEXT NOT NULL,
		project     TEXT NOT NULL,
		state       TEXT NOT NULL,
		config      TEXT NOT NULL,
		exit_code   INTEGER,
		error_info  TEXT,
		created_at  TEXT NOT NULL,
		finished_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_job ON runs(job_type, created_at);

	CREATE TABLE IF NOT EXISTS artifacts (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		version     INTEGER NOT NULL,
		type        TEXT NOT NULL,
		description TEXT NOT NULL,
		file_name   TEXT NOT NULL,
		digest      TEXT NOT NULL,
		size        INTEGER NOT NULL,
		run_id      TEXT NOT NULL REFERENCES runs(id),
		created_at  TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_artifacts_version ON artifacts(name, version);

	CREATE TABLE IF NOT EXISTS artifact_aliases (
		name        TEXT NOT NULL,
		alias       TEXT NOT NULL,
		artifact_id TEXT NOT NULL REFERENCES artifacts(id),
		PRIMARY KEY (name, alias)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// migrateV2 adds the usage table linking runs to the artifacts they consumed
// and produced (v1 → v2). Producers recorded in artifacts.run_id are backfilled.
func (s *Store) migrateV2() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS artifact_usages (
			run_id      TEXT NOT NULL REFERENCES runs(id),
			artifact_id TEXT NOT NULL REFERENCES artifacts(id),
			role        TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			PRIMARY KEY (run_id, artifact_id, role)
		);
		CREATE INDEX IF NOT EXISTS idx_usages_artifact ON artifact_usages(artifact_id);
	`); err != nil {
		return fmt.Errorf("create artifact_usages table: %w", err)
	}
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO artifact_usages (run_id, artifact_id, role, created_at)
		SELECT run_id, id, ?, created_at FROM artifacts`, model.UsageOutput)
	return err
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

const runColumns = `id, job_type, project, state, config, exit_code, error_info, created_at, finished_at`

// CreateRun inserts a new run.
func (s *Store) CreateRun(ctx context.Context, run model.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.JobType, run.Project, run.State, run.Config,
		run.ExitCode, run.ErrorInfo, run.CreatedAt, run.FinishedAt,
	)
	return err
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, model.ErrNotFound)
	}
	return run, err
}

// GetRunWithArtifacts returns a run together with its input and output artifacts.
func (s *Store) GetRunWithArtifacts(ctx context.Context, id string) (*model.RunWithArtifacts, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	inputs, err := s.listRunArtifacts(ctx, id, model.UsageInput)
	if err != nil {
		return nil, err
	}
	outputs, err := s.listRunArtifacts(ctx, id, model.UsageOutput)
	if err != nil {
		return nil, err
	}
	return &model.RunWithArtifacts{Run: *run, Inputs: inputs, Outputs: outputs}, nil
}

// UpdateRunConfig replaces the JSON config of a running run.
func (s *Store) UpdateRunConfig(ctx context.Context, id, config string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET config = ? WHERE id = ? AND state = ?`, config, id, model.RunRunning)
	if err != nil {
		return err
	}
	return s.checkRunning(ctx, res, id)
}

// FinishRun moves a running run to its final state. Finishing twice returns
// model.ErrRunFinished.
func (s *Store) FinishRun(ctx context.Context, id, state string, exitCode int, errorInfo *string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET state = ?, exit_code = ?, error_info = ?, finished_at = ?
		WHERE id = ? AND state = ?`,
		state, exitCode, errorInfo, now, id, model.RunRunning,
	)
	if err != nil {
		return err
	}
	return s.checkRunning(ctx, res, id)
}

// checkRunning turns a zero-row update into ErrNotFound or ErrRunFinished.
func (s *Store) checkRunning(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetRun(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("run %s: %w", id, model.ErrRunFinished)
}

// ---------------------------------------------------------------------------
// Artifacts
// ---------------------------------------------------------------------------

// artifactSelect loads an artifact row with its aliases folded into one column.
const artifactSelect = `
	SELECT a.id, a.name, a.version, a.type, a.description, a.file_name, a.digest, a.size, a.run_id, a.created_at,
		COALESCE((SELECT GROUP_CONCAT(al.alias, ',') FROM artifact_aliases al WHERE al.artifact_id = a.id), '')
	FROM artifacts a`

// CreateArtifact stores a as the next version of its name, moves the latest
// alias onto it and records the producing run. a.Version and a.Aliases are
// filled in on success.
func (s *Store) CreateArtifact(ctx context.Context, a *model.Artifact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version) + 1, 0) FROM artifacts WHERE name = ?`, a.Name).Scan(&next); err != nil {
		return fmt.Errorf("next version: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO artifacts (id, name, version, type, description, file_name, digest, size, run_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, next, a.Type, a.Description, a.FileName, a.Digest, a.Size, a.RunID, a.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	if err := upsertAlias(ctx, tx, a.Name, model.AliasLatest, a.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO artifact_usages (run_id, artifact_id, role, created_at) VALUES (?, ?, ?, ?)`,
		a.RunID, a.ID, model.UsageOutput, a.CreatedAt,
	); err != nil {
		return fmt.Errorf("record producer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	a.Version = next
	a.Aliases = []string{model.AliasLatest}
	return nil
}

// SetAlias points alias of the named artifact at artifactID.
func (s *Store) SetAlias(ctx context.Context, name, alias, artifactID string) error {
	return upsertAlias(ctx, s.db, name, alias, artifactID)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func upsertAlias(ctx context.Context, e execer, name, alias, artifactID string) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO artifact_aliases (name, alias, artifact_id) VALUES (?, ?, ?)
		ON CONFLICT(name, alias) DO UPDATE SET artifact_id = excluded.artifact_id`,
		name, alias, artifactID,
	)
	if err != nil {
		return fmt.Errorf("set alias %s:%s: %w", name, alias, err)
	}
	return nil
}

// GetArtifact returns an artifact version by ID.
func (s *Store) GetArtifact(ctx context.Context, id string) (*model.Artifact, error) {
	row := s.db.QueryRowContext(ctx, artifactSelect+` WHERE a.id = ?`, id)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s: %w", id, model.ErrNotFound)
	}
	return a, err
}

// ResolveArtifact maps a reference to a concrete version. "vN" aliases select
// by version number, anything else goes through the alias table.
func (s *Store) ResolveArtifact(ctx context.Context, ref model.ArtifactRef) (*model.Artifact, error) {
	var row *sql.Row
	if v, ok := ref.Version(); ok {
		row = s.db.QueryRowContext(ctx, artifactSelect+` WHERE a.name = ? AND a.version = ?`, ref.Name, v)
	} else {
		row = s.db.QueryRowContext(ctx, artifactSelect+`
			JOIN artifact_aliases x ON x.artifact_id = a.id
			WHERE x.name = ? AND x.alias = ?`, ref.Name, ref.Alias)
	}
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s: %w", ref, model.ErrNotFound)
	}
	return a, err
}

// ListArtifactVersions returns all versions of the named artifact, oldest first.
func (s *Store) ListArtifactVersions(ctx context.Context, name string) ([]model.Artifact, error) {
	return s.queryArtifacts(ctx, artifactSelect+` WHERE a.name = ? ORDER BY a.version ASC`, name)
}

// RecordUsage links a run to an artifact it consumed or produced.
func (s *Store) RecordUsage(ctx context.Context, runID, artifactID, role string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO artifact_usages (run_id, artifact_id, role, created_at) VALUES (?, ?, ?, ?)`,
		runID, artifactID, role, now,
	)
	return err
}

func (s *Store) listRunArtifacts(ctx context.Context, runID, role string) ([]model.Artifact, error) {
	return s.queryArtifacts(ctx, artifactSelect+`
		JOIN artifact_usages u ON u.artifact_id = a.id
		WHERE u.run_id = ? AND u.role = ?
		ORDER BY u.created_at ASC, a.name ASC`, runID, role)
}

func (s *Store) queryArtifacts(ctx context.Context, query string, args ...interface{}) ([]model.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []model.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, *a)
	}
	return artifacts, rows.Err()
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*model.Run, error) {
	var run model.Run
	var exitCode sql.NullInt64
	err := row.Scan(&run.ID, &run.JobType, &run.Project, &run.State, &run.Config, &exitCode, &run.ErrorInfo, &run.CreatedAt, &run.FinishedAt)
	if err != nil {
		return nil, err
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}
	return &run, nil
}

func scanArtifact(row scanner) (*model.Artifact, error) {
	var a model.Artifact
	var aliases string
	err := row.Scan(&a.ID, &a.Name, &a.Version, &a.Type, &a.Description, &a.FileName, &a.Digest, &a.Size, &a.RunID, &a.CreatedAt, &aliases)
	if err != nil {
		return nil, err
	}
	if aliases != "" {
		a.Aliases = strings.Split(aliases, ",")
		sort.Strings(a.Aliases)
	}
	return &a, nil
}
