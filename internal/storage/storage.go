// Package storage provides the SQLite-backed transactional document store
// that underlies the content store, virtual filesystem, and semantic graph.
// It standardizes on modernc.org/sqlite (pure Go, no CGO), the same driver
// the teacher uses for its own metadata store, with WAL mode enabled for
// concurrent readers.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/meridian-dev/meridian/internal/merrors"
)

// Pool wraps a *sql.DB configured for Meridian's access pattern: at most one
// open connection, through which reads and writes are both serialized. Reads
// are not served concurrently, and the connection limit is not configurable.
type Pool struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// Open opens (creating if necessary) a SQLite database at path and applies
// the Meridian schema migrations. path == ":memory:" opens an in-process,
// ephemeral database, useful for tests.
func Open(ctx context.Context, path string) (*Pool, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, merrors.Fatal(merrors.ErrCodeInternal, "failed to create storage directory", err)
		}
	}

	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, merrors.Fatal(merrors.ErrCodeInternal, "failed to open storage database", err)
	}

	// One open connection in total avoids SQLITE_BUSY under WAL; readers wait
	// for it just as writers do.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, merrors.Fatal(merrors.ErrCodeInternal, "failed to set WAL mode", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, merrors.Fatal(merrors.ErrCodeInternal, "failed to enable foreign keys", err)
	}

	p := &Pool{db: db, path: path}
	if err := p.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// DB exposes the underlying *sql.DB for packages that need raw SQL access.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. This is the "transactional document database"
// capability the core components are built against.
func (p *Pool) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to begin transaction", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to commit transaction", err)
	}
	return nil
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS blobs (
		hash TEXT PRIMARY KEY,
		size INTEGER NOT NULL,
		ref_count INTEGER NOT NULL DEFAULT 0,
		content BLOB NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS workspaces (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		parent_id TEXT,
		read_only INTEGER NOT NULL DEFAULT 0,
		metadata TEXT NOT NULL DEFAULT '{}',
		sync_sources TEXT NOT NULL DEFAULT '[]',
		fork_metadata TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS vnodes (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		kind TEXT NOT NULL,
		content_hash TEXT,
		target TEXT,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		read_only INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		deleted INTEGER NOT NULL DEFAULT 0,
		units_count INTEGER NOT NULL DEFAULT 0,
		last_indexed_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(workspace_id, path)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vnodes_workspace_path ON vnodes(workspace_id, path)`,
	`CREATE TABLE IF NOT EXISTS code_units (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		unit_type TEXT NOT NULL,
		name TEXT NOT NULL,
		qualified_name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		language TEXT NOT NULL,
		start_byte INTEGER NOT NULL DEFAULT 0,
		end_byte INTEGER NOT NULL DEFAULT 0,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		start_col INTEGER NOT NULL DEFAULT 0,
		end_col INTEGER NOT NULL DEFAULT 0,
		signature TEXT,
		body TEXT,
		doc_comment TEXT,
		return_type TEXT,
		parameters TEXT NOT NULL DEFAULT '[]',
		visibility TEXT NOT NULL,
		modifiers TEXT NOT NULL DEFAULT '[]',
		is_exported INTEGER NOT NULL DEFAULT 0,
		complexity_cyclomatic INTEGER NOT NULL DEFAULT 0,
		complexity_cognitive INTEGER NOT NULL DEFAULT 0,
		complexity_nesting INTEGER NOT NULL DEFAULT 0,
		complexity_lines INTEGER NOT NULL DEFAULT 0,
		complexity_parameters INTEGER NOT NULL DEFAULT 0,
		complexity_returns INTEGER NOT NULL DEFAULT 0,
		is_async INTEGER NOT NULL DEFAULT 0,
		is_unsafe INTEGER NOT NULL DEFAULT 0,
		has_documentation INTEGER NOT NULL DEFAULT 0,
		has_tests INTEGER NOT NULL DEFAULT 0,
		embedding BLOB,
		embedding_model TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_units_workspace_file ON code_units(workspace_id, file_path)`,
	`CREATE INDEX IF NOT EXISTS idx_units_qualified_name ON code_units(workspace_id, qualified_name)`,
	`CREATE INDEX IF NOT EXISTS idx_units_type ON code_units(unit_type)`,
	`CREATE INDEX IF NOT EXISTS idx_units_visibility ON code_units(visibility)`,
	`CREATE INDEX IF NOT EXISTS idx_units_exported ON code_units(is_exported)`,
	`CREATE INDEX IF NOT EXISTS idx_units_complexity ON code_units(complexity_cyclomatic)`,
	`CREATE TABLE IF NOT EXISTS dependencies (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		dependency_type TEXT NOT NULL,
		is_direct INTEGER NOT NULL DEFAULT 1,
		is_runtime INTEGER NOT NULL DEFAULT 1,
		confidence REAL NOT NULL DEFAULT 1.0,
		context TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(source_id, target_id, dependency_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_deps_source ON dependencies(workspace_id, source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_deps_target ON dependencies(workspace_id, target_id)`,
	`CREATE TABLE IF NOT EXISTS changes (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		vnode_id TEXT NOT NULL,
		path TEXT NOT NULL,
		change_type TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		before_hash TEXT,
		after_hash TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_changes_workspace_ts ON changes(workspace_id, timestamp)`,
	`CREATE TABLE IF NOT EXISTS kv_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

func (p *Pool) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return merrors.Fatal(merrors.ErrCodeInternal, fmt.Sprintf("migration failed: %s", stmt), err)
		}
	}
	return nil
}
