// Package storage is the persistence layer: a single SQLite database
// holding branches, entities, observations, relations, keywords,
// cross-references, and the FTS5 shadow of entities.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const (
	// MemoryDirName is the dot-directory created under the configured
	// memory path.
	MemoryDirName = ".memory"
	// DBFileName is the primary database file inside MemoryDirName.
	DBFileName = "memory.db"
	// BackupsDirName holds JSON snapshots next to the database.
	BackupsDirName = "backups"
)

// Store owns the memory database. Writes are serialised by SQLite's
// write lock; the store itself is safe for concurrent use.
type Store struct {
	db   *sqlx.DB
	dir  string // the .memory directory
	path string // the database file
}

// Open creates <basePath>/.memory (and its backups subdirectory) if
// needed, opens the database with WAL and foreign keys on, and runs the
// schema.
func Open(basePath string) (*Store, error) {
	dir := filepath.Join(basePath, MemoryDirName)
	if err := os.MkdirAll(filepath.Join(dir, BackupsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}

	dbPath := filepath.Join(dir, DBFileName)
	db, err := sqlx.Open("sqlite3", "file:"+dbPath+
		"?_pragma=journal_mode(WAL)"+
		"&_pragma=busy_timeout(5000)"+
		"&_pragma=synchronous(NORMAL)"+
		"&_pragma=foreign_keys(ON)"+
		"&_pragma=cache_size(-64000)")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping memory db: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	if _, err := db.Exec(Triggers); err != nil {
		db.Close()
		return nil, fmt.Errorf("create fts triggers: %w", err)
	}

	return &Store{db: db, dir: dir, path: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the .memory directory path.
func (s *Store) Dir() string {
	return s.dir
}

// BackupsDir returns the backups directory path.
func (s *Store) BackupsDir() string {
	return filepath.Join(s.dir, BackupsDirName)
}

// touchBranch refreshes updated_at on the branch owning a write.
func touchBranch(ctx context.Context, tx *sqlx.Tx, branchID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE branches SET updated_at = datetime('now') WHERE id = ?`, branchID)
	return err
}
