// Package store implements the normalized relational archival model over
// SQLite: archival processes, document classes, AIPs, documents, files,
// typed metadata, subjects, administrative procedures and integrity results.
//
// All structural inserts are keyed by natural uniqueness and use
// insert-or-ignore, so re-walking an unchanged package is idempotent. A full
// re-index wipes every table in dependency order before rebuilding.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/logging"
)

// ArchiveStore owns the single SQLite connection for one archive identity.
// The vector backend lives in the same file (virtual table or plain table)
// but is managed by the vector engine, not here.
type ArchiveStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*ArchiveStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.Open")
	defer timer.Stop()

	logging.Store("Opening archive store at %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign keys: %v", err)
	}

	store := &ArchiveStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Store("Archive store ready")
	return store, nil
}

// initialize creates the relational tables.
func (s *ArchiveStore) initialize() error {
	for _, ddl := range schemaStatements {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *ArchiveStore) Close() error {
	logging.Store("Closing archive store")
	return s.db.Close()
}

// Path returns the database file path.
func (s *ArchiveStore) Path() string {
	return s.dbPath
}

// DB returns the underlying SQL database connection.
func (s *ArchiveStore) DB() *sql.DB {
	return s.db
}

// ClearAll wipes every relational table in dependency order (children before
// parents). Called at the start of a re-index; the vector engine clears its
// own table separately.
func (s *ArchiveStore) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.Store("Clearing all relational tables")

	tables := []string{
		"integrity_check",
		"metadata",
		"document_subject",
		"natural_person",
		"legal_entity",
		"internal_public_administration",
		"external_public_administration",
		"other_subject",
		"qualified_system",
		"subject",
		"phase",
		"document_aggregation",
		"administrative_procedure",
		"file",
		"document",
		"aip",
		"document_class",
		"archival_process",
	}
	for _, table := range tables {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// FileCount reports the number of file rows, used by info().
func (s *ArchiveStore) FileCount() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM file").Scan(&n)
	return n, err
}

// DocumentCount reports the number of document rows.
func (s *ArchiveStore) DocumentCount() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM document").Scan(&n)
	return n, err
}

// DocumentExists reports whether a document row with the given id exists.
// The vector engine uses this to reject writes for ids the relational model
// never produced.
func (s *ArchiveStore) DocumentExists(docID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRow("SELECT 1 FROM document WHERE id = ?", docID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
