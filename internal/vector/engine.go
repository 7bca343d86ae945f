// Package vector persists document embeddings inside the archive's SQLite
// file and answers nearest-neighbor queries. Two interchangeable backends
// implement one operation contract: the sqlite-vec extension when it loads,
// a brute-force blob scan otherwise. Backend selection is re-derived on every
// open and never persisted.
package vector

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/logging"
)

// ErrClosed is returned by operations on an engine with no open target.
var ErrClosed = errors.New("vector: engine not open")

// ErrUnknownDoc is returned by Save when doc-id validation is enabled and the
// relational model has no document with that id.
var ErrUnknownDoc = errors.New("vector: doc id has no document row")

// Options configures an Engine.
type Options struct {
	// Dimensions is the declared width of the native index.
	Dimensions int

	// FallbackFloor discards fallback-scan scores below it.
	FallbackFloor float64

	// NativeFloor applies the same cut on the native backend. Zero keeps the
	// historical accept-everything behavior.
	NativeFloor float64
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Dimensions:    384,
		FallbackFloor: 0.25,
		NativeFloor:   0,
	}
}

// Info is the engine's public status: how many vectors are stored and which
// backend serves them.
type Info struct {
	VectorCount int64
	Backend     Kind
}

type state int

const (
	stateClosed state = iota
	stateOpening
	stateOpen
)

// Engine is the vector store session handle. One live connection at a time,
// no pooling; concurrent opens against the same store must be serialized by
// the caller.
type Engine struct {
	mu   sync.Mutex
	opts Options

	st      state
	path    string
	db      *sql.DB
	backend backend

	// validate, when set, gates Save on the doc id existing in the
	// relational model.
	validate func(docID int64) (bool, error)

	// disableNative forces the fallback backend, used to simulate an
	// unavailable extension.
	disableNative bool
}

// New creates a closed engine.
func New(opts Options) *Engine {
	if opts.Dimensions <= 0 {
		opts.Dimensions = 384
	}
	return &Engine{opts: opts, st: stateClosed}
}

// SetDocumentValidator installs a doc-id existence check applied on Save.
func (e *Engine) SetDocumentValidator(fn func(docID int64) (bool, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.validate = fn
}

// Open targets the engine at a store file. Opening a new target first
// best-effort-closes any different target already open; close errors are
// logged, not raised. The backend is re-derived on every open.
func (e *Engine) Open(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.st == stateOpen && e.path == path {
		return nil
	}
	if e.st == stateOpen {
		logging.Vector("Switching vector target from %s to %s", e.path, path)
		if err := e.closeLocked(); err != nil {
			logging.Get(logging.CategoryVector).Warn("Failed to close previous target: %v", err)
		}
	}

	e.st = stateOpening
	e.path = path

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		e.st = stateClosed
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.VectorDebug("Failed to set busy_timeout: %v", err)
	}

	e.db = db
	e.backend = e.selectBackend()
	e.st = stateOpen

	logging.Vector("Vector store open at %s (backend=%s)", path, e.backend.kind())
	return nil
}

// selectBackend probes for the sqlite-vec extension and falls back to the
// plain-table scan when the probe fails for any reason.
func (e *Engine) selectBackend() backend {
	if !e.disableNative {
		probe := "CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])"
		if _, err := e.db.Exec(probe); err == nil {
			_, _ = e.db.Exec("DROP TABLE IF EXISTS vec_probe")
			native, err := newNativeBackend(e.db, e.opts.Dimensions, e.opts.NativeFloor)
			if err == nil {
				return native
			}
			logging.Get(logging.CategoryVector).Warn("Native backend init failed: %v", err)
		} else {
			logging.Get(logging.CategoryVector).Warn("sqlite-vec extension unavailable, using brute-force fallback: %v", err)
		}
	}

	fallback, err := newFallbackBackend(e.db, e.opts.FallbackFloor)
	if err != nil {
		// Table creation on a freshly opened database should not fail; if it
		// does, every operation will report ErrClosed-like neutral results.
		logging.Get(logging.CategoryVector).Error("Fallback backend init failed: %v", err)
		return nil
	}
	return fallback
}

// Close releases the current target.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeLocked()
}

func (e *Engine) closeLocked() error {
	if e.st == stateClosed {
		return nil
	}
	var err error
	if e.db != nil {
		err = e.db.Close()
	}
	e.db = nil
	e.backend = nil
	e.st = stateClosed
	e.path = ""
	return err
}

// Backend reports the active backend kind, or empty when closed.
func (e *Engine) Backend() Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend == nil {
		return ""
	}
	return e.backend.kind()
}

// Save writes one document embedding. The doc id must equal the document's
// relational id; with a validator installed, unknown ids are rejected.
// Callers running bulk loops log failures per document and continue.
func (e *Engine) Save(docID int64, vec []float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.st != stateOpen || e.backend == nil {
		return ErrClosed
	}
	if len(vec) != e.opts.Dimensions {
		return fmt.Errorf("vector: got %d dimensions, want %d", len(vec), e.opts.Dimensions)
	}
	if e.validate != nil {
		ok, err := e.validate(docID)
		if err != nil {
			return fmt.Errorf("vector: doc validation failed: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownDoc, docID)
		}
	}
	return e.backend.save(docID, vec)
}

// Search returns up to limit hits ordered by descending score. Internal
// failures degrade to an empty result, never an error.
func (e *Engine) Search(query []float32, limit int) []Hit {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.st != stateOpen || e.backend == nil {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}

	hits, err := e.backend.search(query, limit)
	if err != nil {
		logging.Get(logging.CategoryVector).Error("Search failed: %v", err)
		return nil
	}
	return hits
}

// Count reports how many vectors the active backend holds; 0 on failure.
func (e *Engine) Count() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.st != stateOpen || e.backend == nil {
		return 0
	}
	n, err := e.backend.count()
	if err != nil {
		logging.Get(logging.CategoryVector).Error("Count failed: %v", err)
		return 0
	}
	return n
}

// Clear wipes the active backend table.
func (e *Engine) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.st != stateOpen || e.backend == nil {
		return ErrClosed
	}
	return e.backend.clear()
}

// Info reports the stored vector count and active backend kind.
func (e *Engine) Info() Info {
	count := e.Count()
	return Info{VectorCount: count, Backend: e.Backend()}
}
