package vector

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/embedding"
	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/logging"
)

// Kind identifies which storage/search backend a session is running on.
type Kind string

const (
	// KindNative is the sqlite-vec vec0 virtual table with indexed search.
	KindNative Kind = "native"
	// KindFallback is the brute-force scan over raw embedding blobs.
	KindFallback Kind = "fallback"
)

// Hit is one search result: a document id and its similarity score.
type Hit struct {
	DocID int64
	Score float64
}

// backend is the common operation contract both implementations satisfy.
// Implementations report failures as errors; the Engine decides which of
// those surface and which degrade to neutral results.
type backend interface {
	save(docID int64, vec []float32) error
	search(query []float32, limit int) ([]Hit, error)
	count() (int64, error)
	clear() error
	kind() Kind
}

// =============================================================================
// NATIVE BACKEND (sqlite-vec)
// =============================================================================

// nativeBackend stores vectors in a vec0 virtual table keyed by rowid and
// searches with the extension's cosine distance operator.
type nativeBackend struct {
	db    *sql.DB
	floor float64
}

func newNativeBackend(db *sql.DB, dims int, floor float64) (*nativeBackend, error) {
	ddl := fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS dip_vectors USING vec0(embedding float[%d])", dims)
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("failed to create vec0 table: %w", err)
	}
	return &nativeBackend{db: db, floor: floor}, nil
}

func (b *nativeBackend) kind() Kind { return KindNative }

func (b *nativeBackend) save(docID int64, vec []float32) error {
	payload, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("failed to serialize vector: %w", err)
	}
	// vec0 rejects INSERT OR REPLACE; delete-then-insert keeps the write
	// idempotent per doc id.
	if _, err := b.db.Exec("DELETE FROM dip_vectors WHERE rowid = ?", docID); err != nil {
		return err
	}
	_, err = b.db.Exec("INSERT INTO dip_vectors (rowid, embedding) VALUES (?, ?)", docID, string(payload))
	return err
}

func (b *nativeBackend) search(query []float32, limit int) ([]Hit, error) {
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query vector: %w", err)
	}

	rows, err := b.db.Query(`
		SELECT rowid, vec_distance_cosine(embedding, ?) AS distance
		FROM dip_vectors
		ORDER BY distance ASC
		LIMIT ?`, string(payload), limit)
	if err != nil {
		return nil, fmt.Errorf("vec search failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var id int64
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			logging.Get(logging.CategoryVector).Warn("Failed to scan vec row: %v", err)
			continue
		}
		// Cosine distance is bounded, so 1 - distance is a similarity score.
		score := 1.0 - distance
		if score < b.floor {
			continue
		}
		hits = append(hits, Hit{DocID: id, Score: score})
	}
	return hits, rows.Err()
}

func (b *nativeBackend) count() (int64, error) {
	var n int64
	err := b.db.QueryRow("SELECT COUNT(*) FROM dip_vectors").Scan(&n)
	return n, err
}

func (b *nativeBackend) clear() error {
	_, err := b.db.Exec("DELETE FROM dip_vectors")
	return err
}

// =============================================================================
// FALLBACK BACKEND (brute force)
// =============================================================================

// fallbackBackend stores raw little-endian float32 blobs in a plain table and
// answers queries with a full linear scan. O(N*D) per query with no index;
// acceptable for the archive sizes the fallback is meant for.
type fallbackBackend struct {
	db    *sql.DB
	floor float64
}

func newFallbackBackend(db *sql.DB, floor float64) (*fallbackBackend, error) {
	ddl := `CREATE TABLE IF NOT EXISTS vectors (
		doc_id INTEGER PRIMARY KEY,
		embedding BLOB NOT NULL
	)`
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("failed to create vectors table: %w", err)
	}
	return &fallbackBackend{db: db, floor: floor}, nil
}

func (b *fallbackBackend) kind() Kind { return KindFallback }

func (b *fallbackBackend) save(docID int64, vec []float32) error {
	_, err := b.db.Exec(`
		INSERT INTO vectors (doc_id, embedding) VALUES (?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET embedding = excluded.embedding`,
		docID, EncodeEmbedding(vec))
	return err
}

func (b *fallbackBackend) search(query []float32, limit int) ([]Hit, error) {
	rows, err := b.db.Query("SELECT doc_id, embedding FROM vectors")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			logging.Get(logging.CategoryVector).Warn("Failed to scan vector row: %v", err)
			continue
		}
		vec, err := DecodeEmbedding(blob)
		if err != nil {
			logging.Get(logging.CategoryVector).Warn("Corrupt embedding for doc %d: %v", id, err)
			continue
		}
		// Dot product equals cosine similarity because stored vectors and
		// queries are unit-norm.
		score := embedding.Dot(query, vec)
		if score < b.floor {
			continue
		}
		hits = append(hits, Hit{DocID: id, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (b *fallbackBackend) count() (int64, error) {
	var n int64
	err := b.db.QueryRow("SELECT COUNT(*) FROM vectors").Scan(&n)
	return n, err
}

func (b *fallbackBackend) clear() error {
	_, err := b.db.Exec("DELETE FROM vectors")
	return err
}
