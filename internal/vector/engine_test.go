package vector

import (
	"path/filepath"
	"testing"

	"go.uber.org/goleak"

	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/embedding"
)

func TestMain(m *testing.M) {
	// opencensus (pulled in via the genai client) starts a permanent stats
	// worker in its package init.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e := New(opts)
	path := filepath.Join(t.TempDir(), "vectors.db")
	if err := e.Open(path); err != nil {
		t.Fatalf("Failed to open engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

// unit produces a 384-dim unit vector with weight split between two axes.
func unit(i, j int, wi, wj float32) []float32 {
	v := make([]float32, 384)
	v[i] = wi
	v[j] = wj
	return embedding.Normalize(v)
}

func TestClosedEngineIsNeutral(t *testing.T) {
	e := New(DefaultOptions())

	if err := e.Save(1, make([]float32, 384)); err != ErrClosed {
		t.Errorf("Expected ErrClosed from Save, got %v", err)
	}
	if hits := e.Search(make([]float32, 384), 5); hits != nil {
		t.Errorf("Expected nil hits on closed engine, got %v", hits)
	}
	if n := e.Count(); n != 0 {
		t.Errorf("Expected count 0 on closed engine, got %d", n)
	}
	if err := e.Clear(); err != ErrClosed {
		t.Errorf("Expected ErrClosed from Clear, got %v", err)
	}
}

func TestSaveAndSelfSearch(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())

	a := unit(0, 1, 1, 0)
	b := unit(1, 2, 1, 0)

	if err := e.Save(1, a); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := e.Save(2, b); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Querying with a document's own vector must rank that document first.
	hits := e.Search(a, 10)
	if len(hits) == 0 {
		t.Fatal("Expected hits")
	}
	if hits[0].DocID != 1 {
		t.Errorf("Expected doc 1 first, got %d", hits[0].DocID)
	}
	for _, h := range hits[1:] {
		if h.Score > hits[0].Score {
			t.Errorf("Self-similarity %v must top cross-similarity %v", hits[0].Score, h.Score)
		}
	}
}

func TestSaveIsIdempotentPerDoc(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())

	v1 := unit(0, 1, 1, 0)
	v2 := unit(2, 3, 1, 0)

	if err := e.Save(7, v1); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := e.Save(7, v2); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	if n := e.Count(); n != 1 {
		t.Errorf("Expected 1 vector after re-save, got %d", n)
	}

	hits := e.Search(v2, 1)
	if len(hits) != 1 || hits[0].DocID != 7 {
		t.Fatalf("Expected doc 7 under new vector, got %v", hits)
	}
}

func TestFallbackFloorDiscardsWeakMatches(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())
	if e.Backend() != KindFallback {
		t.Skip("native backend active; floor applies to fallback only by default")
	}

	q := unit(0, 1, 1, 0)
	near := unit(0, 1, 0.95, 0.3)   // well above the floor
	orthogonal := unit(5, 6, 1, 0)  // score 0, below the floor

	e.Save(1, near)
	e.Save(2, orthogonal)

	hits := e.Search(q, 10)
	if len(hits) != 1 {
		t.Fatalf("Expected 1 hit above the 0.25 floor, got %d", len(hits))
	}
	if hits[0].DocID != 1 {
		t.Errorf("Expected doc 1, got %d", hits[0].DocID)
	}
}

func TestSearchLimitTruncates(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())

	q := unit(0, 1, 1, 0)
	for i := int64(1); i <= 5; i++ {
		if err := e.Save(i, unit(0, 1, 1, float32(i)*0.05)); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}

	hits := e.Search(q, 3)
	if len(hits) != 3 {
		t.Fatalf("Expected 3 hits, got %d", len(hits))
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Error("Hits must be ordered by descending score")
		}
	}
}

func TestClearThenCount(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())

	e.Save(1, unit(0, 1, 1, 0))
	e.Save(2, unit(1, 2, 1, 0))
	if n := e.Count(); n != 2 {
		t.Fatalf("Expected 2 vectors, got %d", n)
	}

	if err := e.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	info := e.Info()
	if info.VectorCount != 0 {
		t.Errorf("Expected 0 vectors after clear, got %d", info.VectorCount)
	}
	if info.Backend == "" {
		t.Error("Info should still report a backend kind")
	}
}

func TestDimensionMismatchRejected(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())

	if err := e.Save(1, []float32{1, 2, 3}); err == nil {
		t.Error("Expected dimension mismatch error")
	}
}

func TestDocValidatorRejectsUnknownIDs(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())
	e.SetDocumentValidator(func(docID int64) (bool, error) {
		return docID == 42, nil
	})

	if err := e.Save(42, unit(0, 1, 1, 0)); err != nil {
		t.Errorf("Save of known doc failed: %v", err)
	}
	if err := e.Save(99, unit(0, 1, 1, 0)); err == nil {
		t.Error("Expected rejection of unknown doc id")
	}
}

func TestBackendContractParity(t *testing.T) {
	// The same save/search/count/clear sequence must behave identically on a
	// forced-fallback engine and a default-selected one, modulo the fallback
	// relevance floor. Without the extension compiled in, both select the
	// fallback and this degenerates to a determinism check; with it, the
	// comparison is native vs fallback.
	q := unit(0, 1, 1, 0)
	vecs := map[int64][]float32{
		1: unit(0, 1, 1, 0.1),
		2: unit(0, 1, 0.5, 0.9),
		3: unit(0, 1, 0.3, 1),
	}

	run := func(e *Engine) []Hit {
		for id, v := range vecs {
			if err := e.Save(id, v); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
		}
		return e.Search(q, 10)
	}

	forced := New(DefaultOptions())
	forced.disableNative = true
	if err := forced.Open(filepath.Join(t.TempDir(), "forced.db")); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer forced.Close()

	auto := newTestEngine(t, DefaultOptions())

	forcedHits := run(forced)
	autoHits := run(auto)

	if forced.Backend() != KindFallback {
		t.Fatal("Forced engine must run the fallback backend")
	}

	// Compare the intersection above the fallback floor.
	if len(forcedHits) != len(autoHits) {
		// Only legitimate when the auto engine is native and returned
		// results under the fallback floor.
		if auto.Backend() != KindNative {
			t.Fatalf("Hit counts differ on identical backends: %d vs %d", len(forcedHits), len(autoHits))
		}
	}
	for i := range forcedHits {
		if i >= len(autoHits) {
			break
		}
		if forcedHits[i].DocID != autoHits[i].DocID {
			t.Errorf("Rank %d differs: doc %d vs doc %d", i, forcedHits[i].DocID, autoHits[i].DocID)
		}
	}
}

func TestReopenSwitchesTarget(t *testing.T) {
	dir := t.TempDir()
	e := New(DefaultOptions())
	defer e.Close()

	if err := e.Open(filepath.Join(dir, "a.db")); err != nil {
		t.Fatalf("Open a failed: %v", err)
	}
	e.Save(1, unit(0, 1, 1, 0))

	// Opening a different target closes the first one.
	if err := e.Open(filepath.Join(dir, "b.db")); err != nil {
		t.Fatalf("Open b failed: %v", err)
	}
	if n := e.Count(); n != 0 {
		t.Errorf("New target must start empty, got %d vectors", n)
	}

	// Reopening the original target sees its data again.
	if err := e.Open(filepath.Join(dir, "a.db")); err != nil {
		t.Fatalf("Reopen a failed: %v", err)
	}
	if n := e.Count(); n != 1 {
		t.Errorf("Expected 1 vector back in the original target, got %d", n)
	}
}

func TestOpenSameTargetIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.db")
	e := New(DefaultOptions())
	defer e.Close()

	if err := e.Open(path); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	e.Save(1, unit(0, 1, 1, 0))
	if err := e.Open(path); err != nil {
		t.Fatalf("Re-open failed: %v", err)
	}
	if n := e.Count(); n != 1 {
		t.Errorf("No-op reopen must keep data, got %d vectors", n)
	}
}
