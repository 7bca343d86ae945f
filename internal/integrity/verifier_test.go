package integrity

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/store"
)

// newFixture stores one document with one file on disk and returns the
// verifier, store, file id and the file's real digest.
func newFixture(t *testing.T, content string) (*Verifier, *store.ArchiveStore, int64, string) {
	t.Helper()
	root := t.TempDir()

	st, err := store.Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	classID, err := st.EnsureDocumentClass("Letters")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.InsertAIP("A1", classID, "", "docs"); err != nil {
		t.Fatal(err)
	}
	docID, err := st.InsertDocument("docs/l1", "A1")
	if err != nil {
		t.Fatal(err)
	}
	fileID, err := st.InsertFile("l1.pdf", "docs/l1/l1.pdf", true, docID)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(root, "docs", "l1", "l1.pdf")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	sum := sha256.Sum256([]byte(content))
	digest := base64.StdEncoding.EncodeToString(sum[:])
	return New(st, root), st, fileID, digest
}

func TestVerifyValidFile(t *testing.T) {
	v, st, fileID, digest := newFixture(t, "archived bytes")
	if err := st.AddMetadata(1, &fileID, store.KeyFingerprint, digest, "string"); err != nil {
		t.Fatal(err)
	}
	if err := st.AddMetadata(1, &fileID, store.KeyFingerprintAlgorithm, "SHA-256", "string"); err != nil {
		t.Fatal(err)
	}

	result, err := v.Verify(fileID)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("Expected valid result, got mismatch: %s vs %s", result.ExpectedDigest, result.ActualDigest)
	}
	if result.Algorithm != "SHA-256" {
		t.Errorf("Expected SHA-256, got %q", result.Algorithm)
	}
}

func TestVerifyMismatchIsNormalResult(t *testing.T) {
	v, st, fileID, _ := newFixture(t, "archived bytes")
	if err := st.AddMetadata(1, &fileID, store.KeyFingerprint, "bm90IHRoZSByZWFsIGhhc2g=", "string"); err != nil {
		t.Fatal(err)
	}

	result, err := v.Verify(fileID)
	if err != nil {
		t.Fatalf("A mismatch must not be an error: %v", err)
	}
	if result.Valid {
		t.Error("Expected invalid result for a tampered digest")
	}

	// The outcome is persisted for later display.
	latest, err := v.Latest(fileID)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest == nil || latest.Valid {
		t.Errorf("Expected persisted invalid result, got %+v", latest)
	}
	if latest.ActualDigest != result.ActualDigest {
		t.Error("Persisted digest differs from the computed one")
	}
}

func TestVerifyDocumentScopeFallback(t *testing.T) {
	v, st, fileID, digest := newFixture(t, "archived bytes")
	// Older sidecar variants store the digest at document scope only.
	if err := st.AddMetadata(1, nil, store.KeyFingerprint, digest, "string"); err != nil {
		t.Fatal(err)
	}

	result, err := v.Verify(fileID)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid {
		t.Error("Document-scope fingerprint must satisfy verification")
	}
}

func TestVerifyWithoutFingerprint(t *testing.T) {
	v, _, fileID, _ := newFixture(t, "archived bytes")

	if _, err := v.Verify(fileID); !errors.Is(err, ErrNoFingerprint) {
		t.Errorf("Expected ErrNoFingerprint, got %v", err)
	}
}

func TestVerifyUnknownFile(t *testing.T) {
	v, _, _, _ := newFixture(t, "archived bytes")

	if _, err := v.Verify(9999); err == nil {
		t.Error("Expected error for unknown file id")
	}
}

func TestLatestBeforeAnyVerification(t *testing.T) {
	v, _, fileID, _ := newFixture(t, "archived bytes")

	latest, err := v.Latest(fileID)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest != nil {
		t.Errorf("Expected nil before first verification, got %+v", latest)
	}
}
