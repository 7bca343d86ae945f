// Package integrity re-hashes archived files and compares the result against
// the fingerprint captured at packaging time. A digest mismatch is a normal
// invalid outcome, never an error; outcomes are persisted so the UI can show
// the last verification without recomputing.
package integrity

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/logging"
	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/store"
)

// ErrNoFingerprint is returned when neither file-scoped nor document-scoped
// fingerprint metadata exists for the file.
var ErrNoFingerprint = errors.New("integrity: no stored fingerprint")

// Verifier checks archived files against their stored fingerprints.
type Verifier struct {
	store *store.ArchiveStore
	root  string
}

// New creates a verifier over an open store and the active archive root.
func New(st *store.ArchiveStore, root string) *Verifier {
	return &Verifier{store: st, root: root}
}

// Verify re-hashes the file and compares against the stored digest, file
// scope first, document scope as fallback. The outcome is persisted either
// way. Errors are reserved for the file row, fingerprint or bytes being
// unavailable.
func (v *Verifier) Verify(fileID int64) (*store.IntegrityResult, error) {
	f, err := v.store.FileByID(fileID)
	if err != nil {
		return nil, fmt.Errorf("integrity: unknown file %d: %w", fileID, err)
	}

	expected, algorithm, found, err := v.store.Fingerprint(fileID)
	if err != nil {
		return nil, fmt.Errorf("integrity: fingerprint lookup failed: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w for file %d", ErrNoFingerprint, fileID)
	}
	if algorithm == "" {
		algorithm = "SHA-256"
	}

	path := filepath.Join(v.root, filepath.FromSlash(f.RootPath))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("integrity: failed to read %s: %w", path, err)
	}

	sum := sha256.Sum256(data)
	actual := base64.StdEncoding.EncodeToString(sum[:])

	result := &store.IntegrityResult{
		FileID:         fileID,
		Valid:          actual == expected,
		ExpectedDigest: expected,
		ActualDigest:   actual,
		Algorithm:      algorithm,
		CheckedAt:      time.Now().UTC(),
	}
	if result.Valid {
		logging.Integrity("File %d verified (%s)", fileID, algorithm)
	} else {
		logging.Get(logging.CategoryIntegrity).Warn("File %d digest mismatch: stored %s, computed %s", fileID, expected, actual)
	}

	if err := v.store.SaveIntegrityResult(*result); err != nil {
		logging.Get(logging.CategoryIntegrity).Error("Failed to persist result for file %d: %v", fileID, err)
	}
	return result, nil
}

// Latest returns the most recent persisted outcome for a file, nil when the
// file was never verified.
func (v *Verifier) Latest(fileID int64) (*store.IntegrityResult, error) {
	return v.store.LatestIntegrityResult(fileID)
}
