// Package indexer turns a Digital Information Package on disk into the
// normalized archival model: it locates and walks the package manifest,
// builds the structural rows, extracts each document's metadata sidecar, and
// runs the semantic embedding pass. Manifest-level failures abort the run;
// everything below that level is logged and skipped.
package indexer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/beevik/etree"

	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/logging"
	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/semantic"
	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/store"
)

// RunStats summarizes one indexing run.
type RunStats struct {
	Classes   int
	AIPs      int
	Documents int
	Files     int
	Sidecars  int
	Embedded  int
	Failures  int
}

// Indexer drives one archive's indexing runs. The semantic service is
// optional; without it the embedding pass is skipped.
type Indexer struct {
	store    *store.ArchiveStore
	semantic *semantic.Service
}

// New creates an indexer over an open store.
func New(st *store.ArchiveStore, sem *semantic.Service) *Indexer {
	return &Indexer{store: st, semantic: sem}
}

// Run indexes the package rooted at root: manifest discovery and parse
// (fatal on failure), structural walk, sidecar extraction, semantic pass.
// Re-running over an unchanged directory is idempotent; every structural
// insert is keyed by natural uniqueness.
func (ix *Indexer) Run(ctx context.Context, root string) (*RunStats, error) {
	manifestPath, err := FindManifest(root)
	if err != nil {
		return nil, err
	}
	logging.Indexer("Indexing package at %s (manifest %s)", root, filepath.Base(manifestPath))

	doc := etree.NewDocument()
	if err := doc.ReadFromFile(manifestPath); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", manifestPath, err)
	}
	manifest := doc.Root()
	if manifest == nil {
		return nil, fmt.Errorf("manifest %s has no root element", manifestPath)
	}

	stats := &RunStats{}
	timer := logging.StartTimer(logging.CategoryIndexer, "structural walk")
	sidecars := ix.buildStructure(manifest, stats)
	timer.Stop()

	for _, ref := range sidecars {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		path, err := ResolvePath(root, joinSlash(ref.docRoot, ref.relPath))
		if err != nil {
			logging.Get(logging.CategoryMetadata).Warn("Cannot resolve sidecar for document %d: %v", ref.docID, err)
			stats.Failures++
			continue
		}
		if err := ix.extractSidecar(ref.docID, path); err != nil {
			logging.Get(logging.CategoryMetadata).Warn("Sidecar extraction failed for document %d: %v", ref.docID, err)
			stats.Failures++
			continue
		}
		stats.Sidecars++
	}

	if err := ix.semanticPass(ctx, stats); err != nil {
		return stats, err
	}

	logging.Indexer("Indexed %d documents (%d files, %d sidecars, %d embedded, %d failures)",
		stats.Documents, stats.Files, stats.Sidecars, stats.Embedded, stats.Failures)
	return stats, nil
}

// Reindex wipes the relational and vector tables in dependency order, then
// rebuilds from scratch. There is no checkpointing; a crash mid-run leaves a
// partial store that needs another full Reindex.
func (ix *Indexer) Reindex(ctx context.Context, root string) (*RunStats, error) {
	logging.Indexer("Re-index requested for %s", root)
	if err := ix.store.ClearAll(); err != nil {
		return nil, fmt.Errorf("failed to clear relational tables: %w", err)
	}
	if ix.semantic != nil {
		if err := ix.semantic.ClearAll(); err != nil {
			return nil, fmt.Errorf("failed to clear vector store: %w", err)
		}
	}
	return ix.Run(ctx, root)
}
