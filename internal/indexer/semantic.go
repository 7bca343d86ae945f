package indexer

import (
	"context"
	"strings"

	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/logging"
)

// semanticPass embeds every document after the structural and metadata passes
// are done. Text is the class name followed by the document's metadata values
// in insertion order. Documents are embedded one at a time; a failed embed or
// save is logged and never aborts the batch.
func (ix *Indexer) semanticPass(ctx context.Context, stats *RunStats) error {
	if ix.semantic == nil {
		logging.IndexerDebug("No semantic service configured, skipping embedding pass")
		return nil
	}

	docs, err := ix.store.SemanticDocuments()
	if err != nil {
		return err
	}

	timer := logging.StartTimer(logging.CategoryIndexer, "semantic pass")
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		text := assembleText(doc.ClassName, doc.Values)
		if text == "" {
			continue
		}
		if err := ix.semantic.Index(ctx, doc.ID, text); err != nil {
			logging.Get(logging.CategoryIndexer).Warn("Failed to embed document %d: %v", doc.ID, err)
			stats.Failures++
			continue
		}
		stats.Embedded++
	}
	timer.StopWithInfo()
	logging.Indexer("Semantic pass embedded %d documents", stats.Embedded)
	return nil
}

func assembleText(className string, values []string) string {
	parts := make([]string, 0, len(values)+1)
	if className != "" {
		parts = append(parts, className)
	}
	for _, v := range values {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}
