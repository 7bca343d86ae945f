// Package semantic is the upward query surface over the vector engine:
// index a document's text, search by text or vector, wipe, report status.
// It owns the embedder and the vector engine as one explicit service object
// with a single controlled lifecycle.
package semantic

import (
	"context"
	"fmt"

	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/embedding"
	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/logging"
	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/vector"
)

// Service composes an embedding engine and a vector engine.
type Service struct {
	embedder embedding.Engine
	vectors  *vector.Engine
}

// New creates a semantic service. The vector engine must already be open.
func New(embedder embedding.Engine, vectors *vector.Engine) *Service {
	return &Service{embedder: embedder, vectors: vectors}
}

// Index embeds the document text and writes the vector under the document's
// relational id.
func (s *Service) Index(ctx context.Context, docID int64, text string) error {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed document %d: %w", docID, err)
	}
	if err := s.vectors.Save(docID, vec); err != nil {
		return fmt.Errorf("failed to save vector for document %d: %w", docID, err)
	}
	logging.EmbeddingDebug("Indexed document %d (%d chars)", docID, len(text))
	return nil
}

// Search embeds the query text and returns up to limit hits ordered by
// descending score.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]vector.Hit, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return s.SearchVector(vec, limit), nil
}

// SearchVector answers a nearest-neighbor query from a pre-computed vector.
func (s *Service) SearchVector(vec []float32, limit int) []vector.Hit {
	return s.vectors.Search(vec, limit)
}

// ClearAll wipes the vector store.
func (s *Service) ClearAll() error {
	return s.vectors.Clear()
}

// Info reports the stored vector count and the active backend kind.
func (s *Service) Info() vector.Info {
	return s.vectors.Info()
}
