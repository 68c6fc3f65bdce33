package service

import (
	"context"
	"fmt"

	"github.com/Njoselson/tenant-legal-tools-sub000/models"
	"github.com/Njoselson/tenant-legal-tools-sub000/repository"

	"github.com/google/uuid"
)

// SimilarityMatch is one candidate from a similarity lookup, with its score
// normalized to [0,1] (higher = more similar)
type SimilarityMatch struct {
	NodeID      uuid.UUID
	Name        string
	Description string
	Score       float64
}

// SimilaritySearcher ranks existing nodes of a given kind by textual
// similarity to a name
type SimilaritySearcher interface {
	TopMatches(ctx context.Context, name string, kind models.NodeKind, k int) ([]SimilarityMatch, error)
}

// VectorSimilaritySearcher implements SimilaritySearcher over the pgvector
// index of concept-name embeddings
type VectorSimilaritySearcher struct {
	embedder *EmbeddingClient
	concepts *repository.ConceptRepository
}

// NewVectorSimilaritySearcher creates a new vector-backed searcher
func NewVectorSimilaritySearcher(embedder *EmbeddingClient, concepts *repository.ConceptRepository) *VectorSimilaritySearcher {
	return &VectorSimilaritySearcher{embedder: embedder, concepts: concepts}
}

// TopMatches embeds the query name and returns the k nearest stored
// concepts of the same kind
func (s *VectorSimilaritySearcher) TopMatches(ctx context.Context, name string, kind models.NodeKind, k int) ([]SimilarityMatch, error) {
	queryText := fmt.Sprintf("[%s] %s", kind, name)
	embedding, err := s.embedder.EmbedText(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := s.concepts.SearchSimilar(ctx, embedding, kind, k)
	if err != nil {
		return nil, err
	}

	matches := make([]SimilarityMatch, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, SimilarityMatch{
			NodeID:      row.ID,
			Name:        row.Name,
			Description: row.Description,
			Score:       distanceToScore(row.Distance),
		})
	}
	return matches, nil
}

// distanceToScore converts a cosine distance into a [0,1] similarity score.
// Embeddings are unit-normalized before storage, so distance stays in [0,2]
// with duplicates near 0.
func distanceToScore(distance float64) float64 {
	score := 1.0 - distance
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
