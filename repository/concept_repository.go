package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Njoselson/tenant-legal-tools-sub000/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrVersionConflict is returned when an optimistic-concurrency update loses
// the race to another merge on the same node
var ErrVersionConflict = errors.New("concept node version conflict")

// ConceptRepository handles database operations for concept nodes
type ConceptRepository struct {
	db *pgxpool.Pool
}

// NewConceptRepository creates a new concept repository
func NewConceptRepository(db *pgxpool.Pool) *ConceptRepository {
	return &ConceptRepository{db: db}
}

const conceptColumns = `id, kind, name, description, authority, jurisdiction,
	attributes, best_quote, quotes, source_ids, chunk_ids, mention_count,
	version, created_at, updated_at`

// formatVector formats an embedding vector as a string for pgvector
func formatVector(embedding []float64) string {
	if len(embedding) == 0 {
		return "[]"
	}
	var parts []string
	for _, v := range embedding {
		parts = append(parts, fmt.Sprintf("%.6f", v))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func scanConcept(row interface{ Scan(dest ...interface{}) error }) (*models.ConceptNode, error) {
	node := &models.ConceptNode{}
	err := row.Scan(
		&node.ID,
		&node.Kind,
		&node.Name,
		&node.Description,
		&node.Authority,
		&node.Jurisdiction,
		&node.Attributes,
		&node.BestQuote,
		&node.Quotes,
		&node.SourceIDs,
		&node.ChunkIDs,
		&node.MentionCount,
		&node.Version,
		&node.CreatedAt,
		&node.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if node.Quotes == nil {
		node.Quotes = make(models.Quotes, 0)
	}
	if node.SourceIDs == nil {
		node.SourceIDs = make(models.StringSet, 0)
	}
	if node.ChunkIDs == nil {
		node.ChunkIDs = make(models.StringSet, 0)
	}
	return node, nil
}

// Create inserts a new concept node. An optional name embedding is stored
// for similarity search; pass nil to leave it for backfill.
func (r *ConceptRepository) Create(ctx context.Context, node *models.ConceptNode, embedding []float64) error {
	query := `
		INSERT INTO concept_nodes (
			id, kind, name, description, authority, jurisdiction,
			attributes, best_quote, quotes, source_ids, chunk_ids,
			mention_count, embedding, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)
		RETURNING version, created_at, updated_at`

	var vec interface{}
	if len(embedding) > 0 {
		vec = formatVector(embedding)
	}

	return r.db.QueryRow(
		ctx, query,
		node.ID,
		node.Kind,
		node.Name,
		node.Description,
		node.Authority,
		node.Jurisdiction,
		node.Attributes,
		node.BestQuote,
		node.Quotes,
		node.SourceIDs,
		node.ChunkIDs,
		node.MentionCount,
		vec,
	).Scan(&node.Version, &node.CreatedAt, &node.UpdatedAt)
}

// GetByID retrieves a concept node by ID
func (r *ConceptRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ConceptNode, error) {
	query := `SELECT ` + conceptColumns + ` FROM concept_nodes WHERE id = $1`
	return scanConcept(r.db.QueryRow(ctx, query, id))
}

// GetByIDs retrieves multiple concept nodes by ID
func (r *ConceptRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.ConceptNode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + conceptColumns + ` FROM concept_nodes WHERE id = ANY($1)`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*models.ConceptNode
	for rows.Next() {
		node, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// Update writes merged node state using compare-and-swap on the version
// column. Returns ErrVersionConflict when a concurrent merge won the race;
// the caller is expected to re-read and retry.
func (r *ConceptRepository) Update(ctx context.Context, node *models.ConceptNode) error {
	query := `
		UPDATE concept_nodes SET
			name = $3,
			description = $4,
			authority = $5,
			jurisdiction = $6,
			attributes = $7,
			best_quote = $8,
			quotes = $9,
			source_ids = $10,
			chunk_ids = $11,
			mention_count = $12,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $2`

	tag, err := r.db.Exec(
		ctx, query,
		node.ID,
		node.Version,
		node.Name,
		node.Description,
		node.Authority,
		node.Jurisdiction,
		node.Attributes,
		node.BestQuote,
		node.Quotes,
		node.SourceIDs,
		node.ChunkIDs,
		node.MentionCount,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	node.Version++
	return nil
}

// SimilarConcept is one row of a vector similarity search result
type SimilarConcept struct {
	ID          uuid.UUID
	Name        string
	Description string
	Distance    float64
}

// SearchSimilar performs a vector search over concept names restricted to a
// single node kind, ordered by cosine distance
func (r *ConceptRepository) SearchSimilar(
	ctx context.Context,
	embedding []float64,
	kind models.NodeKind,
	limit int,
) ([]SimilarConcept, error) {
	if len(embedding) == 0 {
		return nil, errors.New("empty query embedding")
	}
	vectorStr := formatVector(embedding)

	query := `
		SELECT id, name, description, embedding <=> $1::vector AS distance
		FROM concept_nodes
		WHERE kind = $2 AND embedding IS NOT NULL
		ORDER BY embedding <=> $1::vector
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, vectorStr, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	var matches []SimilarConcept
	for rows.Next() {
		var m SimilarConcept
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.Distance); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// UpdateEmbedding stores the name embedding for a node
func (r *ConceptRepository) UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float64) error {
	query := `UPDATE concept_nodes SET embedding = $2::vector, updated_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id, formatVector(embedding))
	return err
}

// LinkChunk adds a content-chunk identifier to a node's chunk set.
// Already-linked chunks are left untouched.
func (r *ConceptRepository) LinkChunk(ctx context.Context, id uuid.UUID, chunkID string) (bool, error) {
	query := `
		UPDATE concept_nodes SET
			chunk_ids = chunk_ids || to_jsonb(ARRAY[$2::text]),
			updated_at = NOW()
		WHERE id = $1 AND NOT chunk_ids ? $2`

	tag, err := r.db.Exec(ctx, query, id, chunkID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MissingEmbedding is a node awaiting embedding backfill
type MissingEmbedding struct {
	ID   uuid.UUID
	Kind models.NodeKind
	Name string
}

// ListMissingEmbeddings returns nodes that have no stored name embedding
func (r *ConceptRepository) ListMissingEmbeddings(ctx context.Context, limit int) ([]MissingEmbedding, error) {
	query := `
		SELECT id, kind, name
		FROM concept_nodes
		WHERE embedding IS NULL
		ORDER BY created_at
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MissingEmbedding
	for rows.Next() {
		var m MissingEmbedding
		if err := rows.Scan(&m.ID, &m.Kind, &m.Name); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
