package repository

import (
	"context"

	"github.com/Njoselson/tenant-legal-tools-sub000/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EdgeRepository handles database operations for relationship edges
type EdgeRepository struct {
	db *pgxpool.Pool
}

// NewEdgeRepository creates a new edge repository
func NewEdgeRepository(db *pgxpool.Pool) *EdgeRepository {
	return &EdgeRepository{db: db}
}

// GetOrCreate inserts an edge unless one with the same source, target and
// type already exists. Returns true when a new edge was created.
func (r *EdgeRepository) GetOrCreate(ctx context.Context, edge *models.RelationshipEdge) (bool, error) {
	if edge.ID == uuid.Nil {
		edge.ID = uuid.New()
	}
	query := `
		INSERT INTO relationship_edges (id, source_id, target_id, rel_type, evidence_level)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_id, target_id, rel_type) DO NOTHING`

	tag, err := r.db.Exec(
		ctx, query,
		edge.ID,
		edge.SourceID,
		edge.TargetID,
		edge.Type,
		edge.EvidenceLevel,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListFrom returns all outbound edges of one type from a node
func (r *EdgeRepository) ListFrom(ctx context.Context, sourceID uuid.UUID, relType models.RelationType) ([]models.RelationshipEdge, error) {
	query := `
		SELECT id, source_id, target_id, rel_type, evidence_level, created_at
		FROM relationship_edges
		WHERE source_id = $1 AND rel_type = $2
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, sourceID, relType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []models.RelationshipEdge
	for rows.Next() {
		var e models.RelationshipEdge
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Type, &e.EvidenceLevel, &e.CreatedAt); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Exists reports whether an edge with the given endpoints and type exists.
// This is the verification primitive used to confirm asserted hops.
func (r *EdgeRepository) Exists(ctx context.Context, sourceID, targetID uuid.UUID, relType models.RelationType) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM relationship_edges
			WHERE source_id = $1 AND target_id = $2 AND rel_type = $3
		)`

	var exists bool
	err := r.db.QueryRow(ctx, query, sourceID, targetID, relType).Scan(&exists)
	return exists, err
}
