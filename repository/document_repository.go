package repository

import (
	"context"

	"github.com/Njoselson/tenant-legal-tools-sub000/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentRepository handles database operations for archived source documents
type DocumentRepository struct {
	db *pgxpool.Pool
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create records an archived source document
func (r *DocumentRepository) Create(ctx context.Context, doc *models.SourceDocument) error {
	query := `
		INSERT INTO source_documents (id, title, source_type, storage_path)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	return r.db.QueryRow(
		ctx, query,
		doc.ID,
		doc.Title,
		doc.SourceType,
		doc.StoragePath,
	).Scan(&doc.CreatedAt)
}

// GetByID retrieves a source document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SourceDocument, error) {
	doc := &models.SourceDocument{}
	query := `
		SELECT id, title, source_type, storage_path, created_at
		FROM source_documents
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&doc.ID,
		&doc.Title,
		&doc.SourceType,
		&doc.StoragePath,
		&doc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}
