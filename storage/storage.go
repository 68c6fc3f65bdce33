package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
)

// DocumentStore archives raw source documents (statutes, guides, court
// opinions) so ingested concepts keep their provenance
type DocumentStore interface {
	// Save stores a document's raw text and returns the storage path
	Save(ctx context.Context, docID uuid.UUID, title string, data io.Reader) (string, error)

	// Open retrieves an archived document by storage path
	Open(ctx context.Context, storagePath string) (io.ReadCloser, error)

	// Delete removes an archived document by storage path
	Delete(ctx context.Context, storagePath string) error
}

// StoreType represents the storage backend type
type StoreType string

const (
	StoreTypeLocal StoreType = "local"
	StoreTypeS3    StoreType = "s3"
)

// StoreConfig holds configuration for document storage
type StoreConfig struct {
	Type         StoreType
	LocalPath    string // For local storage
	S3Bucket     string // For S3 storage
	S3Region     string // For S3 storage
	AWSAccessKey string
	AWSSecretKey string
}

// NewDocumentStore creates a new document store based on configuration
func NewDocumentStore(cfg StoreConfig) (DocumentStore, error) {
	switch cfg.Type {
	case StoreTypeLocal:
		return NewLocalStore(cfg.LocalPath)
	case StoreTypeS3:
		return NewS3Store(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// NewDocumentStoreFromEnv creates a document store from environment variables
func NewDocumentStoreFromEnv() (DocumentStore, error) {
	storeType := os.Getenv("STORAGE_TYPE")
	if storeType == "" {
		storeType = "local" // Default to local for development
	}

	switch StoreType(storeType) {
	case StoreTypeLocal:
		localPath := os.Getenv("STORAGE_LOCAL_PATH")
		if localPath == "" {
			localPath = "./storage/documents"
		}
		return NewLocalStore(localPath)

	case StoreTypeS3:
		cfg := StoreConfig{
			Type:         StoreTypeS3,
			S3Bucket:     os.Getenv("AWS_S3_BUCKET"),
			S3Region:     os.Getenv("AWS_REGION"),
			AWSAccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
			AWSSecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		}
		if cfg.S3Region == "" {
			cfg.S3Region = "us-east-1"
		}
		if cfg.S3Bucket == "" {
			return nil, errors.New("AWS_S3_BUCKET environment variable is required for S3 storage")
		}
		return NewS3Store(cfg)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", storeType)
	}
}

// documentPath generates a unique storage path for a document, sharded by
// the first two characters of its ID
func documentPath(docID uuid.UUID, title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_', r == '/':
			return '-'
		default:
			return -1
		}
	}, slug)
	if len(slug) > 60 {
		slug = slug[:60]
	}
	if slug == "" {
		slug = "document"
	}
	return fmt.Sprintf("%s/%s_%s.txt", docID.String()[:2], docID.String(), slug)
}
