package models

import (
	"time"

	"github.com/google/uuid"
)

// SourceDocument represents an archived raw document (statute, guide, court
// opinion) that concepts were extracted from
type SourceDocument struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	SourceType  string    `json:"source_type"` // "statute", "guide", "court_opinion"
	StoragePath string    `json:"storage_path"`
	CreatedAt   time.Time `json:"created_at"`
}
