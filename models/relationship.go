package models

import (
	"time"

	"github.com/google/uuid"
)

// RelationType represents the type of a directed relationship edge
type RelationType string

const (
	RelEnables    RelationType = "ENABLES"
	RelRequires   RelationType = "REQUIRES"
	RelAppliesTo  RelationType = "APPLIES_TO"
	RelSupports   RelationType = "SUPPORTS"
	RelResolves   RelationType = "RESOLVES"
	RelGovernedBy RelationType = "GOVERNED_BY"
	RelFiledWith  RelationType = "FILED_WITH"
)

// IsValid reports whether the relation type is one of the known types
func (r RelationType) IsValid() bool {
	switch r {
	case RelEnables, RelRequires, RelAppliesTo, RelSupports,
		RelResolves, RelGovernedBy, RelFiledWith:
		return true
	}
	return false
}

// RelationshipEdge represents a directed, typed link between two concept
// nodes. Edges are logically immutable once created; duplicates on
// (source, target, type) are never re-inserted.
type RelationshipEdge struct {
	ID            uuid.UUID    `json:"id"`
	SourceID      uuid.UUID    `json:"source_id"`
	TargetID      uuid.UUID    `json:"target_id"`
	Type          RelationType `json:"type"`
	EvidenceLevel string       `json:"evidence_level,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}
