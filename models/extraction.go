package models

// ExtractedConcept represents a concept produced by the upstream extraction
// step for one document, before entity resolution. The provisional ID is
// only meaningful within its ingestion batch.
type ExtractedConcept struct {
	ProvisionalID string         `json:"provisional_id"`
	Name          string         `json:"name"`
	Kind          NodeKind       `json:"kind"`
	Description   string         `json:"description"`
	Authority     AuthorityLevel `json:"authority"`
	Jurisdiction  string         `json:"jurisdiction"`
	Attributes    AttributeMap   `json:"attributes,omitempty"`
	Quote         *Quote         `json:"quote,omitempty"`
	SourceID      string         `json:"source_id"`
	ChunkIDs      []string       `json:"chunk_ids,omitempty"`
}

// ExtractedRelation represents a relationship edge produced by extraction,
// referencing concepts by their provisional identifiers
type ExtractedRelation struct {
	SourceRef     string       `json:"source_ref"`
	TargetRef     string       `json:"target_ref"`
	Type          RelationType `json:"type"`
	EvidenceLevel string       `json:"evidence_level,omitempty"`
}
