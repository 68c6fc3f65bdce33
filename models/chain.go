package models

import (
	"github.com/google/uuid"
)

// ChainHop represents one traversal step in a proof chain
type ChainHop struct {
	FromID   uuid.UUID    `json:"from_id"`
	ToID     uuid.UUID    `json:"to_id"`
	Relation RelationType `json:"relation"`
	NodeName string       `json:"node_name"`
	Citation string       `json:"citation,omitempty"`
}

// ChainVerification records which hops of a chain were independently
// confirmed to exist in the graph
type ChainVerification struct {
	GraphPathExists       bool `json:"graph_path_exists"`
	LawsApplyToIssue      bool `json:"laws_apply_to_issue"`
	RemediesEnabledByLaws bool `json:"remedies_enabled_by_laws"`
}

// AllPassed reports whether every verification check succeeded
func (v ChainVerification) AllPassed() bool {
	return v.GraphPathExists && v.LawsApplyToIssue && v.RemediesEnabledByLaws
}

// ProofChain represents a verified path issue -> law -> remedy -> required
// evidence derived from graph traversal. It is rebuilt on every query and
// never persisted; the graph remains the source of truth.
type ProofChain struct {
	IssueID            uuid.UUID         `json:"issue_id"`
	IssueName          string            `json:"issue_name"`
	LawID              uuid.UUID         `json:"law_id"`
	LawName            string            `json:"law_name"`
	LawAuthority       AuthorityLevel    `json:"law_authority"`
	RemedyID           uuid.UUID         `json:"remedy_id"`
	RemedyName         string            `json:"remedy_name"`
	RemedyJurisdiction string            `json:"remedy_jurisdiction,omitempty"`
	Hops               []ChainHop        `json:"hops"`
	RequiredEvidence   []string          `json:"required_evidence"`
	Completeness       float64           `json:"completeness"`
	Verification       ChainVerification `json:"verification"`
	Explanation        string            `json:"explanation,omitempty"`
}

// RemedyOption represents one ranked remedy in an analysis response
type RemedyOption struct {
	RemedyID          uuid.UUID      `json:"remedy_id"`
	RemedyName        string         `json:"remedy_name"`
	LawName           string         `json:"law_name"`
	LawAuthority      AuthorityLevel `json:"law_authority"`
	EvidenceStrength  float64        `json:"evidence_strength"`
	PresentEvidence   []string       `json:"present_evidence"`
	MissingEvidence   []string       `json:"missing_evidence"`
	JurisdictionMatch bool           `json:"jurisdiction_match"`
	Score             float64        `json:"score"`
	Probability       float64        `json:"probability"`
}
