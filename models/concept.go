package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NodeKind represents the type of a concept node
type NodeKind string

const (
	KindLaw          NodeKind = "law"
	KindRemedy       NodeKind = "remedy"
	KindProcedure    NodeKind = "procedure"
	KindEvidenceType NodeKind = "evidence_type"
	KindIssue        NodeKind = "issue"
	KindCaseDocument NodeKind = "case_document"
	KindAgency       NodeKind = "agency"
	KindDeadline     NodeKind = "deadline"
)

// IsValid reports whether the kind is one of the known node kinds
func (k NodeKind) IsValid() bool {
	switch k {
	case KindLaw, KindRemedy, KindProcedure, KindEvidenceType,
		KindIssue, KindCaseDocument, KindAgency, KindDeadline:
		return true
	}
	return false
}

// AuthorityLevel represents how legally binding a source is
type AuthorityLevel string

const (
	AuthorityBinding       AuthorityLevel = "binding_legal_authority"
	AuthorityPersuasive    AuthorityLevel = "persuasive_authority"
	AuthorityInterpretive  AuthorityLevel = "official_interpretive"
	AuthoritySecondary     AuthorityLevel = "reputable_secondary"
	AuthoritySelfHelp      AuthorityLevel = "practical_self_help"
	AuthorityInformational AuthorityLevel = "informational_only"
)

// authorityRanks orders authority levels from least to most binding
var authorityRanks = map[AuthorityLevel]int{
	AuthorityInformational: 0,
	AuthoritySelfHelp:      1,
	AuthoritySecondary:     2,
	AuthorityInterpretive:  3,
	AuthorityPersuasive:    4,
	AuthorityBinding:       5,
}

// Rank returns the numeric rank of an authority level (0 = least binding).
// Unknown levels rank below all known ones.
func (a AuthorityLevel) Rank() int {
	if r, ok := authorityRanks[a]; ok {
		return r
	}
	return -1
}

// Weight returns the authority rank normalized to [0,1] over the 6 levels
func (a AuthorityLevel) Weight() float64 {
	r := a.Rank()
	if r < 0 {
		return 0
	}
	return float64(r) / 5.0
}

// Quote represents a supporting quote with its source reference
type Quote struct {
	Text        string `json:"text"`
	Source      string `json:"source"`
	Explanation string `json:"explanation,omitempty"`
}

// Value implements driver.Valuer for JSONB
func (q Quote) Value() (driver.Value, error) {
	return json.Marshal(q)
}

// Scan implements sql.Scanner for JSONB
func (q *Quote) Scan(value interface{}) error {
	bytes, ok := jsonBytes(value)
	if !ok || len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, q)
}

// Quotes represents the set of all quotes gathered across sources
type Quotes []Quote

// Value implements driver.Valuer for JSONB
func (q Quotes) Value() (driver.Value, error) {
	return json.Marshal(q)
}

// Scan implements sql.Scanner for JSONB
func (q *Quotes) Scan(value interface{}) error {
	bytes, ok := jsonBytes(value)
	if !ok || len(bytes) == 0 {
		*q = make(Quotes, 0)
		return nil
	}
	return json.Unmarshal(bytes, q)
}

// Contains reports whether an identical quote is already in the set
func (q Quotes) Contains(quote Quote) bool {
	for _, existing := range q {
		if existing.Text == quote.Text && existing.Source == quote.Source {
			return true
		}
	}
	return false
}

// AttributeMap represents free-form metadata on a concept node
type AttributeMap map[string]interface{}

// Value implements driver.Valuer for JSONB
func (a AttributeMap) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner for JSONB
func (a *AttributeMap) Scan(value interface{}) error {
	bytes, ok := jsonBytes(value)
	if !ok || len(bytes) == 0 {
		*a = make(AttributeMap)
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// StringSet represents a deduplicated list of identifiers stored as JSONB
type StringSet []string

// Value implements driver.Valuer for JSONB
func (s StringSet) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB
func (s *StringSet) Scan(value interface{}) error {
	bytes, ok := jsonBytes(value)
	if !ok || len(bytes) == 0 {
		*s = make(StringSet, 0)
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// Add appends a value if it is not already present
func (s StringSet) Add(v string) StringSet {
	if v == "" {
		return s
	}
	for _, existing := range s {
		if existing == v {
			return s
		}
	}
	return append(s, v)
}

// jsonBytes coerces the raw JSONB value pgx hands back into a byte slice
func jsonBytes(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}

// ConceptNode represents a typed, deduplicated entity in the knowledge graph.
// The ID is stable for the lifetime of the node; all updates happen in place
// through merges, never by identifier reassignment.
type ConceptNode struct {
	ID           uuid.UUID      `json:"id"`
	Kind         NodeKind       `json:"kind"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Authority    AuthorityLevel `json:"authority"`
	Jurisdiction string         `json:"jurisdiction"`
	Attributes   AttributeMap   `json:"attributes,omitempty"`
	BestQuote    *Quote         `json:"best_quote,omitempty"`
	Quotes       Quotes         `json:"quotes"`
	SourceIDs    StringSet      `json:"source_ids"`
	ChunkIDs     StringSet      `json:"chunk_ids"`
	MentionCount int            `json:"mention_count"`

	// Version is the optimistic-concurrency token for merges
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
