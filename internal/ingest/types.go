package ingest

import (
	"github.com/google/uuid"
)

// File is one incoming item: the client's filename, its declared media type
// and the raw bytes. Nothing here is trusted until validated.
type File struct {
	Filename  string
	MediaType string
	Data      []byte
}

// MatchKind tags the duplicate-resolution outcome for one candidate.
// Tiers are ordered: exact beats perceptual beats embedding.
type MatchKind uint8

const (
	MatchNone MatchKind = iota
	MatchExact
	MatchPerceptual
	MatchEmbedding
)

// String returns the wire name of the match kind.
func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchPerceptual:
		return "perceptual"
	case MatchEmbedding:
		return "embedding"
	default:
		return "none"
	}
}

// Match is the tagged outcome of resolving one candidate. AssetID is the
// pre-existing (or staged sibling) asset that matched; zero for MatchNone.
type Match struct {
	Kind    MatchKind
	AssetID uuid.UUID
}

// ItemStatus reports what happened to one file of a batch.
type ItemStatus string

const (
	ItemAccepted  ItemStatus = "accepted"
	ItemDuplicate ItemStatus = "duplicate"
)

// ItemOutcome is the per-file result, in input order.
type ItemOutcome struct {
	Filename    string     `json:"filename"`
	AssetID     uuid.UUID  `json:"asset_id"`
	Status      ItemStatus `json:"status"`
	MatchedBy   string     `json:"matched_by,omitempty"`
	DuplicateOf uuid.UUID  `json:"duplicate_of,omitempty"`
}

// Result is the outcome of one pipeline run. Accepted holds committed asset
// ids in input order; Duplicates maps each rejected candidate's id to the
// asset it duplicated.
type Result struct {
	Items      []ItemOutcome           `json:"items"`
	Accepted   []uuid.UUID             `json:"accepted"`
	Duplicates map[uuid.UUID]uuid.UUID `json:"duplicates,omitempty"`
}

// FullyRejected reports whether nothing in the batch was ingested.
func (r *Result) FullyRejected() bool {
	return len(r.Accepted) == 0
}
