package model

import "time"

// Role tags the parent side of a child→parent edge
type Role string

const (
	RoleFather Role = "father"
	RoleMother Role = "mother"
)

// Standing is the tagged primary/branch state of a relationship within its
// branch group. Exactly one relationship per (child, role) group may hold
// StandingPrimary at any time.
type Standing string

const (
	StandingPrimary Standing = "primary"
	StandingBranch  Standing = "branch"
)

// Relationship is a directed child→parent edge with a confidence score.
// Relationships are never deleted; losing candidates are demoted to
// StandingBranch so the audit trail survives later reversals.
type Relationship struct {
	ID          int64     `json:"id"`
	ChildID     int64     `json:"child_id"`
	ParentID    int64     `json:"parent_id"`
	Role        Role      `json:"role"`
	Confidence  float64   `json:"confidence"` // 0..100
	Standing    Standing  `json:"standing"`
	BranchGroup string    `json:"branch_group"` // Shared by all candidates for (child, role)
	Verified    bool      `json:"verified"`     // Set by manual override; sticky
	Sources     []Source  `json:"sources,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsPrimary reports whether this is the active hypothesis in its group
func (r *Relationship) IsPrimary() bool {
	return r.Standing == StandingPrimary
}

// SourceKind classifies where a provenance record came from
type SourceKind string

const (
	SourceWikidata  SourceKind = "wikidata"
	SourceWikipedia SourceKind = "wikipedia"
	SourceLLM       SourceKind = "llm"
	SourceUser      SourceKind = "user"
)

// AuthorityTier classifies how much weight a provenance record carries.
// Recovered corroboration only counts tiers at or above secondary.
type AuthorityTier int

const (
	TierUnknown   AuthorityTier = 0
	TierPrimary   AuthorityTier = 1 // Structured registries (Wikidata), official records
	TierSecondary AuthorityTier = 2 // Encyclopedias, major publishers
	TierTertiary  AuthorityTier = 3 // Model output, blogs, uncurated text
)

func (t AuthorityTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}

// Source is an immutable provenance record attached to a relationship
type Source struct {
	ID             int64         `json:"id"`
	RelationshipID int64         `json:"relationship_id"`
	URL            string        `json:"url"`
	Title          string        `json:"title,omitempty"`
	Kind           SourceKind    `json:"kind"`
	Authority      AuthorityTier `json:"authority"`
	RetrievedAt    time.Time     `json:"retrieved_at"`
}

// MergeKind distinguishes the two ways a genesis block disappears
type MergeKind string

const (
	// MergeDissolved: a genesis root crossed the auto-merge threshold and
	// became a confirmed node in place.
	MergeDissolved MergeKind = "dissolved"
	// MergeAbsorbed: a duplicate genesis record was folded into a canonical
	// person discovered via a matching external key.
	MergeAbsorbed MergeKind = "absorbed"
)

// MergeLogEntry is the immutable record of a genesis block's end
type MergeLogEntry struct {
	ID              int64     `json:"id"`
	GenesisPersonID int64     `json:"genesis_person_id"`
	GenesisCode     string    `json:"genesis_code"`
	MergedIntoID    int64     `json:"merged_into_id"`
	Confidence      float64   `json:"confidence_at_merge"`
	Kind            MergeKind `json:"kind"`
	CreatedAt       time.Time `json:"created_at"`
}
