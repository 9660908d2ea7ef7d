package model

import (
	"strings"
	"time"
)

// PersonKind categorizes a person node
type PersonKind string

const (
	KindHuman        PersonKind = "human"        // Ordinary historical or living person
	KindMythological PersonKind = "mythological" // Figure from myth or scripture
	KindGenesis      PersonKind = "genesis"      // Placeholder for an unresolved root
)

// UniversalRootCode is the genesis code of the single primordial root.
// Exactly one person system-wide holds it; it is never cleared.
const UniversalRootCode = "G0"

// Person is an identity node in the lineage graph
type Person struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Aliases     []string   `json:"aliases,omitempty"`
	Kind        PersonKind `json:"kind"`
	Gender      string     `json:"gender,omitempty"`       // male, female, unknown
	Era         string     `json:"era,omitempty"`          // Free-form era label ("Bronze Age", "Vedic")
	BirthYear   *int       `json:"birth_year,omitempty"`   // Signed; negative = BCE
	DeathYear   *int       `json:"death_year,omitempty"`   // Signed; negative = BCE
	ExternalKey string     `json:"external_key,omitempty"` // Cross-source identity (e.g. Wikidata QID)
	GenesisCode string     `json:"genesis_code,omitempty"` // Set iff currently an unconnected root
	MergedInto  int64      `json:"merged_into,omitempty"`  // Canonical id when retired by an identity merge
	Researched  bool       `json:"researched"`             // At least one queue item completed for this person
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsGenesis reports whether the person is currently an unconnected root
func (p *Person) IsGenesis() bool {
	return p.GenesisCode != ""
}

// IsRetired reports whether the person was absorbed into another record
func (p *Person) IsRetired() bool {
	return p.MergedInto != 0
}

// HasAlias reports whether name matches the person's name or any alias,
// using the same folding as NormalizeName
func (p *Person) HasAlias(name string) bool {
	folded := NormalizeName(name)
	if NormalizeName(p.Name) == folded {
		return true
	}
	for _, a := range p.Aliases {
		if NormalizeName(a) == folded {
			return true
		}
	}
	return false
}

// NormalizeName folds a person name for fuzzy matching: lowercase,
// collapsed whitespace. Diacritics are kept; sources are expected to
// romanize consistently.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Category is a curated grouping of persons (dynasties, pantheons, eras)
type Category struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Icon         string `json:"icon,omitempty"`
	ParentID     int64  `json:"parent_id,omitempty"`
	DisplayOrder int    `json:"display_order"`
	PersonCount  int    `json:"person_count,omitempty"`
}
