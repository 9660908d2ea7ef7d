// Package lineage maintains the competing-parent hypothesis groups: it
// folds incoming parentage claims into relationships, accumulates
// confidence, and keeps exactly one primary candidate per (child, role).
package lineage

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ashvattha/ashvattha/internal/model"
	"github.com/ashvattha/ashvattha/internal/store"
)

// Claim is one parentage assertion ready to be folded into the graph:
// both endpoints already resolved to person ids, with provenance attached.
type Claim struct {
	ChildID    int64
	ParentID   int64
	Role       model.Role
	Confidence float64 // 0..100
	Verified   bool    // manual override; survives any later evidence
	Source     *model.Source
}

// Outcome reports what folding a claim changed
type Outcome struct {
	Relationship *model.Relationship
	Created      bool // a new candidate edge appeared
	Corroborated bool // an independent source raised an existing edge
	Promoted     bool // this edge became the primary hypothesis
}

// Aggregator owns confidence arithmetic and primary election
type Aggregator struct {
	policy model.PolicyConfig
	log    *zap.Logger
}

// NewAggregator creates an aggregator with the given policy
func NewAggregator(policy model.PolicyConfig, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{policy: policy, log: log}
}

// Apply folds one claim into the child's hypothesis group atomically on
// st, which may be a root store or an open transaction handle (InTx
// joins an ambient transaction).
//
// An existing (child, parent, role) edge accumulates: confidence rises to
// the claim's level when higher, and an independent corroborating source
// adds the configured bonus on top, capped at 100. A new parent candidate
// joins the group as a branch and the primary is re-elected: verified
// first, then confidence, then seniority. Verified edges are never
// displaced by unverified ones.
func (a *Aggregator) Apply(ctx context.Context, st store.Store, c Claim) (*Outcome, error) {
	if c.Confidence < 0 {
		c.Confidence = 0
	}
	if c.Confidence > 100 {
		c.Confidence = 100
	}
	if c.ChildID == c.ParentID {
		return nil, fmt.Errorf("apply claim: person %d cannot be their own parent", c.ChildID)
	}

	var out Outcome
	err := st.InTx(ctx, func(tx store.Store) error {
		group, err := tx.RelationshipsForChild(ctx, c.ChildID, c.Role)
		if err != nil {
			return err
		}

		rel := findParent(group, c.ParentID)
		if rel == nil {
			rel, err = a.createCandidate(ctx, tx, c, group)
			if err != nil {
				return err
			}
			out.Created = true
			group = append(group, *rel)
		} else {
			corroborated, err := a.accumulate(ctx, tx, rel, c)
			if err != nil {
				return err
			}
			out.Corroborated = corroborated
			replaceInGroup(group, rel)
		}

		promoted, err := a.electPrimary(ctx, tx, group, rel.ID)
		if err != nil {
			return err
		}
		out.Promoted = promoted

		// Re-read so the caller sees final standing and confidence
		final, err := tx.RelationshipsForChild(ctx, c.ChildID, c.Role)
		if err != nil {
			return err
		}
		out.Relationship = findParent(final, c.ParentID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.log.Debug("claim applied",
		zap.Int64("child", c.ChildID), zap.Int64("parent", c.ParentID),
		zap.String("role", string(c.Role)),
		zap.Float64("confidence", out.Relationship.Confidence),
		zap.Bool("created", out.Created), zap.Bool("corroborated", out.Corroborated))
	return &out, nil
}

// createCandidate inserts a new branch edge into the group
func (a *Aggregator) createCandidate(ctx context.Context, tx store.Store, c Claim, group []model.Relationship) (*model.Relationship, error) {
	branchGroup := uuid.NewString()
	if len(group) > 0 {
		branchGroup = group[0].BranchGroup
	}

	rel := &model.Relationship{
		ChildID:     c.ChildID,
		ParentID:    c.ParentID,
		Role:        c.Role,
		Confidence:  c.Confidence,
		Standing:    model.StandingBranch,
		BranchGroup: branchGroup,
		Verified:    c.Verified,
	}
	if err := tx.CreateRelationship(ctx, rel); err != nil {
		return nil, err
	}
	if err := a.attachSource(ctx, tx, rel, c.Source); err != nil {
		return nil, err
	}
	return rel, nil
}

// accumulate folds a repeat claim into an existing edge. Reports whether
// the corroboration bonus fired.
func (a *Aggregator) accumulate(ctx context.Context, tx store.Store, rel *model.Relationship, c Claim) (bool, error) {
	if c.Confidence > rel.Confidence {
		rel.Confidence = c.Confidence
	}

	corroborated := false
	// The bonus rewards agreement between independent outlets. Verified
	// edges are already settled and earn nothing from it.
	if !rel.Verified && !c.Verified && corroborates(rel.Sources, c.Source) {
		rel.Confidence += a.policy.CorroborationBonus
		if rel.Confidence > 100 {
			rel.Confidence = 100
		}
		corroborated = true
	}
	if c.Verified {
		rel.Verified = true
	}

	if err := tx.UpdateRelationship(ctx, rel); err != nil {
		return false, err
	}
	if err := a.attachSource(ctx, tx, rel, c.Source); err != nil {
		return false, err
	}
	return corroborated, nil
}

// attachSource records provenance, skipping exact URL repeats
func (a *Aggregator) attachSource(ctx context.Context, tx store.Store, rel *model.Relationship, src *model.Source) error {
	if src == nil {
		return nil
	}
	for _, existing := range rel.Sources {
		if existing.URL != "" && existing.URL == src.URL {
			return nil
		}
	}
	src.RelationshipID = rel.ID
	if err := tx.AddSource(ctx, src); err != nil {
		return err
	}
	rel.Sources = append(rel.Sources, *src)
	return nil
}

// corroborates reports whether src is independent supporting evidence:
// authoritative enough (secondary tier or better) and hosted somewhere
// none of the existing provenance comes from.
func corroborates(existing []model.Source, src *model.Source) bool {
	if src == nil || len(existing) == 0 {
		return false
	}
	if src.Authority != model.TierPrimary && src.Authority != model.TierSecondary {
		return false
	}
	h := hostOf(src.URL)
	if h == "" {
		return false
	}
	for _, e := range existing {
		if hostOf(e.URL) == h {
			return false
		}
	}
	return true
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Host
}

// electPrimary re-runs the primary election for a hypothesis group and
// persists any standing changes. Reports whether appliedID won.
func (a *Aggregator) electPrimary(ctx context.Context, tx store.Store, group []model.Relationship, appliedID int64) (bool, error) {
	if len(group) == 0 {
		return false, nil
	}

	winner := 0
	for i := 1; i < len(group); i++ {
		if betterCandidate(&group[i], &group[winner]) {
			winner = i
		}
	}

	for i := range group {
		want := model.StandingBranch
		if i == winner {
			want = model.StandingPrimary
		}
		if group[i].Standing == want {
			continue
		}
		group[i].Standing = want
		if err := tx.UpdateRelationship(ctx, &group[i]); err != nil {
			return false, err
		}
	}
	return group[winner].ID == appliedID, nil
}

// betterCandidate orders the election: verified beats unverified, then
// higher confidence, then the older edge.
func betterCandidate(a, b *model.Relationship) bool {
	if a.Verified != b.Verified {
		return a.Verified
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func findParent(group []model.Relationship, parentID int64) *model.Relationship {
	for i := range group {
		if group[i].ParentID == parentID {
			return &group[i]
		}
	}
	return nil
}

func replaceInGroup(group []model.Relationship, rel *model.Relationship) {
	for i := range group {
		if group[i].ID == rel.ID {
			group[i] = *rel
			return
		}
	}
}
