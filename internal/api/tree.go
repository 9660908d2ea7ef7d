package api

import (
	"context"
	"errors"

	"github.com/ashvattha/ashvattha/internal/model"
	"github.com/ashvattha/ashvattha/internal/store"
)

const (
	defaultTreeDepth = 3
	maxTreeDepth     = 6
	// childFanoutLimit caps how many children render per node so prolific
	// figures do not explode the payload.
	childFanoutLimit = 20
)

// TreeNode is one person in a rendered tree slice. Edge describes the
// relationship that connects this node to the node it hangs off.
type TreeNode struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Kind        string      `json:"kind"`
	Gender      string      `json:"gender,omitempty"`
	GenesisCode string      `json:"genesis_code,omitempty"`
	BirthYear   *int        `json:"birth_year,omitempty"`
	DeathYear   *int        `json:"death_year,omitempty"`
	Researched  bool        `json:"researched"`
	Edge        *TreeEdge   `json:"edge,omitempty"`
	Parents     []*TreeNode `json:"parents,omitempty"`
	Children    []*TreeNode `json:"children,omitempty"`
}

// TreeEdge is the connecting relationship's summary
type TreeEdge struct {
	Role       model.Role     `json:"role"`
	Confidence float64        `json:"confidence"`
	Standing   model.Standing `json:"standing"`
	Verified   bool           `json:"verified"`
}

// buildTree renders the graph slice around a person: all parent
// candidates (primary first) up to depth, and primary-standing children
// down to depth. A visited set stops cycles that bad data could form.
func (s *Server) buildTree(ctx context.Context, personID int64, depth int) (*TreeNode, error) {
	p, err := s.store.Person(ctx, personID)
	if err != nil {
		return nil, err
	}
	root := nodeFor(p, nil)

	up := map[int64]bool{p.ID: true}
	if err := s.addParents(ctx, root, depth, up); err != nil {
		return nil, err
	}
	down := map[int64]bool{p.ID: true}
	if err := s.addChildren(ctx, root, depth, down); err != nil {
		return nil, err
	}
	return root, nil
}

func (s *Server) addParents(ctx context.Context, node *TreeNode, depth int, visited map[int64]bool) error {
	if depth <= 0 {
		return nil
	}
	rels, err := s.store.ParentsOf(ctx, node.ID)
	if err != nil {
		return err
	}
	for i := range rels {
		rel := &rels[i]
		if visited[rel.ParentID] {
			continue
		}
		parent, err := s.store.Person(ctx, rel.ParentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return err
		}
		visited[parent.ID] = true
		child := nodeFor(parent, rel)
		node.Parents = append(node.Parents, child)
		// Only the primary line recurses; branch hypotheses render one
		// level deep to keep contested trees readable.
		if rel.IsPrimary() {
			if err := s.addParents(ctx, child, depth-1, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Server) addChildren(ctx context.Context, node *TreeNode, depth int, visited map[int64]bool) error {
	if depth <= 0 {
		return nil
	}
	rels, err := s.store.ChildrenOf(ctx, node.ID, childFanoutLimit)
	if err != nil {
		return err
	}
	for i := range rels {
		rel := &rels[i]
		if visited[rel.ChildID] {
			continue
		}
		childPerson, err := s.store.Person(ctx, rel.ChildID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return err
		}
		visited[childPerson.ID] = true
		child := nodeFor(childPerson, rel)
		node.Children = append(node.Children, child)
		if err := s.addChildren(ctx, child, depth-1, visited); err != nil {
			return err
		}
	}
	return nil
}

func nodeFor(p *model.Person, rel *model.Relationship) *TreeNode {
	n := &TreeNode{
		ID:          p.ID,
		Name:        p.Name,
		Kind:        string(p.Kind),
		Gender:      p.Gender,
		GenesisCode: p.GenesisCode,
		BirthYear:   p.BirthYear,
		DeathYear:   p.DeathYear,
		Researched:  p.Researched,
	}
	if rel != nil {
		n.Edge = &TreeEdge{
			Role:       rel.Role,
			Confidence: rel.Confidence,
			Standing:   rel.Standing,
			Verified:   rel.Verified,
		}
	}
	return n
}
