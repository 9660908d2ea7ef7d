package factsource

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ashvattha/ashvattha/internal/model"
)

type stubSource struct {
	name  string
	facts []CandidateFact
	err   error
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Lookup(context.Context, Identity, model.Direction) ([]CandidateFact, error) {
	return s.facts, s.err
}

func TestMultiConcatenates(t *testing.T) {
	m := NewMulti(
		&stubSource{name: "a", facts: []CandidateFact{{Relation: RelFather, Name: "A"}}},
		&stubSource{name: "b", facts: []CandidateFact{{Relation: RelMother, Name: "B"}}},
	)
	facts, err := m.Lookup(context.Background(), Identity{Name: "x"}, model.DirBoth)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(facts) != 2 || facts[0].Name != "A" || facts[1].Name != "B" {
		t.Errorf("facts = %+v, want A then B", facts)
	}
}

func TestMultiPartialResultsWinOverError(t *testing.T) {
	m := NewMulti(
		&stubSource{name: "a", err: fmt.Errorf("upstream: %w", ErrTransient)},
		&stubSource{name: "b", facts: []CandidateFact{{Relation: RelFather, Name: "B"}}},
	)
	facts, err := m.Lookup(context.Background(), Identity{Name: "x"}, model.DirBoth)
	if err != nil {
		t.Fatalf("expected partial results to suppress the error, got %v", err)
	}
	if len(facts) != 1 || facts[0].Name != "B" {
		t.Errorf("facts = %+v, want only B", facts)
	}
}

func TestMultiAllFailed(t *testing.T) {
	m := NewMulti(
		&stubSource{name: "a", err: fmt.Errorf("a: %w", ErrTransient)},
		&stubSource{name: "b", err: errors.New("b broke")},
	)
	_, err := m.Lookup(context.Background(), Identity{Name: "x"}, model.DirBoth)
	if err == nil {
		t.Fatal("expected error when every source failed")
	}
	if !IsTransient(err) {
		t.Errorf("first error should be reported; got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	wrapped := fmt.Errorf("fetch: status 503: %w", ErrTransient)
	if !IsTransient(wrapped) {
		t.Error("wrapped transient error not detected")
	}
	if IsTransient(errors.New("bad input")) {
		t.Error("plain error misreported as transient")
	}
}
