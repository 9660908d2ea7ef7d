package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/ashvattha/ashvattha/internal/model"
	"github.com/ashvattha/ashvattha/internal/store"
)

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	l := NewLogger(st, nil)

	p := &model.Person{Name: "Ashoka", Kind: model.KindHuman}
	if err := st.CreatePerson(ctx, p); err != nil {
		t.Fatal(err)
	}

	l.Record(ctx, p, model.ActionDiscovered, "via wikidata")
	l.Record(ctx, p, model.ActionLinked, "father of Mahendra")

	entries, err := l.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	// Newest first
	if entries[0].Action != model.ActionLinked || entries[1].Action != model.ActionDiscovered {
		t.Errorf("order = %s, %s; want linked then discovered", entries[0].Action, entries[1].Action)
	}
	if entries[0].PersonName != "Ashoka" {
		t.Errorf("person name = %q", entries[0].PersonName)
	}
}

type brokenStore struct {
	store.Store
}

func (brokenStore) AppendActivity(context.Context, *model.ActivityEntry) error {
	return errors.New("disk full")
}

func TestRecordSwallowsStoreErrors(t *testing.T) {
	l := NewLogger(brokenStore{Store: store.NewMemory()}, nil)
	// Must not panic or propagate
	l.Record(context.Background(), nil, model.ActionFailed, "whatever")
}
