package merge

import (
	"context"
	"errors"
	"testing"

	"github.com/ashvattha/ashvattha/internal/model"
	"github.com/ashvattha/ashvattha/internal/store"
)

func testEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	st := store.NewMemory()
	return NewEngine(model.DefaultConfig().Policy, nil), st
}

func addPerson(t *testing.T, st store.Store, name string) *model.Person {
	t.Helper()
	p := &model.Person{Name: name, Kind: model.KindHuman}
	if err := st.CreatePerson(context.Background(), p); err != nil {
		t.Fatalf("create person %s: %v", name, err)
	}
	return p
}

func addGenesis(t *testing.T, st store.Store, name string) *model.Person {
	t.Helper()
	ctx := context.Background()
	code, err := st.NextGenesisCode(ctx)
	if err != nil {
		t.Fatalf("next genesis code: %v", err)
	}
	p := &model.Person{Name: name, Kind: model.KindGenesis, GenesisCode: code}
	if err := st.CreatePerson(ctx, p); err != nil {
		t.Fatalf("create genesis %s: %v", name, err)
	}
	return p
}

func link(t *testing.T, st store.Store, childID, parentID int64, conf float64, standing model.Standing) {
	t.Helper()
	r := &model.Relationship{
		ChildID: childID, ParentID: parentID, Role: model.RoleFather,
		Confidence: conf, Standing: standing, BranchGroup: "g",
	}
	if err := st.CreateRelationship(context.Background(), r); err != nil {
		t.Fatalf("create relationship: %v", err)
	}
}

func TestCheckDissolve(t *testing.T) {
	ctx := context.Background()
	e, st := testEngine(t)
	g := addGenesis(t, st, "Lost Root")
	parent := addPerson(t, st, "Known Ancestor")
	link(t, st, g.ID, parent.ID, 96, model.StandingPrimary)

	dissolved, err := e.CheckDissolve(ctx, st, g.ID)
	if err != nil {
		t.Fatalf("check dissolve: %v", err)
	}
	if !dissolved {
		t.Fatal("expected dissolve at confidence 96")
	}

	p, err := st.Person(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.IsGenesis() {
		t.Errorf("genesis code still set: %q", p.GenesisCode)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.MergesCompleted != 1 {
		t.Errorf("merges completed = %d, want 1", stats.MergesCompleted)
	}

	acts, err := st.RecentActivity(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, a := range acts {
		if a.Action == model.ActionMerged && a.PersonID == g.ID {
			found = true
		}
	}
	if !found {
		t.Error("dissolve not recorded in activity log")
	}
}

func TestCheckDissolveBelowThreshold(t *testing.T) {
	ctx := context.Background()
	e, st := testEngine(t)
	g := addGenesis(t, st, "Lost Root")
	parent := addPerson(t, st, "Known Ancestor")
	link(t, st, g.ID, parent.ID, 94, model.StandingPrimary)

	dissolved, err := e.CheckDissolve(ctx, st, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if dissolved {
		t.Error("dissolved below the threshold")
	}
	p, _ := st.Person(ctx, g.ID)
	if !p.IsGenesis() {
		t.Error("genesis code cleared below threshold")
	}
}

func TestCheckDissolveRequiresPrimary(t *testing.T) {
	ctx := context.Background()
	e, st := testEngine(t)
	g := addGenesis(t, st, "Lost Root")
	parent := addPerson(t, st, "Contested Ancestor")
	link(t, st, g.ID, parent.ID, 99, model.StandingBranch)

	dissolved, err := e.CheckDissolve(ctx, st, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if dissolved {
		t.Error("a branch hypothesis must not dissolve a genesis block")
	}
}

func TestCheckDissolveSkipsUniversalRoot(t *testing.T) {
	ctx := context.Background()
	e, st := testEngine(t)

	var root *model.Person
	persons, err := st.SearchPersons(ctx, "Primordial Root", 5)
	if err != nil || len(persons) == 0 {
		t.Fatalf("universal root missing: %v", err)
	}
	root = &persons[0]

	dissolved, err := e.CheckDissolve(ctx, st, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if dissolved {
		t.Error("the universal root must never dissolve")
	}
}

func TestCheckDissolveNonGenesisNoop(t *testing.T) {
	ctx := context.Background()
	e, st := testEngine(t)
	p := addPerson(t, st, "Ordinary")

	dissolved, err := e.CheckDissolve(ctx, st, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if dissolved {
		t.Error("non-genesis person reported as dissolved")
	}
}

func TestAbsorb(t *testing.T) {
	ctx := context.Background()
	e, st := testEngine(t)

	canon := addPerson(t, st, "Chandragupta Maurya")
	dup := addGenesis(t, st, "Chandragupta")
	dup.ExternalKey = "Q188541"
	dup.Aliases = []string{"Sandrokottos"}
	if err := st.UpdatePerson(ctx, dup); err != nil {
		t.Fatal(err)
	}
	child := addPerson(t, st, "Bindusara")
	link(t, st, child.ID, dup.ID, 80, model.StandingPrimary)

	if err := e.Absorb(ctx, st, dup.ID, canon.ID); err != nil {
		t.Fatalf("absorb: %v", err)
	}

	// Lookup of the duplicate now lands on the canonical person
	got, err := st.Person(ctx, dup.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != canon.ID {
		t.Errorf("person(%d) resolved to %d, want canonical %d", dup.ID, got.ID, canon.ID)
	}
	if got.ExternalKey != "Q188541" {
		t.Errorf("external key = %q, want carried over", got.ExternalKey)
	}
	if !got.HasAlias("Chandragupta") || !got.HasAlias("Sandrokottos") {
		t.Errorf("aliases = %v, want duplicate name and aliases carried over", got.Aliases)
	}

	// The child's edge moved to the canonical parent
	parents, err := st.ParentsOf(ctx, child.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(parents) != 1 || parents[0].ParentID != canon.ID {
		t.Errorf("parents = %+v, want one edge to canonical", parents)
	}
}

func TestAbsorbSelfRejected(t *testing.T) {
	e, st := testEngine(t)
	p := addPerson(t, st, "Solo")
	if err := e.Absorb(context.Background(), st, p.ID, p.ID); err == nil {
		t.Fatal("self-absorb must be rejected")
	}
}

// failingStore injects a merge-log failure to prove dissolves are atomic.

type failingStore struct {
	store.Store
}

func (f *failingStore) InTx(ctx context.Context, fn func(store.Store) error) error {
	return f.Store.InTx(ctx, func(tx store.Store) error {
		return fn(&failingTx{Store: tx})
	})
}

type failingTx struct {
	store.Store
}

func (f *failingTx) AppendMergeLog(context.Context, *model.MergeLogEntry) error {
	return errors.New("merge log unavailable")
}

func TestCheckDissolveAtomic(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	e := NewEngine(model.DefaultConfig().Policy, nil)
	failing := &failingStore{Store: st}

	g := addGenesis(t, st, "Lost Root")
	parent := addPerson(t, st, "Known Ancestor")
	link(t, st, g.ID, parent.ID, 96, model.StandingPrimary)

	if _, err := e.CheckDissolve(ctx, failing, g.ID); err == nil {
		t.Fatal("expected injected failure")
	}

	// The person update must have rolled back with the failed log write
	p, err := st.Person(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !p.IsGenesis() {
		t.Error("genesis code cleared despite failed transaction")
	}
}
