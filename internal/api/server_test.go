package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/ashvattha/ashvattha/internal/lineage"
	"github.com/ashvattha/ashvattha/internal/merge"
	"github.com/ashvattha/ashvattha/internal/model"
	"github.com/ashvattha/ashvattha/internal/queue"
	"github.com/ashvattha/ashvattha/internal/store"
)

func testServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st := store.NewMemory()
	policy := model.DefaultConfig().Policy
	sched := queue.NewScheduler(st, policy, 0, nil)
	srv := NewServer(st, sched,
		lineage.NewAggregator(policy, nil),
		merge.NewEngine(policy, nil),
		policy, nil)
	return srv, st
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoContentType, echoJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

const (
	echoContentType = "Content-Type"
	echoJSON        = "application/json"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestCreateAndGetPerson(t *testing.T) {
	srv, st := testServer(t)

	rec := do(t, srv, http.MethodPost, "/api/persons",
		`{"name": "Ashoka", "era": "Mauryan", "birth_year": -304}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created model.Person
	decode(t, rec, &created)
	if created.ID == 0 || created.GenesisCode == "" {
		t.Errorf("created = %+v, want id and genesis code assigned", created)
	}
	if created.BirthYear == nil || *created.BirthYear != -304 {
		t.Errorf("birth year = %v, want -304 (BCE)", created.BirthYear)
	}

	// Seeding queues research in both directions
	item, err := st.ClaimNext(context.Background(), 0)
	if err != nil {
		t.Fatalf("no research queued for seed: %v", err)
	}
	if item.PersonID != created.ID || item.Direction != model.DirBoth {
		t.Errorf("queued item = %+v", item)
	}
	if item.Priority != model.DefaultConfig().Policy.SeedPriority {
		t.Errorf("priority = %d, want seed priority", item.Priority)
	}

	rec = do(t, srv, http.MethodGet, "/api/persons/"+itoa(created.ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var view personView
	decode(t, rec, &view)
	if view.Person == nil || view.Person.Name != "Ashoka" {
		t.Errorf("view = %+v", view)
	}
}

func TestCreatePersonValidation(t *testing.T) {
	srv, _ := testServer(t)

	if rec := do(t, srv, http.MethodPost, "/api/persons", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing name: status = %d, want 400", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/api/persons", `{"name": "X", "kind": "alien"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad kind: status = %d, want 400", rec.Code)
	}
}

func TestGetPersonNotFound(t *testing.T) {
	srv, _ := testServer(t)
	if rec := do(t, srv, http.MethodGet, "/api/persons/99999", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/persons/abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateRelationshipVerified(t *testing.T) {
	srv, st := testServer(t)
	ctx := context.Background()

	child := &model.Person{Name: "Child", Kind: model.KindHuman}
	parent := &model.Person{Name: "Father", Kind: model.KindHuman}
	for _, p := range []*model.Person{child, parent} {
		if err := st.CreatePerson(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	body := `{"child_id": ` + itoa(child.ID) + `, "parent_id": ` + itoa(parent.ID) +
		`, "role": "father", "source_url": "https://www.wikidata.org/wiki/Q42"}`
	rec := do(t, srv, http.MethodPost, "/api/relationships", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var rel model.Relationship
	decode(t, rec, &rel)
	if !rel.Verified || rel.Confidence != 100 || rel.Standing != model.StandingPrimary {
		t.Errorf("rel = %+v, want verified primary at 100", rel)
	}
	if len(rel.Sources) != 1 || rel.Sources[0].Authority != model.TierPrimary {
		t.Errorf("sources = %+v, want wikidata classified primary", rel.Sources)
	}

	entries, err := st.RecentActivity(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 || entries[0].Action != model.ActionLinked {
		t.Errorf("activity = %+v, want a linked entry for the verification", entries)
	}
}

func TestCreateRelationshipValidation(t *testing.T) {
	srv, _ := testServer(t)

	if rec := do(t, srv, http.MethodPost, "/api/relationships",
		`{"child_id": 1, "parent_id": 1, "role": "father"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("self-link: status = %d, want 400", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/api/relationships",
		`{"child_id": 1, "parent_id": 2, "role": "uncle"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad role: status = %d, want 400", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/api/relationships",
		`{"child_id": 777, "parent_id": 778, "role": "father"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown persons: status = %d, want 404", rec.Code)
	}
}

func TestTreeEndpoint(t *testing.T) {
	srv, st := testServer(t)
	ctx := context.Background()

	// child -> father -> grandfather, plus a branch-standing rival father
	child := &model.Person{Name: "Child", Kind: model.KindHuman}
	father := &model.Person{Name: "Father", Kind: model.KindHuman}
	rival := &model.Person{Name: "Rival", Kind: model.KindHuman}
	grand := &model.Person{Name: "Grandfather", Kind: model.KindHuman}
	for _, p := range []*model.Person{child, father, rival, grand} {
		if err := st.CreatePerson(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	mk := func(childID, parentID int64, standing model.Standing, conf float64) {
		r := &model.Relationship{
			ChildID: childID, ParentID: parentID, Role: model.RoleFather,
			Confidence: conf, Standing: standing, BranchGroup: "bg",
		}
		if err := st.CreateRelationship(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	mk(child.ID, father.ID, model.StandingPrimary, 90)
	mk(child.ID, rival.ID, model.StandingBranch, 40)
	mk(father.ID, grand.ID, model.StandingPrimary, 85)

	rec := do(t, srv, http.MethodGet, "/api/persons/"+itoa(child.ID)+"/tree?depth=3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var tree TreeNode
	decode(t, rec, &tree)

	if len(tree.Parents) != 2 {
		t.Fatalf("parents = %d, want primary and branch candidate", len(tree.Parents))
	}
	// Primary first
	if tree.Parents[0].Name != "Father" || tree.Parents[0].Edge.Standing != model.StandingPrimary {
		t.Errorf("first parent = %+v, want the primary father", tree.Parents[0])
	}
	if tree.Parents[1].Name != "Rival" {
		t.Errorf("second parent = %+v, want the branch rival", tree.Parents[1])
	}
	// Primary line recursed to the grandfather; the branch did not
	if len(tree.Parents[0].Parents) != 1 || tree.Parents[0].Parents[0].Name != "Grandfather" {
		t.Errorf("grandfather missing from primary line: %+v", tree.Parents[0].Parents)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	rec := do(t, srv, http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats model.Stats
	decode(t, rec, &stats)
	// Fresh store: only the universal root exists, nothing merged
	if stats.MergesCompleted != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	srv, _ := testServer(t)
	if rec := do(t, srv, http.MethodGet, "/api/persons/search", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestPersonDetailIncludesCategories(t *testing.T) {
	srv, st := testServer(t)
	ctx := context.Background()

	p := &model.Person{Name: "Chandragupta", Kind: model.KindHuman}
	if err := st.CreatePerson(ctx, p); err != nil {
		t.Fatal(err)
	}
	cat := &model.Category{Name: "Mauryan Dynasty"}
	if err := st.CreateCategory(ctx, cat); err != nil {
		t.Fatal(err)
	}
	if err := st.AddPersonToCategory(ctx, p.ID, cat.ID); err != nil {
		t.Fatal(err)
	}

	rec := do(t, srv, http.MethodGet, "/api/persons/"+itoa(p.ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var view personView
	decode(t, rec, &view)
	if len(view.Categories) != 1 || view.Categories[0].Name != "Mauryan Dynasty" {
		t.Errorf("categories = %+v, want the assigned dynasty", view.Categories)
	}
}
