package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ashvattha/ashvattha/internal/model"
)

// Memory is an in-memory Store. It backs the test suite and the
// standalone demo mode; state is lost on exit.
//
// Transactions snapshot the whole state and restore it when the closure
// fails, so merge atomicity behaves the same as in the SQL store.
type Memory struct {
	mu   sync.Mutex
	data memData
}

// NewMemory creates an empty in-memory store seeded with the universal
// root person.
func NewMemory() *Memory {
	m := &Memory{
		data: memData{
			persons:       make(map[int64]*model.Person),
			relationships: make(map[int64]*model.Relationship),
			sources:       make(map[int64][]model.Source),
			queue:         make(map[int64]*model.QueueItem),
			categories:    make(map[int64]*model.Category),
			catMembers:    make(map[int64][]int64),
		},
	}
	root := &model.Person{
		Name:        "Primordial Root",
		Kind:        model.KindMythological,
		GenesisCode: model.UniversalRootCode,
	}
	_ = m.data.createPerson(root)
	return m
}

// memData holds the actual state. Methods on *memData assume the owning
// Memory's mutex is held.
type memData struct {
	persons       map[int64]*model.Person
	relationships map[int64]*model.Relationship
	sources       map[int64][]model.Source
	queue         map[int64]*model.QueueItem
	categories    map[int64]*model.Category
	catMembers    map[int64][]int64 // category id -> person ids

	activity []model.ActivityEntry
	mergeLog []model.MergeLogEntry

	personSeq  int64
	relSeq     int64
	srcSeq     int64
	queueSeq   int64
	actSeq     int64
	mergeSeq   int64
	genesisSeq int64
	catSeq     int64
}

func (d *memData) clone() memData {
	c := memData{
		persons:       make(map[int64]*model.Person, len(d.persons)),
		relationships: make(map[int64]*model.Relationship, len(d.relationships)),
		sources:       make(map[int64][]model.Source, len(d.sources)),
		queue:         make(map[int64]*model.QueueItem, len(d.queue)),
		categories:    make(map[int64]*model.Category, len(d.categories)),
		catMembers:    make(map[int64][]int64, len(d.catMembers)),
		activity:      append([]model.ActivityEntry(nil), d.activity...),
		mergeLog:      append([]model.MergeLogEntry(nil), d.mergeLog...),
		personSeq:     d.personSeq,
		relSeq:        d.relSeq,
		srcSeq:        d.srcSeq,
		queueSeq:      d.queueSeq,
		actSeq:        d.actSeq,
		mergeSeq:      d.mergeSeq,
		genesisSeq:    d.genesisSeq,
		catSeq:        d.catSeq,
	}
	for id, p := range d.persons {
		cp := *p
		cp.Aliases = append([]string(nil), p.Aliases...)
		c.persons[id] = &cp
	}
	for id, r := range d.relationships {
		cr := *r
		c.relationships[id] = &cr
	}
	for id, ss := range d.sources {
		c.sources[id] = append([]model.Source(nil), ss...)
	}
	for id, q := range d.queue {
		cq := *q
		c.queue[id] = &cq
	}
	for id, cat := range d.categories {
		cc := *cat
		c.categories[id] = &cc
	}
	for id, ms := range d.catMembers {
		c.catMembers[id] = append([]int64(nil), ms...)
	}
	return c
}

// Memory methods lock and delegate; memTx methods run inside a held lock.

func (m *Memory) locked(fn func(*memData) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&m.data)
}

func (m *Memory) CreatePerson(ctx context.Context, p *model.Person) error {
	return m.locked(func(d *memData) error { return d.createPerson(p) })
}

func (m *Memory) Person(ctx context.Context, id int64) (*model.Person, error) {
	var p *model.Person
	err := m.locked(func(d *memData) (err error) { p, err = d.person(id); return })
	return p, err
}

func (m *Memory) PersonByExternalKey(ctx context.Context, key string) (*model.Person, error) {
	var p *model.Person
	err := m.locked(func(d *memData) (err error) { p, err = d.personByExternalKey(key); return })
	return p, err
}

func (m *Memory) PersonByNameEra(ctx context.Context, name string, birthYear *int, window int) (*model.Person, error) {
	var p *model.Person
	err := m.locked(func(d *memData) (err error) { p, err = d.personByNameEra(name, birthYear, window); return })
	return p, err
}

func (m *Memory) UpdatePerson(ctx context.Context, p *model.Person) error {
	return m.locked(func(d *memData) error { return d.updatePerson(p) })
}

func (m *Memory) SearchPersons(ctx context.Context, query string, limit int) ([]model.Person, error) {
	var out []model.Person
	err := m.locked(func(d *memData) (err error) { out, err = d.searchPersons(query, limit); return })
	return out, err
}

func (m *Memory) NextGenesisCode(ctx context.Context) (string, error) {
	var code string
	err := m.locked(func(d *memData) (err error) { code, err = d.nextGenesisCode(); return })
	return code, err
}

func (m *Memory) RepointRelationships(ctx context.Context, fromID, toID int64) error {
	return m.locked(func(d *memData) error { return d.repointRelationships(fromID, toID) })
}

func (m *Memory) RelationshipsForChild(ctx context.Context, childID int64, role model.Role) ([]model.Relationship, error) {
	var out []model.Relationship
	err := m.locked(func(d *memData) (err error) { out, err = d.relationshipsForChild(childID, role); return })
	return out, err
}

func (m *Memory) ParentsOf(ctx context.Context, childID int64) ([]model.Relationship, error) {
	var out []model.Relationship
	err := m.locked(func(d *memData) (err error) { out, err = d.parentsOf(childID); return })
	return out, err
}

func (m *Memory) ChildrenOf(ctx context.Context, parentID int64, limit int) ([]model.Relationship, error) {
	var out []model.Relationship
	err := m.locked(func(d *memData) (err error) { out, err = d.childrenOf(parentID, limit); return })
	return out, err
}

func (m *Memory) CreateRelationship(ctx context.Context, r *model.Relationship) error {
	return m.locked(func(d *memData) error { return d.createRelationship(r) })
}

func (m *Memory) UpdateRelationship(ctx context.Context, r *model.Relationship) error {
	return m.locked(func(d *memData) error { return d.updateRelationship(r) })
}

func (m *Memory) AddSource(ctx context.Context, s *model.Source) error {
	return m.locked(func(d *memData) error { return d.addSource(s) })
}

func (m *Memory) SourcesFor(ctx context.Context, relID int64) ([]model.Source, error) {
	var out []model.Source
	err := m.locked(func(d *memData) (err error) { out, err = d.sourcesFor(relID); return })
	return out, err
}

func (m *Memory) Enqueue(ctx context.Context, item *model.QueueItem) error {
	return m.locked(func(d *memData) error { return d.enqueue(item) })
}

func (m *Memory) OpenQueueItem(ctx context.Context, personID int64, dir model.Direction) (*model.QueueItem, error) {
	var it *model.QueueItem
	err := m.locked(func(d *memData) (err error) { it, err = d.openQueueItem(personID, dir); return })
	return it, err
}

func (m *Memory) ClaimNext(ctx context.Context, staleAfter time.Duration) (*model.QueueItem, error) {
	var it *model.QueueItem
	err := m.locked(func(d *memData) (err error) { it, err = d.claimNext(staleAfter); return })
	return it, err
}

func (m *Memory) UpdateQueueItem(ctx context.Context, item *model.QueueItem) error {
	return m.locked(func(d *memData) error { return d.updateQueueItem(item) })
}

func (m *Memory) QueueCounts(ctx context.Context) (map[model.QueueStatus]int, error) {
	var out map[model.QueueStatus]int
	err := m.locked(func(d *memData) (err error) { out, err = d.queueCounts(); return })
	return out, err
}

func (m *Memory) AppendActivity(ctx context.Context, e *model.ActivityEntry) error {
	return m.locked(func(d *memData) error { return d.appendActivity(e) })
}

func (m *Memory) RecentActivity(ctx context.Context, limit int) ([]model.ActivityEntry, error) {
	var out []model.ActivityEntry
	err := m.locked(func(d *memData) (err error) { out, err = d.recentActivity(limit); return })
	return out, err
}

func (m *Memory) AppendMergeLog(ctx context.Context, e *model.MergeLogEntry) error {
	return m.locked(func(d *memData) error { return d.appendMergeLog(e) })
}

func (m *Memory) CreateCategory(ctx context.Context, c *model.Category) error {
	return m.locked(func(d *memData) error { return d.createCategory(c) })
}

func (m *Memory) AddPersonToCategory(ctx context.Context, personID, catID int64) error {
	return m.locked(func(d *memData) error { return d.addPersonToCategory(personID, catID) })
}

func (m *Memory) Categories(ctx context.Context) ([]model.Category, error) {
	var out []model.Category
	err := m.locked(func(d *memData) (err error) { out, err = d.listCategories(); return })
	return out, err
}

func (m *Memory) CategoriesFor(ctx context.Context, personID int64) ([]model.Category, error) {
	var out []model.Category
	err := m.locked(func(d *memData) (err error) { out, err = d.categoriesFor(personID); return })
	return out, err
}

func (m *Memory) PersonsInCategory(ctx context.Context, catID int64, limit, offset int) ([]model.Person, error) {
	var out []model.Person
	err := m.locked(func(d *memData) (err error) { out, err = d.personsInCategory(catID, limit, offset); return })
	return out, err
}

func (m *Memory) Stats(ctx context.Context) (*model.Stats, error) {
	var st *model.Stats
	err := m.locked(func(d *memData) (err error) { st, err = d.stats(); return })
	return st, err
}

// InTx snapshots state, runs fn under the lock, and restores the snapshot
// if fn fails. Nested calls join the open transaction.
func (m *Memory) InTx(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.data.clone()
	if err := fn(&memTx{data: &m.data}); err != nil {
		m.data = snap
		return err
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// memTx is the transaction-bound handle handed to InTx closures. The
// owning Memory's mutex is already held, so methods touch data directly.
type memTx struct {
	data *memData
}

func (t *memTx) CreatePerson(ctx context.Context, p *model.Person) error {
	return t.data.createPerson(p)
}
func (t *memTx) Person(ctx context.Context, id int64) (*model.Person, error) {
	return t.data.person(id)
}
func (t *memTx) PersonByExternalKey(ctx context.Context, key string) (*model.Person, error) {
	return t.data.personByExternalKey(key)
}
func (t *memTx) PersonByNameEra(ctx context.Context, name string, by *int, w int) (*model.Person, error) {
	return t.data.personByNameEra(name, by, w)
}
func (t *memTx) UpdatePerson(ctx context.Context, p *model.Person) error {
	return t.data.updatePerson(p)
}
func (t *memTx) SearchPersons(ctx context.Context, q string, limit int) ([]model.Person, error) {
	return t.data.searchPersons(q, limit)
}
func (t *memTx) NextGenesisCode(ctx context.Context) (string, error) {
	return t.data.nextGenesisCode()
}
func (t *memTx) RepointRelationships(ctx context.Context, from, to int64) error {
	return t.data.repointRelationships(from, to)
}
func (t *memTx) RelationshipsForChild(ctx context.Context, c int64, r model.Role) ([]model.Relationship, error) {
	return t.data.relationshipsForChild(c, r)
}
func (t *memTx) ParentsOf(ctx context.Context, childID int64) ([]model.Relationship, error) {
	return t.data.parentsOf(childID)
}
func (t *memTx) ChildrenOf(ctx context.Context, parentID int64, limit int) ([]model.Relationship, error) {
	return t.data.childrenOf(parentID, limit)
}
func (t *memTx) CreateRelationship(ctx context.Context, r *model.Relationship) error {
	return t.data.createRelationship(r)
}
func (t *memTx) UpdateRelationship(ctx context.Context, r *model.Relationship) error {
	return t.data.updateRelationship(r)
}
func (t *memTx) AddSource(ctx context.Context, s *model.Source) error {
	return t.data.addSource(s)
}
func (t *memTx) SourcesFor(ctx context.Context, relID int64) ([]model.Source, error) {
	return t.data.sourcesFor(relID)
}
func (t *memTx) Enqueue(ctx context.Context, item *model.QueueItem) error {
	return t.data.enqueue(item)
}
func (t *memTx) OpenQueueItem(ctx context.Context, pid int64, dir model.Direction) (*model.QueueItem, error) {
	return t.data.openQueueItem(pid, dir)
}
func (t *memTx) ClaimNext(ctx context.Context, staleAfter time.Duration) (*model.QueueItem, error) {
	return t.data.claimNext(staleAfter)
}
func (t *memTx) UpdateQueueItem(ctx context.Context, item *model.QueueItem) error {
	return t.data.updateQueueItem(item)
}
func (t *memTx) QueueCounts(ctx context.Context) (map[model.QueueStatus]int, error) {
	return t.data.queueCounts()
}
func (t *memTx) AppendActivity(ctx context.Context, e *model.ActivityEntry) error {
	return t.data.appendActivity(e)
}
func (t *memTx) RecentActivity(ctx context.Context, limit int) ([]model.ActivityEntry, error) {
	return t.data.recentActivity(limit)
}
func (t *memTx) AppendMergeLog(ctx context.Context, e *model.MergeLogEntry) error {
	return t.data.appendMergeLog(e)
}
func (t *memTx) CreateCategory(ctx context.Context, c *model.Category) error {
	return t.data.createCategory(c)
}
func (t *memTx) AddPersonToCategory(ctx context.Context, personID, catID int64) error {
	return t.data.addPersonToCategory(personID, catID)
}
func (t *memTx) Categories(ctx context.Context) ([]model.Category, error) {
	return t.data.listCategories()
}
func (t *memTx) CategoriesFor(ctx context.Context, personID int64) ([]model.Category, error) {
	return t.data.categoriesFor(personID)
}
func (t *memTx) PersonsInCategory(ctx context.Context, catID int64, limit, offset int) ([]model.Person, error) {
	return t.data.personsInCategory(catID, limit, offset)
}
func (t *memTx) Stats(ctx context.Context) (*model.Stats, error) {
	return t.data.stats()
}
func (t *memTx) InTx(ctx context.Context, fn func(Store) error) error {
	return fn(t) // join the open transaction
}
func (t *memTx) Close() error { return nil }

// Data operations.

func (d *memData) createPerson(p *model.Person) error {
	d.personSeq++
	p.ID = d.personSeq
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	cp.Aliases = append([]string(nil), p.Aliases...)
	d.persons[p.ID] = &cp
	return nil
}

func (d *memData) person(id int64) (*model.Person, error) {
	p, ok := d.persons[id]
	if !ok {
		return nil, ErrNotFound
	}
	// Retired records forward to their canonical person.
	for p.MergedInto != 0 {
		next, ok := d.persons[p.MergedInto]
		if !ok {
			return nil, ErrNotFound
		}
		p = next
	}
	cp := *p
	cp.Aliases = append([]string(nil), p.Aliases...)
	return &cp, nil
}

func (d *memData) personByExternalKey(key string) (*model.Person, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	for _, p := range d.persons {
		if p.ExternalKey == key && p.MergedInto == 0 {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) personByNameEra(name string, birthYear *int, window int) (*model.Person, error) {
	folded := model.NormalizeName(name)
	var best *model.Person
	for _, p := range d.persons {
		if p.MergedInto != 0 || !p.HasAlias(folded) {
			continue
		}
		if birthYear == nil || p.BirthYear == nil {
			// Unknown era matches only when both sides are unknown.
			if birthYear == nil && p.BirthYear == nil {
				if best == nil || p.ID < best.ID {
					best = p
				}
			}
			continue
		}
		diff := *p.BirthYear - *birthYear
		if diff < 0 {
			diff = -diff
		}
		if diff <= window {
			if best == nil || p.ID < best.ID {
				best = p
			}
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	cp.Aliases = append([]string(nil), best.Aliases...)
	return &cp, nil
}

func (d *memData) updatePerson(p *model.Person) error {
	if _, ok := d.persons[p.ID]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	cp.Aliases = append([]string(nil), p.Aliases...)
	d.persons[p.ID] = &cp
	return nil
}

func (d *memData) searchPersons(query string, limit int) ([]model.Person, error) {
	if limit <= 0 {
		limit = 20
	}
	q := model.NormalizeName(query)
	var out []model.Person
	for _, p := range d.persons {
		if p.MergedInto != 0 {
			continue
		}
		if strings.Contains(model.NormalizeName(p.Name), q) || p.HasAlias(q) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Researched != out[j].Researched {
			return out[i].Researched
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *memData) nextGenesisCode() (string, error) {
	d.genesisSeq++
	return fmt.Sprintf("G%d", d.genesisSeq), nil
}

func (d *memData) repointRelationships(fromID, toID int64) error {
	exists := func(child, parent int64, role model.Role) bool {
		for _, r := range d.relationships {
			if r.ChildID == child && r.ParentID == parent && r.Role == role {
				return true
			}
		}
		return false
	}
	for _, r := range d.relationships {
		if r.ChildID == fromID && !exists(toID, r.ParentID, r.Role) {
			r.ChildID = toID
		}
		if r.ParentID == fromID && !exists(r.ChildID, toID, r.Role) {
			r.ParentID = toID
		}
	}
	return nil
}

func (d *memData) relationshipsForChild(childID int64, role model.Role) ([]model.Relationship, error) {
	var out []model.Relationship
	for _, r := range d.relationships {
		if r.ChildID == childID && r.Role == role {
			cr := *r
			cr.Sources = append([]model.Source(nil), d.sources[r.ID]...)
			out = append(out, cr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *memData) parentsOf(childID int64) ([]model.Relationship, error) {
	var out []model.Relationship
	for _, r := range d.relationships {
		if r.ChildID == childID {
			cr := *r
			cr.Sources = append([]model.Source(nil), d.sources[r.ID]...)
			out = append(out, cr)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].IsPrimary(), out[j].IsPrimary()
		if pi != pj {
			return pi
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *memData) childrenOf(parentID int64, limit int) ([]model.Relationship, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []model.Relationship
	for _, r := range d.relationships {
		if r.ParentID == parentID && r.IsPrimary() {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *memData) createRelationship(r *model.Relationship) error {
	for _, ex := range d.relationships {
		if ex.ChildID == r.ChildID && ex.ParentID == r.ParentID && ex.Role == r.Role {
			return fmt.Errorf("store: relationship exists for (child=%d, parent=%d, %s)", r.ChildID, r.ParentID, r.Role)
		}
	}
	d.relSeq++
	r.ID = d.relSeq
	r.CreatedAt = time.Now().UTC()
	cr := *r
	cr.Sources = nil
	d.relationships[r.ID] = &cr
	return nil
}

func (d *memData) updateRelationship(r *model.Relationship) error {
	if _, ok := d.relationships[r.ID]; !ok {
		return ErrNotFound
	}
	cr := *r
	cr.Sources = nil
	d.relationships[r.ID] = &cr
	return nil
}

func (d *memData) addSource(s *model.Source) error {
	d.srcSeq++
	s.ID = d.srcSeq
	if s.RetrievedAt.IsZero() {
		s.RetrievedAt = time.Now().UTC()
	}
	d.sources[s.RelationshipID] = append(d.sources[s.RelationshipID], *s)
	return nil
}

func (d *memData) sourcesFor(relID int64) ([]model.Source, error) {
	return append([]model.Source(nil), d.sources[relID]...), nil
}

func (d *memData) enqueue(item *model.QueueItem) error {
	d.queueSeq++
	item.ID = d.queueSeq
	if item.Status == "" {
		item.Status = model.StatusPending
	}
	item.CreatedAt = time.Now().UTC()
	cq := *item
	d.queue[item.ID] = &cq
	return nil
}

func (d *memData) openQueueItem(personID int64, dir model.Direction) (*model.QueueItem, error) {
	var best *model.QueueItem
	for _, q := range d.queue {
		if q.PersonID == personID && q.Direction == dir &&
			(q.Status == model.StatusPending || q.Status == model.StatusProcessing) {
			if best == nil || q.ID < best.ID {
				best = q
			}
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cq := *best
	return &cq, nil
}

func (d *memData) claimNext(staleAfter time.Duration) (*model.QueueItem, error) {
	now := time.Now().UTC()
	claimable := func(q *model.QueueItem) bool {
		if q.Status == model.StatusPending {
			return true
		}
		// Abandoned processing items become claimable again.
		if q.Status == model.StatusProcessing && staleAfter > 0 &&
			q.LastAttemptAt != nil && now.Sub(*q.LastAttemptAt) > staleAfter {
			return true
		}
		return false
	}
	var best *model.QueueItem
	for _, q := range d.queue {
		if !claimable(q) {
			continue
		}
		if best == nil || q.Priority > best.Priority ||
			(q.Priority == best.Priority && q.CreatedAt.Before(best.CreatedAt)) ||
			(q.Priority == best.Priority && q.CreatedAt.Equal(best.CreatedAt) && q.ID < best.ID) {
			best = q
		}
	}
	if best == nil {
		return nil, ErrEmpty
	}
	best.Status = model.StatusProcessing
	best.Attempts++
	t := now
	best.LastAttemptAt = &t
	cq := *best
	return &cq, nil
}

func (d *memData) updateQueueItem(item *model.QueueItem) error {
	if _, ok := d.queue[item.ID]; !ok {
		return ErrNotFound
	}
	cq := *item
	d.queue[item.ID] = &cq
	return nil
}

func (d *memData) queueCounts() (map[model.QueueStatus]int, error) {
	out := make(map[model.QueueStatus]int)
	for _, q := range d.queue {
		out[q.Status]++
	}
	return out, nil
}

func (d *memData) appendActivity(e *model.ActivityEntry) error {
	d.actSeq++
	e.ID = d.actSeq
	if e.LoggedAt.IsZero() {
		e.LoggedAt = time.Now().UTC()
	}
	d.activity = append(d.activity, *e)
	return nil
}

func (d *memData) recentActivity(limit int) ([]model.ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	n := len(d.activity)
	if limit > n {
		limit = n
	}
	out := make([]model.ActivityEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, d.activity[i])
	}
	return out, nil
}

func (d *memData) appendMergeLog(e *model.MergeLogEntry) error {
	d.mergeSeq++
	e.ID = d.mergeSeq
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	d.mergeLog = append(d.mergeLog, *e)
	return nil
}

func (d *memData) createCategory(c *model.Category) error {
	d.catSeq++
	c.ID = d.catSeq
	cc := *c
	d.categories[c.ID] = &cc
	return nil
}

func (d *memData) addPersonToCategory(personID, catID int64) error {
	if _, ok := d.persons[personID]; !ok {
		return ErrNotFound
	}
	if _, ok := d.categories[catID]; !ok {
		return ErrNotFound
	}
	for _, id := range d.catMembers[catID] {
		if id == personID {
			return nil
		}
	}
	d.catMembers[catID] = append(d.catMembers[catID], personID)
	return nil
}

func (d *memData) categoriesFor(personID int64) ([]model.Category, error) {
	var out []model.Category
	for catID, members := range d.catMembers {
		for _, id := range members {
			if id != personID {
				continue
			}
			if c, ok := d.categories[catID]; ok {
				cc := *c
				cc.PersonCount = len(members)
				out = append(out, cc)
			}
			break
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (d *memData) listCategories() ([]model.Category, error) {
	var out []model.Category
	for _, c := range d.categories {
		cc := *c
		cc.PersonCount = len(d.catMembers[c.ID])
		out = append(out, cc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (d *memData) personsInCategory(catID int64, limit, offset int) ([]model.Person, error) {
	if limit <= 0 {
		limit = 50
	}
	ids := d.catMembers[catID]
	var out []model.Person
	for _, id := range ids {
		if p, ok := d.persons[id]; ok && p.MergedInto == 0 {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		bi, bj := out[i].BirthYear, out[j].BirthYear
		if bi != nil && bj != nil && *bi != *bj {
			return *bi < *bj
		}
		if (bi != nil) != (bj != nil) {
			return bi != nil
		}
		return out[i].Name < out[j].Name
	})
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *memData) stats() (*model.Stats, error) {
	st := &model.Stats{}
	for _, p := range d.persons {
		if p.MergedInto != 0 {
			continue
		}
		if p.Kind != model.KindGenesis {
			st.TotalPersons++
		}
		if p.IsGenesis() && p.GenesisCode != model.UniversalRootCode {
			st.OpenGenesisBlocks++
		}
	}
	st.TotalRelationships = len(d.relationships)
	st.MergesCompleted = len(d.mergeLog)
	for _, q := range d.queue {
		switch q.Status {
		case model.StatusPending:
			st.QueuePending++
		case model.StatusFailed:
			st.QueueFailed++
		}
	}
	if st.MergesCompleted+st.OpenGenesisBlocks > 0 {
		st.CoveragePct = float64(st.MergesCompleted) / float64(st.MergesCompleted+st.OpenGenesisBlocks) * 100
	}
	return st, nil
}
