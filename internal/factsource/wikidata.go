package factsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ashvattha/ashvattha/internal/model"
)

// Wikidata property and item ids used by the lineage lookup.
const (
	propFather = "P22"
	propMother = "P25"
	propChild  = "P40"
	propGender = "P21"
	propBirth  = "P569"
	propDeath  = "P570"

	itemMale   = "Q6581097"
	itemFemale = "Q6581072"
)

// Confidence assigned per Wikidata statement rank. Preferred statements
// are community-curated best values; normal ones are plain assertions.
const (
	confPreferred = 92
	confNormal    = 80
)

// Wikidata resolves parentage from the Wikidata claims API. It is the
// highest-authority automated source: structured statements with
// stable QIDs for deduplication.
type Wikidata struct {
	client  *Client
	apiBase string
}

// NewWikidata creates a Wikidata source over the shared client
func NewWikidata(client *Client) *Wikidata {
	return &Wikidata{
		client:  client,
		apiBase: "https://www.wikidata.org/w/api.php",
	}
}

func (w *Wikidata) Name() string { return "wikidata" }

func (w *Wikidata) Lookup(ctx context.Context, id Identity, dir model.Direction) ([]CandidateFact, error) {
	qid := id.ExternalKey
	if qid == "" {
		found, err := w.search(ctx, id.Name)
		if err != nil {
			return nil, err
		}
		if found == "" {
			return nil, nil // unknown to Wikidata; not an error
		}
		qid = found
	}

	subject, err := w.entities(ctx, []string{qid})
	if err != nil {
		return nil, err
	}
	ent, ok := subject[qid]
	if !ok {
		return nil, nil
	}

	wanted := relatedQIDs(ent, dir)
	if len(wanted) == 0 {
		return nil, nil
	}

	related, err := w.entities(ctx, qidList(wanted))
	if err != nil {
		return nil, err
	}

	return entityFacts(ent, related, dir), nil
}

// search resolves a name to a QID via wbsearchentities. Returns "" when
// Wikidata has no matching item.
func (w *Wikidata) search(ctx context.Context, name string) (string, error) {
	q := url.Values{
		"action":   {"wbsearchentities"},
		"search":   {name},
		"language": {"en"},
		"type":     {"item"},
		"limit":    {"5"},
		"format":   {"json"},
	}
	var resp struct {
		Search []struct {
			ID string `json:"id"`
		} `json:"search"`
	}
	if err := w.client.GetJSON(ctx, w.apiBase+"?"+q.Encode(), &resp); err != nil {
		return "", fmt.Errorf("wikidata search %q: %w", name, err)
	}
	if len(resp.Search) == 0 {
		return "", nil
	}
	return resp.Search[0].ID, nil
}

// entities fetches claims and labels for up to 50 QIDs in one call
func (w *Wikidata) entities(ctx context.Context, qids []string) (map[string]*wbEntity, error) {
	out := make(map[string]*wbEntity)
	for len(qids) > 0 {
		batch := qids
		if len(batch) > 50 {
			batch = batch[:50]
		}
		qids = qids[len(batch):]

		q := url.Values{
			"action":    {"wbgetentities"},
			"ids":       {strings.Join(batch, "|")},
			"props":     {"claims|labels|aliases"},
			"languages": {"en"},
			"format":    {"json"},
		}
		var resp struct {
			Entities map[string]*wbEntity `json:"entities"`
		}
		if err := w.client.GetJSON(ctx, w.apiBase+"?"+q.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("wikidata entities: %w", err)
		}
		for id, e := range resp.Entities {
			out[id] = e
		}
	}
	return out, nil
}

// Wire format subset of a Wikidata entity.

type wbEntity struct {
	ID     string               `json:"id"`
	Labels map[string]wbLabel   `json:"labels"`
	Claims map[string][]wbClaim `json:"claims"`
}

type wbLabel struct {
	Value string `json:"value"`
}

type wbClaim struct {
	Rank     string `json:"rank"`
	MainSnak struct {
		DataValue struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		} `json:"datavalue"`
	} `json:"mainsnak"`
}

func (e *wbEntity) label() string {
	if l, ok := e.Labels["en"]; ok {
		return l.Value
	}
	return e.ID
}

// itemRefs returns the QIDs of a property's non-deprecated values with
// their per-rank confidence.
func (e *wbEntity) itemRefs(prop string) []rankedRef {
	var out []rankedRef
	for _, c := range e.Claims[prop] {
		if c.Rank == "deprecated" {
			continue
		}
		var v struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(c.MainSnak.DataValue.Value, &v); err != nil || v.ID == "" {
			continue
		}
		conf := float64(confNormal)
		if c.Rank == "preferred" {
			conf = confPreferred
		}
		out = append(out, rankedRef{QID: v.ID, Confidence: conf})
	}
	return out
}

type rankedRef struct {
	QID        string
	Confidence float64
}

// year extracts the year of a time-valued property, if present
func (e *wbEntity) year(prop string) *int {
	for _, c := range e.Claims[prop] {
		if c.Rank == "deprecated" {
			continue
		}
		var v struct {
			Time string `json:"time"`
		}
		if err := json.Unmarshal(c.MainSnak.DataValue.Value, &v); err != nil {
			continue
		}
		if y, ok := parseWikidataYear(v.Time); ok {
			return &y
		}
	}
	return nil
}

func (e *wbEntity) gender() string {
	for _, ref := range e.itemRefs(propGender) {
		switch ref.QID {
		case itemMale:
			return "male"
		case itemFemale:
			return "female"
		}
	}
	return ""
}

// parseWikidataYear parses the year out of Wikidata's "+1952-03-11T00:00:00Z"
// / "-0500-00-00T00:00:00Z" time format. Negative years are BCE.
func parseWikidataYear(t string) (int, bool) {
	if len(t) < 5 {
		return 0, false
	}
	sign := 1
	switch t[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, false
	}
	end := strings.IndexByte(t[1:], '-')
	if end < 0 {
		return 0, false
	}
	y, err := strconv.Atoi(t[1 : 1+end])
	if err != nil || y == 0 {
		return 0, false
	}
	return sign * y, true
}

func relatedQIDs(ent *wbEntity, dir model.Direction) map[string]bool {
	wanted := make(map[string]bool)
	if dir.Ancestors() {
		for _, r := range ent.itemRefs(propFather) {
			wanted[r.QID] = true
		}
		for _, r := range ent.itemRefs(propMother) {
			wanted[r.QID] = true
		}
	}
	if dir.Descendants() {
		for _, r := range ent.itemRefs(propChild) {
			wanted[r.QID] = true
		}
	}
	return wanted
}

func qidList(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for qid := range set {
		out = append(out, qid)
	}
	return out
}

// entityFacts turns a subject entity plus its fetched relatives into
// candidate facts. Kept free of I/O so fixtures exercise it directly.
func entityFacts(ent *wbEntity, related map[string]*wbEntity, dir model.Direction) []CandidateFact {
	var facts []CandidateFact
	add := func(rel Relation, refs []rankedRef) {
		for _, ref := range refs {
			re, ok := related[ref.QID]
			if !ok {
				continue
			}
			facts = append(facts, CandidateFact{
				Relation:    rel,
				Name:        re.label(),
				ExternalKey: ref.QID,
				Gender:      re.gender(),
				BirthYear:   re.year(propBirth),
				DeathYear:   re.year(propDeath),
				Confidence:  ref.Confidence,
				SourceURL:   "https://www.wikidata.org/wiki/" + ent.ID,
				SourceTitle: ent.label(),
				SourceKind:  model.SourceWikidata,
				Authority:   model.TierPrimary,
			})
		}
	}
	if dir.Ancestors() {
		add(RelFather, ent.itemRefs(propFather))
		add(RelMother, ent.itemRefs(propMother))
	}
	if dir.Descendants() {
		add(RelChild, ent.itemRefs(propChild))
	}
	return facts
}
