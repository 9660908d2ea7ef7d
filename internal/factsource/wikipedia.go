package factsource

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/ashvattha/ashvattha/internal/model"
)

// confInfobox is the confidence of an infobox-derived fact. Infoboxes are
// hand-edited prose, below structured Wikidata statements.
const confInfobox = 65

// Wikipedia scrapes parentage rows out of a biography article's infobox.
// It backs up Wikidata for people whose articles carry family details the
// structured data lacks.
type Wikipedia struct {
	client  *Client
	baseURL string
}

// NewWikipedia creates a Wikipedia source over the shared client
func NewWikipedia(client *Client) *Wikipedia {
	return &Wikipedia{
		client:  client,
		baseURL: "https://en.wikipedia.org/wiki/",
	}
}

func (w *Wikipedia) Name() string { return "wikipedia" }

func (w *Wikipedia) Lookup(ctx context.Context, id Identity, dir model.Direction) ([]CandidateFact, error) {
	pageURL := w.baseURL + url.PathEscape(pageTitle(id.Name))

	body, err := w.client.Get(ctx, pageURL)
	if err != nil {
		if IsTransient(err) {
			return nil, err
		}
		// Missing article (404) is a non-result, not a failure
		return nil, nil
	}

	box, err := ExtractInfobox(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	if box == nil {
		return nil, nil
	}

	title := strings.ReplaceAll(pageTitle(id.Name), "_", " ")
	var facts []CandidateFact
	add := func(rel Relation, names []string) {
		for _, name := range names {
			facts = append(facts, CandidateFact{
				Relation:    rel,
				Name:        name,
				Confidence:  confInfobox,
				SourceURL:   pageURL,
				SourceTitle: title,
				SourceKind:  model.SourceWikipedia,
				Authority:   model.TierSecondary,
			})
		}
	}
	if dir.Ancestors() {
		add(RelFather, box.Fathers)
		add(RelMother, box.Mothers)
	}
	if dir.Descendants() {
		add(RelChild, box.Children)
	}
	return facts, nil
}

// pageTitle maps a person name to the article title convention
func pageTitle(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

// Infobox holds the family rows extracted from a biography infobox
type Infobox struct {
	Fathers  []string
	Mothers  []string
	Children []string
}

// ExtractInfobox parses an article and pulls the Father, Mother, Parents
// and Issue/Children rows from its first infobox table. Returns nil when
// the page has no infobox.
func ExtractInfobox(htmlContent string) (*Infobox, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}

	table := findInfoboxTable(doc)
	if table == nil {
		return nil, nil
	}

	box := &Infobox{}
	for _, row := range childElements(table, "tr") {
		header := firstChildElement(row, "th")
		cell := firstChildElement(row, "td")
		if header == nil || cell == nil {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(nodeText(header)))
		values := cellValues(cell)
		switch label {
		case "father":
			box.Fathers = append(box.Fathers, values...)
		case "mother":
			box.Mothers = append(box.Mothers, values...)
		case "parents", "parent(s)":
			// A bare Parents row does not say which parent is which;
			// the resolver disambiguates by gender later, so the row is
			// split into father candidates only when annotated.
			for _, v := range values {
				lower := strings.ToLower(v)
				name := strings.TrimSpace(trimParenthetical(v))
				switch {
				case strings.Contains(lower, "(father)"):
					box.Fathers = append(box.Fathers, name)
				case strings.Contains(lower, "(mother)"):
					box.Mothers = append(box.Mothers, name)
				}
			}
		case "issue", "children", "issue detail", "children detail":
			box.Children = append(box.Children, values...)
		}
	}
	return box, nil
}

// findInfoboxTable locates the first table whose class contains "infobox"
func findInfoboxTable(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "table" {
		for _, attr := range n.Attr {
			if attr.Key == "class" && strings.Contains(attr.Val, "infobox") {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findInfoboxTable(c); found != nil {
			return found
		}
	}
	return nil
}

// cellValues splits an infobox cell into person names. Linked names come
// from anchors; plain-text cells are split on list breaks.
func cellValues(cell *html.Node) []string {
	var values []string
	seen := make(map[string]bool)
	add := func(raw string) {
		name := strings.TrimSpace(trimFootnotes(raw))
		if name == "" || seen[strings.ToLower(name)] {
			return
		}
		seen[strings.ToLower(name)] = true
		values = append(values, name)
	}

	anchors := childElements(cell, "a")
	for _, a := range anchors {
		text := nodeText(a)
		// Citation anchors like [1] and "edit" links are not names
		if strings.HasPrefix(text, "[") || len(text) < 2 {
			continue
		}
		add(text)
	}
	if len(values) > 0 {
		return values
	}

	for _, part := range splitList(nodeText(cell)) {
		add(part)
	}
	return values
}

// splitList breaks a plain-text cell on newlines, bullets and semicolons
func splitList(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == ';' || r == '•'
	})
}

// trimFootnotes strips trailing citation markers like "[1]"
func trimFootnotes(s string) string {
	if i := strings.IndexByte(s, '['); i >= 0 {
		return s[:i]
	}
	return s
}

// trimParenthetical strips a trailing "(...)" qualifier
func trimParenthetical(s string) string {
	if i := strings.IndexByte(s, '('); i >= 0 {
		return s[:i]
	}
	return s
}

// childElements collects all descendant elements with the given tag
func childElements(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return out
}

// firstChildElement returns the first descendant element with the tag
func firstChildElement(n *html.Node, tag string) *html.Node {
	if elems := childElements(n, tag); len(elems) > 0 {
		return elems[0]
	}
	return nil
}

// nodeText concatenates the visible text under a node
func nodeText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "sup":
				return
			case "br", "li":
				buf.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}
