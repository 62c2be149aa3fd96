package docclean

import (
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// Sections holds the rendered HTML of each section. Field order is the
// fixed key order, which also fixes the JSON key order.
type Sections struct {
	Jurisdiction string `json:"jurisdiction"`
	Thresholds   string `json:"thresholds"`
	Procedures   string `json:"procedures"`
	Standard     string `json:"standard"`
}

// Get returns the section stored under key, or "" for an unknown key.
func (s Sections) Get(key string) string {
	switch key {
	case Jurisdiction:
		return s.Jurisdiction
	case Thresholds:
		return s.Thresholds
	case Procedures:
		return s.Procedures
	case Standard:
		return s.Standard
	}
	return ""
}

func (s *Sections) set(key, v string) {
	switch key {
	case Jurisdiction:
		s.Jurisdiction = v
	case Thresholds:
		s.Thresholds = v
	case Procedures:
		s.Procedures = v
	case Standard:
		s.Standard = v
	}
}

// Map applies fn to every section and returns the result.
func (s Sections) Map(fn func(key, v string) (string, error)) (Sections, error) {
	var out Sections
	for _, k := range Keys() {
		v, err := fn(k, s.Get(k))
		if err != nil {
			return Sections{}, err
		}
		out.set(k, v)
	}
	return out, nil
}

// Range is a half-open range of top-level node indexes owned by a section.
type Range struct {
	Key   string
	Start int
	End   int
}

// Len returns the number of nodes in r.
func (r Range) Len() int { return r.End - r.Start }

// Partition assigns contiguous ranges of nodes to section keys. Each marker
// opens its section at the first node whose text contains it; markers that
// never appear get no range. The returned ranges are ordered, never
// overlap and cover every node exactly once.
func Partition(nodes []*html.Node) []Range {
	type boundary struct {
		index int
		key   string
	}
	var found []boundary
	for _, m := range boundaryMarkers {
		target := strings.ToLower(m.Text)
		for i, n := range nodes {
			if containsFold(n, target) {
				found = append(found, boundary{index: i, key: m.Key})
				break
			}
		}
	}
	slices.SortStableFunc(found, func(a, b boundary) int { return a.index - b.index })

	ranges := make([]Range, 0, len(found)+1)
	start, key := 0, Jurisdiction
	for _, b := range found {
		ranges = append(ranges, Range{Key: key, Start: start, End: b.index})
		start, key = b.index, b.key
	}
	return append(ranges, Range{Key: key, Start: start, End: len(nodes)})
}

// Missing returns the keys whose marker does not appear among nodes.
func Missing(nodes []*html.Node) []string {
	seen := make(map[string]bool)
	for _, r := range Partition(nodes) {
		seen[r.Key] = true
	}
	var out []string
	for _, m := range boundaryMarkers {
		if !seen[m.Key] {
			out = append(out, m.Key)
		}
	}
	return out
}

// Split partitions the top-level children of a cleaned document and
// renders each section from a deep copy, so sections never share nodes
// with doc or with each other.
func Split(doc *Document) Sections {
	nodes := childNodes(doc.root)
	var out Sections
	for _, r := range Partition(nodes) {
		if r.Len() == 0 {
			continue
		}
		sub := newRoot()
		for _, n := range nodes[r.Start:r.End] {
			sub.AppendChild(cloneTree(n))
		}
		out.set(r.Key, RenderNodes(childNodes(sub)))
	}
	return out
}

// SplitHTML parses an already cleaned fragment and splits it.
func SplitHTML(cleaned string) (Sections, error) {
	doc, err := ParseString(cleaned)
	if err != nil {
		return Sections{}, err
	}
	return Split(doc), nil
}

// Process runs the whole pipeline on raw converter output: parse, clean,
// then split the cleaned tree without re-parsing it.
func Process(raw string) (Sections, error) {
	doc, err := ParseString(raw)
	if err != nil {
		return Sections{}, err
	}
	Clean(doc)
	return Split(doc), nil
}
