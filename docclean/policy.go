package docclean

import (
	"maps"
	"slices"
)

// Section keys, in output order.
const (
	Jurisdiction = "jurisdiction"
	Thresholds   = "thresholds"
	Procedures   = "procedures"
	Standard     = "standard"
)

const (
	// ListItemStyle is forced onto every surviving <li>.
	ListItemStyle = "font-size: 20px"

	// EmphasisSize is the size directive of the first-line <font> wrapper.
	EmphasisSize = "+2"

	// blankLines is the number of "\n" text nodes inserted before each
	// section boundary.
	blankLines = 2
)

// Marker is a literal phrase whose first occurrence opens a section.
type Marker struct {
	Text string
	Key  string
}

// boundaryMarkers are the section openers in priority order. Jurisdiction
// has no marker: it always starts at the top of the document.
var boundaryMarkers = []Marker{
	{Text: "Foreign investors:", Key: Thresholds},
	{Text: "Authority in Charge", Key: Procedures},
	{Text: "Standard of Review", Key: Standard},
}

var allowedTags = map[string]bool{
	"br": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true,
	"strong": true, "b": true, "em": true, "i": true, "u": true,
	"a":          true,
	"blockquote": true,
	"code":       true, "pre": true,
	"font": true,
}

var keepAttrs = map[string]map[string]bool{
	"a":    {"href": true},
	"font": {"size": true},
}

// blockTags anchor marker-based insertions.
var blockTags = map[string]bool{
	"li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true,
	"pre":        true,
}

// paragraphTags are collapsed to a single <br> when empty.
var paragraphTags = map[string]bool{"p": true}

// Keys returns the section keys in output order.
func Keys() []string {
	return []string{Jurisdiction, Thresholds, Procedures, Standard}
}

// Markers returns the section markers in priority order.
func Markers() []Marker {
	return slices.Clone(boundaryMarkers)
}

// AllowedTag reports whether tag survives cleaning.
func AllowedTag(tag string) bool { return allowedTags[tag] }

// AllowedTags returns the tag allow-list, sorted.
func AllowedTags() []string {
	return slices.Sorted(maps.Keys(allowedTags))
}

// AllowedAttrs returns the attributes kept on tag, sorted. Tags without an
// entry keep nothing.
func AllowedAttrs(tag string) []string {
	return slices.Sorted(maps.Keys(keepAttrs[tag]))
}
