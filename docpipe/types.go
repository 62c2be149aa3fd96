package docpipe

import "github.com/hazyhaar/lexdoc/docclean"

// Format identifies an input document type.
type Format string

const (
	FormatDocx Format = "docx"
	FormatODT  Format = "odt"
	FormatHTML Format = "html"
)

// Result is the outcome of splitting one document.
type Result struct {
	Format   Format            `json:"format"`
	Bytes    int               `json:"bytes"`
	Sections docclean.Sections `json:"sections"`
	// Missing lists the section keys whose boundary text was not found.
	Missing []string `json:"missing,omitempty"`
}

// Found returns the number of non-empty sections.
func (r *Result) Found() int {
	n := 0
	for _, k := range docclean.Keys() {
		if r.Sections.Get(k) != "" {
			n++
		}
	}
	return n
}

// Lengths maps each section key to the length of its rendered HTML.
func (r *Result) Lengths() map[string]int {
	out := make(map[string]int, len(docclean.Keys()))
	for _, k := range docclean.Keys() {
		out[k] = len(r.Sections.Get(k))
	}
	return out
}
