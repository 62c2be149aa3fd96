package docclean

import (
	"github.com/microcosm-cc/bluemonday"
)

// LinkGuard re-checks rendered sections against the same allow-lists with
// bluemonday, and additionally drops hrefs that are not http, https, mailto
// or relative. It is safe for concurrent use.
type LinkGuard struct {
	policy *bluemonday.Policy
}

// NewLinkGuard builds the guard policy from the package allow-lists.
func NewLinkGuard() *LinkGuard {
	p := bluemonday.NewPolicy()
	p.AllowElements(AllowedTags()...)
	for tag := range keepAttrs {
		p.AllowAttrs(AllowedAttrs(tag)...).OnElements(tag)
	}
	p.AllowAttrs("style").OnElements("li")

	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes("http", "https", "mailto")

	return &LinkGuard{policy: p}
}

// Apply filters one rendered fragment.
func (g *LinkGuard) Apply(fragment string) string {
	if fragment == "" {
		return ""
	}
	return g.policy.Sanitize(fragment)
}

// ApplySections filters every section.
func (g *LinkGuard) ApplySections(s Sections) Sections {
	out, _ := s.Map(func(_, v string) (string, error) { return g.Apply(v), nil })
	return out
}
