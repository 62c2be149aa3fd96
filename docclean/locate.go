package docclean

import (
	"strings"

	"golang.org/x/net/html"
)

// TextContent returns the concatenated text of n and all its descendants.
func TextContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				sb.WriteString(c.Data)
			case html.ElementNode:
				walk(c)
			}
		}
	}
	walk(n)
	return sb.String()
}

func containsFold(n *html.Node, lowerTarget string) bool {
	return strings.Contains(strings.ToLower(TextContent(n)), lowerTarget)
}

// FindBlock returns the block-level element enclosing the first node of
// nodes whose text contains marker, ignoring case. The first match in the
// given order wins, even when a deeper node would match too. If no block
// ancestor sits below the document root, the matched node itself is
// returned. FindBlock returns nil when nothing matches.
func FindBlock(nodes []*html.Node, marker string) *html.Node {
	target := strings.ToLower(strings.TrimSpace(marker))
	if target == "" {
		return nil
	}
	for _, n := range nodes {
		if containsFold(n, target) {
			return enclosingBlock(n)
		}
	}
	return nil
}

func enclosingBlock(n *html.Node) *html.Node {
	// The root has no parent and is never a candidate.
	for b := n; b != nil && b.Parent != nil; b = b.Parent {
		if b.Type == html.ElementNode && blockTags[b.Data] {
			return b
		}
	}
	return n
}
