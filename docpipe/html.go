package docpipe

import (
	"bytes"
	"fmt"
	"regexp"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	regexp.MustCompile(`(?i)font-size\s*:\s*0[^1-9.]`),
}

// droppedElements carry no document text. The sanitizer unwraps unknown
// elements, so their content would otherwise leak into the output as text.
var droppedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Object:   true,
	atom.Svg:      true,
}

func hasHiddenStyle(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == "hidden" {
			return true
		}
		if a.Key == "style" {
			for _, pat := range hiddenStylePatterns {
				if pat.MatchString(a.Val + ";") {
					return true
				}
			}
		}
	}
	return false
}

// convertHTML passes an HTML document through: the body content is kept,
// minus scripts, styles and hidden elements.
func convertHTML(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	body := findBody(doc)
	if body == nil {
		return "", nil
	}
	pruneHidden(body)
	return renderChildren(body)
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func pruneHidden(n *html.Node) {
	var drop []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (droppedElements[c.DataAtom] || hasHiddenStyle(c)) {
			drop = append(drop, c)
			continue
		}
		pruneHidden(c)
	}
	for _, c := range drop {
		n.RemoveChild(c)
	}
}
