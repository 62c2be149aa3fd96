// Package docclean turns the HTML produced from a converted word-processing
// document into the restricted markup used by the legal editor, and splits
// the result into its four fixed sections.
//
// The pipeline works on a golang.org/x/net/html tree:
//
//	doc, err := docclean.ParseString(raw)
//	docclean.Clean(doc)
//	sections := docclean.Split(doc)
//	fmt.Println(sections.Thresholds)
//
// A Document is built per call and never shared, so every function here is
// safe to call from concurrent requests.
package docclean

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed HTML fragment hanging off a synthetic <body> root.
// The root itself is never rendered.
type Document struct {
	root *html.Node
}

func newRoot() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
}

// Parse reads an HTML fragment and parses it in a <body> context.
func Parse(r io.Reader) (*Document, error) {
	nodes, err := html.ParseFragment(r, newRoot())
	if err != nil {
		return nil, fmt.Errorf("docclean: parse: %w", err)
	}
	root := newRoot()
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return &Document{root: root}, nil
}

// ParseString is Parse for an in-memory fragment.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the synthetic body element holding the fragment.
func (d *Document) Root() *html.Node { return d.root }

// Children returns the top-level nodes of the fragment in order.
func (d *Document) Children() []*html.Node { return childNodes(d.root) }

// Render serializes the fragment with canonical indentation.
func (d *Document) Render() string { return RenderNodes(childNodes(d.root)) }

func childNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// descendants returns the nodes under root in document order (root
// excluded) for which keep reports true. The slice is a snapshot: callers
// may restructure the tree while iterating it.
func descendants(root *html.Node, keep func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if keep(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

func isElement(n *html.Node) bool { return n.Type == html.ElementNode }

func isContent(n *html.Node) bool {
	return n.Type == html.ElementNode || n.Type == html.TextNode
}

func isTag(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

func newElement(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     attrs,
	}
}

func newText(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key && n.Attr[i].Namespace == "" {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// cloneTree deep-copies n and its subtree. The copy has no parent.
func cloneTree(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = append([]html.Attribute(nil), n.Attr...)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(cloneTree(child))
	}
	return c
}
