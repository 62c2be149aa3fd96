package docpipe

import (
	"bytes"
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// builder assembles converter output as an *html.Node tree. stack[0] is the
// synthetic root; text and elements go to the top of the stack.
type builder struct {
	root  *html.Node
	stack []*html.Node
}

func newBuilder() *builder {
	root := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	return &builder{root: root, stack: []*html.Node{root}}
}

func element(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag)), Attr: attrs}
}

func (b *builder) cur() *html.Node { return b.stack[len(b.stack)-1] }

// open appends a new element to the current node and makes it current.
func (b *builder) open(tag string, attrs ...html.Attribute) *html.Node {
	n := element(tag, attrs...)
	b.cur().AppendChild(n)
	b.stack = append(b.stack, n)
	return n
}

// push makes n current without attaching it anywhere.
func (b *builder) push(n *html.Node) { b.stack = append(b.stack, n) }

// close pops the current node. The root is never popped.
func (b *builder) close() *html.Node {
	if len(b.stack) == 1 {
		return b.root
	}
	n := b.cur()
	b.stack = b.stack[:len(b.stack)-1]
	return n
}

// text appends s to the current node, merging with a trailing text sibling.
func (b *builder) text(s string) {
	if s == "" {
		return
	}
	appendText(b.cur(), s)
}

func appendText(parent *html.Node, s string) {
	if last := parent.LastChild; last != nil && last.Type == html.TextNode {
		last.Data += s
		return
	}
	parent.AppendChild(&html.Node{Type: html.TextNode, Data: s})
}

// render serializes the root's children compactly, with no formatting
// whitespace between blocks.
func (b *builder) render() (string, error) {
	return renderChildren(b.root)
}

func renderChildren(parent *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("render: %w", err)
		}
	}
	return buf.String(), nil
}
