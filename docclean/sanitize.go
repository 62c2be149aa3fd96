package docclean

import (
	"strings"

	"golang.org/x/net/html"
)

// Clean rewrites doc in place into editor markup. The steps run in a fixed
// order:
//
//  1. comments are removed;
//  2. newlines inside text become <br> elements;
//  3. empty paragraphs become a single <br>;
//  4. tags outside the allow-list are unwrapped, attributes are filtered;
//  5. every <li> gets the fixed font size;
//  6. the first line of the first non-empty element is wrapped in <font size="+2">;
//  7. two blank lines are inserted before each section marker block.
//
// Clean is not idempotent: a second pass wraps the first line again.
func Clean(doc *Document) {
	root := doc.root
	removeComments(root)
	normalizeNewlines(root)
	collapseEmptyParagraphs(root)
	filterElements(root)
	styleListItems(root)
	emphasizeFirstLine(root)
	insertSectionBreaks(root)
}

// CleanHTML parses raw, cleans it and returns the rendered fragment.
func CleanHTML(raw string) (string, error) {
	doc, err := ParseString(raw)
	if err != nil {
		return "", err
	}
	Clean(doc)
	return doc.Render(), nil
}

func removeComments(root *html.Node) {
	comments := descendants(root, func(n *html.Node) bool { return n.Type == html.CommentNode })
	for _, c := range comments {
		c.Parent.RemoveChild(c)
	}
}

func normalizeNewlines(root *html.Node) {
	texts := descendants(root, func(n *html.Node) bool {
		return n.Type == html.TextNode && strings.Contains(n.Data, "\n")
	})
	for _, t := range texts {
		parent := t.Parent
		parts := strings.Split(t.Data, "\n")
		for i, part := range parts {
			if part != "" {
				parent.InsertBefore(newText(part), t)
			}
			if i < len(parts)-1 {
				parent.InsertBefore(newElement("br"), t)
			}
		}
		parent.RemoveChild(t)
	}
}

func collapseEmptyParagraphs(root *html.Node) {
	paras := descendants(root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && paragraphTags[n.Data]
	})
	for _, p := range paras {
		if strings.TrimSpace(TextContent(p)) != "" || hasElementChild(p) {
			continue
		}
		p.Parent.InsertBefore(newElement("br"), p)
		p.Parent.RemoveChild(p)
	}
}

func hasElementChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return true
		}
	}
	return false
}

// filterElements works on a snapshot taken before any unwrap, so children
// promoted into a grandparent are still visited.
func filterElements(root *html.Node) {
	for _, el := range descendants(root, isElement) {
		if !allowedTags[el.Data] {
			unwrap(el)
			continue
		}
		el.Attr = filterAttrs(el.Data, el.Attr)
	}
}

func filterAttrs(tag string, attrs []html.Attribute) []html.Attribute {
	keep := keepAttrs[tag]
	if len(keep) == 0 {
		return nil
	}
	var out []html.Attribute
	for _, a := range attrs {
		if a.Namespace == "" && keep[a.Key] {
			out = append(out, a)
		}
	}
	return out
}

// unwrap replaces n with its children, in order.
func unwrap(n *html.Node) {
	parent := n.Parent
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
		parent.InsertBefore(c, n)
	}
	parent.RemoveChild(n)
}

func styleListItems(root *html.Node) {
	items := descendants(root, func(n *html.Node) bool { return isTag(n, "li") })
	for _, li := range items {
		setAttr(li, "style", ListItemStyle)
	}
}

type emphasisState int

const (
	searching emphasisState = iota
	done
)

// emphasizeFirstLine wraps the first child of the first element carrying
// visible text. Whatever that child is (a <br>, a text run or an element),
// it alone moves into the wrapper; nothing else in the document changes.
func emphasizeFirstLine(root *html.Node) {
	target := firstTextElement(root)
	if target == nil {
		return
	}
	state := searching
	for _, c := range childNodes(target) {
		if state == done {
			break
		}
		if !isContent(c) {
			continue
		}
		wrapEmphasis(c)
		state = done
	}
}

func firstTextElement(root *html.Node) *html.Node {
	for _, el := range descendants(root, isElement) {
		if strings.TrimSpace(TextContent(el)) != "" {
			return el
		}
	}
	return nil
}

func wrapEmphasis(n *html.Node) {
	font := newElement("font", html.Attribute{Key: "size", Val: EmphasisSize})
	parent := n.Parent
	parent.InsertBefore(font, n)
	parent.RemoveChild(n)
	font.AppendChild(n)
}

func insertSectionBreaks(root *html.Node) {
	for _, m := range boundaryMarkers {
		block := FindBlock(descendants(root, isContent), m.Text)
		if block == nil {
			continue
		}
		for range blankLines {
			block.Parent.InsertBefore(newText("\n"), block)
		}
	}
}
