package docclean

import (
	"slices"
	"strings"

	"golang.org/x/net/html"
)

const indentUnit = "    "

var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// textEscaper escapes text content only as far as markup requires. Quotes
// stay literal; attribute values go through html.EscapeString instead.
var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// RenderNodes serializes nodes as indented HTML, one tag or text run per
// line. Text is trimmed; whitespace-only text that carries newlines becomes
// blank lines. <pre> content is written verbatim.
func RenderNodes(nodes []*html.Node) string {
	var sb strings.Builder
	for _, n := range nodes {
		renderNode(&sb, n, 0)
	}
	return sb.String()
}

func renderNode(sb *strings.Builder, n *html.Node, depth int) {
	pad := strings.Repeat(indentUnit, depth)
	switch n.Type {
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text == "" {
			sb.WriteString(strings.Repeat("\n", strings.Count(n.Data, "\n")))
			return
		}
		sb.WriteString(pad)
		sb.WriteString(textEscaper.Replace(text))
		sb.WriteByte('\n')

	case html.CommentNode:
		sb.WriteString(pad)
		sb.WriteString("<!--")
		sb.WriteString(n.Data)
		sb.WriteString("-->\n")

	case html.ElementNode:
		sb.WriteString(pad)
		writeStartTag(sb, n)
		if voidTags[n.Data] {
			sb.WriteByte('\n')
			return
		}
		if n.Data == "pre" {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					sb.WriteString(textEscaper.Replace(c.Data))
					continue
				}
				_ = html.Render(sb, c)
			}
			sb.WriteString("</pre>\n")
			return
		}
		sb.WriteByte('\n')
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderNode(sb, c, depth+1)
		}
		sb.WriteString(pad)
		sb.WriteString("</")
		sb.WriteString(n.Data)
		sb.WriteString(">\n")
	}
}

func writeStartTag(sb *strings.Builder, n *html.Node) {
	sb.WriteByte('<')
	sb.WriteString(n.Data)

	attrs := slices.Clone(n.Attr)
	slices.SortStableFunc(attrs, func(a, b html.Attribute) int {
		return strings.Compare(a.Key, b.Key)
	})
	for _, a := range attrs {
		sb.WriteByte(' ')
		if a.Namespace != "" {
			sb.WriteString(a.Namespace)
			sb.WriteByte(':')
		}
		sb.WriteString(a.Key)
		sb.WriteString(`="`)
		sb.WriteString(html.EscapeString(a.Val))
		sb.WriteByte('"')
	}
	if voidTags[n.Data] {
		sb.WriteString("/>")
		return
	}
	sb.WriteByte('>')
}
