package docclean

import (
	"slices"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	doc, err := ParseString(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func cleaned(t *testing.T, s string) *Document {
	t.Helper()
	doc := mustParse(t, s)
	Clean(doc)
	return doc
}

func countTag(root *html.Node, tag string) int {
	return len(descendants(root, func(n *html.Node) bool { return isTag(n, tag) }))
}

func TestClean_RemovesComments(t *testing.T) {
	doc := cleaned(t, `<!-- hidden --><h2>Heading<!-- inner --></h2><ul><li>a<!--x--></li></ul>`)

	if n := len(descendants(doc.Root(), func(n *html.Node) bool { return n.Type == html.CommentNode })); n != 0 {
		t.Fatalf("expected no comment nodes, got %d", n)
	}
	out := doc.Render()
	if strings.Contains(out, "<!--") || strings.Contains(out, "hidden") || strings.Contains(out, "inner") {
		t.Fatalf("comment survived:\n%s", out)
	}
}

func TestClean_NewlineBecomesBreak(t *testing.T) {
	doc := cleaned(t, "<p>Line1\nLine2</p>")

	kids := doc.Children()
	if len(kids) != 3 {
		t.Fatalf("expected 3 top-level nodes, got %d:\n%s", len(kids), doc.Render())
	}
	if kids[0].Type != html.TextNode || kids[0].Data != "Line1" {
		t.Errorf("first node = %q, want text Line1", kids[0].Data)
	}
	if !isTag(kids[1], "br") {
		t.Errorf("second node = %q, want <br>", kids[1].Data)
	}
	if kids[2].Type != html.TextNode || kids[2].Data != "Line2" {
		t.Errorf("third node = %q, want text Line2", kids[2].Data)
	}
	for _, n := range descendants(doc.Root(), func(n *html.Node) bool { return n.Type == html.TextNode }) {
		if strings.Contains(n.Data, "\n") && strings.TrimSpace(n.Data) != "" {
			t.Errorf("literal newline left in %q", n.Data)
		}
	}
}

func TestNormalizeNewlines_Boundaries(t *testing.T) {
	tests := []struct {
		in   string
		want []string // "br" for a break, otherwise text
	}{
		{"a\nb", []string{"a", "br", "b"}},
		{"\na", []string{"br", "a"}},
		{"a\n", []string{"a", "br"}},
		{"a\n\nb", []string{"a", "br", "br", "b"}},
		{"\n", []string{"br"}},
	}
	for _, tt := range tests {
		root := newRoot()
		root.AppendChild(newText(tt.in))
		normalizeNewlines(root)

		var got []string
		for _, c := range childNodes(root) {
			if isTag(c, "br") {
				got = append(got, "br")
			} else {
				got = append(got, c.Data)
			}
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("normalizeNewlines(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClean_EmptyParagraphBecomesOneBreak(t *testing.T) {
	doc := cleaned(t, `<p>   </p><h1>Title</h1>`)

	kids := doc.Children()
	if len(kids) != 2 {
		t.Fatalf("expected 2 top-level nodes, got %d:\n%s", len(kids), doc.Render())
	}
	if !isTag(kids[0], "br") {
		t.Fatalf("empty paragraph: got %q, want <br>", kids[0].Data)
	}
	if kids[0].FirstChild != nil {
		t.Fatal("replacement <br> must be empty")
	}
	if n := countTag(doc.Root(), "br"); n != 1 {
		t.Fatalf("expected exactly 1 <br>, got %d", n)
	}
}

func TestClean_ParagraphWithElementIsNotCollapsed(t *testing.T) {
	// WHAT: a paragraph holding only an element is not "empty".
	// WHY: collapsing it would drop the element along with the paragraph.
	doc := cleaned(t, `<h1>T</h1><p><strong> </strong></p>`)
	if countTag(doc.Root(), "strong") != 1 {
		t.Fatalf("strong lost:\n%s", doc.Render())
	}
}

func TestClean_AllowListInvariants(t *testing.T) {
	inputs := []string{
		`<div class="x"><p style="a">Hello <span>world</span></p></div>`,
		`<table><tr><td>cell <b>bold</b></td></tr></table>`,
		`<a href="https://example.com" onclick="x()" title="t">link</a>`,
		`<font size="3" color="red" face="Arial">f</font><img src="x.png"><hr>`,
		`<ol start="3"><li class="c" id="i">one</li><li>two</li></ol>`,
		`<section><article><h3 id="h">Head</h3><blockquote cite="u">q</blockquote></article></section>`,
		`<pre class="p"><code data-x="1">x := 1</code></pre><script>alert(1)</script>`,
		`<o:p></o:p><custom-tag x="1">inner</custom-tag>`,
	}
	for _, in := range inputs {
		doc := cleaned(t, in)
		for _, el := range descendants(doc.Root(), isElement) {
			if !AllowedTag(el.Data) {
				t.Errorf("%s: disallowed tag <%s> survived", in, el.Data)
			}
			allowed := AllowedAttrs(el.Data)
			if el.Data == "li" {
				allowed = append(allowed, "style")
			}
			for _, a := range el.Attr {
				if !slices.Contains(allowed, a.Key) {
					t.Errorf("%s: attribute %s kept on <%s>", in, a.Key, el.Data)
				}
			}
		}
	}
}

func TestClean_UnwrapKeepsOrder(t *testing.T) {
	doc := cleaned(t, `<h1>T</h1><div><span>a</span><p>b<span>c</span></p>d</div>`)

	var texts []string
	for _, n := range doc.Children()[1:] {
		texts = append(texts, TextContent(n))
	}
	if got := strings.Join(texts, ""); got != "abcd" {
		t.Fatalf("unwrapped text order = %q, want abcd", got)
	}
	for _, n := range doc.Children()[1:] {
		if n.Type != html.TextNode {
			t.Errorf("expected only text after unwrapping, got <%s>", n.Data)
		}
	}
}

func TestClean_NestedDisallowedAreAllVisited(t *testing.T) {
	// WHAT: disallowed elements exposed by unwrapping their parent are also unwrapped.
	doc := cleaned(t, `<div><div><div><span>deep</span></div></div></div>`)
	if n := len(descendants(doc.Root(), isElement)); n != 0 {
		t.Fatalf("expected no elements left, got %d:\n%s", n, doc.Render())
	}
}

func TestClean_ListItemStyleOverwritten(t *testing.T) {
	doc := cleaned(t, `<ul><li style="color:red">one</li><li>two</li></ul>`)

	items := descendants(doc.Root(), func(n *html.Node) bool { return isTag(n, "li") })
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	for _, li := range items {
		if len(li.Attr) != 1 || li.Attr[0].Key != "style" || li.Attr[0].Val != ListItemStyle {
			t.Errorf("li attrs = %v, want style=%q only", li.Attr, ListItemStyle)
		}
	}
}

func TestClean_EmphasisOnLeadingText(t *testing.T) {
	doc := cleaned(t, `<h1>Title <em>x</em></h1><h2>Other</h2>`)

	if n := countTag(doc.Root(), "font"); n != 1 {
		t.Fatalf("expected exactly 1 <font>, got %d", n)
	}
	h1 := doc.Children()[0]
	font := h1.FirstChild
	if !isTag(font, "font") {
		t.Fatalf("h1 first child = %q, want <font>", font.Data)
	}
	if font.Attr[0].Key != "size" || font.Attr[0].Val != EmphasisSize {
		t.Errorf("font attrs = %v", font.Attr)
	}
	if font.FirstChild.Type != html.TextNode || font.FirstChild.Data != "Title " {
		t.Errorf("wrapped %q, want the leading text only", font.FirstChild.Data)
	}
	if font.FirstChild.NextSibling != nil {
		t.Error("wrapper must hold a single node")
	}
	if !isTag(font.NextSibling, "em") {
		t.Error("following <em> must stay outside the wrapper")
	}
}

func TestClean_EmphasisOnLeadingBreak(t *testing.T) {
	doc := cleaned(t, `<h1><br>Title</h1>`)

	h1 := doc.Children()[0]
	font := h1.FirstChild
	if !isTag(font, "font") || !isTag(font.FirstChild, "br") {
		t.Fatalf("expected <font><br/></font> first:\n%s", doc.Render())
	}
	if font.NextSibling == nil || font.NextSibling.Data != "Title" {
		t.Error("text after the break must stay outside the wrapper")
	}
}

func TestClean_EmphasisOnLeadingElement(t *testing.T) {
	doc := cleaned(t, `<h1><strong>Bold <i>it</i></strong> rest</h1>`)

	h1 := doc.Children()[0]
	font := h1.FirstChild
	if !isTag(font, "font") || !isTag(font.FirstChild, "strong") {
		t.Fatalf("expected <font><strong>..:\n%s", doc.Render())
	}
	if countTag(font, "i") != 1 {
		t.Error("moved element must keep its subtree")
	}
	if font.NextSibling.Data != " rest" {
		t.Errorf("trailing text = %q", font.NextSibling.Data)
	}
}

func TestClean_EmphasisSkipsEmptyElements(t *testing.T) {
	doc := cleaned(t, `<ul><li> </li></ul><h3>First</h3><h3>Second</h3>`)

	if n := countTag(doc.Root(), "font"); n != 1 {
		t.Fatalf("expected 1 <font>, got %d", n)
	}
	h3 := descendants(doc.Root(), func(n *html.Node) bool { return isTag(n, "h3") })
	if !isTag(h3[0].FirstChild, "font") {
		t.Error("first h3 should carry the emphasis")
	}
	if isTag(h3[1].FirstChild, "font") {
		t.Error("second h3 must be untouched")
	}
}

func TestClean_NoTextNoEmphasis(t *testing.T) {
	doc := cleaned(t, `<p></p><ul><li></li></ul>`)
	if n := countTag(doc.Root(), "font"); n != 0 {
		t.Fatalf("expected no <font>, got %d", n)
	}
}

func TestClean_NotIdempotent(t *testing.T) {
	// WHAT: a second pass wraps the first line again.
	// WHY: the first-line search does not know about earlier wrapping; callers
	// must clean converter output exactly once.
	first, err := CleanHTML(`<h1>Title</h1><ul><li>item</li></ul>`)
	if err != nil {
		t.Fatal(err)
	}
	doc := cleaned(t, first)

	if n := countTag(doc.Root(), "font"); n != 2 {
		t.Fatalf("expected 2 <font> after a second pass, got %d:\n%s", n, doc.Render())
	}
	if doc.Render() == first {
		t.Fatal("second pass should change the output")
	}
}

func TestClean_SectionBreakBeforeListItem(t *testing.T) {
	doc := cleaned(t, `<h1>Country</h1><li>Foreign investors: 25%</li><li>other</li>`)

	kids := doc.Children()
	var li *html.Node
	for _, n := range kids {
		if isTag(n, "li") && strings.Contains(TextContent(n), "Foreign investors") {
			li = n
		}
	}
	if li == nil {
		t.Fatalf("marker list item not found:\n%s", doc.Render())
	}
	for i, prev := 0, li.PrevSibling; i < blankLines; i, prev = i+1, prev.PrevSibling {
		if prev == nil || prev.Type != html.TextNode || prev.Data != "\n" {
			t.Fatalf("expected %d blank-line nodes before the marker item:\n%s", blankLines, doc.Render())
		}
	}
	if !strings.Contains(doc.Render(), "</h1>\n\n\n<li") {
		t.Errorf("rendered output lacks blank lines before the item:\n%s", doc.Render())
	}
}

func TestClean_SectionBreakOnBareText(t *testing.T) {
	// WHAT: a marker in an unwrapped paragraph (bare top-level text) still gets blank lines.
	doc := cleaned(t, `<h1>X</h1><p>Authority in Charge: Ministry</p>`)
	kids := doc.Children()
	last := kids[len(kids)-1]
	if last.Data != "Authority in Charge: Ministry" {
		t.Fatalf("last node = %q", last.Data)
	}
	if last.PrevSibling == nil || last.PrevSibling.Data != "\n" {
		t.Fatalf("expected blank line before bare marker text:\n%s", doc.Render())
	}
}

func TestFindBlock(t *testing.T) {
	doc := mustParse(t, `<h1>Intro</h1><ul><li>Foreign investors: yes</li></ul><blockquote><p><em>Standard of Review</em></p></blockquote>`)
	all := descendants(doc.Root(), isContent)

	// First match in document order is the <ul>, which has no block ancestor.
	got := FindBlock(all, "foreign INVESTORS:")
	if got == nil || got.Data != "ul" {
		t.Fatalf("FindBlock = %v, want the <ul>", got)
	}

	// Starting from the <em>, the walk reaches the enclosing <blockquote>.
	em := descendants(doc.Root(), func(n *html.Node) bool { return isTag(n, "em") })
	got = FindBlock(em, "standard of review")
	if got == nil || got.Data != "blockquote" {
		t.Fatalf("FindBlock from em = %v, want <blockquote>", got)
	}

	li := descendants(doc.Root(), func(n *html.Node) bool { return isTag(n, "li") })
	if got := FindBlock(li, "Foreign investors:"); got != li[0] {
		t.Fatalf("FindBlock on li = %v, want the li itself", got)
	}

	if got := FindBlock(all, "not present"); got != nil {
		t.Fatalf("FindBlock on absent marker = %v, want nil", got)
	}
	if got := FindBlock(all, "  "); got != nil {
		t.Fatal("blank marker must not match")
	}
}

func TestRenderNodes(t *testing.T) {
	doc := mustParse(t, `<h1 b="2" a="1">x &amp; y</h1><br><pre>  a
 b</pre>`)
	got := doc.Render()
	want := "<h1 a=\"1\" b=\"2\">\n    x &amp; y\n</h1>\n<br/>\n<pre>  a\n b</pre>\n"
	if got != want {
		t.Fatalf("Render:\n%q\nwant\n%q", got, want)
	}
}

func TestRenderNodes_TextQuotesLiteral(t *testing.T) {
	// WHAT: Text keeps quotes literal; attribute values stay fully escaped.
	doc := mustParse(t, `<h2 title='say "hi"'>it's "x" &lt; y</h2><pre>a's</pre>`)
	want := "<h2 title=\"say &#34;hi&#34;\">\n    it's \"x\" &lt; y\n</h2>\n<pre>a's</pre>\n"
	if got := doc.Render(); got != want {
		t.Fatalf("Render:\n%q\nwant\n%q", got, want)
	}
}

func TestRenderNodes_Nested(t *testing.T) {
	doc := mustParse(t, `<ul><li>one</li></ul>`)
	want := "<ul>\n    <li>\n        one\n    </li>\n</ul>\n"
	if got := doc.Render(); got != want {
		t.Fatalf("Render:\n%q\nwant\n%q", got, want)
	}
}

func TestLinkGuard(t *testing.T) {
	g := NewLinkGuard()

	out := g.Apply(`<a href="javascript:alert(1)">bad</a><a href="https://example.com/x">good</a><li style="font-size: 20px">i</li>`)
	if strings.Contains(out, "javascript") {
		t.Errorf("javascript href survived: %s", out)
	}
	if !strings.Contains(out, "bad") {
		t.Errorf("link text lost: %s", out)
	}
	if !strings.Contains(out, `href="https://example.com/x"`) {
		t.Errorf("https link dropped: %s", out)
	}
	if !strings.Contains(out, "<li") || !strings.Contains(out, "font-size") {
		t.Errorf("list item styling dropped: %s", out)
	}
	if g.Apply("") != "" {
		t.Error("empty fragment must stay empty")
	}
}

func TestLinkGuard_Sections(t *testing.T) {
	s := Sections{Thresholds: `<a href="vbscript:x">v</a>`}
	out := NewLinkGuard().ApplySections(s)
	if strings.Contains(out.Thresholds, "vbscript") {
		t.Fatalf("unsafe scheme survived: %s", out.Thresholds)
	}
	if out.Jurisdiction != "" || out.Standard != "" {
		t.Fatal("empty sections must stay empty")
	}
}
