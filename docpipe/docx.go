package docpipe

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// convertDocx renders word/document.xml as HTML: styled headings become
// h1-h6, numbered paragraphs become nested ul/ol items, bold, italic and
// underline runs become strong, em and u, hyperlinks resolve through the
// relationships part, w:br becomes a newline and tables become table/tr/td.
func convertDocx(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}
	doc, err := readEntry(zr, "word/document.xml")
	if err != nil {
		return "", err
	}

	c := &docxConverter{b: newBuilder()}
	if c.rels, err = readRels(zr); err != nil {
		return "", err
	}
	if c.numbering, err = readNumbering(zr); err != nil {
		return "", err
	}
	c.sinks = []*sink{{node: c.b.root}}

	if err := walkXML(xml.NewDecoder(bytes.NewReader(doc)), skippedParts, c); err != nil {
		return "", fmt.Errorf("parse document.xml: %w", err)
	}
	return c.b.render()
}

// skippedParts hold text that is not part of the main flow (text boxes,
// compatibility fallbacks duplicating their choice branch).
var skippedParts = map[string]bool{
	"txbxContent": true,
	"Fallback":    true,
	"instrText":   true,
}

type runProps struct {
	bold, italic, underline bool
}

func (r runProps) tags() []string {
	var tags []string
	if r.bold {
		tags = append(tags, "strong")
	}
	if r.italic {
		tags = append(tags, "em")
	}
	if r.underline {
		tags = append(tags, "u")
	}
	return tags
}

type docxConverter struct {
	b         *builder
	rels      map[string]string
	numbering map[string]map[int]bool // numId -> ilvl -> ordered
	sinks     []*sink
	tables    []*html.Node

	para   *html.Node
	style  string
	numID  string
	ilvl   int
	inPPr  bool
	inRPr  bool
	inText bool
	run    runProps
	target *html.Node // innermost formatting node of the current run
	links  []bool     // per open w:hyperlink, whether an <a> was pushed
}

func (c *docxConverter) chars(s string) {
	if c.inText && c.para != nil {
		c.runText(s)
	}
}

func (c *docxConverter) start(t xml.StartElement) {
	switch t.Name.Local {
	case "tbl":
		c.sink().closeLists()
		tbl := element("table")
		c.container().AppendChild(tbl)
		c.tables = append(c.tables, tbl)
	case "tr":
		if len(c.tables) > 0 {
			tr := element("tr")
			c.tables[len(c.tables)-1].AppendChild(tr)
			c.tables = append(c.tables, tr)
		}
	case "tc":
		if len(c.tables) > 0 {
			td := element("td")
			c.tables[len(c.tables)-1].AppendChild(td)
			c.tables = append(c.tables, td)
			c.sinks = append(c.sinks, &sink{node: td})
		}
	case "p":
		c.para = element("p")
		c.style, c.numID, c.ilvl = "", "", 0
		c.links = c.links[:0]
		c.b.push(c.para)
	case "pPr":
		c.inPPr = true
	case "pStyle":
		if c.inPPr {
			c.style = attr(t, "val")
		}
	case "ilvl":
		if c.inPPr {
			c.ilvl, _ = strconv.Atoi(attr(t, "val"))
		}
	case "numId":
		if c.inPPr {
			c.numID = attr(t, "val")
		}
	case "r":
		c.run = runProps{}
		c.target = nil
	case "rPr":
		// Paragraph-mark run properties live under pPr; they do not format text.
		c.inRPr = !c.inPPr
	case "b":
		if c.inRPr {
			c.run.bold = toggleOn(t)
		}
	case "i":
		if c.inRPr {
			c.run.italic = toggleOn(t)
		}
	case "u":
		if c.inRPr {
			v := attr(t, "val")
			c.run.underline = v != "none" && v != "0" && v != "false"
		}
	case "t":
		c.inText = true
	case "tab":
		if c.para != nil && !c.inPPr {
			c.runText("\t")
		}
	case "br", "cr":
		if c.para != nil && attr(t, "type") != "page" {
			c.runText("\n")
		}
	case "hyperlink":
		if c.para == nil {
			return
		}
		href := c.rels[attr(t, "id")]
		if a := attr(t, "anchor"); href == "" && a != "" {
			href = "#" + a
		}
		if href == "" {
			c.links = append(c.links, false)
			return
		}
		c.b.open("a", html.Attribute{Key: "href", Val: href})
		c.links = append(c.links, true)
	}
}

func (c *docxConverter) end(local string) {
	switch local {
	case "tbl", "tr":
		if len(c.tables) > 0 {
			c.tables = c.tables[:len(c.tables)-1]
		}
	case "tc":
		if len(c.tables) > 0 {
			c.tables = c.tables[:len(c.tables)-1]
		}
		if len(c.sinks) > 1 {
			c.sinks = c.sinks[:len(c.sinks)-1]
		}
	case "pPr":
		c.inPPr = false
	case "rPr":
		c.inRPr = false
	case "t":
		c.inText = false
	case "r":
		c.target = nil
	case "hyperlink":
		if n := len(c.links); n > 0 {
			if c.links[n-1] {
				c.b.close()
			}
			c.links = c.links[:n-1]
		}
	case "p":
		if c.para == nil {
			return
		}
		for len(c.b.stack) > 1 {
			c.b.close()
		}
		c.place(c.para)
		c.para = nil
	}
}

// runText appends s under the current run's formatting, creating the
// strong/em/u chain once per run.
func (c *docxConverter) runText(s string) {
	if c.target == nil {
		parent := c.b.cur()
		for _, tag := range c.run.tags() {
			n := element(tag)
			parent.AppendChild(n)
			parent = n
		}
		c.target = parent
	}
	appendText(c.target, s)
}

func (c *docxConverter) place(para *html.Node) {
	s := c.sink()
	if level := docxHeadingLevel(c.style); level > 0 {
		s.closeLists()
		para.Data = "h" + strconv.Itoa(level)
		para.DataAtom = element(para.Data).DataAtom
		s.node.AppendChild(para)
		return
	}
	if c.numID != "" && c.numID != "0" {
		para.Data = "li"
		para.DataAtom = element("li").DataAtom
		s.addItem(para, c.numID, c.ilvl, c.numbering[c.numID][c.ilvl])
		return
	}
	s.closeLists()
	s.node.AppendChild(para)
}

func (c *docxConverter) sink() *sink { return c.sinks[len(c.sinks)-1] }

func (c *docxConverter) container() *html.Node {
	if len(c.tables) > 0 {
		return c.tables[len(c.tables)-1]
	}
	return c.sink().node
}

// sink is a block container (the body or a table cell) with its open lists.
type sink struct {
	node  *html.Node
	lists []listFrame
}

type listFrame struct {
	list  *html.Node
	numID string
}

func (s *sink) closeLists() { s.lists = s.lists[:0] }

// addItem appends li at nesting depth level, opening or closing nested
// lists as needed. A new numId at the outermost level starts a new list.
func (s *sink) addItem(li *html.Node, numID string, level int, ordered bool) {
	if level < 0 {
		level = 0
	}
	if level == 0 && len(s.lists) > 0 && s.lists[0].numID != numID {
		s.closeLists()
	}
	if len(s.lists) > level+1 {
		s.lists = s.lists[:level+1]
	}
	for len(s.lists) < level+1 {
		tag := "ul"
		if ordered {
			tag = "ol"
		}
		list := element(tag)
		if len(s.lists) == 0 {
			s.node.AppendChild(list)
		} else {
			outer := s.lists[len(s.lists)-1].list
			host := outer.LastChild
			if host == nil {
				host = element("li")
				outer.AppendChild(host)
			}
			host.AppendChild(list)
		}
		s.lists = append(s.lists, listFrame{list: list, numID: numID})
	}
	s.lists[len(s.lists)-1].list.AppendChild(li)
}

func attr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// toggleOn reads an OOXML on/off property: present without w:val means on.
func toggleOn(t xml.StartElement) bool {
	switch attr(t, "val") {
	case "0", "false", "off":
		return false
	}
	return true
}

// docxHeadingLevel extracts the heading level from a paragraph style name.
// e.g. "Heading1" → 1, "Heading2" → 2, "Title" → 1, etc.
func docxHeadingLevel(style string) int {
	lower := strings.ToLower(style)

	if lower == "title" {
		return 1
	}
	if lower == "subtitle" {
		return 2
	}

	// "Heading1", "heading1", "Titre1", etc.
	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		if strings.HasPrefix(lower, prefix) {
			rest := lower[len(prefix):]
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}

type relationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// readRels maps relationship IDs to targets. The part is optional.
func readRels(zr *zip.Reader) (map[string]string, error) {
	data, err := readEntry(zr, "word/_rels/document.xml.rels")
	if errors.Is(err, errNoEntry) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var rels relationships
	if err := xml.Unmarshal(data, &rels); err != nil {
		return nil, fmt.Errorf("parse document.xml.rels: %w", err)
	}
	out := make(map[string]string, len(rels.Items))
	for _, r := range rels.Items {
		out[r.ID] = r.Target
	}
	return out, nil
}

type numberingPart struct {
	Abstract []struct {
		ID     string `xml:"abstractNumId,attr"`
		Levels []struct {
			Ilvl   int `xml:"ilvl,attr"`
			NumFmt struct {
				Val string `xml:"val,attr"`
			} `xml:"numFmt"`
		} `xml:"lvl"`
	} `xml:"abstractNum"`
	Nums []struct {
		ID       string `xml:"numId,attr"`
		Abstract struct {
			Val string `xml:"val,attr"`
		} `xml:"abstractNumId"`
	} `xml:"num"`
}

// readNumbering reports, per numId and level, whether the list is ordered.
// Without word/numbering.xml every list is a bullet list.
func readNumbering(zr *zip.Reader) (map[string]map[int]bool, error) {
	data, err := readEntry(zr, "word/numbering.xml")
	if errors.Is(err, errNoEntry) {
		return map[string]map[int]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	var part numberingPart
	if err := xml.Unmarshal(data, &part); err != nil {
		return nil, fmt.Errorf("parse numbering.xml: %w", err)
	}

	abstract := make(map[string]map[int]bool, len(part.Abstract))
	for _, a := range part.Abstract {
		levels := make(map[int]bool, len(a.Levels))
		for _, l := range a.Levels {
			levels[l.Ilvl] = l.NumFmt.Val != "" && l.NumFmt.Val != "bullet" && l.NumFmt.Val != "none"
		}
		abstract[a.ID] = levels
	}
	out := make(map[string]map[int]bool, len(part.Nums))
	for _, n := range part.Nums {
		out[n.ID] = abstract[n.Abstract.Val]
	}
	return out, nil
}
