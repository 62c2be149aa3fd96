package docpipe

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// convertODT renders content.xml of an OpenDocument text file as HTML with
// the same vocabulary as convertDocx. Spans pick up bold, italic and
// underline from the automatic styles they reference.
func convertODT(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}
	content, err := readEntry(zr, "content.xml")
	if err != nil {
		return "", err
	}

	c := &odtConverter{b: newBuilder(), styles: map[string]runProps{}}
	if err := walkXML(xml.NewDecoder(bytes.NewReader(content)), odtSkipped, c); err != nil {
		return "", fmt.Errorf("parse content.xml: %w", err)
	}
	return c.b.render()
}

// odtSkipped elements carry text outside the main flow.
var odtSkipped = map[string]bool{
	"note":            true,
	"annotation":      true,
	"text-box":        true,
	"tracked-changes": true,
}

type odtConverter struct {
	b      *builder
	styles map[string]runProps

	inStyles  bool
	styleName string

	textDepth int   // open text:p / text:h elements
	opened    []int // per open element, how many builder nodes it pushed
	items     []int // per open list item, paragraphs seen
}

func (c *odtConverter) chars(s string) {
	if c.textDepth > 0 {
		c.b.text(s)
	}
}

func (c *odtConverter) start(t xml.StartElement) {
	local := t.Name.Local
	if c.inStyles {
		c.styleProps(t)
	}
	pushed := 0
	switch local {
	case "automatic-styles":
		c.inStyles = true
	case "h":
		level, _ := strconv.Atoi(attr(t, "outline-level"))
		level = min(max(level, 1), 6)
		c.b.open("h" + strconv.Itoa(level))
		pushed = 1
		c.textDepth++
	case "p":
		if n := len(c.items); n > 0 && c.isItemChild() {
			// List item paragraphs flow into the li itself.
			if c.items[n-1] > 0 {
				c.b.text("\n")
			}
			c.items[n-1]++
		} else {
			c.b.open("p")
			pushed = 1
		}
		c.textDepth++
	case "list":
		c.b.open("ul")
		pushed = 1
	case "list-item", "list-header":
		c.b.open("li")
		pushed = 1
		c.items = append(c.items, 0)
	case "span":
		props := c.styles[attr(t, "style-name")]
		for _, tag := range props.tags() {
			c.b.open(tag)
			pushed++
		}
	case "a":
		if href := attr(t, "href"); href != "" {
			c.b.open("a", html.Attribute{Key: "href", Val: href})
			pushed = 1
		}
	case "line-break":
		c.b.text("\n")
	case "tab":
		c.b.text("\t")
	case "s":
		n, err := strconv.Atoi(attr(t, "c"))
		if err != nil || n < 1 {
			n = 1
		}
		c.b.text(strings.Repeat(" ", n))
	case "table":
		c.b.open("table")
		pushed = 1
	case "table-row":
		c.b.open("tr")
		pushed = 1
	case "table-cell":
		c.b.open("td")
		pushed = 1
	}
	c.opened = append(c.opened, pushed)
}

func (c *odtConverter) end(local string) {
	switch local {
	case "automatic-styles":
		c.inStyles = false
	case "style":
		c.styleName = ""
	case "h", "p":
		c.textDepth--
	case "list-item", "list-header":
		c.items = c.items[:len(c.items)-1]
	}
	n := len(c.opened)
	if n == 0 {
		return
	}
	for range c.opened[n-1] {
		c.b.close()
	}
	c.opened = c.opened[:n-1]
}

// isItemChild reports whether the builder's current node is the li of the
// innermost list item, i.e. the paragraph is a direct child of the item.
func (c *odtConverter) isItemChild() bool {
	return c.b.cur().Data == "li"
}

// styleProps records text properties of automatic styles.
func (c *odtConverter) styleProps(t xml.StartElement) {
	switch t.Name.Local {
	case "style":
		c.styleName = attr(t, "name")
	case "text-properties":
		if c.styleName == "" {
			return
		}
		p := c.styles[c.styleName]
		if attr(t, "font-weight") == "bold" {
			p.bold = true
		}
		if attr(t, "font-style") == "italic" {
			p.italic = true
		}
		if u := attr(t, "text-underline-style"); u != "" && u != "none" {
			p.underline = true
		}
		c.styles[c.styleName] = p
	}
}
