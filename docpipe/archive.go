package docpipe

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/hazyhaar/lexdoc/horosafe"
)

var errNoEntry = errors.New("not found in archive")

// maxEntrySize caps the decompressed size of any archive member read.
var maxEntrySize int64 = 64 << 20

func openZip(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	return zr, nil
}

// readEntry returns the content of the named archive member.
func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := horosafe.LimitedReadAll(rc, maxEntrySize)
		if errors.Is(err, horosafe.ErrTooLarge) {
			return nil, fmt.Errorf("%w: %s expands past %d bytes", ErrTooLarge, name, maxEntrySize)
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s %w", name, errNoEntry)
}

// maxXMLDepth bounds element nesting in document parts.
const maxXMLDepth = 256

// xmlHandler receives the events of walkXML outside skipped subtrees.
type xmlHandler interface {
	start(xml.StartElement)
	end(local string)
	chars(s string)
}

// walkXML streams dec into h, hiding every subtree whose root local name is
// in skipped, and fails on nesting deeper than maxXMLDepth.
func walkXML(dec *xml.Decoder, skipped map[string]bool, h xmlHandler) error {
	depth, skip := 0, 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth++; depth > maxXMLDepth {
				return fmt.Errorf("xml nesting depth exceeds %d", maxXMLDepth)
			}
			if skipped[t.Name.Local] {
				skip++
			} else if skip == 0 {
				h.start(t)
			}
		case xml.EndElement:
			depth--
			if skipped[t.Name.Local] {
				skip--
			} else if skip == 0 {
				h.end(t.Name.Local)
			}
		case xml.CharData:
			if skip == 0 {
				h.chars(string(t))
			}
		}
	}
}
