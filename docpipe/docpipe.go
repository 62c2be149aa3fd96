// Package docpipe turns uploaded documents into the cleaned, sectioned HTML
// produced by docclean.
//
// Supported formats:
//   - .docx  Microsoft Word (archive/zip → word/document.xml)
//   - .odt   OpenDocument Text (archive/zip → content.xml)
//   - .html  passthrough of the body content
//
// Usage:
//
//	pipe := docpipe.New(docpipe.Config{})
//	res, err := pipe.Split(ctx, docpipe.FormatDocx, data)
//	fmt.Println(res.Sections.Thresholds)
package docpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/hazyhaar/lexdoc/docclean"
	"github.com/hazyhaar/lexdoc/horosafe"
)

var (
	// ErrTooLarge is returned when an input exceeds Config.MaxFileSize.
	ErrTooLarge = errors.New("docpipe: input too large")
	// ErrUnsupported is returned for an unknown file extension or format.
	ErrUnsupported = errors.New("docpipe: unsupported format")
)

// Pipeline converts documents and runs them through docclean. It is safe
// for concurrent use.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	guard  *docclean.LinkGuard
	md     *converter.Converter
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
		guard:  docclean.NewLinkGuard(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Detect returns the document format based on the file extension.
func Detect(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".docx":
		return FormatDocx, nil
	case ".odt":
		return FormatODT, nil
	case ".html", ".htm":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}

// SupportedFormats returns all supported format names.
func SupportedFormats() []string {
	return []string{string(FormatDocx), string(FormatODT), string(FormatHTML)}
}

// Convert produces raw HTML from document bytes.
func (p *Pipeline) Convert(ctx context.Context, format Format, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if int64(len(data)) > p.cfg.MaxFileSize {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), p.cfg.MaxFileSize)
	}

	var (
		raw string
		err error
	)
	switch format {
	case FormatDocx:
		raw, err = convertDocx(data)
	case FormatODT:
		raw, err = convertODT(data)
	case FormatHTML:
		raw, err = convertHTML(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, format)
	}
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", format, err)
	}
	p.logger.Debug("document converted", "format", format, "bytes", len(data), "html_bytes", len(raw))
	return raw, nil
}

// Clean converts data and returns the single cleaned fragment.
func (p *Pipeline) Clean(ctx context.Context, format Format, data []byte) (string, error) {
	raw, err := p.Convert(ctx, format, data)
	if err != nil {
		return "", err
	}
	cleaned, err := docclean.CleanHTML(raw)
	if err != nil {
		return "", err
	}
	if p.cfg.StrictLinks {
		cleaned = p.guard.Apply(cleaned)
	}
	return cleaned, nil
}

// Split converts data, cleans it and splits it into sections.
func (p *Pipeline) Split(ctx context.Context, format Format, data []byte) (*Result, error) {
	raw, err := p.Convert(ctx, format, data)
	if err != nil {
		return nil, err
	}
	doc, err := docclean.ParseString(raw)
	if err != nil {
		return nil, err
	}
	docclean.Clean(doc)

	res := &Result{
		Format:   format,
		Bytes:    len(data),
		Sections: docclean.Split(doc),
		Missing:  docclean.Missing(doc.Children()),
	}
	if p.cfg.StrictLinks {
		res.Sections = p.guard.ApplySections(res.Sections)
	}
	if len(res.Missing) > 0 {
		p.logger.Debug("section boundaries not found", "missing", res.Missing)
	}
	return res, nil
}

// Markdown converts every section to Markdown. Empty sections stay empty.
func (p *Pipeline) Markdown(s docclean.Sections) (docclean.Sections, error) {
	return s.Map(func(key, v string) (string, error) {
		if v == "" {
			return "", nil
		}
		md, err := p.md.ConvertString(v)
		if err != nil {
			return "", fmt.Errorf("markdown %s: %w", key, err)
		}
		return strings.TrimSpace(md), nil
	})
}

// ReadFile loads a document from disk, confined to Config.BaseDir when set.
func (p *Pipeline) ReadFile(path string) (Format, []byte, error) {
	format, err := Detect(path)
	if err != nil {
		return "", nil, err
	}
	full, err := horosafe.SafePath(p.cfg.BaseDir, path)
	if err != nil {
		return "", nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return "", nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data, err := horosafe.LimitedReadAll(f, p.cfg.MaxFileSize)
	if errors.Is(err, horosafe.ErrTooLarge) {
		return "", nil, fmt.Errorf("%w: %s", ErrTooLarge, path)
	}
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", path, err)
	}
	return format, data, nil
}

// MaxFileSize returns the configured input cap in bytes.
func (p *Pipeline) MaxFileSize() int64 { return p.cfg.MaxFileSize }
