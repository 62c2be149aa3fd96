package api

import (
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/hazyhaar/lexdoc/audit"
	"github.com/hazyhaar/lexdoc/docpipe"
	"github.com/hazyhaar/lexdoc/horosafe"
	"github.com/hazyhaar/lexdoc/shield"
)

const (
	formFileField = "file"
	// maxFormMemory is what ParseMultipartForm keeps in memory before
	// spilling parts to temp files.
	maxFormMemory = 8 << 20
)

// Output shapes selected with ?format=.
const (
	outputJSON     = "json"
	outputMarkdown = "markdown"
	outputHTML     = "html"
)

// handleIndex accepts one document in the "file" form field and answers with
// its sections as JSON.
func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	logger := shield.GetLogger(r.Context())

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		writeText(w, http.StatusBadRequest, "Expected multipart/form-data")
		return
	}
	output := r.URL.Query().Get("format")
	switch output {
	case "", outputJSON, outputMarkdown, outputHTML:
	default:
		writeText(w, http.StatusBadRequest, "Unknown format: "+output)
		return
	}

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		if tooLarge(err) {
			writeText(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		logger.Error("multipart parse failed", "error", err)
		writeServerError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(formFileField)
	if errors.Is(err, http.ErrMissingFile) {
		writeText(w, http.StatusBadRequest, "Missing form field: "+formFileField)
		return
	}
	if err != nil {
		writeServerError(w, err)
		return
	}
	defer file.Close()

	if !s.cfg.Accepts(header.Filename) {
		writeText(w, http.StatusBadRequest, s.cfg.uploadHint())
		return
	}
	format, err := docpipe.Detect(header.Filename)
	if err != nil {
		writeText(w, http.StatusBadRequest, s.cfg.uploadHint())
		return
	}

	start := time.Now()
	data, err := horosafe.LimitedReadAll(file, s.pipe.MaxFileSize())
	if err != nil {
		if errors.Is(err, horosafe.ErrTooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeServerError(w, err)
		return
	}

	op := audit.OpSplit
	if output == outputHTML {
		op = audit.OpClean
	}
	body, res, err := s.render(r, output, format, data)
	elapsed := time.Since(start)
	s.metrics.ObserveConversion(string(format), err, elapsed)

	entry := audit.NewEntry(r.Context(), op, err, elapsed)
	entry.Filename = header.Filename
	entry.Bytes = int64(len(data))
	if res != nil {
		entry.Sections = res.Lengths()
		s.metrics.ObserveSections(res.Found(), res.Missing)
	}
	s.audit.LogAsync(entry)

	if err != nil {
		if errors.Is(err, docpipe.ErrTooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		logger.Error("conversion failed", "filename", header.Filename, "format", format, "error", err)
		writeServerError(w, err)
		return
	}
	logger.Info("document indexed",
		"filename", header.Filename,
		"format", format,
		"bytes", len(data),
		"duration_ms", elapsed.Milliseconds(),
	)
	writeJSON(w, http.StatusOK, body)
}

// render runs the pipeline for the requested output shape. The Result is nil
// for the html shape, which never splits.
func (s *server) render(r *http.Request, output string, format docpipe.Format, data []byte) (any, *docpipe.Result, error) {
	ctx := r.Context()
	if output == outputHTML {
		cleaned, err := s.pipe.Clean(ctx, format, data)
		if err != nil {
			return nil, nil, err
		}
		return map[string]string{"html": cleaned}, nil, nil
	}

	res, err := s.pipe.Split(ctx, format, data)
	if err != nil {
		return nil, nil, err
	}
	if output == outputMarkdown {
		md, err := s.pipe.Markdown(res.Sections)
		if err != nil {
			return nil, res, err
		}
		return md, res, nil
	}
	return res.Sections, res, nil
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
