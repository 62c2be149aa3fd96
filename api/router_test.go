package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/lexdoc/audit"
	"github.com/hazyhaar/lexdoc/auth"
	"github.com/hazyhaar/lexdoc/dbopen"
	"github.com/hazyhaar/lexdoc/docclean"
	"github.com/hazyhaar/lexdoc/metrics"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// legalDocx builds a minimal .docx holding every section boundary.
func legalDocx(t *testing.T) []byte {
	t.Helper()
	p := func(s string) string { return `<w:p><w:r><w:t>` + s + `</w:t></w:r></w:p>` }
	doc := `<?xml version="1.0" encoding="UTF-8"?><w:document ` + wordNS + `><w:body>` +
		`<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Country X</w:t></w:r></w:p>` +
		p("Screening applies to all sectors.") +
		p("Foreign investors: 25% of voting rights.") +
		p("Authority in Charge: Ministry of Economy") +
		p("Standard of Review: national security") +
		`</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fw, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(doc))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// multipartBody encodes one file part under field.
func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, h http.Handler, target, filename string, data []byte, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, "file", filename, data)
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", ct)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newTestRouter(t *testing.T, cfg *Config) (http.Handler, *audit.Logger, *metrics.Metrics) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(audit.Schema))
	al := audit.New(db, 16)
	t.Cleanup(func() { al.Close() })
	m := metrics.New("test")
	return NewRouter(cfg, Deps{Audit: al, Metrics: m}), al, m
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestRouter(t, DefaultConfig())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing security headers")
	}
}

func TestIndex_Success(t *testing.T) {
	h, al, m := newTestRouter(t, DefaultConfig())
	rec := upload(t, h, "/api/index", "law.docx", legalDocx(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}

	// Keys come out in the fixed order and HTML is not escaped.
	raw := rec.Body.String()
	last := -1
	for _, k := range docclean.Keys() {
		i := strings.Index(raw, `"`+k+`"`)
		if i <= last {
			t.Fatalf("key %q out of order in %s", k, raw)
		}
		last = i
	}
	if strings.Contains(raw, `\u003c`) {
		t.Error("HTML was escaped in JSON output")
	}

	var got docclean.Sections
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	checks := map[string]string{
		docclean.Jurisdiction: "Country X",
		docclean.Thresholds:   "Foreign investors:",
		docclean.Procedures:   "Authority in Charge",
		docclean.Standard:     "Standard of Review",
	}
	for k, want := range checks {
		if !strings.Contains(got.Get(k), want) {
			t.Errorf("%s = %q, want it to contain %q", k, got.Get(k), want)
		}
	}

	al.Close()
	rows, err := al.Query(context.Background(), audit.Filter{Operation: audit.OpSplit})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Filename != "law.docx" || rows[0].Transport != "http" || rows[0].RequestID == "" {
		t.Fatalf("audit rows = %+v", rows)
	}
	if rows[0].Sections[docclean.Standard] == 0 {
		t.Errorf("audit sections = %v", rows[0].Sections)
	}

	exp := scrape(t, m)
	if !strings.Contains(exp, `lexdoc_convert_total{format="docx",status="success"} 1`) {
		t.Errorf("conversion not counted:\n%s", exp)
	}
	if !strings.Contains(exp, `lexdoc_http_requests_total{route="/api/index",status="2xx"} 1`) {
		t.Errorf("request not counted:\n%s", exp)
	}
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestIndex_Formats(t *testing.T) {
	h, _, _ := newTestRouter(t, DefaultConfig())

	rec := upload(t, h, "/api/index?format=markdown", "law.docx", legalDocx(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("markdown status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var md docclean.Sections
	json.Unmarshal(rec.Body.Bytes(), &md)
	if !strings.HasPrefix(md.Jurisdiction, "# ") || !strings.Contains(md.Jurisdiction, "Country X") {
		t.Errorf("markdown jurisdiction = %q", md.Jurisdiction)
	}
	if strings.Contains(md.Procedures, "<") {
		t.Errorf("markdown still has tags: %q", md.Procedures)
	}

	rec = upload(t, h, "/api/index?format=html", "law.docx", legalDocx(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("html status = %d", rec.Code)
	}
	var env map[string]string
	json.Unmarshal(rec.Body.Bytes(), &env)
	if !strings.Contains(env["html"], "Country X") || !strings.Contains(env["html"], "Standard of Review") {
		t.Errorf("html envelope = %v", env)
	}

	rec = upload(t, h, "/api/index?format=pdf", "law.docx", legalDocx(t))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown format status = %d", rec.Code)
	}
}

func TestIndex_ClientErrors(t *testing.T) {
	h, _, _ := newTestRouter(t, DefaultConfig())

	tests := []struct {
		name string
		req  func() *http.Request
		code int
		body string
	}{
		{
			name: "not multipart",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/api/index", strings.NewReader(`{}`))
				r.Header.Set("Content-Type", "application/json")
				return r
			},
			code: http.StatusBadRequest,
			body: "Expected multipart/form-data",
		},
		{
			name: "missing field",
			req: func() *http.Request {
				body, ct := multipartBody(t, "document", "law.docx", []byte("x"))
				r := httptest.NewRequest(http.MethodPost, "/api/index", body)
				r.Header.Set("Content-Type", ct)
				return r
			},
			code: http.StatusBadRequest,
			body: "Missing form field: file",
		},
		{
			name: "wrong extension",
			req: func() *http.Request {
				body, ct := multipartBody(t, "file", "law.pdf", []byte("x"))
				r := httptest.NewRequest(http.MethodPost, "/api/index", body)
				r.Header.Set("Content-Type", ct)
				return r
			},
			code: http.StatusBadRequest,
			body: "Please upload a .docx file",
		},
		{
			name: "get",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/index", nil)
			},
			code: http.StatusMethodNotAllowed,
			body: "POST only",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req())
			if rec.Code != tt.code || rec.Body.String() != tt.body {
				t.Errorf("got %d %q, want %d %q", rec.Code, rec.Body.String(), tt.code, tt.body)
			}
			if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
				t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestIndex_ServerError(t *testing.T) {
	h, al, _ := newTestRouter(t, DefaultConfig())
	rec := upload(t, h, "/api/index", "law.docx", []byte("not a zip"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), "Server error: ") || !strings.Contains(rec.Body.String(), "open zip") {
		t.Errorf("body = %q", rec.Body.String())
	}

	al.Close()
	rows, _ := al.Query(context.Background(), audit.Filter{Status: audit.StatusError})
	if len(rows) != 1 || !strings.Contains(rows[0].Error, "open zip") {
		t.Errorf("audit rows = %+v", rows)
	}
}

// WHAT: an upload over max_upload_mb answers 413.
// WHY: the body cap leaves room for multipart overhead, so the file cap is
// what trips first and must not surface as a 500.
func TestIndex_TooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUploadMB = 1
	h, _, _ := newTestRouter(t, cfg)

	data := bytes.Repeat([]byte("x"), 1<<20+10)
	rec := upload(t, h, "/api/index", "big.docx", data)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
}

func TestIndex_RequireToken(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireToken = true
	cfg.Auth = AuthConfig{Username: "admin", Password: "hunter2", Secret: "s3cret"}
	h, _, _ := newTestRouter(t, cfg)

	rec := upload(t, h, "/api/index", "law.docx", legalDocx(t))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d", rec.Code)
	}

	// GET is rejected on method before auth.
	get := httptest.NewRecorder()
	h.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/api/index", nil))
	if get.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d", get.Code)
	}

	tok := auth.Token("admin", "hunter2", "s3cret")
	rec = upload(t, h, "/api/index", "law.docx", legalDocx(t), "Authorization", "Bearer "+tok)
	if rec.Code != http.StatusOK {
		t.Errorf("with token status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func postJSON(h http.Handler, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth = AuthConfig{Username: "admin", Password: "hunter2"}
	h, al, m := newTestRouter(t, cfg)

	tests := []struct {
		name string
		body string
		code int
		want string
	}{
		{"bad json", `{"username":`, http.StatusBadRequest, `{"error":"Invalid JSON"}`},
		{"empty password", `{"username":"admin","password":""}`, http.StatusBadRequest, `{"error":"Username and password required"}`},
		{"missing fields", `{}`, http.StatusBadRequest, `{"error":"Username and password required"}`},
		{"wrong password", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized, `{"error":"Invalid credentials"}`},
		{"ok", `{"username":"admin","password":"hunter2"}`, http.StatusOK,
			`{"token":"` + auth.Token("admin", "hunter2", auth.DefaultSecret) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(h, "/api/login", tt.body)
			if rec.Code != tt.code || strings.TrimSpace(rec.Body.String()) != tt.want {
				t.Errorf("got %d %s, want %d %s", rec.Code, rec.Body.String(), tt.code, tt.want)
			}
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/login", nil))
	if rec.Code != http.StatusMethodNotAllowed || strings.TrimSpace(rec.Body.String()) != `{"error":"POST only"}` {
		t.Errorf("GET = %d %s", rec.Code, rec.Body.String())
	}

	exp := scrape(t, m)
	for _, line := range []string{
		`lexdoc_auth_login_attempts_total{outcome="malformed"} 3`,
		`lexdoc_auth_login_attempts_total{outcome="invalid"} 1`,
		`lexdoc_auth_login_attempts_total{outcome="success"} 1`,
	} {
		if !strings.Contains(exp, line) {
			t.Errorf("missing %q in:\n%s", line, exp)
		}
	}

	al.Close()
	denied, _ := al.Query(context.Background(), audit.Filter{Operation: audit.OpLogin, Status: audit.StatusDenied})
	if len(denied) != 1 || denied[0].Username != "admin" {
		t.Errorf("denied rows = %+v", denied)
	}
}

func TestLogin_Unconfigured(t *testing.T) {
	h, _, _ := newTestRouter(t, DefaultConfig())
	rec := postJSON(h, "/api/login", `{"username":"a","password":"b"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestMetricsAndMCPRoutes(t *testing.T) {
	mcpHit, mcpFlusher := false, false
	cfg := DefaultConfig()
	h := NewRouter(cfg, Deps{
		Metrics: metrics.New("test"),
		MCP: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mcpHit = true
			_, mcpFlusher = w.(http.Flusher)
			io.WriteString(w, "mcp")
		}),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "lexdoc_system_start_timestamp_seconds") {
		t.Errorf("metrics = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}")))
	if !mcpHit {
		t.Error("mcp handler not mounted")
	}
	if !mcpFlusher {
		t.Error("mcp handler did not get an http.Flusher through the middleware stack")
	}

	// Without the optional deps the routes are absent.
	bare := NewRouter(cfg, Deps{})
	rec = httptest.NewRecorder()
	bare.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("bare /metrics = %d", rec.Code)
	}
}

func TestMCPRoute_OutlivesWriteTimeout(t *testing.T) {
	// WHAT: /mcp responses written after the server WriteTimeout still arrive.
	// WHY: MCP SSE streams stay open far longer than any upload request.
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		io.WriteString(w, "late event")
	})
	h := NewRouter(DefaultConfig(), Deps{Metrics: metrics.New("test"), MCP: slow})

	srv := httptest.NewUnstartedServer(h)
	srv.Config.WriteTimeout = 50 * time.Millisecond
	srv.Start()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "late event" {
		t.Errorf("body = %q", body)
	}
}
