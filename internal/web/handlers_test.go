package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/metainsyt/emaildb/internal/config"
	"github.com/metainsyt/emaildb/internal/pipeline"
	"github.com/metainsyt/emaildb/internal/store"
)

// memStore is a minimal in-memory pipeline.EmailStore for handler tests.
type memStore struct {
	valid   map[string]store.Record
	invalid map[string]store.Record
}

func newMemStore() *memStore {
	return &memStore{
		valid:   make(map[string]store.Record),
		invalid: make(map[string]store.Record),
	}
}

func (m *memStore) CreateValid(ctx context.Context, rec store.Record) error {
	if _, exists := m.valid[rec.Email]; exists {
		return store.ErrDuplicate
	}
	m.valid[rec.Email] = rec
	return nil
}

func (m *memStore) ValidByEmails(ctx context.Context, emails []string) ([]store.Record, error) {
	var out []store.Record
	for _, e := range emails {
		if rec, ok := m.valid[e]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) ListValid(ctx context.Context, filter store.ValidFilter) ([]store.Record, error) {
	domains := make(map[string]bool, len(filter.Domains))
	for _, d := range filter.Domains {
		domains[strings.ToLower(d)] = true
	}
	var out []store.Record
	for _, rec := range m.valid {
		if !rec.Status {
			continue
		}
		if len(domains) > 0 && !domains[rec.Domain] {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *memStore) MoveToInvalid(ctx context.Context, invalid []store.Record, candidates []string) (int64, int64, error) {
	var inserted int64
	for _, rec := range invalid {
		if _, exists := m.invalid[rec.Email]; !exists {
			m.invalid[rec.Email] = rec
			inserted++
		}
	}
	var deleted int64
	for _, e := range candidates {
		if _, exists := m.valid[e]; exists {
			delete(m.valid, e)
			deleted++
		}
	}
	return inserted, deleted, nil
}

func (m *memStore) CountValid(ctx context.Context) (int64, error)   { return int64(len(m.valid)), nil }
func (m *memStore) CountInvalid(ctx context.Context) (int64, error) { return int64(len(m.invalid)), nil }

// okPinger satisfies Pinger for the health endpoint.
type okPinger struct{ err error }

func (p okPinger) Ping(ctx context.Context) error { return p.err }

func newTestServer(t *testing.T, st pipeline.EmailStore, ping error) *Server {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8000},
		Upload: config.UploadConfig{
			Dir:           t.TempDir(),
			MaxFileSize:   1 << 20,
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
		},
		Rate:    config.RateLimitConfig{Enabled: false},
		Logging: config.LoggingConfig{Level: "error", Format: "text"},
	}

	svc, err := pipeline.NewService(st, cfg.Upload)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return NewServer(svc, okPinger{err: ping}, cfg)
}

// multipartBody builds a multipart body with one file field.
func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(fw, content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func TestHandleUpload(t *testing.T) {
	st := newMemStore()
	s := newTestServer(t, st, nil)

	body, ctype := multipartBody(t, "emailList", "list.csv",
		"email,name\na@x.com,Alice\nb@x.com,Bob\na@x.com,Alice2\n")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ctype)

	rr := doRequest(s, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Message    string `json:"message"`
		TotalRows  int    `json:"totalRows"`
		Created    int    `json:"created"`
		Duplicates int    `json:"duplicates"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.TotalRows != 3 || resp.Created != 2 || resp.Duplicates != 1 {
		t.Errorf("response = %+v, want totals 3/2/1", resp)
	}
	if resp.Message == "" {
		t.Error("response missing message")
	}
}

func TestHandleUpload_NoFile(t *testing.T) {
	s := newTestServer(t, newMemStore(), nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := doRequest(s, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestHandleRemoveInvalid(t *testing.T) {
	st := newMemStore()
	st.valid["a@x.com"] = store.NewValid("a@x.com", "Alice", "x.com")
	s := newTestServer(t, st, nil)

	body, ctype := multipartBody(t, "emailList", "bad.csv", "email\na@x.com\nc@y.com\n")
	req := httptest.NewRequest(http.MethodPost, "/remove-invalid-csv", body)
	req.Header.Set("Content-Type", ctype)

	rr := doRequest(s, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		MovedToInvalid   int   `json:"movedToInvalid"`
		RemovedFromValid int64 `json:"removedFromValid"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.MovedToInvalid != 2 || resp.RemovedFromValid != 1 {
		t.Errorf("response = %+v, want moved 2 removed 1", resp)
	}
}

func TestHandleDownloadAll(t *testing.T) {
	st := newMemStore()
	st.valid["a@x.com"] = store.NewValid("a@x.com", "Alice", "x.com")
	s := newTestServer(t, st, nil)

	rr := doRequest(s, httptest.NewRequest(http.MethodGet, "/download-all", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Content-Disposition = %q, want attachment", cd)
	}
	if !strings.HasPrefix(rr.Body.String(), "Email,Name,Domain,Status,SmtpCode,ValidatedAt\n") {
		t.Errorf("body missing header line:\n%s", rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "a@x.com") {
		t.Errorf("body missing record:\n%s", rr.Body.String())
	}
}

func TestHandleDownloadAll_Empty(t *testing.T) {
	s := newTestServer(t, newMemStore(), nil)

	rr := doRequest(s, httptest.NewRequest(http.MethodGet, "/download-all", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestHandleDownloadDomain(t *testing.T) {
	st := newMemStore()
	st.valid["a@x.com"] = store.NewValid("a@x.com", "Alice", "x.com")
	st.valid["b@y.com"] = store.NewValid("b@y.com", "Bob", "y.com")
	s := newTestServer(t, st, nil)

	rr := doRequest(s, httptest.NewRequest(http.MethodGet, "/download-domain?domain=x.com", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "b@y.com") {
		t.Errorf("other domain leaked into export:\n%s", rr.Body.String())
	}
}

func TestHandleDownloadDomain_MissingParam(t *testing.T) {
	s := newTestServer(t, newMemStore(), nil)

	rr := doRequest(s, httptest.NewRequest(http.MethodGet, "/download-domain", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestHandleDownloadDomain_NoMatch(t *testing.T) {
	s := newTestServer(t, newMemStore(), nil)

	rr := doRequest(s, httptest.NewRequest(http.MethodGet, "/download-domain?domain=nope.com", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestHandleDownloadDomains(t *testing.T) {
	st := newMemStore()
	st.valid["a@x.com"] = store.NewValid("a@x.com", "Alice", "x.com")
	st.valid["b@y.com"] = store.NewValid("b@y.com", "Bob", "y.com")
	s := newTestServer(t, st, nil)

	body, ctype := multipartBody(t, "domainList", "domains.csv", "domain\nx.com\n")
	req := httptest.NewRequest(http.MethodPost, "/download-domains", body)
	req.Header.Set("Content-Type", ctype)

	rr := doRequest(s, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if !strings.Contains(rr.Body.String(), "a@x.com") || strings.Contains(rr.Body.String(), "b@y.com") {
		t.Errorf("wrong records in export:\n%s", rr.Body.String())
	}
}

func TestHandleDownloadDomains_EmptyList(t *testing.T) {
	s := newTestServer(t, newMemStore(), nil)

	body, ctype := multipartBody(t, "domainList", "domains.csv", "domain\n")
	req := httptest.NewRequest(http.MethodPost, "/download-domains", body)
	req.Header.Set("Content-Type", ctype)

	rr := doRequest(s, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if cd := rr.Header().Get("Content-Disposition"); cd != "" {
		t.Errorf("Content-Disposition = %q, want unset on error", cd)
	}
}

func TestHandleStats(t *testing.T) {
	st := newMemStore()
	st.valid["a@x.com"] = store.NewValid("a@x.com", "Alice", "x.com")
	st.invalid["b@y.com"] = store.NewInvalid("b@y.com", "Bob", "y.com")
	s := newTestServer(t, st, nil)

	rr := doRequest(s, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var counts struct {
		Valid   int64 `json:"valid"`
		Invalid int64 `json:"invalid"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &counts); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if counts.Valid != 1 || counts.Invalid != 1 {
		t.Errorf("counts = %+v, want 1/1", counts)
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, newMemStore(), nil)

	rr := doRequest(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestHandleHealth_DatabaseDown(t *testing.T) {
	s := newTestServer(t, newMemStore(), errors.New("connection refused"))

	rr := doRequest(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestHandleHome(t *testing.T) {
	s := newTestServer(t, newMemStore(), nil)

	rr := doRequest(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Running") {
		t.Errorf("unexpected banner: %q", rr.Body.String())
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, newMemStore(), nil)

	rr := doRequest(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)

	if !rl.allow("1.2.3.4") || !rl.allow("1.2.3.4") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("1.2.3.4") {
		t.Error("third request should be limited")
	}
	// Other IPs have their own bucket
	if !rl.allow("5.6.7.8") {
		t.Error("fresh IP should pass")
	}
}
