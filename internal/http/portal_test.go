package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"qmd/internal/http/handlers"
	applog "qmd/internal/log"
	"qmd/internal/qmdapi"
	"qmd/internal/qmdapi/qmdapitest"
	"qmd/internal/repos"
)

func TestMain(m *testing.M) {
	applog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// portal is the full app against the fake QMD API, plus one browser's cookies.
type portal struct {
	app     *fiber.App
	srv     *qmdapitest.Server
	deps    *handlers.Deps
	cookies map[string]string
}

func newPortal(t *testing.T, opts handlers.AppOptions) *portal {
	t.Helper()
	srv := qmdapitest.New()
	t.Cleanup(srv.Close)

	db, err := repos.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	api := qmdapi.New(srv.URL, qmdapi.WithTimeout(2*time.Second))
	deps := handlers.NewDepsWithClient(api, repos.NewSessionRepo(db, time.Hour))
	if opts.TemplatesDir == "" {
		opts.TemplatesDir = "../../web/templates"
	}
	return &portal{app: handlers.NewApp(deps, opts), srv: srv, deps: deps, cookies: map[string]string{}}
}

func (p *portal) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	for name, v := range p.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: v})
	}
	resp, err := p.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	for _, c := range resp.Cookies() {
		if c.Value == "" {
			delete(p.cookies, c.Name)
			continue
		}
		p.cookies[c.Name] = c.Value
	}
	return resp
}

func (p *portal) get(t *testing.T, path string) *http.Response {
	t.Helper()
	return p.do(t, httptest.NewRequest("GET", path, nil))
}

// post sends a form with the CSRF token, fetching one first when needed.
func (p *portal) post(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	if p.cookies["csrf_"] == "" {
		p.get(t, "/login")
		if p.cookies["csrf_"] == "" {
			t.Fatal("csrf token missing")
		}
	}
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf", p.cookies["csrf_"])
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return p.do(t, req)
}

func (p *portal) selectCitizen(t *testing.T, id string) {
	t.Helper()
	resp := p.post(t, "/login", url.Values{"citizenId": {id}})
	expectRedirect(t, resp, "/productos")
}

type cartJSON struct {
	ID     string `json:"id"`
	Estado string `json:"estado"`
	Total  string `json:"total"`
	Lines  []struct {
		ID       string `json:"id"`
		Producto string `json:"productoId"`
		Cantidad int    `json:"cantidad"`
		Subtotal string `json:"subtotal"`
		Estado   string `json:"estado"`
	} `json:"detalles"`
}

func (p *portal) cart(t *testing.T) (int, cartJSON) {
	t.Helper()
	resp := p.get(t, "/api/v1/carro")
	var out cartJSON
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode cart: %v", err)
		}
	}
	return resp.StatusCode, out
}

func bodyOf(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func expectRedirect(t *testing.T, resp *http.Response, to string) {
	t.Helper()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect to %s, got %d", to, resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != to {
		t.Fatalf("expected redirect to %s, got %s", to, loc)
	}
}

type logEntry struct {
	Level  string         `json:"level"`
	Action string         `json:"action"`
	Fields map[string]any `json:"fields"`
}

type lockedBuf struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (l *lockedBuf) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func captureLogs(t *testing.T, fn func()) []logEntry {
	t.Helper()
	buf := &lockedBuf{}
	applog.SetOutput(buf)
	defer applog.SetOutput(io.Discard)

	fn()

	buf.mu.Lock()
	defer buf.mu.Unlock()
	var entries []logEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.b.String()), "\n") {
		var e logEntry
		if err := json.Unmarshal([]byte(line), &e); err == nil {
			entries = append(entries, e)
		}
	}
	return entries
}

func hasAction(entries []logEntry, action string) bool {
	for _, e := range entries {
		if e.Action == action {
			return true
		}
	}
	return false
}
