package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/qpac/internal/artifact"
	"github.com/jmerrifield20/qpac/internal/auth"
	"github.com/jmerrifield20/qpac/internal/coalescer"
	"github.com/jmerrifield20/qpac/internal/handler"
	"github.com/jmerrifield20/qpac/internal/pac"
	"github.com/jmerrifield20/qpac/internal/storage"
	"github.com/jmerrifield20/qpac/internal/whitelist"
	"go.uber.org/zap"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type countingNotifier struct{ n atomic.Int32 }

func (c *countingNotifier) Notify() { c.n.Add(1) }

type brokenStore struct{}

func (brokenStore) List(context.Context) ([]string, error) { return nil, errors.New("db on fire") }
func (brokenStore) Add(context.Context, string) error      { return errors.New("db on fire") }
func (brokenStore) Remove(context.Context, string) error   { return errors.New("db on fire") }

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

// ── Setup ────────────────────────────────────────────────────────────────

type fixture struct {
	router   *gin.Engine
	store    whitelist.Store
	cache    artifact.Cache
	notifier *countingNotifier
}

func setup(t *testing.T, configure func(h *handler.PACHandler)) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		store:    whitelist.NewMemoryStore(),
		cache:    artifact.NewMemoryCache(),
		notifier: &countingNotifier{},
	}
	h := handler.NewPACHandler(f.store, f.cache, f.notifier, zap.NewNop())
	if configure != nil {
		configure(h)
	}
	f.router = handler.NewRouter(h, okPinger{}, handler.RouterConfig{}, zap.NewNop())
	return f
}

func do(t *testing.T, router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestAdd_200(t *testing.T) {
	f := setup(t, nil)

	w := do(t, f.router, http.MethodPost, "/add", `{"host":"a.com"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["success"] != true {
		t.Errorf("expected success=true, got %v", resp)
	}
	if n := f.notifier.n.Load(); n != 1 {
		t.Errorf("expected 1 change signal, got %d", n)
	}
}

func TestAdd_400_duplicate(t *testing.T) {
	f := setup(t, nil)
	do(t, f.router, http.MethodPost, "/add", `{"host":"a.com"}`, nil)

	w := do(t, f.router, http.MethodPost, "/add", `{"host":"a.com"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if n := f.notifier.n.Load(); n != 1 {
		t.Errorf("failed add must not signal; got %d signals", n)
	}
}

func TestAdd_400_badBody(t *testing.T) {
	f := setup(t, nil)
	for _, body := range []string{`{}`, `{"host":""}`, `not json`} {
		w := do(t, f.router, http.MethodPost, "/add", body, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, w.Code)
		}
	}
}

func TestAdd_400_nulInHost(t *testing.T) {
	f := setup(t, nil)

	w := do(t, f.router, http.MethodPost, "/add", `{"host":"a\u0000b"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if n := f.notifier.n.Load(); n != 0 {
		t.Errorf("rejected add must not signal; got %d signals", n)
	}
	if hosts, _ := f.store.List(context.Background()); len(hosts) != 0 {
		t.Errorf("store = %q, want empty", hosts)
	}
}

func TestRemove(t *testing.T) {
	f := setup(t, nil)

	w := do(t, f.router, http.MethodPost, "/remove", `{"host":"a.com"}`, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("remove absent: expected 404, got %d", w.Code)
	}

	do(t, f.router, http.MethodPost, "/add", `{"host":"a.com"}`, nil)
	w = do(t, f.router, http.MethodPost, "/remove", `{"host":"a.com"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove present: expected 200, got %d", w.Code)
	}
	if n := f.notifier.n.Load(); n != 2 {
		t.Errorf("expected 2 change signals, got %d", n)
	}
}

func TestList_ordered(t *testing.T) {
	f := setup(t, nil)
	for _, h := range []string{"c.com", "a.com", "b.com"} {
		do(t, f.router, http.MethodPost, "/add", `{"host":"`+h+`"}`, nil)
	}

	w := do(t, f.router, http.MethodGet, "/list", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var hosts []string
	if err := json.Unmarshal(w.Body.Bytes(), &hosts); err != nil {
		t.Fatal(err)
	}
	if strings.Join(hosts, ",") != "a.com,b.com,c.com" {
		t.Errorf("unexpected order: %v", hosts)
	}
}

func TestList_emptyIsArray(t *testing.T) {
	f := setup(t, nil)
	w := do(t, f.router, http.MethodGet, "/list", "", nil)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("expected [], got %s", w.Body.String())
	}
}

func TestGetLatest_404_beforeGeneration(t *testing.T) {
	f := setup(t, nil)
	w := do(t, f.router, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetByHash(t *testing.T) {
	f := setup(t, nil)
	a := pac.Generate([]string{"a.com"})
	if err := f.cache.Upload(context.Background(), a); err != nil {
		t.Fatal(err)
	}

	w := do(t, f.router, http.MethodGet, "/"+a.Hash, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != pac.ContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Body.String() != a.Body {
		t.Error("body mismatch")
	}
	etag := w.Header().Get("ETag")
	if etag != `"`+a.Hash+`"` {
		t.Errorf("ETag = %q", etag)
	}

	w = do(t, f.router, http.MethodGet, "/"+a.Hash, "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional GET: expected 304, got %d", w.Code)
	}

	w = do(t, f.router, http.MethodGet, "/unknown-hash", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown hash: expected 404, got %d", w.Code)
	}
}

func TestUnknownRoutes_404(t *testing.T) {
	f := setup(t, nil)
	cases := []struct{ method, path string }{
		{http.MethodGet, "/a/b/c"},
		{http.MethodPost, "/list"},
		{http.MethodDelete, "/add"},
		{http.MethodGet, "/add"},
	}
	for _, c := range cases {
		w := do(t, f.router, c.method, c.path, "", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", c.method, c.path, w.Code)
		}
	}
}

func TestInternalError_500_withoutDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := handler.NewPACHandler(brokenStore{}, artifact.NewMemoryCache(), &countingNotifier{}, zap.NewNop())
	router := handler.NewRouter(h, okPinger{}, handler.RouterConfig{}, zap.NewNop())

	for _, path := range []string{"/list"} {
		w := do(t, router, http.MethodGet, path, "", nil)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", w.Code)
		}
		if strings.Contains(w.Body.String(), "fire") {
			t.Errorf("error detail leaked: %s", w.Body.String())
		}
	}
	w := do(t, router, http.MethodPost, "/add", `{"host":"a.com"}`, nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("add: expected 500, got %d", w.Code)
	}
}

func TestAuth_401_whenTokenConfigured(t *testing.T) {
	f := setup(t, func(h *handler.PACHandler) {
		v, err := auth.NewVerifier("s3cret", zap.NewNop())
		if err != nil {
			t.Fatal(err)
		}
		h.SetVerifier(v)
	})

	w := do(t, f.router, http.MethodPost, "/add", `{"host":"a.com"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	hosts, _ := f.store.List(context.Background())
	if len(hosts) != 0 || f.notifier.n.Load() != 0 {
		t.Fatal("rejected request must not touch the whitelist")
	}

	w = do(t, f.router, http.MethodPost, "/add", `{"host":"a.com"}`,
		map[string]string{"Authorization": "Bearer s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("authorized add: expected 200, got %d", w.Code)
	}

	// Reads stay public.
	if w := do(t, f.router, http.MethodGet, "/list", "", nil); w.Code != http.StatusOK {
		t.Errorf("GET /list: expected 200, got %d", w.Code)
	}
}

func TestRateLimit_429(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := setup(t, func(h *handler.PACHandler) { h.SetRateLimit(ctx, 1, 1) })

	do(t, f.router, http.MethodPost, "/add", `{"host":"a.com"}`, nil)
	w := do(t, f.router, http.MethodPost, "/add", `{"host":"b.com"}`, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	f := setup(t, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		if w := do(t, f.router, http.MethodGet, path, "", nil); w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
		}
	}
}

func TestRequestID_header(t *testing.T) {
	f := setup(t, nil)
	w := do(t, f.router, http.MethodGet, "/healthz", "", nil)
	if w.Header().Get(handler.RequestIDHeader) == "" {
		t.Error("expected a generated request id")
	}
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestReadyz_503_whenStorageDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := handler.NewPACHandler(whitelist.NewMemoryStore(), artifact.NewMemoryCache(), &countingNotifier{}, zap.NewNop())
	router := handler.NewRouter(h, downPinger{}, handler.RouterConfig{}, zap.NewNop())

	if w := do(t, router, http.MethodGet, "/readyz", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Errorf("healthz: expected 200, got %d", w.Code)
	}
}

func TestMetrics_exposed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := handler.NewPACHandler(whitelist.NewMemoryStore(), artifact.NewMemoryCache(), &countingNotifier{}, zap.NewNop())
	router := handler.NewRouter(h, okPinger{}, handler.RouterConfig{Metrics: true}, zap.NewNop())

	do(t, router, http.MethodGet, "/list", "", nil)
	w := do(t, router, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `qpac_requests_total{method="GET",path="/list",status="200"}`) {
		t.Error("expected request counter for GET /list")
	}
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := handler.NewPACHandler(whitelist.NewMemoryStore(), artifact.NewMemoryCache(), &countingNotifier{}, zap.NewNop())
	router := handler.NewRouter(h, okPinger{}, handler.RouterConfig{CORSOrigins: []string{"https://admin.example"}}, zap.NewNop())

	w := do(t, router, http.MethodOptions, "/add", "", map[string]string{
		"Origin":                        "https://admin.example",
		"Access-Control-Request-Method": "POST",
	})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://admin.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	w = do(t, router, http.MethodGet, "/list", "", map[string]string{"Origin": "https://evil.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected Access-Control-Allow-Origin %q for disallowed origin", got)
	}
}

// TestScenario_regenerationEndToEnd drives the full pipeline: mutations
// through HTTP, the debounced coalescer, and reads of old and new artifacts.
func TestScenario_regenerationEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := storage.NewMemory()
	co := coalescer.New(backend.Whitelist, backend.Artifacts, coalescer.Config{Window: 100 * time.Millisecond}, zap.NewNop())
	passes := make(chan pac.Artifact, 8)
	co.SetOnRegenerate(func(a pac.Artifact) { passes <- a })
	go co.Run(ctx)

	h := handler.NewPACHandler(backend.Whitelist, backend.Artifacts, co, zap.NewNop())
	router := handler.NewRouter(h, backend, handler.RouterConfig{}, zap.NewNop())

	do(t, router, http.MethodPost, "/add", `{"host":"a.com"}`, nil)
	do(t, router, http.MethodPost, "/add", `{"host":"b.com"}`, nil)
	h1 := waitPass(t, passes).Hash

	w := do(t, router, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /: expected 200, got %d", w.Code)
	}
	if loc := w.Header().Get("Content-Location"); loc != "/"+h1 {
		t.Errorf("Content-Location = %q, want /%s", loc, h1)
	}
	first := w.Body.String()
	if !strings.HasPrefix(first, `var __HOSTS__ = ["a.com","b.com"];`) {
		t.Errorf("unexpected body: %s", strings.SplitN(first, "\n", 2)[0])
	}

	do(t, router, http.MethodPost, "/add", `{"host":"c.com"}`, nil)
	h2 := waitPass(t, passes).Hash
	if h2 == h1 {
		t.Fatal("expected a new hash after adding c.com")
	}

	w = do(t, router, http.MethodGet, "/", "", nil)
	if loc := w.Header().Get("Content-Location"); loc != "/"+h2 {
		t.Errorf("Content-Location = %q, want /%s", loc, h2)
	}

	w = do(t, router, http.MethodGet, "/"+h1, "", nil)
	if w.Code != http.StatusOK || w.Body.String() != first {
		t.Error("original artifact is no longer served unchanged")
	}
}

func waitPass(t *testing.T, passes <-chan pac.Artifact) pac.Artifact {
	t.Helper()
	select {
	case a := <-passes:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("no regeneration within 2s")
		return pac.Artifact{}
	}
}
