package httpapi

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-autodaft/internal/config"
	"github.com/tbourn/go-autodaft/internal/http/handlers"
	"github.com/tbourn/go-autodaft/internal/repo"
	"github.com/tbourn/go-autodaft/internal/scheduler"
)

type fakeSweeps struct{ busy bool }

func (f *fakeSweeps) TriggerMatch() error {
	if f.busy {
		return scheduler.ErrSweepInProgress
	}
	return nil
}

func (f *fakeSweeps) TriggerExpiry() error { return nil }

func (f *fakeSweeps) Status() scheduler.Status { return scheduler.Status{} }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newEngine(t *testing.T, cfg config.Config, sw handlers.Sweeps) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	r := gin.New()
	RegisterRoutes(r, Deps{
		Sweeps:  sw,
		Ledger:  repo.Ledger{DB: db},
		Ping:    func(ctx context.Context) error { return repo.Ping(ctx, db) },
		Version: "test",
		Log:     zerolog.Nop(),
	}, cfg)
	return r
}

func baseCfg() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   10,
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
}

func serve(r http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_ProbesMetricsAndFallbacks(t *testing.T) {
	r := newEngine(t, baseCfg(), &fakeSweeps{})

	for _, p := range []string{"/health", "/ready", "/metrics", "/api/v1/status"} {
		if w := serve(r, http.MethodGet, p, nil); w.Code != http.StatusOK {
			t.Fatalf("GET %s = %d", p, w.Code)
		}
	}

	w := serve(r, http.MethodGet, "/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("NoRoute = %d", w.Code)
	}
	var e handlers.ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &e)
	if e.Code != handlers.ErrCodeNotFound || e.RequestID == "" {
		t.Fatalf("NoRoute body = %+v", e)
	}

	w = serve(r, http.MethodGet, "/api/v1/sweeps/match", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("NoMethod = %d", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &e)
	if e.Code != handlers.ErrCodeMethodNotAllowed {
		t.Fatalf("NoMethod body = %+v", e)
	}
}

func TestRegisterRoutes_OpsHeadersOnAPIOnly(t *testing.T) {
	r := newEngine(t, baseCfg(), &fakeSweeps{})

	if got := serve(r, http.MethodGet, "/api/v1/status", nil).Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("status Cache-Control = %q", got)
	}
	if got := serve(r, http.MethodGet, "/health", nil).Header().Get("Cache-Control"); got != "" {
		t.Fatalf("health Cache-Control = %q", got)
	}
}

func TestRegisterRoutes_SweepTriggersAndRateLimit(t *testing.T) {
	cfg := baseCfg()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 2
	sw := &fakeSweeps{}
	r := newEngine(t, cfg, sw)

	if w := serve(r, http.MethodPost, "/api/v1/sweeps/match", nil); w.Code != http.StatusAccepted {
		t.Fatalf("first trigger = %d", w.Code)
	}
	sw.busy = true
	if w := serve(r, http.MethodPost, "/api/v1/sweeps/match", nil); w.Code != http.StatusConflict {
		t.Fatalf("busy trigger = %d", w.Code)
	}
	w := serve(r, http.MethodPost, "/api/v1/sweeps/expiry", nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("third trigger = %d", w.Code)
	}

	// Reads are not rate limited.
	for i := 0; i < 5; i++ {
		if w := serve(r, http.MethodGet, "/api/v1/status", nil); w.Code != http.StatusOK {
			t.Fatalf("status #%d = %d", i, w.Code)
		}
	}
}

func TestRegisterRoutes_ApplicationsEndpoint(t *testing.T) {
	r := newEngine(t, baseCfg(), &fakeSweeps{})
	w := serve(r, http.MethodGet, "/api/v1/preferences/"+uuid.NewString()+"/applications", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("applications = %d body=%s", w.Code, w.Body.String())
	}
	var resp handlers.ListApplicationsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Pagination.Total != 0 || len(resp.Applications) != 0 || w.Header().Get("ETag") == "" {
		t.Fatalf("resp=%+v etag=%q", resp, w.Header().Get("ETag"))
	}
}

func TestRegisterRoutes_Gzip(t *testing.T) {
	r := newEngine(t, baseCfg(), &fakeSweeps{})

	w := serve(r, http.MethodGet, "/api/v1/status", map[string]string{"Accept-Encoding": "gzip"})
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("status not gzipped: %v", w.Header())
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	body, _ := io.ReadAll(zr)
	var st scheduler.Status
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("json: %v (%s)", err, body)
	}

	w = serve(r, http.MethodGet, "/metrics", map[string]string{"Accept-Encoding": "gzip"})
	if w.Code != http.StatusOK {
		t.Fatalf("metrics = %d", w.Code)
	}
	// promhttp compresses on its own; gin must not wrap it a second time.
	zr, err = gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("metrics gzip reader: %v", err)
	}
	if _, err := gzip.NewReader(zr); err == nil {
		t.Fatalf("metrics body gzipped twice")
	}
}

func TestRegisterRoutes_CORSAllowlist(t *testing.T) {
	cfg := baseCfg()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"https://ops.example.com"}}
	r := newEngine(t, cfg, &fakeSweeps{})

	w := serve(r, http.MethodGet, "/api/v1/status", map[string]string{"Origin": "https://ops.example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example.com" {
		t.Fatalf("allowed origin ACAO = %q", got)
	}

	w = serve(r, http.MethodGet, "/api/v1/status", map[string]string{"Origin": "https://evil.example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("disallowed origin ACAO = %q", got)
	}
}

func TestRegisterRoutes_NoCORSByDefault(t *testing.T) {
	r := newEngine(t, baseCfg(), &fakeSweeps{})
	w := serve(r, http.MethodGet, "/api/v1/status", map[string]string{"Origin": "https://ops.example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("ACAO without allowlist = %q", got)
	}
}

func TestGroupWithPrefix_Root(t *testing.T) {
	cfg := baseCfg()
	cfg.APIBasePath = "/"
	r := newEngine(t, cfg, &fakeSweeps{})
	if w := serve(r, http.MethodGet, "/status", nil); w.Code != http.StatusOK {
		t.Fatalf("root status = %d", w.Code)
	}
}
