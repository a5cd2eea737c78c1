package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-autodaft/internal/domain"
	"github.com/tbourn/go-autodaft/internal/repo"
	"github.com/tbourn/go-autodaft/internal/scheduler"
)

// ---------- test plumbing ----------

type stubSweeps struct {
	matchErr  error
	expiryErr error
	status    scheduler.Status
	matches   int
	expiries  int
}

func (s *stubSweeps) TriggerMatch() error { s.matches++; return s.matchErr }
func (s *stubSweeps) TriggerExpiry() error { s.expiries++; return s.expiryErr }
func (s *stubSweeps) Status() scheduler.Status { return s.status }

type stubLedger struct {
	list  func(ctx context.Context, prefID string, offset, limit int) ([]domain.Application, int64, error)
	stats func(ctx context.Context, prefID string) (int64, *time.Time, error)
}

func (s stubLedger) ListPage(ctx context.Context, prefID string, offset, limit int) ([]domain.Application, int64, error) {
	return s.list(ctx, prefID, offset, limit)
}

func (s stubLedger) Stats(ctx context.Context, prefID string) (int64, *time.Time, error) {
	if s.stats == nil {
		return 0, nil, errors.New("no stats")
	}
	return s.stats(ctx, prefID)
}

func newRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/status", h.Status)
	r.POST("/sweeps/match", h.TriggerMatch)
	r.POST("/sweeps/expiry", h.TriggerExpiry)
	r.GET("/preferences/:id/applications", h.ListApplications)
	return r
}

func do(r http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("error body: %v (%s)", err, w.Body.String())
	}
	return e
}

// ---------- health / ready / status ----------

func TestHealth(t *testing.T) {
	r := newRouter(New(&stubSweeps{}, stubLedger{}, nil, "v1.2.3"))
	w := do(r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "ok" || body["version"] != "v1.2.3" {
		t.Fatalf("body=%v", body)
	}
}

func TestReady(t *testing.T) {
	cases := []struct {
		name string
		ping PingFunc
		want int
	}{
		{"no ping", nil, http.StatusOK},
		{"ping ok", func(context.Context) error { return nil }, http.StatusOK},
		{"ping fails", func(context.Context) error { return errors.New("down") }, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(New(&stubSweeps{}, stubLedger{}, tc.ping, "dev"))
			w := do(r, http.MethodGet, "/ready", nil)
			if w.Code != tc.want {
				t.Fatalf("status=%d want %d", w.Code, tc.want)
			}
			if tc.want != http.StatusOK {
				if e := decodeError(t, w); e.Code != ErrCodeNotReady {
					t.Fatalf("code=%q", e.Code)
				}
			}
		})
	}
}

func TestReady_PingHasDeadline(t *testing.T) {
	var hadDeadline bool
	ping := func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}
	do(newRouter(New(&stubSweeps{}, stubLedger{}, ping, "dev")), http.MethodGet, "/ready", nil)
	if !hadDeadline {
		t.Fatalf("ping context has no deadline")
	}
}

func TestStatus(t *testing.T) {
	next := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	sw := &stubSweeps{status: scheduler.Status{
		MatchRunning: true,
		NextExpiry:   &next,
		LastMatch:    &scheduler.MatchReport{Preferences: 3, Applied: 2},
	}}
	w := do(newRouter(New(sw, stubLedger{}, nil, "dev")), http.MethodGet, "/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var got scheduler.Status
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !got.MatchRunning || got.ExpiryRunning || got.NextExpiry == nil || !got.NextExpiry.Equal(next) {
		t.Fatalf("unexpected status: %+v", got)
	}
	if got.LastMatch == nil || got.LastMatch.Applied != 2 || got.LastExpiry != nil {
		t.Fatalf("unexpected reports: %+v", got)
	}
}

// ---------- sweep triggers ----------

func TestTriggerSweeps(t *testing.T) {
	cases := []struct {
		name     string
		path     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"match accepted", "/sweeps/match", nil, http.StatusAccepted, ""},
		{"expiry accepted", "/sweeps/expiry", nil, http.StatusAccepted, ""},
		{"match busy", "/sweeps/match", scheduler.ErrSweepInProgress, http.StatusConflict, ErrCodeSweepInProgress},
		{"expiry busy", "/sweeps/expiry", scheduler.ErrSweepInProgress, http.StatusConflict, ErrCodeSweepInProgress},
		{"unexpected", "/sweeps/match", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sw := &stubSweeps{matchErr: tc.err, expiryErr: tc.err}
			w := do(newRouter(New(sw, stubLedger{}, nil, "dev")), http.MethodPost, tc.path, nil)
			if w.Code != tc.wantCode {
				t.Fatalf("status=%d want %d", w.Code, tc.wantCode)
			}
			if sw.matches+sw.expiries != 1 {
				t.Fatalf("trigger calls = %d/%d", sw.matches, sw.expiries)
			}
			if tc.wantErr != "" {
				if e := decodeError(t, w); e.Code != tc.wantErr {
					t.Fatalf("code=%q want %q", e.Code, tc.wantErr)
				}
				return
			}
			var acc SweepAccepted
			_ = json.Unmarshal(w.Body.Bytes(), &acc)
			if acc.Status != "started" || acc.Sweep == "" {
				t.Fatalf("body=%+v", acc)
			}
		})
	}
}

// ---------- applications ----------

func TestListApplications_InvalidID(t *testing.T) {
	called := false
	led := stubLedger{list: func(context.Context, string, int, int) ([]domain.Application, int64, error) {
		called = true
		return nil, 0, nil
	}}
	w := do(newRouter(New(&stubSweeps{}, led, nil, "dev")), http.MethodGet, "/preferences/not-a-uuid/applications", nil)
	if w.Code != http.StatusBadRequest || called {
		t.Fatalf("status=%d called=%v", w.Code, called)
	}
	if e := decodeError(t, w); e.Code != ErrCodeBadRequest {
		t.Fatalf("code=%q", e.Code)
	}
}

func TestListApplications_PaginationAndErrors(t *testing.T) {
	id := uuid.NewString()

	var gotOffset, gotLimit int
	led := stubLedger{list: func(_ context.Context, prefID string, offset, limit int) ([]domain.Application, int64, error) {
		gotOffset, gotLimit = offset, limit
		return []domain.Application{{ID: "a", PreferenceID: prefID, ListingReference: "https://daft.ie/1"}}, 45, nil
	}}
	w := do(newRouter(New(&stubSweeps{}, led, nil, "dev")), http.MethodGet, "/preferences/"+id+"/applications?page=2&page_size=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if gotOffset != 10 || gotLimit != 10 {
		t.Fatalf("offset/limit = %d/%d", gotOffset, gotLimit)
	}
	var resp ListApplicationsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	want := Pagination{Page: 2, PageSize: 10, Total: 45, TotalPages: 5, HasNext: true}
	if resp.Pagination != want || resp.PreferenceID != id || len(resp.Applications) != 1 {
		t.Fatalf("resp=%+v", resp)
	}
	if w.Header().Get("ETag") != "" {
		t.Fatalf("ETag set although stats failed")
	}

	failing := stubLedger{list: func(context.Context, string, int, int) ([]domain.Application, int64, error) {
		return nil, 0, domain.ErrRepository
	}}
	w = do(newRouter(New(&stubSweeps{}, failing, nil, "dev")), http.MethodGet, "/preferences/"+id+"/applications", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	if e := decodeError(t, w); e.Code != ErrCodeListFailed {
		t.Fatalf("code=%q", e.Code)
	}
}

func TestListApplications_NilPageIsEmptyArray(t *testing.T) {
	led := stubLedger{list: func(context.Context, string, int, int) ([]domain.Application, int64, error) {
		return nil, 0, nil
	}}
	w := do(newRouter(New(&stubSweeps{}, led, nil, "dev")), http.MethodGet, "/preferences/"+uuid.NewString()+"/applications", nil)
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("json: %v", err)
	}
	if string(raw["applications"]) != "[]" {
		t.Fatalf("applications = %s", raw["applications"])
	}
}

func newLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestListApplications_ETagAgainstLedger(t *testing.T) {
	db := newLedgerDB(t)
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	led := repo.Ledger{DB: db, Now: func() time.Time { return at }}
	id := uuid.NewString()
	ctx := context.Background()
	if _, err := led.RecordIfNew(ctx, id, "https://daft.ie/1"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := newRouter(New(&stubSweeps{}, led, nil, "dev"))
	path := "/preferences/" + id + "/applications"

	w := do(r, http.MethodGet, path, nil)
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag == "" {
		t.Fatalf("status=%d etag=%q", w.Code, etag)
	}

	w = do(r, http.MethodGet, path, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("status=%d want 304", w.Code)
	}

	at = at.Add(time.Hour)
	if _, err := led.RecordIfNew(ctx, id, "https://daft.ie/2"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	w = do(r, http.MethodGet, path, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK || w.Header().Get("ETag") == etag {
		t.Fatalf("status=%d etag unchanged=%v", w.Code, w.Header().Get("ETag") == etag)
	}
	var resp ListApplicationsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Pagination.Total != 2 || resp.Applications[0].ListingReference != "https://daft.ie/1" {
		t.Fatalf("resp=%+v", resp)
	}
}
