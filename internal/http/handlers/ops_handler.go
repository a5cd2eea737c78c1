// Ops HTTP handlers.
//
// This file exposes the admin endpoints of the automation engine:
//   - GET  /health                            (liveness)
//   - GET  /ready                             (database reachable)
//   - GET  {base}/status                      (sweep state and last reports)
//   - POST {base}/sweeps/match                (start a match sweep)
//   - POST {base}/sweeps/expiry               (start an expiry sweep)
//   - GET  {base}/preferences/{id}/applications (ledger rows, paginated, ETag)
//
// Handlers are transport-thin: sweeps run in the scheduler and the ledger is
// read through the repository; nothing here mutates preferences.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-autodaft/internal/domain"
	"github.com/tbourn/go-autodaft/internal/scheduler"
	"github.com/tbourn/go-autodaft/internal/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	readyTimeout    = 2 * time.Second
)

// Sweeps is the scheduler surface used by the ops endpoints.
type Sweeps interface {
	// TriggerMatch starts a match sweep in the background, or returns
	// scheduler.ErrSweepInProgress.
	TriggerMatch() error
	// TriggerExpiry starts an expiry sweep in the background, or returns
	// scheduler.ErrSweepInProgress.
	TriggerExpiry() error
	Status() scheduler.Status
}

// ApplicationReader reads the application ledger.
type ApplicationReader interface {
	ListPage(ctx context.Context, preferenceID string, offset, limit int) ([]domain.Application, int64, error)
	Stats(ctx context.Context, preferenceID string) (int64, *time.Time, error)
}

// PingFunc checks that the database is reachable.
type PingFunc func(ctx context.Context) error

// Handlers groups the ops endpoints.
type Handlers struct {
	sweeps  Sweeps
	ledger  ApplicationReader
	ping    PingFunc
	version string
}

// New constructs Handlers. A nil ping makes /ready always succeed.
func New(sweeps Sweeps, ledger ApplicationReader, ping PingFunc, version string) *Handlers {
	return &Handlers{sweeps: sweeps, ledger: ledger, ping: ping, version: version}
}

// Pagination is the metadata attached to paginated responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListApplicationsResponse is a page of ledger rows for one preference.
type ListApplicationsResponse struct {
	PreferenceID string               `json:"preference_id"`
	Applications []domain.Application `json:"applications"`
	Pagination   Pagination           `json:"pagination"`
}

// SweepAccepted acknowledges a manual sweep trigger.
type SweepAccepted struct {
	Sweep  string `json:"sweep"`
	Status string `json:"status"`
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"status": "ok", "version": h.version})
}

// Ready reports whether the database answers a ping.
func (h *Handlers) Ready(c *gin.Context) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			fail(c, http.StatusServiceUnavailable, ErrCodeNotReady, "database unavailable")
			return
		}
	}
	ok(c, http.StatusOK, gin.H{"status": "ready"})
}

// Status returns the running flags, the next scheduled runs and the last
// sweep reports.
func (h *Handlers) Status(c *gin.Context) {
	ok(c, http.StatusOK, h.sweeps.Status())
}

// TriggerMatch starts a match sweep. 202 when started, 409 when one is
// already running.
func (h *Handlers) TriggerMatch(c *gin.Context) {
	h.trigger(c, "match", h.sweeps.TriggerMatch)
}

// TriggerExpiry starts an expiry sweep. 202 when started, 409 when one is
// already running.
func (h *Handlers) TriggerExpiry(c *gin.Context) {
	h.trigger(c, "expiry", h.sweeps.TriggerExpiry)
}

func (h *Handlers) trigger(c *gin.Context, sweep string, start func() error) {
	if err := start(); err != nil {
		if errors.Is(err, scheduler.ErrSweepInProgress) {
			fail(c, http.StatusConflict, ErrCodeSweepInProgress, fmt.Sprintf("a %s sweep is already running", sweep))
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusAccepted, SweepAccepted{Sweep: sweep, Status: "started"})
}

// ListApplications returns the ledger rows for a preference, oldest first.
//
// A weak ETag derived from the row count and the latest application time is
// set on every response; a matching If-None-Match yields 304.
func (h *Handlers) ListApplications(c *gin.Context) {
	ctx := c.Request.Context()
	prefID := c.Param("id")
	if _, err := uuid.Parse(prefID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "preference id must be a UUID")
		return
	}

	// ETag pre-check is best effort; a stats failure falls through to the list.
	if count, last, err := h.ledger.Stats(ctx, prefID); err == nil {
		var ts int64
		if last != nil {
			ts = last.UnixNano()
		}
		etag := fmt.Sprintf(`W/"applications:%s:%d:%d"`, prefID, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	page := utils.ParsePage(c.Query("page"), c.Query("page_size"), defaultPageSize, maxPageSize)
	items, total, err := h.ledger.ListPage(ctx, prefID, page.Offset(), page.Size)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "failed to list applications")
		return
	}
	if items == nil {
		items = []domain.Application{}
	}

	totalPages := page.TotalPages(total)
	ok(c, http.StatusOK, ListApplicationsResponse{
		PreferenceID: prefID,
		Applications: items,
		Pagination: Pagination{
			Page:       page.Number,
			PageSize:   page.Size,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page.Number < totalPages,
		},
	})
}
