// Package httpapi is the small operational HTTP surface of the worker:
// health probes, a status snapshot, and an out-of-band reconciliation
// trigger. It carries no note content.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kerbin-io/notarius/internal/lifecycle"
	"github.com/kerbin-io/notarius/internal/locker"
	"github.com/kerbin-io/notarius/internal/queue"
	"github.com/kerbin-io/notarius/internal/reconcile"
)

// API serves the operational endpoints.
type API struct {
	queue      *queue.Queue
	locks      *locker.Manager
	counters   *lifecycle.Counters
	reconciler *reconcile.Service
	logger     *slog.Logger

	ready       atomic.Bool
	reconcileMu sync.Mutex
}

// New returns an API over the given components.
func New(q *queue.Queue, locks *locker.Manager, counters *lifecycle.Counters, reconciler *reconcile.Service, logger *slog.Logger) *API {
	return &API{
		queue:      q,
		locks:      locks,
		counters:   counters,
		reconciler: reconciler,
		logger:     logger,
	}
}

// SetReady marks startup as finished; /health/ready answers 503 before this.
func (a *API) SetReady() {
	a.ready.Store(true)
}

// Router builds the chi router.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", a.handleLive)
	r.Get("/health/ready", a.handleReady)
	r.Get("/status", a.handleStatus)
	r.Post("/reconcile", a.handleReconcile)
	return r
}

func (a *API) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !a.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusResponse is the /status payload.
type statusResponse struct {
	QueueDepth int                `json:"queue_depth"`
	LocksHeld  int                `json:"locks_held"`
	Counters   lifecycle.Snapshot `json:"counters"`
}

func (a *API) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		QueueDepth: a.queue.Depth(),
		LocksHeld:  a.locks.Count(),
		Counters:   a.counters.Snapshot(),
	})
}

func (a *API) handleReconcile(w http.ResponseWriter, _ *http.Request) {
	a.reconcileMu.Lock()
	report, err := a.reconciler.Run()
	a.reconcileMu.Unlock()
	if err != nil {
		a.logger.Error("httpapi: reconcile failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
