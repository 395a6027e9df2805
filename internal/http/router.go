package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/adsync/internal/domain"
	"github.com/splax/adsync/internal/repository"
	"github.com/splax/adsync/internal/status"
)

// Archive exposes archived exports and ping outcomes.
type Archive interface {
	ListExports(ctx context.Context, limit int) ([]domain.ExportRecord, error)
	GetExport(ctx context.Context, id string) (*domain.ExportRecord, error)
	ListPings(ctx context.Context, limit int) ([]domain.PingOutcome, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Router exposes the operational HTTP surface.
type Router struct {
	mux                chi.Router
	logger             *slog.Logger
	store              status.Store
	archive            Archive
	database           HealthChecker
	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	jobRuns            *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
	pingResponses      *prometheus.CounterVec
}

const healthCheckTimeout = 2 * time.Second

// Option customises a Router.
type Option func(*Router)

// WithArchive enables the export and ping history endpoints.
func WithArchive(a Archive) Option {
	return func(r *Router) { r.archive = a }
}

// WithDatabase adds the database to the health report.
func WithDatabase(db HealthChecker) Option {
	return func(r *Router) { r.database = db }
}

// New creates and registers handlers.
func New(logger *slog.Logger, store status.Store, opts ...Option) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		logger: logger,
		store:  store,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.initMetrics()
	r.routes()
	return r
}

// ServeHTTP satisfies http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) routes() {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(r.instrument)

	mux.Handle("/metrics", promhttp.Handler())
	mux.Get("/healthz", r.handleHealth)
	mux.Get("/status", r.handleStatusList)
	mux.Get("/status/{job}", r.handleStatusGet)
	if r.archive != nil {
		mux.Get("/exports", r.handleExportList)
		mux.Get("/exports/{id}", r.handleExportGet)
		mux.Get("/pings", r.handlePingList)
	}
	mux.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		r.writeError(w, http.StatusNotFound, "not found")
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		r.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.mux = mux
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
	defer cancel()

	components := map[string]any{}
	healthy := true
	check := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			healthy = false
			components[name] = map[string]any{"status": "down", "error": err.Error()}
			return
		}
		components[name] = map[string]any{"status": "up"}
	}
	if r.store != nil {
		check("status_store", func(ctx context.Context) error {
			_, err := r.store.List(ctx)
			return err
		})
	}
	if r.database != nil {
		check("database", r.database.Ping)
	}

	state := "ok"
	code := http.StatusOK
	if !healthy {
		state = "degraded"
		code = http.StatusServiceUnavailable
	}
	r.writeJSON(w, code, map[string]any{
		"status":     state,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (r *Router) handleStatusList(w http.ResponseWriter, req *http.Request) {
	if r.store == nil {
		r.writeJSON(w, http.StatusOK, []domain.RunRecord{})
		return
	}
	records, err := r.store.List(req.Context())
	if err != nil {
		r.logger.Error("list run records", "error", err)
		r.writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	if records == nil {
		records = []domain.RunRecord{}
	}
	r.writeJSON(w, http.StatusOK, records)
}

func (r *Router) handleStatusGet(w http.ResponseWriter, req *http.Request) {
	job := chi.URLParam(req, "job")
	if r.store == nil {
		r.writeError(w, http.StatusNotFound, "no run recorded for "+job)
		return
	}
	record, err := r.store.Get(req.Context(), job)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			r.writeError(w, http.StatusNotFound, "no run recorded for "+job)
			return
		}
		r.logger.Error("get run record", "job", job, "error", err)
		r.writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	r.writeJSON(w, http.StatusOK, record)
}

func (r *Router) handleExportList(w http.ResponseWriter, req *http.Request) {
	limit, ok := r.parseLimit(w, req)
	if !ok {
		return
	}
	records, err := r.archive.ListExports(req.Context(), limit)
	if err != nil {
		r.logger.Error("list exports", "error", err)
		r.writeError(w, http.StatusInternalServerError, "archive unavailable")
		return
	}
	if records == nil {
		records = []domain.ExportRecord{}
	}
	r.writeJSON(w, http.StatusOK, records)
}

func (r *Router) handleExportGet(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	record, err := r.archive.GetExport(req.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.writeError(w, http.StatusNotFound, "export not found")
			return
		}
		r.logger.Error("get export", "export_id", id, "error", err)
		r.writeError(w, http.StatusInternalServerError, "archive unavailable")
		return
	}
	r.writeJSON(w, http.StatusOK, record)
}

func (r *Router) handlePingList(w http.ResponseWriter, req *http.Request) {
	limit, ok := r.parseLimit(w, req)
	if !ok {
		return
	}
	outcomes, err := r.archive.ListPings(req.Context(), limit)
	if err != nil {
		r.logger.Error("list pings", "error", err)
		r.writeError(w, http.StatusInternalServerError, "archive unavailable")
		return
	}
	if outcomes == nil {
		outcomes = []domain.PingOutcome{}
	}
	r.writeJSON(w, http.StatusOK, outcomes)
}

func (r *Router) parseLimit(w http.ResponseWriter, req *http.Request) (int, bool) {
	raw := req.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		r.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}

func (r *Router) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.logger.Error("failed to encode response", "error", err)
	}
}

func (r *Router) writeError(w http.ResponseWriter, code int, msg string) {
	r.writeJSON(w, code, map[string]string{"error": msg})
}
