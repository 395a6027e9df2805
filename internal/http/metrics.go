package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/adsync/internal/domain"
)

var histogramBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120}

func (r *Router) initMetrics() {
	r.metricsOnce.Do(func() {
		r.requestTotal = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adsync",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}))

		r.jobRuns = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adsync",
			Name:      "job_runs_total",
			Help:      "Number of job invocations by outcome",
		}, []string{"job", "outcome"}))

		r.jobDuration = registerHistogramVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "adsync",
			Name:      "job_run_duration_seconds",
			Help:      "Duration of job invocations",
			Buckets:   histogramBuckets,
		}, []string{"job"}))

		r.pingResponses = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adsync",
			Name:      "ping_responses_total",
			Help:      "Health ping outcomes by HTTP status, or transport_error",
		}, []string{"status"}))

		r.metricsInitialized = true
	})
}

func registerCounterVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func registerHistogramVec(h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(h); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
	}
	return h
}

// ObserveRun records a scheduler run.
func (r *Router) ObserveRun(job, outcome string, duration time.Duration) {
	if !r.metricsInitialized {
		return
	}
	r.jobRuns.With(prometheus.Labels{"job": job, "outcome": outcome}).Inc()
	r.jobDuration.With(prometheus.Labels{"job": job}).Observe(duration.Seconds())
}

// RecordPing counts a ping outcome by status code.
func (r *Router) RecordPing(outcome domain.PingOutcome) {
	if !r.metricsInitialized {
		return
	}
	label := "transport_error"
	if outcome.StatusCode != nil {
		label = strconv.Itoa(*outcome.StatusCode)
	}
	r.pingResponses.With(prometheus.Labels{"status": label}).Inc()
}

func (r *Router) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.metricsInitialized {
			next.ServeHTTP(w, req)
			return
		}
		recorder := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, req)
		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		r.requestTotal.With(prometheus.Labels{
			"method": req.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}).Inc()
	})
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.status = code
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	return rr.ResponseWriter.Write(b)
}
