// Package metrics holds the Prometheus collectors for sync activity.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "qbsync"

// Metrics groups the collectors registered by New.
type Metrics struct {
	apiRequests   *prometheus.CounterVec
	apiLatency    *prometheus.HistogramVec
	linesImported *prometheus.CounterVec
	lineErrors    *prometheus.CounterVec
	tokenRefresh  *prometheus.CounterVec
	recategorized *prometheus.CounterVec
}

// New registers collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "api_requests_total",
			Help: "QuickBooks API requests by method and status code.",
		}, []string{"method", "code"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "api_request_seconds",
			Help:    "QuickBooks API request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		linesImported: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "lines_imported_total",
			Help: "Transaction lines upserted by transaction type.",
		}, []string{"type"}),
		lineErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "line_errors_total",
			Help: "Transaction lines that failed to upsert by transaction type.",
		}, []string{"type"}),
		tokenRefresh: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "token_refresh_total",
			Help: "Access token refresh attempts by outcome.",
		}, []string{"outcome"}),
		recategorized: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "recategorize_total",
			Help: "Recategorization writes by outcome.",
		}, []string{"outcome"}),
	}
}

// ObserveRequest records one outbound API call. code 0 means a transport error.
func (m *Metrics) ObserveRequest(method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.apiLatency.WithLabelValues(method).Observe(d.Seconds())
}

// LineImported counts one upserted line.
func (m *Metrics) LineImported(txnType string) {
	if m == nil {
		return
	}
	m.linesImported.WithLabelValues(txnType).Inc()
}

// LineFailed counts one failed line.
func (m *Metrics) LineFailed(txnType string) {
	if m == nil {
		return
	}
	m.lineErrors.WithLabelValues(txnType).Inc()
}

// TokenRefresh counts a refresh attempt; outcome is ok, failed or skipped.
func (m *Metrics) TokenRefresh(outcome string) {
	if m == nil {
		return
	}
	m.tokenRefresh.WithLabelValues(outcome).Inc()
}

// Recategorized counts a write-back; outcome is ok, conflict or failed.
func (m *Metrics) Recategorized(outcome string) {
	if m == nil {
		return
	}
	m.recategorized.WithLabelValues(outcome).Inc()
}
