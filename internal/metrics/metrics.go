// Package metrics holds the Prometheus collectors for the API server and
// worker. Each process builds its own registry so tests can create as many
// as they like.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smartbudget"

// Outcome labels shared by the recorders.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeOffline  = "offline"
	OutcomeNoUpdate = "no_update"
	OutcomeUpdate   = "update_available"
	OutcomeNotFound = "not_found"
	OutcomeDropped  = "dropped"
	OutcomeRequeued = "requeued"
)

type Metrics struct {
	registry *prometheus.Registry

	updateChecks    *prometheus.CounterVec
	updateDownloads *prometheus.CounterVec
	backupOps       *prometheus.CounterVec
	backupDuration  *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	transactions    *prometheus.CounterVec
	messages        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		updateChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_checks_total",
			Help:      "Release checks by outcome",
		}, []string{"outcome"}),
		updateDownloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_downloads_total",
			Help:      "Installer downloads by outcome",
		}, []string{"outcome"}),
		backupOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_operations_total",
			Help:      "Backup uploads and restores by outcome",
		}, []string{"operation", "outcome"}),
		backupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Time spent uploading or restoring a backup",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "code"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_created_total",
			Help:      "Transactions recorded by kind",
		}, []string{"kind"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_messages_total",
			Help:      "Queue messages handled by outcome",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.updateChecks,
		m.updateDownloads,
		m.backupOps,
		m.backupDuration,
		m.httpRequests,
		m.transactions,
		m.messages,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveUpdateCheck(outcome string) {
	m.updateChecks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveUpdateDownload(outcome string) {
	m.updateDownloads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveBackup(operation, outcome string, elapsed time.Duration) {
	m.backupOps.WithLabelValues(operation, outcome).Inc()
	m.backupDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveHTTP(method, route string, status int) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveTransaction(kind string) {
	m.transactions.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveMessage(outcome string) {
	m.messages.WithLabelValues(outcome).Inc()
}
