// Package metrics provides Prometheus metrics for enrollstat.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes.
const (
	ResultPublished = "published"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Refresh metrics
	Refreshes       *prometheus.CounterVec
	RefreshDuration *prometheus.HistogramVec
	StageDuration   *prometheus.HistogramVec
	LastSuccess     *prometheus.GaugeVec

	// Shape of the served result
	Courses          *prometheus.GaugeVec
	Dates            *prometheus.GaugeVec
	SnapshotsLoaded  *prometheus.GaugeVec
	UnmatchedCourses *prometheus.GaugeVec
	BundleBytes      *prometheus.GaugeVec

	// Error metrics
	SourceErrors  *prometheus.CounterVec
	StorageErrors *prometheus.CounterVec
	CatalogErrors prometheus.Counter
	EventErrors   prometheus.Counter

	// HTTP
	Requests *prometheus.CounterVec
}

// Config holds metrics configuration.
type Config struct {
	Enabled   bool
	Namespace string
}

// New registers all metrics on a fresh registry under namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "enrollstat"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	pair := []string{"current_term", "previous_term"}

	return &Metrics{
		registry: reg,
		Refreshes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refreshes_total",
				Help:      "Refresh runs by outcome",
			},
			append(pair, "result"),
		),
		RefreshDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refresh_duration_seconds",
				Help:      "Time to run a refresh end to end",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			pair,
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refresh_stage_duration_seconds",
				Help:      "Time spent in each refresh stage (load, compute, publish)",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
			},
			[]string{"stage"},
		),
		LastSuccess: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last published refresh",
			},
			pair,
		),
		Courses: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "courses",
				Help:      "Courses in the last published enrollment matrix",
			},
			pair,
		),
		Dates: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "snapshot_dates",
				Help:      "Snapshot dates in the last published enrollment matrix",
			},
			pair,
		),
		SnapshotsLoaded: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "snapshots_loaded",
				Help:      "Snapshot files decoded for a term in the last refresh",
			},
			[]string{"term"},
		),
		UnmatchedCourses: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "unmatched_courses",
				Help:      "Courses with no baseline entry in the last refresh",
			},
			[]string{"baseline"},
		),
		BundleBytes: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "bundle_bytes",
				Help:      "Size of the last published build files",
			},
			[]string{"file"},
		),
		SourceErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_errors_total",
				Help:      "Snapshot load failures",
			},
			[]string{"term"},
		),
		StorageErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Bundle publish failures",
			},
			[]string{"operation"},
		),
		CatalogErrors: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_errors_total",
				Help:      "Refresh catalog write failures",
			},
		),
		EventErrors: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_errors_total",
				Help:      "Refresh event emission failures",
			},
		),
		Requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "API requests by route and status",
			},
			[]string{"route", "code"},
		),
	}
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Labels identifies the term pair of a refresh.
type Labels struct {
	CurrentTerm  string
	PreviousTerm string
}

func (l Labels) values(extra ...string) []string {
	return append([]string{l.CurrentTerm, l.PreviousTerm}, extra...)
}

// IncRefresh counts a refresh with the given outcome.
func (m *Metrics) IncRefresh(l Labels, result string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(l.values(result)...).Inc()
}

// ObserveRefreshDuration records the end-to-end refresh time.
func (m *Metrics) ObserveRefreshDuration(l Labels, d time.Duration) {
	if m == nil {
		return
	}
	m.RefreshDuration.WithLabelValues(l.values()...).Observe(d.Seconds())
}

// ObserveStage records the time spent in one refresh stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SetPublished records the shape of a published result.
func (m *Metrics) SetPublished(l Labels, courses, dates int, at time.Time) {
	if m == nil {
		return
	}
	m.Courses.WithLabelValues(l.values()...).Set(float64(courses))
	m.Dates.WithLabelValues(l.values()...).Set(float64(dates))
	m.LastSuccess.WithLabelValues(l.values()...).Set(float64(at.Unix()))
}

// SetSnapshotsLoaded records how many snapshots a term had.
func (m *Metrics) SetSnapshotsLoaded(term string, n int) {
	if m == nil {
		return
	}
	m.SnapshotsLoaded.WithLabelValues(term).Set(float64(n))
}

// SetUnmatched records the unmatched course count of a baseline.
func (m *Metrics) SetUnmatched(baseline string, n int) {
	if m == nil {
		return
	}
	m.UnmatchedCourses.WithLabelValues(baseline).Set(float64(n))
}

// SetBundleBytes records the size of a published file.
func (m *Metrics) SetBundleBytes(file string, n int) {
	if m == nil {
		return
	}
	m.BundleBytes.WithLabelValues(file).Set(float64(n))
}

// IncSourceErrors counts a failed term load.
func (m *Metrics) IncSourceErrors(term string) {
	if m == nil {
		return
	}
	m.SourceErrors.WithLabelValues(term).Inc()
}

// IncStorageErrors counts a failed storage operation.
func (m *Metrics) IncStorageErrors(operation string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(operation).Inc()
}

// IncCatalogErrors counts a failed catalog write.
func (m *Metrics) IncCatalogErrors() {
	if m == nil {
		return
	}
	m.CatalogErrors.Inc()
}

// IncEventErrors counts a failed event emission.
func (m *Metrics) IncEventErrors() {
	if m == nil {
		return
	}
	m.EventErrors.Inc()
}

// IncRequests counts an API request.
func (m *Metrics) IncRequests(route, code string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, code).Inc()
}
