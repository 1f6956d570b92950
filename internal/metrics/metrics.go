// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/boardwatch/internal/crawler"
)

var (
	cyclesTotal                *prometheus.CounterVec
	cycleDurationSeconds       prometheus.Histogram
	itemsTotal                 *prometheus.CounterVec
	unresolvedFieldsTotal      *prometheus.CounterVec
	boardEntries               prometheus.Gauge
	nextCycleDelaySeconds      prometheus.Gauge
	lastCrawlID                prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		cyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boardwatch_cycles_total",
				Help: "Total number of harvest cycles, labeled by outcome.",
			},
			[]string{"status"},
		)

		cycleDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "boardwatch_cycle_duration_seconds",
				Help:    "Histogram of harvest cycle durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
		)

		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boardwatch_items_total",
				Help: "Total number of board items processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		unresolvedFieldsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boardwatch_unresolved_fields_total",
				Help: "Total number of item fields left unresolved, labeled by field.",
			},
			[]string{"field"},
		)

		boardEntries = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "boardwatch_board_entries",
				Help: "Number of entries harvested from the most recent board.",
			},
		)

		nextCycleDelaySeconds = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "boardwatch_next_cycle_delay_seconds",
				Help: "Sleep before the next cycle, as computed after the last one.",
			},
		)

		lastCrawlID = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "boardwatch_last_crawl_id",
				Help: "Identifier of the most recently opened crawl.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boardwatch_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "boardwatch_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Recorder feeds orchestrator events into the package collectors.
type Recorder struct{}

// NewRecorder initializes the collectors and returns a Recorder.
func NewRecorder() Recorder {
	Init()
	return Recorder{}
}

// ObserveCycle records the outcome and duration of one cycle.
func (Recorder) ObserveCycle(report crawler.CycleReport) {
	cyclesTotal.WithLabelValues(report.Status()).Inc()
	cycleDurationSeconds.Observe(report.Duration.Seconds())
	if report.Opened {
		lastCrawlID.Set(float64(report.CrawlID))
	}
}

// ObserveBoard records the number of entries taken from the board.
func (Recorder) ObserveBoard(entries int) {
	boardEntries.Set(float64(entries))
}

// ObserveItem counts an item outcome and its unresolved fields.
func (Recorder) ObserveItem(outcome string, unresolved []string) {
	itemsTotal.WithLabelValues(outcome).Inc()
	for _, field := range unresolved {
		unresolvedFieldsTotal.WithLabelValues(field).Inc()
	}
}

// ObserveNextCycleDelay records the computed inter-cycle sleep.
func (Recorder) ObserveNextCycleDelay(delay time.Duration) {
	nextCycleDelaySeconds.Set(delay.Seconds())
}
