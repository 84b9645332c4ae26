package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the monitor's counters. Hot paths bump plain atomics;
// Prometheus reads them lazily through GaugeFunc collectors.
type Metrics struct {
	FramesFetched  atomic.Uint64
	FetchFailures  atomic.Uint64
	PlatesDetected atomic.Uint64
	OCRMisses      atomic.Uint64

	JobsQueued    atomic.Uint64
	JobsRejected  atomic.Uint64
	JobsCommitted atomic.Uint64
	JobsAbandoned atomic.Uint64

	ProvisionalOccupancy atomic.Int64

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.register()
	return m
}

func (m *Metrics) register() {
	gauges := []struct {
		name string
		help string
		fn   func() float64
	}{
		{"garage_frames_fetched_total", "Camera frames fetched successfully",
			func() float64 { return float64(m.FramesFetched.Load()) }},
		{"garage_fetch_failures_total", "Camera fetch failures (timeout, network, decode)",
			func() float64 { return float64(m.FetchFailures.Load()) }},
		{"garage_plates_detected_total", "Validated plate results produced by the pipeline",
			func() float64 { return float64(m.PlatesDetected.Load()) }},
		{"garage_ocr_misses_total", "Plate candidates that produced no confident reading",
			func() float64 { return float64(m.OCRMisses.Load()) }},
		{"garage_detect_jobs_queued_total", "Detection jobs accepted onto the queue",
			func() float64 { return float64(m.JobsQueued.Load()) }},
		{"garage_detect_jobs_rejected_total", "Detection jobs rejected because the queue was full",
			func() float64 { return float64(m.JobsRejected.Load()) }},
		{"garage_detect_jobs_committed_total", "Detection jobs that persisted a car event",
			func() float64 { return float64(m.JobsCommitted.Load()) }},
		{"garage_detect_jobs_abandoned_total", "Detection jobs abandoned without a result",
			func() float64 { return float64(m.JobsAbandoned.Load()) }},
		{"garage_provisional_occupancy", "Optimistic in-memory occupancy count",
			func() float64 { return float64(m.ProvisionalOccupancy.Load()) }},
	}
	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help}, g.fn,
		))
	}
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
