package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the scanner pipeline counters. Fields are plain atomics so
// the hot path never touches the Prometheus registry.
type Metrics struct {
	// Stream
	DetectionsReceived  atomic.Uint64
	DetectionsDropped   atomic.Uint64 // arrived while locked
	WindowsFlushed      atomic.Uint64
	CandidatesPublished atomic.Uint64
	Selections          atomic.Uint64
	DuplicateSelections atomic.Uint64
	ScannerPauses       atomic.Uint64
	ScannerResumes      atomic.Uint64

	// Classifier / history
	ClassifyErrors  atomic.Uint64
	HistoryWrites   atomic.Uint64
	HistoryFailures atomic.Uint64

	// Image scan
	ImageScans      atomic.Uint64
	EmptyImageScans atomic.Uint64

	// Host surface
	ActiveStreamClients atomic.Int64
	RecordingActive     atomic.Uint64 // 0 = inactive, 1 = active
	RecordedDetections  atomic.Uint64

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.register()
	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: "qrscan_" + name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) register() {
	m.counter("detections_received_total", "Raw detections delivered by the scanner", &m.DetectionsReceived)
	m.counter("detections_dropped_total", "Detections ignored because a selection is locked", &m.DetectionsDropped)
	m.counter("windows_flushed_total", "Detection windows closed and published", &m.WindowsFlushed)
	m.counter("candidates_published_total", "Deduplicated candidates published across all windows", &m.CandidatesPublished)
	m.counter("selections_total", "Detections selected for action", &m.Selections)
	m.counter("duplicate_selections_total", "Selection attempts ignored while locked", &m.DuplicateSelections)
	m.counter("scanner_pauses_total", "Pause commands issued to the scanner", &m.ScannerPauses)
	m.counter("scanner_resumes_total", "Resume commands issued to the scanner", &m.ScannerResumes)
	m.counter("classify_errors_total", "Payloads that failed classification", &m.ClassifyErrors)
	m.counter("history_writes_total", "History records stored", &m.HistoryWrites)
	m.counter("history_failures_total", "History records that failed to store", &m.HistoryFailures)
	m.counter("image_scans_total", "Still images scanned", &m.ImageScans)
	m.counter("image_scans_empty_total", "Still images in which no code was found", &m.EmptyImageScans)
	m.counter("recorded_detections_total", "Detections written to the active recording", &m.RecordedDetections)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "qrscan_stream_clients",
			Help: "Connected candidate stream clients",
		},
		func() float64 { return float64(m.ActiveStreamClients.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "qrscan_recording_active",
			Help: "Recording active (0=inactive, 1=active)",
		},
		func() float64 { return float64(m.RecordingActive.Load()) },
	))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr until the listener fails.
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
