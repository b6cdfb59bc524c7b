package webmonitor

import (
	"sync"
	"time"

	"github.com/chiliwax/QrCodeReader-v2/internal/metrics"
	"github.com/chiliwax/QrCodeReader-v2/internal/stream"
)

const selectionHistoryLen = 8

// Monitor observes the processor through its callbacks: it keeps the latest
// candidate frame and the most recent selections, and forwards frames to the
// candidate broadcaster.
type Monitor struct {
	startTime time.Time
	metrics   *metrics.Metrics
	frames    *CandidateBroadcaster

	mu         sync.Mutex
	latest     stream.CandidateSet
	selections []stream.Selection // newest first
}

// NewMonitor creates a Monitor that publishes frames through a new
// CandidateBroadcaster.
func NewMonitor(m *metrics.Metrics) *Monitor {
	if m == nil {
		m = metrics.New()
	}
	return &Monitor{
		startTime: time.Now(),
		metrics:   m,
		frames:    NewCandidateBroadcaster(m),
		latest:    stream.CandidateSet{Candidates: []stream.Candidate{}, Status: stream.StatusText(0, false)},
	}
}

// Frames returns the candidate broadcaster.
func (m *Monitor) Frames() *CandidateBroadcaster { return m.frames }

// PublishCandidates is a stream.Config.OnCandidates callback.
func (m *Monitor) PublishCandidates(set stream.CandidateSet) {
	m.mu.Lock()
	if set.Seq >= m.latest.Seq {
		m.latest = set
	}
	m.mu.Unlock()
	m.frames.Publish(set)
}

// RecordSelection is a stream.Config.OnSelect callback.
func (m *Monitor) RecordSelection(sel stream.Selection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.selections = append([]stream.Selection{sel}, m.selections...)
	if len(m.selections) > selectionHistoryLen {
		m.selections = m.selections[:selectionHistoryLen]
	}
}

// Snapshot returns the latest frame, recent selections and counters.
func (m *Monitor) Snapshot() (stream.CandidateSet, []stream.Selection, MonitorStats) {
	m.mu.Lock()
	latest := m.latest
	recent := make([]stream.Selection, len(m.selections))
	copy(recent, m.selections)
	m.mu.Unlock()

	stats := MonitorStats{
		UptimeSeconds:      time.Since(m.startTime).Seconds(),
		DetectionsReceived: m.metrics.DetectionsReceived.Load(),
		DetectionsDropped:  m.metrics.DetectionsDropped.Load(),
		WindowsFlushed:     m.metrics.WindowsFlushed.Load(),
		Selections:         m.metrics.Selections.Load(),
		StreamClients:      m.metrics.ActiveStreamClients.Load(),
	}
	return latest, recent, stats
}
