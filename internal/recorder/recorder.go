// Package recorder writes the raw detection stream to JSON-lines files and
// plays them back.
package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chiliwax/QrCodeReader-v2/internal/logger"
	"github.com/chiliwax/QrCodeReader-v2/internal/metrics"
	"github.com/chiliwax/QrCodeReader-v2/pkg/types"
)

// Line is one recorded detection. OffsetMs is measured from Start.
type Line struct {
	OffsetMs  int64           `json:"offset_ms"`
	Detection types.Detection `json:"detection"`
}

type event struct {
	at time.Time
	d  types.Detection
}

// Recorder records detections to file. SendDetection never blocks the
// stream; detections are dropped when the write buffer is full.
type Recorder struct {
	mu           sync.RWMutex
	file         *os.File
	w            *bufio.Writer
	filename     string
	basePath     string
	recording    bool
	lineCount    uint64
	dropped      uint64
	bytesWritten uint64
	startTime    time.Time
	events       chan event
	done         chan struct{}
	metrics      *metrics.Metrics
}

// NewRecorder creates a recorder that writes into basePath.
func NewRecorder(basePath string, m *metrics.Metrics) *Recorder {
	if m == nil {
		m = metrics.New()
	}
	return &Recorder{basePath: basePath, metrics: m}
}

// Start begins a new recording. An empty name gets a timestamped one.
func (r *Recorder) Start(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return "", fmt.Errorf("already recording")
	}
	if name == "" {
		name = fmt.Sprintf("detections_%s.jsonl", time.Now().Format("20060102_150405"))
	}
	if filepath.Base(name) != name {
		return "", fmt.Errorf("invalid recording name %q", name)
	}
	if err := os.MkdirAll(r.basePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create recordings dir: %w", err)
	}
	path := filepath.Join(r.basePath, name)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	r.file = file
	r.w = bufio.NewWriter(file)
	r.filename = name
	r.recording = true
	r.lineCount = 0
	r.dropped = 0
	r.bytesWritten = 0
	r.startTime = time.Now()
	r.events = make(chan event, 256)
	r.done = make(chan struct{})
	r.metrics.RecordingActive.Store(1)

	go r.writeLoop(r.events, r.done)
	logger.Info("Recorder", "Recording started: %s", path)
	return path, nil
}

// Stop ends the recording, flushing buffered lines, and returns the path.
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return "", fmt.Errorf("not recording")
	}
	r.recording = false
	events, done := r.events, r.done
	close(events)
	r.mu.Unlock()

	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics.RecordingActive.Store(0)
	path := filepath.Join(r.basePath, r.filename)
	if err := r.w.Flush(); err != nil {
		r.file.Close()
		return path, fmt.Errorf("failed to flush file: %w", err)
	}
	if err := r.file.Close(); err != nil {
		return path, fmt.Errorf("failed to close file: %w", err)
	}
	r.file, r.w = nil, nil
	logger.Info("Recorder", "Recording stopped: %s (%d detections, %d dropped)", path, r.lineCount, r.dropped)
	return path, nil
}

// SendDetection queues d for writing. It reports false when not recording
// or when the buffer is full.
func (r *Recorder) SendDetection(d types.Detection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return false
	}
	select {
	case r.events <- event{at: time.Now(), d: d.Clone()}:
		return true
	default:
		r.dropped++
		return false
	}
}

func (r *Recorder) writeLoop(events <-chan event, done chan<- struct{}) {
	defer close(done)
	for ev := range events {
		r.writeLine(ev)
	}
}

func (r *Recorder) writeLine(ev event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return
	}
	b, err := json.Marshal(Line{OffsetMs: ev.at.Sub(r.startTime).Milliseconds(), Detection: ev.d})
	if err != nil {
		logger.Warn("Recorder", "Encode failed: %v", err)
		return
	}
	b = append(b, '\n')
	n, err := r.w.Write(b)
	if err != nil {
		logger.Warn("Recorder", "Write failed: %v", err)
		return
	}
	r.bytesWritten += uint64(n)
	r.lineCount++
	r.metrics.RecordedDetections.Add(1)
}

// IsRecording returns true if currently recording
func (r *Recorder) IsRecording() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recording
}

// RecordingStatus holds the current recording status
type RecordingStatus struct {
	Recording    bool      `json:"recording"`
	Filename     string    `json:"filename,omitempty"`
	LineCount    uint64    `json:"detection_count"`
	Dropped      uint64    `json:"dropped"`
	BytesWritten uint64    `json:"bytes_written"`
	DurationMs   int64     `json:"duration_ms"`
	StartTime    time.Time `json:"start_time"`
}

// GetStatus returns the current recording status
func (r *Recorder) GetStatus() RecordingStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var dur time.Duration
	if r.recording {
		dur = time.Since(r.startTime)
	}
	return RecordingStatus{
		Recording:    r.recording,
		Filename:     r.filename,
		LineCount:    r.lineCount,
		Dropped:      r.dropped,
		BytesWritten: r.bytesWritten,
		DurationMs:   dur.Milliseconds(),
		StartTime:    r.startTime,
	}
}

// Close stops an active recording.
func (r *Recorder) Close() error {
	if r.IsRecording() {
		_, err := r.Stop()
		return err
	}
	return nil
}
