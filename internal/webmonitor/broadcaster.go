package webmonitor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chiliwax/QrCodeReader-v2/internal/logger"
	"github.com/chiliwax/QrCodeReader-v2/internal/metrics"
	"github.com/chiliwax/QrCodeReader-v2/internal/stream"
)

// SerializedEvent holds pre-serialized data in both formats.
// This avoids redundant serialization when broadcasting to multiple clients.
type SerializedEvent struct {
	JSONData     []byte // Pre-serialized JSON
	ProtobufData []byte // google.protobuf.Struct, base64 encoded for SSE
}

// serialize encodes v as JSON and as a protobuf Struct built from the same
// JSON, so both formats carry identical field names.
func serialize(v any) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(jsonData, &fields); err != nil {
		return nil, fmt.Errorf("json object: %w", err)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("protobuf struct: %w", err)
	}
	pbData, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("protobuf marshal: %w", err)
	}
	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}

// decodeProtobufEvent reverses the protobuf half of serialize.
func decodeProtobufEvent(data []byte) (*structpb.Struct, error) {
	raw, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, err
	}
	st := &structpb.Struct{}
	if err := proto.Unmarshal(raw, st); err != nil {
		return nil, err
	}
	return st, nil
}

// fanout manages the SSE client channels shared by both broadcasters.
type fanout struct {
	name    string
	metrics *metrics.Metrics

	mu      sync.Mutex
	clients map[int]chan *SerializedEvent
	nextID  int
}

func newFanout(name string, m *metrics.Metrics) fanout {
	return fanout{name: name, metrics: m, clients: make(map[int]chan *SerializedEvent)}
}

// Subscribe adds a new client and returns a channel for receiving events.
func (f *fanout) Subscribe() (int, <-chan *SerializedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan *SerializedEvent, 4) // Buffer a few events to avoid blocking
	f.clients[id] = ch
	f.metrics.ActiveStreamClients.Add(1)

	logger.Debug(f.name, "Client #%d subscribed (total clients: %d)", id, len(f.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (f *fanout) Unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ch, ok := f.clients[id]; ok {
		close(ch)
		delete(f.clients, id)
		f.metrics.ActiveStreamClients.Add(-1)
		logger.Debug(f.name, "Client #%d unsubscribed (remaining clients: %d)", id, len(f.clients))
	}
}

// ClientCount returns the number of subscribed clients.
func (f *fanout) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fanout) broadcast(event *SerializedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.clients {
		select {
		case ch <- event:
		default:
			// Client too slow; it will catch up on the next frame.
		}
	}
}

// CandidateBroadcaster fans CandidateSet frames out to SSE clients.
// New subscribers receive the latest frame first.
type CandidateBroadcaster struct {
	fanout

	lastMu  sync.Mutex
	lastSeq uint64
	last    *SerializedEvent
}

// NewCandidateBroadcaster creates a broadcaster for candidate frames.
func NewCandidateBroadcaster(m *metrics.Metrics) *CandidateBroadcaster {
	if m == nil {
		m = metrics.New()
	}
	return &CandidateBroadcaster{fanout: newFanout("CandidateBroadcaster", m)}
}

// Subscribe adds a client, priming its channel with the latest frame.
func (cb *CandidateBroadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	cb.lastMu.Lock()
	defer cb.lastMu.Unlock()

	cb.fanout.mu.Lock()
	id := cb.nextID
	cb.nextID++
	ch := make(chan *SerializedEvent, 4)
	if cb.last != nil {
		ch <- cb.last
	}
	cb.clients[id] = ch
	cb.metrics.ActiveStreamClients.Add(1)
	n := len(cb.clients)
	cb.fanout.mu.Unlock()

	logger.Debug(cb.name, "Client #%d subscribed (total clients: %d)", id, n)
	return id, ch
}

// Publish serializes set and broadcasts it. Sets older than the last
// published one are dropped.
func (cb *CandidateBroadcaster) Publish(set stream.CandidateSet) {
	cb.lastMu.Lock()
	defer cb.lastMu.Unlock()

	if cb.last != nil && set.Seq < cb.lastSeq {
		logger.Debug(cb.name, "Dropping stale frame seq=%d (last=%d)", set.Seq, cb.lastSeq)
		return
	}
	event, err := serialize(set)
	if err != nil {
		logger.Error(cb.name, "Serialize frame seq=%d: %v", set.Seq, err)
		return
	}
	cb.lastSeq = set.Seq
	cb.last = event
	cb.broadcast(event)
}

// StatusBroadcaster periodically broadcasts a status snapshot to SSE clients.
type StatusBroadcaster struct {
	fanout

	interval time.Duration
	snapshot func() any

	stopMu  sync.Mutex
	stop    chan struct{}
	stopped bool
}

// NewStatusBroadcaster creates a broadcaster that publishes snapshot() every
// interval while at least one client is connected.
func NewStatusBroadcaster(interval time.Duration, snapshot func() any, m *metrics.Metrics) *StatusBroadcaster {
	if m == nil {
		m = metrics.New()
	}
	return &StatusBroadcaster{
		fanout:   newFanout("StatusBroadcaster", m),
		interval: interval,
		snapshot: snapshot,
		stop:     make(chan struct{}),
	}
}

// Start begins the status event loop.
func (sb *StatusBroadcaster) Start() {
	go sb.run()
}

// Stop halts the broadcaster.
func (sb *StatusBroadcaster) Stop() {
	sb.stopMu.Lock()
	if !sb.stopped {
		close(sb.stop)
		sb.stopped = true
	}
	sb.stopMu.Unlock()
}

func (sb *StatusBroadcaster) run() {
	logger.Info("StatusBroadcaster", "Starting status event broadcaster (interval=%v)...", sb.interval)
	ticker := time.NewTicker(sb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sb.stop:
			return
		case <-ticker.C:
			if sb.ClientCount() == 0 {
				continue
			}
			event, err := serialize(sb.snapshot())
			if err != nil {
				logger.Error("StatusBroadcaster", "Serialize status: %v", err)
				continue
			}
			sb.broadcast(event)
		}
	}
}
