package webmonitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chiliwax/QrCodeReader-v2/internal/history"
	"github.com/chiliwax/QrCodeReader-v2/internal/kv"
	"github.com/chiliwax/QrCodeReader-v2/internal/metrics"
	"github.com/chiliwax/QrCodeReader-v2/internal/recorder"
	"github.com/chiliwax/QrCodeReader-v2/internal/settings"
	"github.com/chiliwax/QrCodeReader-v2/internal/stream"
	"github.com/chiliwax/QrCodeReader-v2/pkg/types"
)

const defaultRequestTimeout = 2 * time.Second

// testEnv is a fully wired monitor behind an httptest server. The processor
// ticker is not running; tests close windows with proc.Flush.
type testEnv struct {
	baseURL  string
	client   *http.Client
	server   *Server
	proc     *stream.Processor
	monitor  *Monitor
	history  *history.Store
	settings *settings.Store
	recorder *recorder.Recorder
	metrics  *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := kv.NewMemory()
	m := metrics.New()
	mon := NewMonitor(m)
	st := settings.New(store)
	hist := history.New(store)
	rec := recorder.NewRecorder(t.TempDir(), m)

	proc := stream.New(stream.Config{
		Window:       time.Hour,
		Viewport:     types.Viewport{Width: 400, Height: 800},
		Flags:        st,
		History:      hist,
		Metrics:      m,
		OnCandidates: mon.PublishCandidates,
		OnSelect:     mon.RecordSelection,
		Tap:          func(d types.Detection) { rec.SendDetection(d) },
	})
	srv := NewServer(Config{StatusInterval: 20 * time.Millisecond}, Deps{
		Processor: proc,
		Monitor:   mon,
		History:   hist,
		Settings:  st,
		Recorder:  rec,
		Metrics:   m,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = rec.Close()
	})

	return &testEnv{
		baseURL:  ts.URL,
		client:   &http.Client{Timeout: defaultRequestTimeout},
		server:   srv,
		proc:     proc,
		monitor:  mon,
		history:  hist,
		settings: st,
		recorder: rec,
		metrics:  m,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, data
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	return e.do(t, http.MethodGet, path, nil, "")
}

func (e *testEnv) sendJSON(t *testing.T, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return e.do(t, method, path, bytes.NewReader(data), "application/json")
}

func (e *testEnv) postJSON(t *testing.T, path string, payload any) (*http.Response, []byte) {
	t.Helper()
	return e.sendJSON(t, http.MethodPost, path, payload)
}

func (e *testEnv) flush(t *testing.T) {
	t.Helper()
	e.proc.Flush(context.Background())
}

func readSSEEvent(url, accept string, timeout time.Duration) (string, http.Header, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 256)
	for {
		n, readErr := resp.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			if idx := bytes.Index(buf, []byte("\n\n")); idx >= 0 {
				return string(buf[:idx]), resp.Header, nil
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return "", nil, fmt.Errorf("sse stream closed before event")
			}
			return "", nil, fmt.Errorf("read sse: %w", readErr)
		}
	}
}

func sseData(t *testing.T, event string) string {
	t.Helper()
	for _, line := range strings.Split(event, "\n") {
		if strings.HasPrefix(line, "data:") {
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				t.Fatalf("empty sse data line")
			}
			return payload
		}
	}
	t.Fatalf("no data line in sse event: %q", event)
	return ""
}

func decodeJSONMap(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode json: %v\nbody=%s", err, string(body))
	}
	return payload
}

func requireString(t *testing.T, value any, field string) string {
	t.Helper()
	str, ok := value.(string)
	if !ok {
		t.Fatalf("expected %s to be string, got %T", field, value)
	}
	return str
}

func requireNumber(t *testing.T, value any, field string) float64 {
	t.Helper()
	num, ok := value.(float64)
	if !ok {
		t.Fatalf("expected %s to be number, got %T", field, value)
	}
	return num
}

func requireMap(t *testing.T, value any, field string) map[string]any {
	t.Helper()
	m, ok := value.(map[string]any)
	if !ok {
		t.Fatalf("expected %s to be object, got %T", field, value)
	}
	return m
}

func requireSlice(t *testing.T, value any, field string) []any {
	t.Helper()
	s, ok := value.([]any)
	if !ok {
		t.Fatalf("expected %s to be array, got %T", field, value)
	}
	return s
}

func requireStatus(t *testing.T, resp *http.Response, body []byte, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s status = %d, want %d\nbody=%s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body)
	}
}

// candidatePayloads extracts candidate data strings from a CandidateSet map.
func candidatePayloads(t *testing.T, set map[string]any) []string {
	t.Helper()
	var out []string
	for i, raw := range requireSlice(t, set["candidates"], "candidates") {
		c := requireMap(t, raw, fmt.Sprintf("candidates[%d]", i))
		out = append(out, requireString(t, c["data"], "candidates.data"))
		requireString(t, c["kind"], "candidates.kind")
	}
	return out
}

func assertStatusPayload(t *testing.T, payload map[string]any) {
	t.Helper()
	requireString(t, payload["state"], "state")
	monitor := requireMap(t, payload["monitor"], "monitor")
	requireNumber(t, monitor["uptime_seconds"], "monitor.uptime_seconds")
	requireNumber(t, monitor["detections_received"], "monitor.detections_received")
	requireNumber(t, monitor["windows_flushed"], "monitor.windows_flushed")
	requireNumber(t, monitor["stream_clients"], "monitor.stream_clients")
	requireMap(t, payload["candidates"], "candidates")
	requireSlice(t, payload["recent_selections"], "recent_selections")
	requireMap(t, payload["recording"], "recording")
	requireNumber(t, payload["timestamp"], "timestamp")
}
