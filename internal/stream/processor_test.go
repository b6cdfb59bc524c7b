package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chiliwax/QrCodeReader-v2/internal/metrics"
	"github.com/chiliwax/QrCodeReader-v2/internal/payload"
	"github.com/chiliwax/QrCodeReader-v2/pkg/types"
)

type fakeScanner struct {
	mu      sync.Mutex
	pauses  int
	resumes int
}

func (s *fakeScanner) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses++
	return nil
}

func (s *fakeScanner) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumes++
	return nil
}

func (s *fakeScanner) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauses, s.resumes
}

type recordedItem struct {
	d  types.Detection
	id string
	at time.Time
}

type fakeHistory struct {
	mu    sync.Mutex
	items []recordedItem
	err   error
}

func (h *fakeHistory) Record(_ context.Context, d types.Detection, id string, at time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.items = append(h.items, recordedItem{d, id, at})
	return nil
}

func (h *fakeHistory) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

type failingFlags struct{}

func (failingFlags) ScanFlags(context.Context) (Flags, error) {
	return Flags{MultiCode: true, HistoryEnabled: true}, errors.New("disk gone")
}

type harness struct {
	p        *Processor
	scanner  *fakeScanner
	history  *fakeHistory
	metrics  *metrics.Metrics
	mu       sync.Mutex
	sets     []CandidateSet
	selected []Selection
}

var viewport = types.Viewport{Width: 200, Height: 200}

func newHarness(t *testing.T, flags Flags) *harness {
	t.Helper()
	h := &harness{scanner: &fakeScanner{}, history: &fakeHistory{}, metrics: metrics.New()}
	ids := 0
	h.p = New(Config{
		Viewport: viewport,
		Scanner:  h.scanner,
		Flags:    StaticFlags(flags),
		History:  h.history,
		Metrics:  h.metrics,
		OnCandidates: func(s CandidateSet) {
			h.mu.Lock()
			h.sets = append(h.sets, s)
			h.mu.Unlock()
		},
		OnSelect: func(s Selection) {
			h.mu.Lock()
			h.selected = append(h.selected, s)
			h.mu.Unlock()
		},
		Now: func() time.Time { return time.Unix(1700000000, 0) },
		NewID: func() string {
			ids++
			return "id-" + string(rune('0'+ids))
		},
	})
	return h
}

func (h *harness) lastSet(t *testing.T) CandidateSet {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.sets) == 0 {
		t.Fatal("nothing published")
	}
	return h.sets[len(h.sets)-1]
}

func det(data string, x, y float64) types.Detection {
	return types.Detection{
		Payload:      data,
		FormatTag:    "qr",
		Bounds:       &types.Rect{Origin: &types.Point{X: x, Y: y}, Size: types.Size{Width: 20, Height: 20}},
		CornerPoints: []types.Point{{X: x, Y: y}, {X: x + 20, Y: y + 20}},
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFlushDedupesPreservingOrder(t *testing.T) {
	h := newHarness(t, Flags{MultiCode: true})
	ctx := context.Background()

	h.p.HandleDetection(det("A", 0, 0))
	h.p.HandleDetection(det("A", 50, 50))
	h.p.HandleDetection(det("B", 10, 10))
	h.p.Flush(ctx)

	set := h.lastSet(t)
	if got := set.Payloads(); !equalStrings(got, []string{"A", "B"}) {
		t.Fatalf("candidates = %v, want [A B]", got)
	}
	// first occurrence of A wins
	if set.Candidates[0].Bounds.Origin.X != 0 {
		t.Fatalf("kept later duplicate: %+v", set.Candidates[0].Bounds)
	}
	if set.Status != "2 QR codes detected - Tap to select" {
		t.Fatalf("status = %q", set.Status)
	}
	if set.State != Idle {
		t.Fatal("multi-code flush must not lock")
	}
}

func TestEmptyWindowStillPublishes(t *testing.T) {
	h := newHarness(t, Flags{MultiCode: true})
	ctx := context.Background()

	h.p.HandleDetection(det("A", 0, 0))
	h.p.Flush(ctx)
	h.p.Flush(ctx)

	set := h.lastSet(t)
	if len(set.Candidates) != 0 || set.Status != "Scanning for QR code" {
		t.Fatalf("empty window published %+v", set)
	}
	if len(h.sets) != 2 {
		t.Fatalf("published %d sets, want 2", len(h.sets))
	}
}

func TestCandidatesCarryKind(t *testing.T) {
	h := newHarness(t, Flags{MultiCode: true})
	h.p.HandleDetection(det("tel:123", 0, 0))
	h.p.HandleDetection(det("WIFI:S:x;;", 0, 0))
	h.p.Flush(context.Background())

	set := h.lastSet(t)
	if set.Candidates[0].Kind != payload.KindPhone || set.Candidates[1].Kind != payload.KindWiFi {
		t.Fatalf("kinds = %s, %s", set.Candidates[0].Kind, set.Candidates[1].Kind)
	}
}

func TestAutoSelectMostCentered(t *testing.T) {
	h := newHarness(t, Flags{HistoryEnabled: true})
	ctx := context.Background()

	h.p.HandleDetection(det("far", 0, 0))
	h.p.HandleDetection(det("https://example.com", 90, 90)) // centred at (100,100)
	h.p.Flush(ctx)

	if h.p.State() != Locked {
		t.Fatal("single-code flush with candidates must lock")
	}
	if len(h.selected) != 1 || h.selected[0].Detection.Payload != "https://example.com" {
		t.Fatalf("selected = %+v", h.selected)
	}
	sel := h.selected[0]
	if sel.Parsed.Kind != payload.KindURL || sel.Parsed.Subtitle != "example.com" {
		t.Fatalf("parsed = %+v", sel.Parsed)
	}
	if got := h.lastSet(t).Payloads(); !equalStrings(got, []string{"https://example.com"}) {
		t.Fatalf("collapsed set = %v", got)
	}
	if p, _ := h.scanner.counts(); p != 1 {
		t.Fatalf("pauses = %d", p)
	}
	if h.history.len() != 1 || h.history.items[0].id != "id-1" || sel.HistoryID != "id-1" {
		t.Fatalf("history = %+v", h.history.items)
	}
}

func TestLockedDropsDetectionsAndSelections(t *testing.T) {
	h := newHarness(t, Flags{MultiCode: true, HistoryEnabled: true})
	ctx := context.Background()

	h.p.HandleDetection(det("A", 0, 0))
	h.p.HandleDetection(det("B", 0, 0))
	h.p.Flush(ctx)

	if _, ok := h.p.SelectPayload(ctx, "B"); !ok {
		t.Fatal("tap on a candidate must select")
	}
	published := len(h.sets)

	for i := 0; i < 5; i++ {
		if h.p.HandleDetection(det("C", 0, 0)) {
			t.Fatal("detection accepted while locked")
		}
	}
	h.p.Flush(ctx)
	if _, ok := h.p.SelectPayload(ctx, "B"); ok {
		t.Fatal("second tap must be a no-op")
	}
	if _, ok := h.p.Select(ctx, det("A", 0, 0)); ok {
		t.Fatal("select while locked must be a no-op")
	}

	if len(h.sets) != published {
		t.Fatalf("published %d sets while locked", len(h.sets)-published)
	}
	if got := h.p.Candidates(ctx).Payloads(); !equalStrings(got, []string{"B"}) {
		t.Fatalf("candidates changed while locked: %v", got)
	}
	if h.history.len() != 1 || len(h.selected) != 1 {
		t.Fatalf("history=%d selections=%d, want 1/1", h.history.len(), len(h.selected))
	}
	if h.metrics.DetectionsDropped.Load() != 5 || h.metrics.DuplicateSelections.Load() != 2 {
		t.Fatalf("dropped=%d dup=%d", h.metrics.DetectionsDropped.Load(), h.metrics.DuplicateSelections.Load())
	}
}

func TestFlushBatchIsItsOwnWindow(t *testing.T) {
	h := newHarness(t, Flags{MultiCode: true})
	ctx := context.Background()

	h.p.HandleDetection(det("live", 0, 0))
	if !h.p.FlushBatch(ctx, []types.Detection{det("A", 0, 0), det("B", 0, 0), det("A", 5, 5)}, viewport) {
		t.Fatal("FlushBatch dropped while idle")
	}
	if got := h.lastSet(t).Payloads(); !equalStrings(got, []string{"A", "B"}) {
		t.Fatalf("batch window = %v, want [A B]", got)
	}
	h.p.Flush(ctx)
	if got := h.lastSet(t).Payloads(); !equalStrings(got, []string{"live"}) {
		t.Fatalf("live window = %v, want [live]", got)
	}
	if n := h.metrics.DetectionsReceived.Load(); n != 4 {
		t.Fatalf("received = %d, want 4", n)
	}
}

func TestFlushBatchCentresOnGivenViewport(t *testing.T) {
	h := newHarness(t, Flags{})
	ctx := context.Background()

	// (390,390) is the centre of an 800x800 image but far from the 200x200 viewport
	batch := []types.Detection{det("edge", 90, 90), det("mid", 390, 390)}
	if !h.p.FlushBatch(ctx, batch, types.Viewport{Width: 800, Height: 800}) {
		t.Fatal("FlushBatch dropped while idle")
	}
	sel, ok := h.p.Current()
	if !ok || sel.Detection.Payload != "mid" {
		t.Fatalf("selection = %+v, %v", sel, ok)
	}
	if h.p.FlushBatch(ctx, []types.Detection{det("late", 0, 0)}, viewport) {
		t.Fatal("FlushBatch accepted while locked")
	}
	if n := h.metrics.DetectionsDropped.Load(); n != 1 {
		t.Fatalf("dropped = %d, want 1", n)
	}
}

func TestSelectPayloadUnknownCandidate(t *testing.T) {
	h := newHarness(t, Flags{MultiCode: true})
	if _, ok := h.p.SelectPayload(context.Background(), "nope"); ok {
		t.Fatal("unknown payload must not select")
	}
	if h.p.State() != Idle {
		t.Fatal("state changed")
	}
}

func TestSelectionIsSnapshot(t *testing.T) {
	h := newHarness(t, Flags{MultiCode: true})
	ctx := context.Background()

	d := det("A", 1, 2)
	sel, ok := h.p.Select(ctx, d)
	if !ok {
		t.Fatal("select failed")
	}
	d.Bounds.Origin.X = 999
	d.CornerPoints[0].X = 999

	if sel.Detection.Bounds.Origin.X != 1 || sel.Detection.CornerPoints[0].X != 1 {
		t.Fatalf("selection aliased caller memory: %+v", sel.Detection)
	}
	cur, _ := h.p.Current()
	if cur.Detection.Bounds.Origin.X != 1 {
		t.Fatal("stored selection aliased caller memory")
	}
}

func TestResetRearms(t *testing.T) {
	h := newHarness(t, Flags{})
	ctx := context.Background()

	h.p.HandleDetection(det("A", 90, 90))
	h.p.Flush(ctx)
	if h.p.State() != Locked {
		t.Fatal("expected lock")
	}

	h.p.Reset(ctx)
	h.p.Reset(ctx)

	if h.p.State() != Idle {
		t.Fatal("reset must return to idle")
	}
	if _, ok := h.p.Current(); ok {
		t.Fatal("selection survived reset")
	}
	if set := h.lastSet(t); len(set.Candidates) != 0 {
		t.Fatalf("reset published %v", set.Payloads())
	}
	if _, r := h.scanner.counts(); r != 1 {
		t.Fatalf("resumes = %d, want 1", r)
	}

	h.p.HandleDetection(det("B", 90, 90))
	h.p.Flush(ctx)
	if len(h.selected) != 2 || h.selected[1].Detection.Payload != "B" {
		t.Fatalf("pipeline not re-armed: %+v", h.selected)
	}
}

func TestResumeIdempotent(t *testing.T) {
	h := newHarness(t, Flags{})
	ctx := context.Background()

	h.p.Select(ctx, det("A", 0, 0))
	if err := h.p.Resume(); err != nil {
		t.Fatal(err)
	}
	if err := h.p.Resume(); err != nil {
		t.Fatal(err)
	}
	if _, r := h.scanner.counts(); r != 1 {
		t.Fatalf("resumes = %d, want 1", r)
	}
}

func TestContinuousScanKeepsScannerRunning(t *testing.T) {
	h := newHarness(t, Flags{ContinuousScan: true})
	h.p.Select(context.Background(), det("A", 0, 0))
	if p, _ := h.scanner.counts(); p != 0 {
		t.Fatalf("continuous scan paused the scanner %d times", p)
	}
	if h.p.State() != Locked {
		t.Fatal("selection must still lock")
	}
}

func TestHistoryDisabledAndFailures(t *testing.T) {
	h := newHarness(t, Flags{})
	h.p.Select(context.Background(), det("A", 0, 0))
	if h.history.len() != 0 {
		t.Fatal("history written while disabled")
	}

	h = newHarness(t, Flags{HistoryEnabled: true})
	h.history.err = errors.New("write failed")
	sel, ok := h.p.Select(context.Background(), det("A", 0, 0))
	if !ok || sel.HistoryID != "" {
		t.Fatalf("sel=%+v ok=%v", sel, ok)
	}
	if h.metrics.HistoryFailures.Load() != 1 {
		t.Fatal("failure not counted")
	}
}

func TestAutoCopy(t *testing.T) {
	h := newHarness(t, Flags{AutoCopy: true})
	sel, _ := h.p.Select(context.Background(), det("hello", 0, 0))
	if sel.AutoCopy == nil || sel.AutoCopy.Params[payload.ParamText] != "hello" {
		t.Fatalf("auto copy = %+v", sel.AutoCopy)
	}
}

func TestMalformedURLSelection(t *testing.T) {
	h := newHarness(t, Flags{})
	sel, _ := h.p.Select(context.Background(), det("http://", 0, 0))
	if !errors.Is(sel.Err, payload.ErrMalformedURL) || sel.ErrorText == "" {
		t.Fatalf("err = %v", sel.Err)
	}
	if sel.Parsed.Kind != payload.KindText {
		t.Fatalf("fallback kind = %s", sel.Parsed.Kind)
	}
}

func TestFlagReadFailureUsesSafeDefaults(t *testing.T) {
	hist := &fakeHistory{}
	p := New(Config{Viewport: viewport, Flags: failingFlags{}, History: hist})
	p.HandleDetection(det("A", 90, 90))
	p.Flush(context.Background())

	// multi-code reads as off, so the flush auto-selects; history reads as off.
	if p.State() != Locked {
		t.Fatal("expected auto-select with default flags")
	}
	if hist.len() != 0 {
		t.Fatal("history must be treated as disabled")
	}
}

func TestRunFlushesOnTicker(t *testing.T) {
	got := make(chan CandidateSet, 16)
	p := New(Config{
		Window:       10 * time.Millisecond,
		Viewport:     viewport,
		Flags:        StaticFlags{MultiCode: true},
		OnCandidates: func(s CandidateSet) { got <- s },
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.HandleDetection(det("A", 0, 0))
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-got:
			if len(s.Candidates) == 1 && s.Candidates[0].Payload == "A" {
				cancel()
				if err := <-done; !errors.Is(err, context.Canceled) {
					t.Fatalf("Run returned %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("window never flushed")
		}
	}
}

func TestStatusText(t *testing.T) {
	cases := []struct {
		n     int
		multi bool
		want  string
	}{
		{0, true, "Scanning for QR code"},
		{0, false, "Scanning for QR code"},
		{1, false, "QR code detected - Tap to select"},
		{3, false, "QR code detected - Tap to select"},
		{1, true, "1 QR code detected - Tap to select"},
		{2, true, "2 QR codes detected - Tap to select"},
	}
	for _, tc := range cases {
		if got := StatusText(tc.n, tc.multi); got != tc.want {
			t.Errorf("StatusText(%d,%v) = %q, want %q", tc.n, tc.multi, got, tc.want)
		}
	}
}
