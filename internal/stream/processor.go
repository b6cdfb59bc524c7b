// Package stream reduces the raw per-frame detection stream into candidate
// sets and locks onto a single selected detection.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chiliwax/QrCodeReader-v2/internal/geometry"
	"github.com/chiliwax/QrCodeReader-v2/internal/logger"
	"github.com/chiliwax/QrCodeReader-v2/internal/metrics"
	"github.com/chiliwax/QrCodeReader-v2/internal/payload"
	"github.com/chiliwax/QrCodeReader-v2/pkg/types"
)

var log = logger.For("Stream")

// DefaultWindow is the buffering interval between candidate flushes.
const DefaultWindow = 200 * time.Millisecond

// Config wires a Processor to its collaborators. Only Viewport is required;
// nil collaborators are skipped.
type Config struct {
	Window   time.Duration
	Viewport types.Viewport

	Scanner Scanner
	Flags   FlagSource
	History HistoryRecorder
	Metrics *metrics.Metrics

	// OnCandidates receives every published CandidateSet.
	OnCandidates func(CandidateSet)
	// OnSelect receives each selection, once per lock.
	OnSelect func(Selection)
	// Tap observes every detection accepted into a window.
	Tap func(types.Detection)

	Now   func() time.Time
	NewID func() string
}

// Processor is safe for concurrent use. Callbacks run on the caller's
// goroutine without the processor lock held.
type Processor struct {
	cfg     Config
	scanner scannerControl

	mu         sync.Mutex
	state      LockState
	pending    []types.Detection
	candidates []types.Detection
	selection  *Selection
	seq        uint64
	session    uint64 // bumped on every lock
}

// New creates a Processor in the Idle state.
func New(cfg Config) *Processor {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	return &Processor{
		cfg:     cfg,
		scanner: scannerControl{scanner: cfg.Scanner},
	}
}

// Window returns the configured buffering interval.
func (p *Processor) Window() time.Duration { return p.cfg.Window }

// Viewport returns the viewport used for centring.
func (p *Processor) Viewport() types.Viewport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Viewport
}

// SetViewport changes the viewport used for later selections.
func (p *Processor) SetViewport(vp types.Viewport) {
	p.mu.Lock()
	p.cfg.Viewport = vp
	p.mu.Unlock()
}

// HandleDetection buffers d into the current window. It reports false when
// the processor is Locked and d was dropped.
func (p *Processor) HandleDetection(d types.Detection) bool {
	p.cfg.Metrics.DetectionsReceived.Add(1)

	p.mu.Lock()
	if p.state == Locked {
		p.mu.Unlock()
		p.cfg.Metrics.DetectionsDropped.Add(1)
		return false
	}
	p.pending = append(p.pending, d.Clone())
	p.mu.Unlock()

	if p.cfg.Tap != nil {
		p.cfg.Tap(d)
	}
	return true
}

// Run flushes a window every Window until ctx is done.
func (p *Processor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Window)
	defer ticker.Stop()

	log.Infof("Detection window started (%v)", p.cfg.Window)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// Flush closes the current window: the buffered detections are deduplicated
// by payload and published as the new CandidateSet, even when empty. While
// Locked the buffer is discarded and nothing is published. With multi-code
// off, the most centred candidate is then selected.
func (p *Processor) Flush(ctx context.Context) {
	p.closeWindow(ctx, nil, nil)
}

// FlushBatch publishes batch as a window of its own, centred on vp. The
// pending live window is left untouched and batch is never split across
// windows. Still-image scans use it with the image bounds. It reports false
// when the processor is Locked and batch was dropped.
func (p *Processor) FlushBatch(ctx context.Context, batch []types.Detection, vp types.Viewport) bool {
	n := uint64(len(batch))
	p.cfg.Metrics.DetectionsReceived.Add(n)
	if !p.closeWindow(ctx, types.CloneAll(batch), &vp) {
		p.cfg.Metrics.DetectionsDropped.Add(n)
		return false
	}
	if p.cfg.Tap != nil {
		for _, d := range batch {
			p.cfg.Tap(d)
		}
	}
	return true
}

// closeWindow dedupes and publishes one window. A nil batch takes the
// pending buffer. It reports false when Locked.
func (p *Processor) closeWindow(ctx context.Context, batch []types.Detection, within *types.Viewport) bool {
	flags := p.flags(ctx)

	p.mu.Lock()
	if batch == nil {
		batch = p.pending
		p.pending = nil
	}
	if p.state == Locked {
		p.mu.Unlock()
		return false
	}
	p.candidates = dedupe(batch)
	set := p.publishLocked(flags)
	cands := types.CloneAll(p.candidates)
	vp := p.cfg.Viewport
	if within != nil {
		vp = *within
	}
	p.mu.Unlock()

	p.cfg.Metrics.WindowsFlushed.Add(1)
	p.cfg.Metrics.CandidatesPublished.Add(uint64(len(cands)))
	p.emit(set)

	if flags.MultiCode || len(cands) == 0 {
		return true
	}
	if best, ok := geometry.MostCentered(cands, vp); ok {
		p.lock(ctx, best, flags)
	}
	return true
}

// dedupe keeps the first detection per payload, in arrival order.
func dedupe(batch []types.Detection) []types.Detection {
	seen := make(map[string]struct{}, len(batch))
	out := make([]types.Detection, 0, len(batch))
	for _, d := range batch {
		if _, dup := seen[d.Payload]; dup {
			continue
		}
		seen[d.Payload] = struct{}{}
		out = append(out, d)
	}
	return out
}

// Select locks onto d as if the user tapped it. ok is false when a
// selection is already locked.
func (p *Processor) Select(ctx context.Context, d types.Detection) (Selection, bool) {
	return p.lock(ctx, d, p.flags(ctx))
}

// SelectPayload selects the current candidate whose payload matches. ok is
// false when no such candidate exists or a selection is already locked.
func (p *Processor) SelectPayload(ctx context.Context, data string) (Selection, bool) {
	p.mu.Lock()
	var found *types.Detection
	if p.state == Idle {
		for i := range p.candidates {
			if p.candidates[i].Payload == data {
				c := p.candidates[i].Clone()
				found = &c
				break
			}
		}
	}
	locked := p.state == Locked
	p.mu.Unlock()

	if locked {
		p.cfg.Metrics.DuplicateSelections.Add(1)
		return Selection{}, false
	}
	if found == nil {
		return Selection{}, false
	}
	return p.Select(ctx, *found)
}

func (p *Processor) lock(ctx context.Context, d types.Detection, flags Flags) (Selection, bool) {
	p.mu.Lock()
	if p.state == Locked {
		p.mu.Unlock()
		p.cfg.Metrics.DuplicateSelections.Add(1)
		log.Debugf("Selection of %q ignored: already locked", d.Payload)
		return Selection{}, false
	}
	snap := d.Clone()
	now := p.cfg.Now()
	p.state = Locked
	p.session++
	session := p.session
	p.pending = nil
	p.candidates = []types.Detection{snap.Clone()}
	set := p.publishLocked(flags)
	p.mu.Unlock()

	p.cfg.Metrics.Selections.Add(1)
	p.emit(set)

	if !flags.ContinuousScan {
		if sent, err := p.scanner.pause(); err != nil {
			log.Warnf("Scanner pause failed: %v", err)
		} else if sent {
			p.cfg.Metrics.ScannerPauses.Add(1)
		}
	}

	parsed, err := payload.Classify(snap.Payload)
	sel := Selection{Detection: snap, Parsed: parsed, Err: err, At: now}
	if err != nil {
		p.cfg.Metrics.ClassifyErrors.Add(1)
		sel.ErrorText = err.Error()
		log.Warnf("Classify failed: %v", err)
	}
	if flags.AutoCopy {
		sel.AutoCopy = &payload.Action{
			Label:  "Copy",
			Icon:   "copy-outline",
			Effect: payload.EffectCopyText,
			Params: map[string]string{payload.ParamText: snap.Payload},
		}
	}
	if flags.HistoryEnabled && p.cfg.History != nil {
		id := p.cfg.NewID()
		if err := p.cfg.History.Record(ctx, snap.Clone(), id, now); err != nil {
			p.cfg.Metrics.HistoryFailures.Add(1)
			log.Warnf("History write failed for %s: %v", id, err)
		} else {
			p.cfg.Metrics.HistoryWrites.Add(1)
			sel.HistoryID = id
		}
	}

	p.mu.Lock()
	// A reset may have raced with classification.
	if p.state == Locked && p.session == session {
		stored := sel
		p.selection = &stored
	}
	p.mu.Unlock()

	if p.cfg.OnSelect != nil {
		p.cfg.OnSelect(sel)
	}
	return sel, true
}

// Reset returns to Idle, clears all candidate and selection state, resumes
// the scanner and publishes an empty CandidateSet.
func (p *Processor) Reset(ctx context.Context) {
	flags := p.flags(ctx)

	p.mu.Lock()
	p.state = Idle
	p.pending = nil
	p.candidates = nil
	p.selection = nil
	set := p.publishLocked(flags)
	p.mu.Unlock()

	if sent, err := p.scanner.resume(); err != nil {
		log.Warnf("Scanner resume failed: %v", err)
	} else if sent {
		p.cfg.Metrics.ScannerResumes.Add(1)
	}
	p.emit(set)
}

// Resume asks the scanner to resume without touching the lock state.
// Repeated calls are no-ops.
func (p *Processor) Resume() error {
	sent, err := p.scanner.resume()
	if sent && err == nil {
		p.cfg.Metrics.ScannerResumes.Add(1)
	}
	return err
}

// State returns the current lock state.
func (p *Processor) State() LockState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Candidates returns the last published candidate set.
func (p *Processor) Candidates(ctx context.Context) CandidateSet {
	flags := p.flags(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setLocked(flags)
}

// Current returns the locked selection, if any.
func (p *Processor) Current() (Selection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selection == nil {
		return Selection{}, false
	}
	return *p.selection, true
}

func (p *Processor) flags(ctx context.Context) Flags {
	if p.cfg.Flags == nil {
		return Flags{}
	}
	f, err := p.cfg.Flags.ScanFlags(ctx)
	if err != nil {
		log.Warnf("Reading scan settings failed, using defaults: %v", err)
		return Flags{}
	}
	return f
}

// publishLocked bumps the sequence number and builds the set to emit.
// Callers hold p.mu.
func (p *Processor) publishLocked(flags Flags) CandidateSet {
	p.seq++
	return p.setLocked(flags)
}

func (p *Processor) setLocked(flags Flags) CandidateSet {
	cands := make([]Candidate, len(p.candidates))
	for i, d := range p.candidates {
		cands[i] = Candidate{Detection: d.Clone(), Kind: payload.Detect(d.Payload)}
	}
	return CandidateSet{
		Seq:        p.seq,
		Candidates: cands,
		State:      p.state,
		Status:     StatusText(len(cands), flags.MultiCode),
		At:         p.cfg.Now(),
	}
}

func (p *Processor) emit(set CandidateSet) {
	if p.cfg.OnCandidates != nil {
		p.cfg.OnCandidates(set)
	}
}
