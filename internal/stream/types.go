package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/chiliwax/QrCodeReader-v2/internal/payload"
	"github.com/chiliwax/QrCodeReader-v2/pkg/types"
)

// LockState is Idle while buffering and Locked once a detection is selected.
type LockState int

const (
	Idle LockState = iota
	Locked
)

func (s LockState) String() string {
	if s == Locked {
		return "locked"
	}
	return "idle"
}

// MarshalText lets LockState appear as a string in JSON.
func (s LockState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *LockState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "locked":
		*s = Locked
	default:
		return fmt.Errorf("unknown lock state %q", b)
	}
	return nil
}

// Flags are the user settings the processor consults on every window.
type Flags struct {
	MultiCode      bool
	HistoryEnabled bool
	ContinuousScan bool
	AutoCopy       bool
}

// FlagSource supplies Flags. On error the processor logs and uses the zero
// value.
type FlagSource interface {
	ScanFlags(ctx context.Context) (Flags, error)
}

// StaticFlags is a FlagSource that always returns itself.
type StaticFlags Flags

func (f StaticFlags) ScanFlags(context.Context) (Flags, error) { return Flags(f), nil }

// HistoryRecorder stores a selected detection.
type HistoryRecorder interface {
	Record(ctx context.Context, d types.Detection, id string, at time.Time) error
}

// Candidate is one deduplicated detection plus its live kind label.
type Candidate struct {
	types.Detection
	Kind payload.Kind `json:"kind"`
}

// CandidateSet is what one window flush (or a selection, or a reset)
// publishes. Each set replaces the previous one.
type CandidateSet struct {
	Seq        uint64      `json:"seq"`
	Candidates []Candidate `json:"candidates"`
	State      LockState   `json:"state"`
	Status     string      `json:"status"`
	At         time.Time   `json:"at"`
}

// Payloads lists the candidate payloads in order.
func (s CandidateSet) Payloads() []string {
	out := make([]string, len(s.Candidates))
	for i, c := range s.Candidates {
		out[i] = c.Payload
	}
	return out
}

// Selection is the outcome of locking onto one detection.
type Selection struct {
	Detection types.Detection `json:"detection"`
	Parsed    payload.Parsed  `json:"parsed"`

	// Err is set when classification failed; Parsed then holds the fallback.
	Err       error  `json:"-"`
	ErrorText string `json:"error,omitempty"`

	// AutoCopy is a CopyText action the host should run immediately.
	AutoCopy  *payload.Action `json:"autoCopy,omitempty"`
	HistoryID string          `json:"historyId,omitempty"`
	At        time.Time       `json:"at"`
}

// StatusText is the overlay caption for n visible candidates.
func StatusText(n int, multiCode bool) string {
	switch {
	case n == 0:
		return "Scanning for QR code"
	case !multiCode:
		return "QR code detected - Tap to select"
	case n == 1:
		return "1 QR code detected - Tap to select"
	default:
		return fmt.Sprintf("%d QR codes detected - Tap to select", n)
	}
}
