package main

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/chiliwax/QrCodeReader-v2/internal/config"
	"github.com/chiliwax/QrCodeReader-v2/internal/logger"
	"github.com/chiliwax/QrCodeReader-v2/internal/recorder"
	"github.com/chiliwax/QrCodeReader-v2/internal/stream"
	"github.com/chiliwax/QrCodeReader-v2/pkg/types"
)

// replayEvent is one line of replay output.
type replayEvent struct {
	Candidates *stream.CandidateSet `json:"candidates,omitempty"`
	Selection  *stream.Selection    `json:"selection,omitempty"`
}

func newReplayCmd(a *app) *cobra.Command {
	var (
		speed float64
		multi bool
	)
	def := config.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Feed a detection recording through the processor",
		Long: `Replay a JSON-lines detection recording through a fresh processor and
print every candidate set and selection as one JSON object per line.

With --speed 0 windows are cut from the recorded offsets and the replay
runs without delays.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := recorder.ReadFile(args[0])
			if err != nil {
				return err
			}
			logger.Info("Replay", "Replaying %d detections from %s", len(lines), args[0])
			return runReplay(cmd.Context(), cmd.OutOrStdout(), lines, replayOptions{
				Window:   a.cfg.Window,
				Viewport: types.Viewport{Width: a.cfg.Viewport.Width, Height: a.cfg.Viewport.Height},
				Speed:    speed,
				Multi:    multi,
			})
		},
	}
	f := cmd.Flags()
	f.Float64Var(&speed, "speed", 0, "playback speed multiplier, 0 for no delays")
	f.BoolVar(&multi, "multi", false, "multi-code mode: publish candidates without auto-selecting")
	f.Duration("window", def.Window, "detection buffering window")
	f.Float64("viewport-width", def.Viewport.Width, "viewport width used for centring")
	f.Float64("viewport-height", def.Viewport.Height, "viewport height used for centring")
	return cmd
}

type replayOptions struct {
	Window   time.Duration
	Viewport types.Viewport
	Speed    float64
	Multi    bool
}

func runReplay(ctx context.Context, out io.Writer, lines []recorder.Line, opts replayOptions) error {
	var (
		mu     sync.Mutex
		enc    = json.NewEncoder(out)
		encErr error
	)
	write := func(ev replayEvent) {
		mu.Lock()
		defer mu.Unlock()
		if encErr == nil {
			encErr = enc.Encode(ev)
		}
	}

	proc := stream.New(stream.Config{
		Window:       opts.Window,
		Viewport:     opts.Viewport,
		Flags:        stream.StaticFlags{MultiCode: opts.Multi},
		OnCandidates: func(set stream.CandidateSet) { write(replayEvent{Candidates: &set}) },
		OnSelect:     func(sel stream.Selection) { write(replayEvent{Selection: &sel}) },
	})

	var err error
	if opts.Speed > 0 {
		err = replayLive(ctx, proc, lines, opts.Speed)
	} else {
		replayStepped(ctx, proc, lines)
	}
	proc.Flush(ctx)

	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	return encErr
}

// replayLive plays lines in real time against a running processor.
func replayLive(ctx context.Context, proc *stream.Processor, lines []recorder.Line, speed float64) error {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		proc.Run(runCtx)
	}()
	err := recorder.Replay(ctx, lines, speed, func(d types.Detection) { proc.HandleDetection(d) })
	cancel()
	<-done
	return err
}

// replayStepped flushes whenever a line falls past the current window.
func replayStepped(ctx context.Context, proc *stream.Processor, lines []recorder.Line) {
	window := proc.Window().Milliseconds()
	if window <= 0 {
		window = 1
	}
	end := window
	for _, l := range lines {
		if l.OffsetMs >= end {
			proc.Flush(ctx)
			end = (l.OffsetMs/window + 1) * window
		}
		proc.HandleDetection(l.Detection)
	}
}
