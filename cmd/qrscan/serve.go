package main

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chiliwax/QrCodeReader-v2/internal/config"
	"github.com/chiliwax/QrCodeReader-v2/internal/history"
	"github.com/chiliwax/QrCodeReader-v2/internal/logger"
	"github.com/chiliwax/QrCodeReader-v2/internal/metrics"
	"github.com/chiliwax/QrCodeReader-v2/internal/recorder"
	"github.com/chiliwax/QrCodeReader-v2/internal/settings"
	"github.com/chiliwax/QrCodeReader-v2/internal/stream"
	"github.com/chiliwax/QrCodeReader-v2/internal/webmonitor"
	"github.com/chiliwax/QrCodeReader-v2/pkg/types"
)

func newServeCmd(a *app) *cobra.Command {
	def := config.DefaultConfig()
	var pprofAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the detection processor and the monitor HTTP server",
		Long: `Run the detection stream processor behind the monitor HTTP server.

Scanners push detections to POST /api/detections or over the
/ws/detections WebSocket; browsers follow /api/candidates/stream.
Prometheus metrics are served on --metrics-addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a, pprofAddr)
		},
	}
	f := cmd.Flags()
	f.StringVar(&pprofAddr, "pprof-addr", "", "pprof listen address (disabled when empty)")
	f.String("addr", def.Addr, "HTTP listen address")
	f.String("metrics-addr", def.MetricsAddr, "metrics listen address")
	f.Duration("window", def.Window, "detection buffering window")
	f.Float64("viewport-width", def.Viewport.Width, "viewport width used for centring")
	f.Float64("viewport-height", def.Viewport.Height, "viewport height used for centring")
	f.String("recordings-dir", def.RecordingsDir, "directory for detection recordings")
	return cmd
}

func runServe(ctx context.Context, a *app, pprofAddr string) error {
	cfg := a.cfg
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	st := settings.New(store)
	hist := history.New(store)
	rec := recorder.NewRecorder(cfg.RecordingsDir, m)
	defer rec.Close()
	mon := webmonitor.NewMonitor(m)

	proc := stream.New(stream.Config{
		Window:       cfg.Window,
		Viewport:     types.Viewport{Width: cfg.Viewport.Width, Height: cfg.Viewport.Height},
		Flags:        st,
		History:      hist,
		Metrics:      m,
		OnCandidates: mon.PublishCandidates,
		OnSelect: func(sel stream.Selection) {
			mon.RecordSelection(sel)
			logger.Info("Main", "Selected %s payload %q", sel.Parsed.Kind, sel.Detection.Payload)
		},
		Tap: func(d types.Detection) { rec.SendDetection(d) },
	})

	srv := webmonitor.NewServer(webmonitor.Config{
		Addr:           cfg.Addr,
		StatusInterval: cfg.StatusInterval,
		HandlerSchemes: cfg.HandlerSchemes,
	}, webmonitor.Deps{
		Processor: proc,
		Monitor:   mon,
		History:   hist,
		Settings:  st,
		Recorder:  rec,
		Metrics:   m,
	})

	logger.Info("Main", "qrscan starting")
	logger.Info("Main", "  HTTP server: %s", cfg.Addr)
	logger.Info("Main", "  Metrics server: %s", cfg.MetricsAddr)
	logger.Info("Main", "  Window: %v, viewport: %vx%v", cfg.Window, cfg.Viewport.Width, cfg.Viewport.Height)
	if cfg.InMemory {
		logger.Info("Main", "  Store: in-memory")
	} else {
		logger.Info("Main", "  Store: %s", cfg.DataDir)
	}

	if pprofAddr != "" {
		logger.Info("Main", "  pprof server: %s", pprofAddr)
		go func() {
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				logger.Error("Main", "pprof server error: %v", err)
			}
		}()
	}

	go func() {
		if err := m.StartServer(cfg.MetricsAddr); err != nil {
			logger.Error("Main", "Metrics server error: %v", err)
		}
	}()

	procDone := make(chan error, 1)
	go func() { procDone <- proc.Run(ctx) }()

	err = srv.ListenAndServe(ctx)
	stop()
	if perr := <-procDone; perr != nil && !errors.Is(perr, context.Canceled) {
		logger.Warn("Main", "Processor stopped: %v", perr)
	}
	logger.Info("Main", "qrscan stopped")
	return err
}
