// Package imagescan feeds the codes found in a still image through the same
// pipeline as live camera detections.
package imagescan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/chiliwax/QrCodeReader-v2/internal/logger"
	"github.com/chiliwax/QrCodeReader-v2/internal/metrics"
	"github.com/chiliwax/QrCodeReader-v2/internal/stream"
	"github.com/chiliwax/QrCodeReader-v2/pkg/types"
)

var (
	// ErrEmptyScanResult means the image held no readable code. The stream
	// stays Idle.
	ErrEmptyScanResult = errors.New("imagescan: no QR code found in the image")
	// ErrBusy means a selection is already open; reset before scanning.
	ErrBusy = errors.New("imagescan: a selection is already open")
)

// Decoder extracts code detections from encoded image bytes. Optical
// decoding lives outside this module; implementations wrap a scanning
// library or, as Static does, return detections a client already decoded.
type Decoder interface {
	Decode(ctx context.Context, data []byte, cfg image.Config) ([]types.Detection, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(ctx context.Context, data []byte, cfg image.Config) ([]types.Detection, error)

func (f DecoderFunc) Decode(ctx context.Context, data []byte, cfg image.Config) ([]types.Detection, error) {
	return f(ctx, data, cfg)
}

// Static returns fixed detections regardless of the image.
type Static []types.Detection

func (s Static) Decode(context.Context, []byte, image.Config) ([]types.Detection, error) {
	return types.CloneAll(s), nil
}

// Result describes one scanned image.
type Result struct {
	Format     string            `json:"format"`
	Viewport   types.Viewport    `json:"viewport"`
	Detections []types.Detection `json:"detections"`
	Selection  *stream.Selection `json:"selection,omitempty"`
}

// Scanner runs image scans into a Processor.
type Scanner struct {
	proc    *stream.Processor
	metrics *metrics.Metrics
}

func New(proc *stream.Processor, m *metrics.Metrics) *Scanner {
	if m == nil {
		m = metrics.New()
	}
	return &Scanner{proc: proc, metrics: m}
}

// Scan reads the image dimensions, decodes detections with dec and feeds
// them to the processor as one window of their own, centred on the image. When
// the processor selects a detection (single-code mode) it is returned in
// Result.Selection; in multi-code mode the caller taps one of the
// published candidates.
func (s *Scanner) Scan(ctx context.Context, data []byte, dec Decoder) (Result, error) {
	s.metrics.ImageScans.Add(1)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("read image header: %w", err)
	}
	res := Result{
		Format:   format,
		Viewport: types.Viewport{Width: float64(cfg.Width), Height: float64(cfg.Height)},
	}

	if s.proc.State() == stream.Locked {
		return res, ErrBusy
	}

	dets, err := dec.Decode(ctx, data, cfg)
	if err != nil {
		return res, fmt.Errorf("decode %s image: %w", format, err)
	}
	if len(dets) == 0 {
		s.metrics.EmptyImageScans.Add(1)
		logger.Info("ImageScan", "No code in %dx%d %s image", cfg.Width, cfg.Height, format)
		return res, ErrEmptyScanResult
	}
	res.Detections = dets

	if !s.proc.FlushBatch(ctx, dets, res.Viewport) {
		return res, ErrBusy
	}

	if sel, ok := s.proc.Current(); ok {
		res.Selection = &sel
	}
	logger.Info("ImageScan", "%d code(s) in %dx%d %s image", len(dets), cfg.Width, cfg.Height, format)
	return res, nil
}
