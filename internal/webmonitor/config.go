package webmonitor

import (
	"time"

	"github.com/chiliwax/QrCodeReader-v2/internal/effect"
)

// Config defines the runtime configuration for the web monitor server.
type Config struct {
	Addr           string
	StatusInterval time.Duration
	// HandlerSchemes are the URL schemes the browser client can open.
	HandlerSchemes []string
	// MaxImageBytes bounds uploads to /api/scan/image.
	MaxImageBytes int64
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		StatusInterval: 2 * time.Second,
		HandlerSchemes: effect.DefaultSchemes,
		MaxImageBytes:  16 << 20,
	}
}
