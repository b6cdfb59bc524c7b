// Package config loads runtime settings for the qrscan binary from defaults,
// an optional config file, QRSCAN_* environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/chiliwax/QrCodeReader-v2/internal/effect"
	"github.com/chiliwax/QrCodeReader-v2/internal/logger"
	"github.com/chiliwax/QrCodeReader-v2/internal/stream"
)

// EnvPrefix prefixes every environment override, e.g. QRSCAN_WINDOW=250ms.
const EnvPrefix = "QRSCAN"

// Config is the runtime configuration.
type Config struct {
	Addr          string         `mapstructure:"addr"`
	MetricsAddr   string         `mapstructure:"metrics_addr"`
	DataDir       string         `mapstructure:"data_dir"`
	InMemory      bool           `mapstructure:"in_memory"`
	Window        time.Duration  `mapstructure:"window"`
	Viewport      ViewportConfig `mapstructure:"viewport"`
	RecordingsDir string         `mapstructure:"recordings_dir"`
	// HandlerSchemes are the URL schemes the monitor client can open.
	HandlerSchemes []string      `mapstructure:"handler_schemes"`
	StatusInterval time.Duration `mapstructure:"status_interval"`
	Log            LogConfig     `mapstructure:"log"`
}

type ViewportConfig struct {
	Width  float64 `mapstructure:"width"`
	Height float64 `mapstructure:"height"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Color bool   `mapstructure:"color"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		MetricsAddr:    ":9090",
		DataDir:        "./data",
		Window:         stream.DefaultWindow,
		Viewport:       ViewportConfig{Width: 390, Height: 844},
		RecordingsDir:  "./recordings",
		HandlerSchemes: effect.DefaultSchemes,
		StatusInterval: 2 * time.Second,
		Log:            LogConfig{Level: "info", Color: true},
	}
}

// SetDefaults registers DefaultConfig with v.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("addr", d.Addr)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("in_memory", d.InMemory)
	v.SetDefault("window", d.Window)
	v.SetDefault("viewport.width", d.Viewport.Width)
	v.SetDefault("viewport.height", d.Viewport.Height)
	v.SetDefault("recordings_dir", d.RecordingsDir)
	v.SetDefault("handler_schemes", d.HandlerSchemes)
	v.SetDefault("status_interval", d.StatusInterval)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.color", d.Log.Color)
}

// NewViper returns a viper instance with defaults and env overrides wired.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file (if non-empty) into v and decodes the result.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.Window <= 0 {
		errs = append(errs, fmt.Errorf("window must be positive, got %v", c.Window))
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		errs = append(errs, fmt.Errorf("viewport must be positive, got %vx%v", c.Viewport.Width, c.Viewport.Height))
	}
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if !c.InMemory && c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required unless in_memory is set"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
