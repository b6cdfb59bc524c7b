// Package settings stores user preferences as strings in a kv.Store and
// exposes the scanning subset to the stream processor.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/chiliwax/QrCodeReader-v2/internal/kv"
	"github.com/chiliwax/QrCodeReader-v2/internal/logger"
	"github.com/chiliwax/QrCodeReader-v2/internal/stream"
)

// ErrUnknownKey is returned for keys outside the known settings;
// ErrInvalidValue for a boolean setting given a non-boolean value.
var (
	ErrUnknownKey   = errors.New("settings: unknown key")
	ErrInvalidValue = errors.New("settings: invalid value")
)

// Setting keys.
const (
	DarkMode           = "darkMode"
	ThemeColor         = "themeColor"
	Vibration          = "vibration"
	Sound              = "sound"
	AutoCopy           = "autoCopy"
	AutoFlash          = "autoFlash"
	MultiCodeDetection = "multiCodeDetection"
	ContinuousScan     = "continuousScan"
	Analytics          = "analytics"
	HistoryEnabled     = "historyEnabled"
)

type kind int

const (
	boolSetting kind = iota
	stringSetting
)

type def struct {
	kind kind
	def  string
}

var defs = map[string]def{
	DarkMode:           {boolSetting, "true"},
	ThemeColor:         {stringSetting, "#00f2ea"},
	Vibration:          {boolSetting, "true"},
	Sound:              {boolSetting, "true"},
	AutoCopy:           {boolSetting, "false"},
	AutoFlash:          {boolSetting, "false"},
	MultiCodeDetection: {boolSetting, "false"},
	ContinuousScan:     {boolSetting, "false"},
	Analytics:          {boolSetting, "false"},
	HistoryEnabled:     {boolSetting, "true"},
}

// Keys lists every setting in display order.
var Keys = []string{
	DarkMode, ThemeColor, Vibration, Sound, AutoCopy,
	AutoFlash, MultiCodeDetection, ContinuousScan, Analytics, HistoryEnabled,
}

// Settings is a decoded snapshot of every preference.
type Settings struct {
	DarkMode           bool   `json:"darkMode"`
	ThemeColor         string `json:"themeColor"`
	Vibration          bool   `json:"vibration"`
	Sound              bool   `json:"sound"`
	AutoCopy           bool   `json:"autoCopy"`
	AutoFlash          bool   `json:"autoFlash"`
	MultiCodeDetection bool   `json:"multiCodeDetection"`
	ContinuousScan     bool   `json:"continuousScan"`
	Analytics          bool   `json:"analytics"`
	HistoryEnabled     bool   `json:"historyEnabled"`
}

// Defaults returns the factory settings.
func Defaults() Settings {
	s, _ := decode(func(k string) (string, error) { return defs[k].def, nil })
	return s
}

func decode(get func(string) (string, error)) (Settings, error) {
	var out Settings
	b := func(k string, dst *bool) error {
		v, err := get(k)
		if err != nil {
			return err
		}
		// stored booleans are "true"/"false"; anything else reads as false
		*dst = v == "true"
		return nil
	}
	for _, f := range []struct {
		k   string
		dst *bool
	}{
		{DarkMode, &out.DarkMode},
		{Vibration, &out.Vibration},
		{Sound, &out.Sound},
		{AutoCopy, &out.AutoCopy},
		{AutoFlash, &out.AutoFlash},
		{MultiCodeDetection, &out.MultiCodeDetection},
		{ContinuousScan, &out.ContinuousScan},
		{Analytics, &out.Analytics},
		{HistoryEnabled, &out.HistoryEnabled},
	} {
		if err := b(f.k, f.dst); err != nil {
			return Settings{}, err
		}
	}
	v, err := get(ThemeColor)
	if err != nil {
		return Settings{}, err
	}
	out.ThemeColor = v
	return out, nil
}

// Store reads and writes settings.
type Store struct {
	kv kv.Store
}

func New(store kv.Store) *Store {
	return &Store{kv: store}
}

func key(name string) kv.Key { return kv.Key{"settings", name} }

// Raw returns the stored string for name, or its default when unset.
func (s *Store) Raw(ctx context.Context, name string) (string, error) {
	d, ok := defs[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, name)
	}
	v, err := s.kv.Get(ctx, key(name))
	if errors.Is(err, kv.ErrNotFound) {
		return d.def, nil
	}
	if err != nil {
		return "", fmt.Errorf("read setting %s: %w", name, err)
	}
	return string(v), nil
}

// Load returns every setting. On a storage error it returns the error and
// Defaults with the scanning flags forced off.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	out, err := decode(func(k string) (string, error) { return s.Raw(ctx, k) })
	if err != nil {
		safe := Defaults()
		safe.MultiCodeDetection = false
		safe.ContinuousScan = false
		safe.HistoryEnabled = false
		safe.AutoCopy = false
		return safe, err
	}
	return out, nil
}

// Set validates and stores value for name. Booleans accept anything
// strconv.ParseBool does and are stored as "true"/"false".
func (s *Store) Set(ctx context.Context, name, value string) error {
	d, ok := defs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, name)
	}
	if d.kind == boolSetting {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s: %q is not a boolean", ErrInvalidValue, name, value)
		}
		value = strconv.FormatBool(b)
	}
	if err := s.kv.Set(ctx, key(name), []byte(value)); err != nil {
		return fmt.Errorf("write setting %s: %w", name, err)
	}
	logger.Info("Settings", "%s = %s", name, value)
	return nil
}

// SetBool is Set for boolean settings.
func (s *Store) SetBool(ctx context.Context, name string, v bool) error {
	return s.Set(ctx, name, strconv.FormatBool(v))
}

// Reset restores every setting to its default.
func (s *Store) Reset(ctx context.Context) error {
	return s.kv.DeletePrefix(ctx, kv.Key{"settings"})
}

// ScanFlags implements stream.FlagSource.
func (s *Store) ScanFlags(ctx context.Context) (stream.Flags, error) {
	st, err := s.Load(ctx)
	return stream.Flags{
		MultiCode:      st.MultiCodeDetection,
		HistoryEnabled: st.HistoryEnabled,
		ContinuousScan: st.ContinuousScan,
		AutoCopy:       st.AutoCopy,
	}, err
}
