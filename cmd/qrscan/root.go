package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chiliwax/QrCodeReader-v2/internal/config"
	"github.com/chiliwax/QrCodeReader-v2/internal/kv"
	"github.com/chiliwax/QrCodeReader-v2/internal/logger"
)

// flagKeys maps CLI flags to config keys. Flags are bound only on the
// commands that define them.
var flagKeys = map[string]string{
	"log-level":       "log.level",
	"log-color":       "log.color",
	"data-dir":        "data_dir",
	"in-memory":       "in_memory",
	"addr":            "addr",
	"metrics-addr":    "metrics_addr",
	"window":          "window",
	"viewport-width":  "viewport.width",
	"viewport-height": "viewport.height",
	"recordings-dir":  "recordings_dir",
}

// app carries state shared by all subcommands.
type app struct {
	cfgFile string
	cfg     config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	def := config.DefaultConfig()

	root := &cobra.Command{
		Use:   "qrscan",
		Short: "QR detection stream processor",
		Long: `qrscan turns a stream of raw QR detections into candidate sets,
locks onto one selection, classifies its payload and builds the actions a
user can take with it.

Configuration is read from --config, then QRSCAN_* environment variables
(e.g. QRSCAN_WINDOW=250ms), then flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (yaml, toml or json)")
	pf.String("log-level", def.Log.Level, "log level (debug, info, warn, error, silent)")
	pf.Bool("log-color", def.Log.Color, "colored log output")
	pf.String("data-dir", def.DataDir, "directory for the history and settings database")
	pf.Bool("in-memory", def.InMemory, "keep history and settings in memory only")

	root.AddCommand(
		newServeCmd(a),
		newClassifyCmd(a),
		newReplayCmd(a),
		newHistoryCmd(a),
		newSettingsCmd(a),
	)
	return root
}

// load resolves the configuration for cmd and initialises logging.
func (a *app) load(cmd *cobra.Command) error {
	v := config.NewViper()
	if err := bindFlags(v, cmd); err != nil {
		return err
	}
	cfg, err := config.Load(v, a.cfgFile)
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger.Init(level, os.Stderr, cfg.Log.Color)
	a.cfg = cfg
	return nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

// openStore opens the configured key/value store.
func (a *app) openStore() (kv.Store, error) {
	if a.cfg.InMemory {
		return kv.NewMemory(), nil
	}
	return kv.NewBadger(kv.BadgerOptions{Dir: filepath.Join(a.cfg.DataDir, "kv")})
}
