package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chiliwax/QrCodeReader-v2/internal/settings"
)

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change user settings",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get [key]",
			Short: "Print one setting, or all of them",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withSettings(func(st *settings.Store) error {
					keys := settings.Keys
					if len(args) == 1 {
						keys = args
					}
					out := cmd.OutOrStdout()
					if len(keys) == 1 {
						v, err := st.Raw(cmd.Context(), keys[0])
						if err != nil {
							return err
						}
						fmt.Fprintln(out, v)
						return nil
					}
					tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
					for _, k := range keys {
						v, err := st.Raw(cmd.Context(), k)
						if err != nil {
							return err
						}
						fmt.Fprintf(tw, "%s\t%s\n", k, v)
					}
					return tw.Flush()
				})
			},
		},
		&cobra.Command{
			Use:     "set <key> <value>",
			Short:   "Change one setting",
			Example: "  qrscan settings set multiCodeDetection true",
			Args:    cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withSettings(func(st *settings.Store) error {
					return st.Set(cmd.Context(), args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Restore the default settings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withSettings(func(st *settings.Store) error {
					return st.Reset(cmd.Context())
				})
			},
		},
	)
	return cmd
}

func (a *app) withSettings(fn func(*settings.Store) error) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(settings.New(store))
}
