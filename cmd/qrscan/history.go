package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chiliwax/QrCodeReader-v2/internal/history"
	"github.com/chiliwax/QrCodeReader-v2/internal/payload"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List or edit the scan history",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored scans, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withHistory(func(h *history.Store) error {
					items, err := h.List(cmd.Context())
					if err != nil {
						return err
					}
					if len(items) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No scan history")
						return nil
					}
					tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tKIND\tSCANNED\tDATA")
					for _, it := range items {
						at := time.UnixMilli(it.Timestamp).Local().Format(time.DateTime)
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.ID, payload.Detect(it.Data), at, truncate(it.Data, 60))
					}
					return tw.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "rm <id>",
			Short: "Remove one scan",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withHistory(func(h *history.Store) error {
					err := h.Remove(cmd.Context(), args[0])
					if errors.Is(err, history.ErrNotFound) {
						return fmt.Errorf("no history item %q", args[0])
					}
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every scan",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withHistory(func(h *history.Store) error {
					return h.Clear(cmd.Context())
				})
			},
		},
	)
	return cmd
}

func (a *app) withHistory(fn func(*history.Store) error) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(history.New(store))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
