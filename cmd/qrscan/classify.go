package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chiliwax/QrCodeReader-v2/internal/payload"
)

func newClassifyCmd(a *app) *cobra.Command {
	var kindOnly bool
	cmd := &cobra.Command{
		Use:   "classify <data>",
		Short: "Classify a payload and print its fields and actions",
		Example: `  qrscan classify 'WIFI:S:MyNet;T:WPA;P:secret;;'
  qrscan classify --kind tel:+15551234567`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := payload.Classify(args[0])
			out := cmd.OutOrStdout()
			if kindOnly {
				fmt.Fprintln(out, parsed.Kind)
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if eerr := enc.Encode(parsed); eerr != nil {
				return eerr
			}
			// The fallback is printed; the error still fails the command.
			return err
		},
	}
	cmd.Flags().BoolVar(&kindOnly, "kind", false, "print only the payload kind")
	return cmd
}
