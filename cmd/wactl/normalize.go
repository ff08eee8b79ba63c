package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-whatsapp-agent/internal/http/handlers"
)

func newNormalizeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "normalize <phone>...",
		Short: "Show the canonical form of Brazilian phone numbers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNormalize(cmd.OutOrStdout(), args, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per number")
	return cmd
}

func runNormalize(w io.Writer, inputs []string, asJSON bool) error {
	for _, raw := range inputs {
		d := handlers.DescribePhone(raw)
		if asJSON {
			if err := printJSON(w, d); err != nil {
				return err
			}
			continue
		}
		labelColor.Fprintf(w, "%-20s ", d.Input)
		if d.IsCanonical {
			okColor.Fprint(w, d.Normalized)
		} else {
			errColor.Fprint(w, d.Normalized)
		}
		if d.AreaCode != "" {
			dimColor.Fprintf(w, "  DDD %s", d.AreaCode)
		}
		fmt.Fprintln(w)
	}
	return nil
}
