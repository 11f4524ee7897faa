package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mutombe/cargo-space/internal/models"
	"github.com/Mutombe/cargo-space/internal/pricing"
)

func newQuoteCmd() *cobra.Command {
	var fragile, handling bool
	cmd := &cobra.Command{
		Use:   "quote [mode...]",
		Short: "Print the estimated cost per transport mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			modes := models.TransportModes
			if len(args) > 0 {
				modes = nil
				for _, a := range args {
					m := models.TransportMode(a)
					if !m.Valid() {
						return fmt.Errorf("unknown transport mode %q", a)
					}
					modes = append(modes, m)
				}
			}
			for _, m := range modes {
				fmt.Fprintf(cmd.OutOrStdout(), "%-13s %s\n", m, pricing.Format(pricing.Estimate(m, fragile, handling)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fragile, "fragile", false, "add the fragile surcharge")
	cmd.Flags().BoolVar(&handling, "handling", false, "add the special handling surcharge")
	return cmd
}
