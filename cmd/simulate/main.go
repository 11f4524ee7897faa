// Command cargo-sim drives a shipment booking end to end against the in-process
// service: post, match, book, pay and track until delivery.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cargo-sim",
		Short:         "Simulate cargo bookings without external services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newBookCmd(), newQuoteCmd())
	return root
}
