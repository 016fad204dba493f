// Command attendbeacon runs the attendance beacon protocol over mDNS on the
// local network.
//
// A presenter advertises a session:
//
//	attendbeacon present --duration 2m
//
// An attendee scans for it, and relays it when found:
//
//	attendbeacon attend --timeout 10s
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func main() {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   filepath.Base(os.Args[0]),
		Short: "Proximity attendance beacon",
		Args:  cobra.NoArgs,
		// Errors are printed below.
		SilenceErrors: true,
	}
	opts.bind(cmd.PersistentFlags())

	cmd.AddCommand(
		newPresent(opts),
		newAttend(opts),
		newRelayed(opts),
	)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
