package main

import (
	"fmt"
	"io"

	"github.com/backkem/attendbeacon/pkg/relay"
	"github.com/spf13/cobra"
)

func newRelayed(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "relayed",
		Short: "List the sessions this device has relayed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			s, err := cfg.OpenStore()
			if err != nil {
				return err
			}
			if c, ok := s.(io.Closer); ok {
				defer c.Close()
			}
			lf, err := cfg.LoggerFactory()
			if err != nil {
				return err
			}
			reg, err := relay.NewRegistry(relay.RegistryConfig{Store: s, LoggerFactory: lf})
			if err != nil {
				return err
			}
			for _, session := range reg.Sessions() {
				fmt.Fprintln(cmd.OutOrStdout(), session)
			}
			return nil
		},
	}
}
