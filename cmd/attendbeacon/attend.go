package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/backkem/attendbeacon/pkg/attendance"
	"github.com/spf13/cobra"
)

// relayPollInterval is how often attend checks whether its relay ended.
const relayPollInterval = 250 * time.Millisecond

func newAttend(opts *options) *cobra.Command {
	var flags struct {
		timeout time.Duration
		noRelay bool
	}
	cmd := &cobra.Command{
		Use:   "attend",
		Short: "Scan for a nearby presenter or relay",
		Long: `Scan for a nearby beacon. When an original beacon is accepted it is
relayed for the configured relay duration before the command exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if flags.noRelay {
				cfg.Relay.Disabled = true
			}
			cmd.SilenceUsage = true

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return attend(ctx, a, flags.timeout)
		},
	}
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "scan timeout (default from config)")
	cmd.Flags().BoolVar(&flags.noRelay, "no-relay", false, "do not relay an accepted beacon")
	return cmd
}

func attend(ctx context.Context, a *app, timeout time.Duration) error {
	reply, err := a.device.ScanForBeacon(ctx, timeout)
	if err != nil {
		return err
	}
	if !reply.Found {
		fmt.Println("No beacon nearby")
		return nil
	}
	fmt.Printf("Attended session %s (%s, median %d dBm)\n", reply.Session, reply.Marker, reply.Median)

	switch reply.RelayStatus {
	case "":
		return nil
	case attendance.RelayStarted:
		fmt.Println("Relaying beacon")
	default:
		fmt.Printf("Relay not started: %s\n", reply.RelayStatus)
		return nil
	}

	t := time.NewTicker(relayPollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			a.device.StopRelay()
			return nil
		case <-t.C:
			if a.device.Status().RelaySession == nil {
				return nil
			}
		}
	}
}
