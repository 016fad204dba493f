package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/backkem/attendbeacon/pkg/beacon"
	"github.com/backkem/attendbeacon/pkg/radio"
	"github.com/spf13/cobra"
)

func newPresent(opts *options) *cobra.Command {
	var flags struct {
		session  string
		duration time.Duration
		txPower  string
	}
	cmd := &cobra.Command{
		Use:   "present",
		Short: "Advertise a session as presenter",
		Long: `Advertise a session as presenter until the beacon expires or the
command is interrupted. A new session id is generated unless --session is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session := beacon.NewSessionID()
			if flags.session != "" {
				var err error
				if session, err = beacon.ParseSessionID(flags.session); err != nil {
					return err
				}
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if flags.txPower != "" {
				if _, ok := radio.ParseTxPower(flags.txPower); !ok {
					return fmt.Errorf("unknown tx power %q", flags.txPower)
				}
				cfg.Beacon.TxPower = flags.txPower
			}
			cmd.SilenceUsage = true

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return present(ctx, a, session, flags.duration)
		},
	}
	cmd.Flags().StringVar(&flags.session, "session", "", "session id to advertise")
	cmd.Flags().DurationVar(&flags.duration, "duration", 0, "how long to advertise (default from config)")
	cmd.Flags().StringVar(&flags.txPower, "tx-power", "", "transmit power (UltraLow, Low, Medium, High)")
	return cmd
}

func present(ctx context.Context, a *app, session beacon.SessionID, duration time.Duration) error {
	reply, err := a.device.StartBeacon(ctx, session, duration)
	if err != nil {
		return err
	}
	if !reply.Active {
		return nil
	}
	fmt.Printf("Presenting session %s until %s\n", reply.Session, reply.ExpiresAt.Format(time.TimeOnly))

	t := time.NewTimer(time.Until(reply.ExpiresAt))
	defer t.Stop()
	select {
	case <-t.C:
		fmt.Println("Beacon expired")
	case <-ctx.Done():
		a.device.StopBeacon()
		fmt.Println("Beacon stopped")
	}
	return nil
}
