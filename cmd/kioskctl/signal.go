package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"kiosk_system/internal/config"
	"kiosk_system/internal/domain"
	"kiosk_system/internal/presence"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"
)

func signalCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Read and write presence signals",
		Long: `Presence signals assign a signed-in user to a store.

A signal of "0" or a deleted record means the user is not in any store.`,
	}
	cmd.AddCommand(
		signalSetCmd(cfg),
		signalClearCmd(cfg),
		signalGetCmd(cfg),
		signalWatchCmd(cfg),
	)
	return cmd
}

func signalSetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "set <email> <store-id>",
		Short: "Assign a user to a store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBucket(cmd.Context(), cfg, func(ctx context.Context, kv jetstream.KeyValue) error {
				if err := presence.Publish(ctx, kv, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func signalClearCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <email>",
		Short: "Remove a user from any store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBucket(cmd.Context(), cfg, func(ctx context.Context, kv jetstream.KeyValue) error {
				if err := presence.Clear(ctx, kv, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], domain.NoSignal)
				return nil
			})
		},
	}
}

func signalGetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get <email>",
		Short: "Print a user's current signal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBucket(cmd.Context(), cfg, func(ctx context.Context, kv jetstream.KeyValue) error {
				current := domain.NoSignal
				entry, err := kv.Get(ctx, presence.KeyFor(args[0]))
				switch {
				case errors.Is(err, jetstream.ErrKeyNotFound):
				case err != nil:
					return err
				default:
					raw, err := presence.DecodeRecord(entry.Value())
					if err != nil {
						return err
					}
					if s := domain.NormalizeSignal(raw); s != "" {
						current = s
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), current)
				return nil
			})
		},
	}
}

func signalWatchCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <email>",
		Short: "Follow a user's signal until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withBucket(ctx, cfg, func(ctx context.Context, kv jetstream.KeyValue) error {
				out := cmd.OutOrStdout()
				w := presence.NewWatcher(presence.NewNATSSource(kv, nil), nil)
				defer w.Stop()
				err := w.Watch(ctx, args[0],
					func(s string) {
						if s = domain.NormalizeSignal(s); s == "" {
							s = domain.NoSignal
						}
						fmt.Fprintf(out, "%s %s\n", time.Now().Format(time.RFC3339), s)
					},
					func(err error) { fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err) })
				if err != nil {
					return err
				}
				<-ctx.Done()
				return nil
			})
		},
	}
}

// withBucket connects to NATS, binds the presence bucket and runs fn
func withBucket(ctx context.Context, cfg *config.Config, fn func(context.Context, jetstream.KeyValue) error) error {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("kioskctl"))
	if err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", cfg.NATSURL, err)
	}
	defer nc.Close()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	kv, err := presence.OpenBucket(openCtx, nc, cfg.PresenceBucket)
	cancel()
	if err != nil {
		return err
	}
	return fn(ctx, kv)
}
