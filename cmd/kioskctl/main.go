// Command kioskctl is the operator tool for presence records and accounts.
package main

import (
	"fmt"
	"os"

	"kiosk_system/internal/config"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd(config.LoadConfig()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "kioskctl",
		Short:         "Operate kiosk presence signals and accounts",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "NATS server url")
	root.PersistentFlags().StringVar(&cfg.PresenceBucket, "bucket", cfg.PresenceBucket, "Presence KV bucket")

	root.AddCommand(signalCmd(cfg))
	root.AddCommand(userCmd(cfg))
	return root
}
