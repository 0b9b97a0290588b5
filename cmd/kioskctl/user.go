package main

import (
	"fmt"

	"kiosk_system/internal/config"
	"kiosk_system/internal/db"
	"kiosk_system/internal/identity"
	"kiosk_system/internal/menu"

	"github.com/spf13/cobra"
)

func userCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage kiosk accounts",
	}
	cmd.AddCommand(userAddCmd(cfg))
	return cmd
}

func userAddCmd(cfg *config.Config) *cobra.Command {
	var reg identity.Registration
	var storeID string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if reg.Email == "" || reg.Password == "" {
				return fmt.Errorf("--email and --password are required")
			}
			if storeID != "" && !reg.IsAdmin {
				return fmt.Errorf("--store only applies to --admin accounts")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if storeID != "" {
				reg.StoreID = &storeID
			}
			gdb, err := db.Open(db.DSN(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName))
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			provider := identity.NewDBProvider(gdb, identity.WithStores(menu.NewStore(gdb, nil)))
			id, err := provider.Register(cmd.Context(), reg)
			if err != nil {
				return err
			}
			store := "-"
			if id.StoreID != nil {
				store = *id.StoreID
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s admin=%t store=%s\n", id.Email, id.IsAdmin, store)
			return nil
		},
	}
	cmd.Flags().StringVar(&reg.Email, "email", "", "Login email")
	cmd.Flags().StringVar(&reg.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&reg.Password, "password", "", "Initial password")
	cmd.Flags().BoolVar(&reg.IsAdmin, "admin", false, "Store administrator")
	cmd.Flags().StringVar(&storeID, "store", "", "Store the administrator manages, next free id when empty")
	return cmd
}
