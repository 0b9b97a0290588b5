package main

import (
	"kiosk_system/internal/config" // Configuration
	"kiosk_system/internal/db"     // Schema migration
)

// Main entry point for migration
func main() {
	cfg := config.LoadConfig()
	db.Migrate(db.DSN(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName))
}
