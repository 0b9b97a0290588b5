package db

import (
	"kiosk_system/internal/domain" // Domain models

	"github.com/sirupsen/logrus" // Logging

	"gorm.io/driver/mysql" // MySQL driver for GORM
	"gorm.io/gorm"         // GORM ORM library
)

// DSN builds the MySQL data source name
func DSN(user, password, host, port, name string) string {
	return user + ":" + password + "@tcp(" + host + ":" + port + ")/" + name + "?parseTime=true&charset=utf8mb4"
}

// Open connects to MySQL
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(mysql.Open(dsn), &gorm.Config{})
}

// AutoMigrate creates or updates the users and kiosk_menus tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.User{}, &domain.Menu{})
}

// Migrate performs automatic migration for the database schema
func Migrate(dsn string) {
	db, err := Open(dsn)
	if err != nil {
		logrus.Fatalf("failed to connect database: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		logrus.Fatalf("migration failed: %v", err)
	}
	logrus.Info("Migration completed.")
}
