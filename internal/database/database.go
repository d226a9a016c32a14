// Package database opens the PostgreSQL connections and manages the schema.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"socialnet/internal/config"
	"socialnet/internal/middleware"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	// DB is the primary read-write connection.
	DB *gorm.DB
	// ReadDB is the read replica, nil unless DB_READ_HOST is set and reachable.
	ReadDB *gorm.DB
)

type ConnectOptions struct {
	// ApplySchema runs ApplySchema according to DB_SCHEMA_MODE.
	ApplySchema bool
	// ConnectReplica opens the read replica when DB_READ_HOST is set.
	ConnectReplica bool
}

// Connect opens the primary, applies the schema and connects the replica.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	return ConnectWithOptions(cfg, ConnectOptions{ApplySchema: true, ConnectReplica: true})
}

func ConnectWithOptions(cfg *config.Config, opts ConnectOptions) (*gorm.DB, error) {
	primary, err := open(cfg, cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword)
	if err != nil {
		return nil, err
	}
	middleware.Logger.Info("database connected", "host", cfg.DBHost)

	if opts.ApplySchema {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := ApplySchema(ctx, primary, cfg); err != nil {
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	DB = primary

	if opts.ConnectReplica && cfg.DBReadHost != "" {
		replica, err := open(cfg, cfg.DBReadHost, cfg.DBReadPort, cfg.DBReadUser, cfg.DBReadPassword)
		if err != nil {
			middleware.Logger.Warn("read replica unavailable, reading from primary", "error", err)
		} else {
			ReadDB = replica
			middleware.Logger.Info("read replica connected", "host", cfg.DBReadHost)
		}
	}
	return DB, nil
}

// Close closes every open connection and resets DB and ReadDB.
func Close() error {
	var errs []error
	for _, db := range []*gorm.DB{ReadDB, DB} {
		if db == nil {
			continue
		}
		if sqlDB, err := db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	ReadDB, DB = nil, nil
	return errors.Join(errs...)
}

func open(cfg *config.Config, host, port, user, password string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn(host, port, user, password, cfg.DBName, cfg.DBSSLMode)),
		&gorm.Config{Logger: newGormLogger()})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", host, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("connection pool: %w", err)
	}
	maxOpen := cfg.DBMaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(max(1, maxOpen/5))
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

func dsn(host, port, user, password, name, sslMode string) string {
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, name, sslMode)
}
