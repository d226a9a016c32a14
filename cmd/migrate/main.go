// Command migrate inspects and changes the database schema.
//
//	migrate up             apply pending SQL migrations
//	migrate auto           run GORM AutoMigrate for the persistent models
//	migrate status         print the schema plan and pending migrations
//	migrate down <version> revert one applied migration
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"socialnet/internal/config"
	"socialnet/internal/database"

	"github.com/joho/godotenv"
)

var errUsage = errors.New("usage: migrate <up|auto|status|down <version>>")

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, flag.Args()); err != nil {
		stop()
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to read .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = database.Close() }()

	switch strings.ToLower(args[0]) {
	case "up":
		m, err := database.NewMigrator(db)
		if err != nil {
			return err
		}
		applied, err := m.Up(ctx)
		for _, mg := range applied {
			log.Printf("applied %s", mg)
		}
		if err != nil {
			return err
		}
		log.Printf("%d migration(s) applied", len(applied))

	case "auto":
		cfg.DBSchemaMode = database.SchemaModeAuto
		if err := database.ApplySchema(ctx, db, cfg); err != nil {
			return err
		}
		log.Println("automigrate done")

	case "status":
		status, err := database.GetSchemaStatus(ctx, db, cfg)
		if err != nil {
			return err
		}
		log.Printf("mode=%s env=%s sql=%t auto=%t applied=%v",
			status.Mode, status.Environment, status.RunSQL, status.RunAuto, status.Applied)
		for _, mg := range status.Pending {
			log.Printf("pending %s", mg)
		}

	case "down":
		if len(args) < 2 {
			return errUsage
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		m, err := database.NewMigrator(db)
		if err != nil {
			return err
		}
		if err := m.Down(ctx, version); err != nil {
			return err
		}
		log.Printf("rolled back %06d", version)

	default:
		return errUsage
	}
	return nil
}
