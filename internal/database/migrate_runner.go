package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"socialnet/internal/middleware"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

// MigrationLog records an applied migration.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	AppliedAt time.Time `gorm:"autoCreateTime;index"`
}

func (MigrationLog) TableName() string {
	return "migration_logs"
}

// Migrator applies and reverts SQL migrations, one transaction per migration.
type Migrator struct {
	db         *gorm.DB
	migrations []Migration
	log        *slog.Logger
}

// NewMigrator uses the embedded migrations.
func NewMigrator(db *gorm.DB) (*Migrator, error) {
	all, err := Migrations()
	if err != nil {
		return nil, err
	}
	return NewMigratorWith(db, all), nil
}

// NewMigratorWith uses the given migrations, which must be sorted by version.
func NewMigratorWith(db *gorm.DB, migrations []Migration) *Migrator {
	return &Migrator{db: db, migrations: migrations, log: middleware.Logger}
}

func (m *Migrator) ensureLog(ctx context.Context) error {
	if err := m.db.WithContext(ctx).AutoMigrate(&MigrationLog{}); err != nil {
		return fmt.Errorf("create migration_logs: %w", err)
	}
	return nil
}

// Applied returns the recorded versions in ascending order. A missing log table means none.
func (m *Migrator) Applied(ctx context.Context) ([]int, error) {
	if !m.db.Migrator().HasTable(&MigrationLog{}) {
		return []int{}, nil
	}
	var versions []int
	if err := m.db.WithContext(ctx).Model(&MigrationLog{}).Order("version").Pluck("version", &versions).Error; err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	return versions, nil
}

// Pending returns the known migrations not yet applied.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.checkKnown(applied); err != nil {
		return nil, err
	}
	return lo.Filter(m.migrations, func(mg Migration, _ int) bool {
		return !lo.Contains(applied, mg.Version)
	}), nil
}

// checkKnown refuses to run against a database migrated by a newer binary.
func (m *Migrator) checkKnown(applied []int) error {
	known := lo.Map(m.migrations, func(mg Migration, _ int) int { return mg.Version })
	unknown := lo.Without(applied, known...)
	if len(unknown) == 0 {
		return nil
	}
	labels := lo.Map(unknown, func(v int, _ int) string { return fmt.Sprintf("%06d", v) })
	return fmt.Errorf("migration_logs contains versions unknown to this build: %s", strings.Join(labels, ", "))
}

// Up applies every pending migration in order and returns what it applied.
func (m *Migrator) Up(ctx context.Context) ([]Migration, error) {
	if err := m.ensureLog(ctx); err != nil {
		return nil, err
	}
	pending, err := m.Pending(ctx)
	if err != nil {
		return nil, err
	}

	for i, mg := range pending {
		m.log.Info("applying migration", slog.String("migration", mg.String()))
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(mg.Up).Error; err != nil {
				return err
			}
			return tx.Create(&MigrationLog{Version: mg.Version, Name: mg.Name}).Error
		})
		if err != nil {
			return pending[:i], fmt.Errorf("apply %s: %w", mg, err)
		}
	}
	return pending, nil
}

// Down reverts one applied migration.
func (m *Migrator) Down(ctx context.Context, version int) error {
	mg, ok := lo.Find(m.migrations, func(mg Migration) bool { return mg.Version == version })
	if !ok {
		return fmt.Errorf("migration version %d not found", version)
	}
	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	if !lo.Contains(applied, version) {
		return fmt.Errorf("migration %s has not been applied", mg)
	}

	m.log.Info("rolling back migration", slog.String("migration", mg.String()))
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(mg.Down).Error; err != nil {
			return fmt.Errorf("revert %s: %w", mg, err)
		}
		return tx.Where("version = ?", version).Delete(&MigrationLog{}).Error
	})
}
