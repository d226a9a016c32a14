// Package bootstrap wires the runtime dependencies shared by the server and CLI tools.
package bootstrap

import (
	"fmt"

	"socialnet/internal/cache"
	"socialnet/internal/config"
	"socialnet/internal/database"
	"socialnet/internal/featureflags"
	"socialnet/internal/middleware"
	"socialnet/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo fills an empty database with generated users, posts and likes.
	SeedDemo bool
}

// InitRuntime connects to DB and Redis and optionally seeds demo content.
// The Redis client is nil when Redis is unreachable.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()
	if r == nil {
		middleware.Logger.Warn("running without redis: caching, token revocation and realtime fan-out are disabled")
	}

	if opts.SeedDemo {
		var users int64
		if err := db.Table("users").Count(&users).Error; err != nil {
			return nil, nil, fmt.Errorf("count users: %w", err)
		}
		if users == 0 {
			if _, err := seed.Seed(db, seed.Options{NumUsers: 20, NumPosts: 60, MaxLikesPerUser: 5}); err != nil {
				return nil, nil, fmt.Errorf("failed to seed demo data: %w", err)
			}
		}
	}

	return db, r, nil
}

// FeatureFlags builds the flag manager. Verification and enrichment default on
// only when their API keys are configured; FEATURE_FLAGS overrides either way.
func FeatureFlags(cfg *config.Config) *featureflags.Manager {
	defaults := map[string]string{
		featureflags.EmailVerification: "off",
		featureflags.NameEnrichment:    "off",
		featureflags.LikeNotifications: "on",
	}
	if cfg.HunterAPIKey != "" {
		defaults[featureflags.EmailVerification] = "on"
	}
	if cfg.ClearbitAPIKey != "" {
		defaults[featureflags.NameEnrichment] = "on"
	}
	return featureflags.NewManagerWithDefaults(cfg.FeatureFlags, defaults)
}
