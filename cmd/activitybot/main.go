// Command activitybot signs up users, creates posts and spreads likes against a running API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"socialnet/internal/activity"
	"socialnet/internal/middleware"
	"socialnet/internal/socialclient"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var flags = []cli.Flag{
	&cli.StringFlag{
		Name:    "api-url",
		Aliases: []string{"u"},
		Usage:   "base URL of the social API",
		Value:   "http://localhost:8375",
		EnvVars: []string{"ACTIVITYBOT_API_URL"},
	},
	&cli.Int64Flag{
		Name:    "seed",
		Usage:   "random seed, 0 picks one from the clock",
		EnvVars: []string{"ACTIVITYBOT_SEED"},
	},
	&cli.StringFlag{
		Name:    "on-empty",
		Usage:   "what to do when an acting user sees no users without likes: halt or skip",
		Value:   "halt",
		EnvVars: []string{"ACTIVITYBOT_ON_EMPTY"},
	},
	&cli.IntFlag{
		Name:    "max-candidate-attempts",
		Usage:   "candidate visits allowed per acting user, 0 means unbounded",
		EnvVars: []string{"ACTIVITYBOT_MAX_CANDIDATE_ATTEMPTS"},
	},
	&cli.DurationFlag{
		Name:    "request-timeout",
		Usage:   "timeout for a single API request",
		Value:   10 * time.Second,
		EnvVars: []string{"ACTIVITYBOT_REQUEST_TIMEOUT"},
	},
	&cli.StringFlag{
		Name:    "log-level",
		Aliases: []string{"l"},
		Usage:   "debug, info, warn or error",
		Value:   "info",
		EnvVars: []string{"LOG_LEVEL"},
	},
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	app := &cli.App{
		Name:      "activitybot",
		Usage:     "simulate user activity against the social API",
		ArgsUsage: "<config.yml>",
		Flags:     flags,
		Action:    run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("activitybot failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	level, err := middleware.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	logger := middleware.NewLogger(os.Stdout, level, false)
	slog.SetDefault(logger)

	if c.NArg() != 1 {
		return cli.Exit("expected exactly one argument: the path to the config file", 2)
	}
	cfg, err := activity.LoadConfig(c.Args().First())
	if err != nil {
		return err
	}

	policy, err := activity.ParsePolicy(c.String("on-empty"))
	if err != nil {
		return err
	}

	seed := c.Int64("seed")
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	client := socialclient.New(socialclient.Config{
		BaseURL: c.String("api-url"),
		Timeout: c.Duration("request-timeout"),
		Logger:  logger,
		Seed:    seed,
	})
	defer func() { _ = client.Close() }()

	sim := &activity.Simulator{
		API:                  client,
		Rand:                 rand.New(rand.NewSource(seed)),
		Logger:               logger,
		EmptyCandidates:      policy,
		MaxCandidateAttempts: c.Int("max-candidate-attempts"),
	}

	logger.Info("starting simulation",
		"api_url", c.String("api-url"),
		"users", cfg.NumberOfUsers,
		"max_posts_per_user", cfg.MaxPostsPerUser,
		"max_likes_per_user", cfg.MaxLikesPerUser,
		"on_empty", policy.String(),
		"seed", seed,
	)

	report, err := sim.Run(c.Context, cfg)
	if report != nil {
		logger.Info("simulation report", "report", report)
	}
	return err
}
