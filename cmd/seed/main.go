// Command seed fills the database with generated users, posts and likes.
package main

import (
	"errors"
	"flag"
	"log"
	"os"

	"socialnet/internal/config"
	"socialnet/internal/database"
	"socialnet/internal/seed"

	"github.com/joho/godotenv"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	numPosts := flag.Int("posts", 200, "Number of posts to create")
	maxLikes := flag.Int("likes", 10, "Maximum number of likes per user")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	fast := flag.Bool("fast", false, "Skip bcrypt; seeded users cannot log in")
	dryRun := flag.Bool("dry-run", false, "Generate data without writing to the database")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to read .env: %v", err)
	}

	log.Printf("Target: %d users, %d posts, up to %d likes per user, clean=%v", *numUsers, *numPosts, *maxLikes, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	res, err := seed.Seed(db, seed.Options{
		NumUsers:        *numUsers,
		NumPosts:        *numPosts,
		MaxLikesPerUser: *maxLikes,
		ShouldClean:     *shouldClean,
		Factory: seed.FactoryOptions{
			DryRun:     *dryRun,
			SkipBcrypt: *fast,
		},
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	if err := database.Close(); err != nil {
		log.Printf("Closing database: %v", err)
	}

	log.Printf("Created %d users, %d posts and %d likes", res.Users, res.Posts, res.Likes)
	if !*fast {
		log.Printf("All seeded users have the password: %s", seed.DefaultPassword)
	}
}
