package seed

import (
	"fmt"

	"socialnet/internal/middleware"
	"socialnet/internal/models"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers int
	NumPosts int
	// MaxLikesPerUser caps how many other users' posts each user likes.
	MaxLikesPerUser int
	ShouldClean     bool
	Factory         FactoryOptions
}

// Result summarizes what Seed created.
type Result struct {
	Users int
	Posts int
	Likes int
}

// Seed populates the database with generated users, posts and likes.
// Users never like their own posts.
func Seed(db *gorm.DB, opts Options) (*Result, error) {
	log := middleware.Logger
	log.Info("starting database seeding", "users", opts.NumUsers, "posts", opts.NumPosts)

	if opts.ShouldClean && !opts.Factory.DryRun {
		if err := clearData(db); err != nil {
			log.Warn("could not clear existing data, continuing", "error", err)
		}
	}

	f := NewFactory(db, opts.Factory)
	res := &Result{}

	users := make([]*models.User, 0, opts.NumUsers)
	for i := 0; i < opts.NumUsers; i++ {
		user, err := f.CreateUser()
		if err != nil {
			return res, fmt.Errorf("failed to create user: %w", err)
		}
		users = append(users, user)
	}
	res.Users = len(users)
	if len(users) == 0 {
		return res, nil
	}

	posts := make([]*models.Post, 0, opts.NumPosts)
	for i := 0; i < opts.NumPosts; i++ {
		posts = append(posts, f.BuildPost(lo.Sample(users)))
	}
	if err := f.CreatePostsBatch(posts); err != nil {
		return res, fmt.Errorf("failed to create posts: %w", err)
	}
	res.Posts = len(posts)

	for _, user := range users {
		others := lo.Filter(posts, func(p *models.Post, _ int) bool { return p.UserID != user.ID })
		if len(others) == 0 || opts.MaxLikesPerUser <= 0 {
			continue
		}
		n := f.rng.Intn(min(opts.MaxLikesPerUser, len(others)) + 1)
		for _, post := range lo.Samples(others, n) {
			if err := f.CreateLike(user, post); err != nil {
				return res, fmt.Errorf("failed to create like: %w", err)
			}
			res.Likes++
		}
	}

	log.Info("database seeding completed", "users", res.Users, "posts", res.Posts, "likes", res.Likes)
	return res, nil
}

func clearData(db *gorm.DB) error {
	middleware.Logger.Info("clearing existing data")
	if db.Dialector.Name() == "postgres" {
		return db.Exec(`TRUNCATE TABLE likes, posts, users RESTART IDENTITY CASCADE`).Error
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"likes", "posts", "users"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
