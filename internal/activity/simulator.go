// Package activity drives synthetic traffic against the social API: it signs up
// users, creates posts for them and then spreads likes so that every user's
// posts eventually get liked.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"time"

	"github.com/samber/lo"
)

// Token is a session credential pair.
type Token struct {
	Access  string
	Refresh string
}

// User is the simulator's view of an account.
type User struct {
	ID        uint
	URL       string
	Username  string
	Password  string
	Email     string
	FirstName string
	LastName  string
	Posts     []*Post
	Token     *Token
}

// Post is the simulator's view of a post.
type Post struct {
	ID        uint
	URL       string
	CreatorID uint
	Data      string
}

// SocialAPI is everything the simulator needs from the service.
type SocialAPI interface {
	CreateUser(ctx context.Context) (*User, error)
	FetchSessionToken(ctx context.Context, user *User) error
	CreatePostsForUser(ctx context.Context, user *User, count int) error
	FetchPostsForUser(ctx context.Context, target, acting *User) ([]*Post, error)
	FetchUsersWithNoLikes(ctx context.Context, acting *User) ([]*User, error)
	LikePost(ctx context.Context, acting *User, post *Post) error
}

// Policy decides what happens when an acting user sees no candidates.
type Policy int

const (
	// HaltOnEmpty ends the like phase for everyone.
	HaltOnEmpty Policy = iota
	// SkipOnEmpty moves on to the next acting user.
	SkipOnEmpty
)

func (p Policy) String() string {
	switch p {
	case HaltOnEmpty:
		return "halt"
	case SkipOnEmpty:
		return "skip"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy accepts "halt" or "skip".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "halt", "":
		return HaltOnEmpty, nil
	case "skip":
		return SkipOnEmpty, nil
	default:
		return 0, fmt.Errorf("unknown empty-candidates policy %q", s)
	}
}

// Simulator runs the three phases sequentially against API.
type Simulator struct {
	API             SocialAPI
	Rand            *rand.Rand
	Logger          *slog.Logger
	EmptyCandidates Policy
	// MaxCandidateAttempts caps candidate visits per acting user. Zero means unbounded.
	MaxCandidateAttempts int
}

// Report summarizes a run.
type Report struct {
	UsersCreated int
	PostsCreated int
	LikesIssued  int
	ActingUsers  int
	Halted       bool
	Duration     time.Duration
}

// LogValue lets the report be logged as a group.
func (r Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("users_created", r.UsersCreated),
		slog.Int("posts_created", r.PostsCreated),
		slog.Int("likes_issued", r.LikesIssued),
		slog.Int("acting_users", r.ActingUsers),
		slog.Bool("halted", r.Halted),
		slog.Duration("duration", r.Duration),
	)
}

// LikeResult is the outcome of the like phase.
type LikeResult struct {
	Likes       int
	ActingUsers int
	Halted      bool
}

func (s *Simulator) rng() *rand.Rand {
	if s.Rand == nil {
		s.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s.Rand
}

func (s *Simulator) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Run validates cfg and executes signup, post creation and like distribution.
// Any API failure aborts the run; the partial report is still returned.
func (s *Simulator) Run(ctx context.Context, cfg *Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	report := &Report{}
	defer func() { report.Duration = time.Since(started) }()

	users, err := s.SignUpUsers(ctx, cfg.NumberOfUsers)
	report.UsersCreated = len(users)
	if err != nil {
		return report, err
	}

	report.PostsCreated, err = s.CreatePosts(ctx, users, cfg.MaxPostsPerUser)
	if err != nil {
		return report, err
	}

	likes, err := s.LikePosts(ctx, users, cfg.MaxLikesPerUser)
	report.LikesIssued = likes.Likes
	report.ActingUsers = likes.ActingUsers
	report.Halted = likes.Halted
	if err != nil {
		return report, err
	}

	return report, nil
}

// SignUpUsers creates n users in order. The first failure stops the phase.
func (s *Simulator) SignUpUsers(ctx context.Context, n int) ([]*User, error) {
	users := make([]*User, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return users, err
		}
		user, err := s.API.CreateUser(ctx)
		if err != nil {
			return users, fmt.Errorf("sign up user %d of %d: %w", i+1, n, err)
		}
		s.logger().Debug("user signed up", "id", user.ID, "username", user.Username)
		users = append(users, user)
	}
	s.logger().Info("signup phase done", "users", len(users))
	return users, nil
}

// CreatePosts gives every user between 1 and maxPerUser posts and returns the total created.
func (s *Simulator) CreatePosts(ctx context.Context, users []*User, maxPerUser int) (int, error) {
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return countPosts(users), err
		}
		n := 1 + s.rng().Intn(maxPerUser)
		if err := s.API.CreatePostsForUser(ctx, user, n); err != nil {
			return countPosts(users), fmt.Errorf("create %d posts for %s: %w", n, user.Username, err)
		}
		s.logger().Debug("posts created", "user", user.Username, "count", n)
	}
	total := countPosts(users)
	s.logger().Info("post phase done", "posts", total)
	return total, nil
}

func countPosts(users []*User) int {
	return lo.SumBy(users, func(u *User) int { return len(u.Posts) })
}

// LikePosts lets users act in descending order of post count, each spending up to
// maxLikes likes on the posts of users that have no likes yet.
func (s *Simulator) LikePosts(ctx context.Context, users []*User, maxLikes int) (LikeResult, error) {
	var result LikeResult
	log := s.logger()

	queue := slices.Clone(users)
	slices.SortStableFunc(queue, func(a, b *User) int { return len(a.Posts) - len(b.Posts) })

	for len(queue) > 0 {
		acting := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		if err := s.API.FetchSessionToken(ctx, acting); err != nil {
			return result, fmt.Errorf("fetch token for %s: %w", acting.Username, err)
		}
		candidates, err := s.API.FetchUsersWithNoLikes(ctx, acting)
		if err != nil {
			return result, fmt.Errorf("fetch users with no likes as %s: %w", acting.Username, err)
		}
		result.ActingUsers++

		if len(candidates) == 0 {
			if s.EmptyCandidates == HaltOnEmpty {
				log.Info("no users left without likes, stopping", "acting_user", acting.Username)
				result.Halted = true
				return result, nil
			}
			log.Info("no candidates for acting user, skipping", "acting_user", acting.Username)
			continue
		}

		likes, err := s.spendLikes(ctx, acting, candidates, maxLikes)
		result.Likes += likes
		if err != nil {
			return result, err
		}
	}

	log.Info("like phase done", "likes", result.Likes, "acting_users", result.ActingUsers)
	return result, nil
}

func (s *Simulator) spendLikes(ctx context.Context, acting *User, candidates []*User, budget int) (int, error) {
	spent := 0
	for attempt := 0; spent < budget; attempt++ {
		if err := ctx.Err(); err != nil {
			return spent, err
		}
		if s.MaxCandidateAttempts > 0 && attempt >= s.MaxCandidateAttempts {
			s.logger().Warn("candidate attempts exhausted",
				"acting_user", acting.Username,
				"attempts", attempt,
				"likes", spent,
			)
			return spent, nil
		}

		candidate := candidates[attempt%len(candidates)]
		posts, err := s.API.FetchPostsForUser(ctx, candidate, acting)
		if err != nil {
			return spent, fmt.Errorf("fetch posts of user %d: %w", candidate.ID, err)
		}
		if len(posts) == 0 {
			continue
		}

		post := posts[s.rng().Intn(len(posts))]
		if err := s.API.LikePost(ctx, acting, post); err != nil {
			return spent, fmt.Errorf("like post %d as %s: %w", post.ID, acting.Username, err)
		}
		spent++
		s.logger().Debug("post liked", "acting_user", acting.Username, "post", post.ID, "creator", candidate.ID)
	}
	return spent, nil
}
