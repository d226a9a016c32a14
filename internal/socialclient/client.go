// Package socialclient is the HTTP client the activity bot uses to talk to the social API.
package socialclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"socialnet/internal/activity"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"resty.dev/v3"
)

// ErrUnexpectedStatus is returned when the service answers with a status the call does not accept.
var ErrUnexpectedStatus = errors.New("unexpected response status")

const (
	signupPath        = "/api/users/signup/"
	tokenPath         = "/api/token/"
	postsPath         = "/api/posts/"
	leastFavoritePath = "/api/users/least_favorite/"
	likePathFmt       = "/api/posts/%d/like/"

	// postsPageSize is the largest page the service returns.
	postsPageSize = 100
)

// Config configures a Client.
type Config struct {
	BaseURL string
	// Timeout bounds a single request. Zero keeps resty's default.
	Timeout time.Duration
	Logger  *slog.Logger
	// Seed makes generated post bodies reproducible when non-zero.
	Seed int64
}

// Client implements activity.SocialAPI over HTTP.
type Client struct {
	client *resty.Client
	faker  *gofakeit.Faker
	logger *slog.Logger
}

var _ activity.SocialAPI = (*Client)(nil)

// New builds a client for the service at cfg.BaseURL.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New()
	client.SetLogger(restyLogger{log: logger})
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	client.AddResponseMiddleware(func(_ *resty.Client, response *resty.Response) error {
		path := response.Request.URL
		if u, err := url.Parse(response.Request.URL); err == nil {
			path = u.Path
		}
		logger.Debug("api call",
			"method", response.Request.Method,
			"path", path,
			"status", response.StatusCode(),
			"duration", response.Duration(),
		)
		return nil
	})

	return &Client{
		client: client,
		faker:  gofakeit.New(cfg.Seed),
		logger: logger,
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) r(ctx context.Context) *resty.Request {
	return c.client.R().WithContext(ctx)
}

func (c *Client) authed(ctx context.Context, user *activity.User) (*resty.Request, error) {
	if user.Token == nil {
		if err := c.FetchSessionToken(ctx, user); err != nil {
			return nil, err
		}
	}
	return c.r(ctx).SetAuthToken(user.Token.Access), nil
}

type userResponse struct {
	ID        uint   `json:"id"`
	URL       string `json:"url"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (u userResponse) toUser() *activity.User {
	return &activity.User{
		ID:        u.ID,
		URL:       u.URL,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

type postResponse struct {
	ID      uint   `json:"id"`
	URL     string `json:"url"`
	Data    string `json:"data"`
	Creator uint   `json:"creator"`
}

func (p postResponse) toPost() *activity.Post {
	return &activity.Post{ID: p.ID, URL: p.URL, CreatorID: p.Creator, Data: p.Data}
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func unexpected(op string, res *resty.Response) error {
	body := strings.TrimSpace(res.String())
	if body == "" {
		return fmt.Errorf("%s: %w: %s", op, ErrUnexpectedStatus, res.Status())
	}
	return fmt.Errorf("%s: %w: %s: %s", op, ErrUnexpectedStatus, res.Status(), body)
}

// CreateUser signs up a user with generated credentials.
func (c *Client) CreateUser(ctx context.Context) (*activity.User, error) {
	user := &activity.User{
		Username: uuid.NewString(),
		Password: uuid.NewString(),
		Email:    uuid.NewString() + "@example.com",
	}

	res, err := c.r(ctx).
		SetBody(map[string]string{
			"username": user.Username,
			"password": user.Password,
			"email":    user.Email,
		}).
		SetResult(&userResponse{}).
		Post(signupPath)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	if res.StatusCode() != http.StatusCreated {
		return nil, unexpected("signup", res)
	}

	created := res.Result().(*userResponse)
	user.ID = created.ID
	user.URL = created.URL
	user.FirstName = created.FirstName
	user.LastName = created.LastName
	return user, nil
}

// FetchSessionToken exchanges the user's credentials for a token pair.
func (c *Client) FetchSessionToken(ctx context.Context, user *activity.User) error {
	res, err := c.r(ctx).
		SetBody(map[string]string{
			"username": user.Username,
			"password": user.Password,
		}).
		SetResult(&tokenResponse{}).
		Post(tokenPath)
	if err != nil {
		return fmt.Errorf("obtain token: %w", err)
	}
	if res.StatusCode() != http.StatusOK {
		return unexpected("obtain token", res)
	}

	pair := res.Result().(*tokenResponse)
	user.Token = &activity.Token{Access: pair.Access, Refresh: pair.Refresh}
	return nil
}

// CreatePostsForUser replaces the user's post list with count freshly created posts.
func (c *Client) CreatePostsForUser(ctx context.Context, user *activity.User, count int) error {
	user.Posts = nil
	if err := c.FetchSessionToken(ctx, user); err != nil {
		return err
	}

	for i := 0; i < count; i++ {
		req, err := c.authed(ctx, user)
		if err != nil {
			return err
		}
		res, err := req.
			SetBody(map[string]string{"data": c.faker.Paragraph(1, 3, 12, " ")}).
			SetResult(&postResponse{}).
			Post(postsPath)
		if err != nil {
			return fmt.Errorf("create post: %w", err)
		}
		if res.StatusCode() != http.StatusCreated {
			return unexpected("create post", res)
		}
		user.Posts = append(user.Posts, res.Result().(*postResponse).toPost())
	}
	return nil
}

// FetchPostsForUser lists all of target's posts as acting, following
// limit/offset pages until a short page comes back.
func (c *Client) FetchPostsForUser(ctx context.Context, target, acting *activity.User) ([]*activity.Post, error) {
	if target == nil || target.ID == 0 {
		return []*activity.Post{}, nil
	}

	creator := strconv.FormatUint(uint64(target.ID), 10)
	out := []*activity.Post{}
	for offset := 0; ; offset += postsPageSize {
		req, err := c.authed(ctx, acting)
		if err != nil {
			return nil, err
		}
		var page []postResponse
		res, err := req.
			SetQueryParams(map[string]string{
				"creator": creator,
				"limit":   strconv.Itoa(postsPageSize),
				"offset":  strconv.Itoa(offset),
			}).
			SetResult(&page).
			Get(postsPath)
		if err != nil {
			return nil, fmt.Errorf("list posts: %w", err)
		}
		if res.StatusCode() != http.StatusOK {
			return nil, unexpected("list posts", res)
		}

		out = append(out, lo.Map(page, func(p postResponse, _ int) *activity.Post { return p.toPost() })...)
		if len(page) < postsPageSize {
			return out, nil
		}
	}
}

// FetchUsersWithNoLikes returns the users whose posts have no likes, in service order.
func (c *Client) FetchUsersWithNoLikes(ctx context.Context, acting *activity.User) ([]*activity.User, error) {
	req, err := c.authed(ctx, acting)
	if err != nil {
		return nil, err
	}
	var users []userResponse
	res, err := req.SetResult(&users).Get(leastFavoritePath)
	if err != nil {
		return nil, fmt.Errorf("list least favorite users: %w", err)
	}
	if res.StatusCode() != http.StatusOK {
		return nil, unexpected("list least favorite users", res)
	}

	return lo.Map(users, func(u userResponse, _ int) *activity.User { return u.toUser() }), nil
}

// LikePost likes post as acting. A repeated like is not an error.
func (c *Client) LikePost(ctx context.Context, acting *activity.User, post *activity.Post) error {
	if post == nil || post.ID == 0 {
		return nil
	}

	req, err := c.authed(ctx, acting)
	if err != nil {
		return err
	}
	res, err := req.Post(fmt.Sprintf(likePathFmt, post.ID))
	if err != nil {
		return fmt.Errorf("like post: %w", err)
	}
	switch res.StatusCode() {
	case http.StatusAccepted, http.StatusNoContent:
		return nil
	default:
		return unexpected("like post", res)
	}
}
