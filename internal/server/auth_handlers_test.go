package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"socialnet/internal/config"
	"socialnet/internal/middleware"
	"socialnet/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testJWTSecret = "test-secret-key-12345678901234567890123456789012"

// MockUserRepository is a mock of the UserRepository interface
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) Update(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserRepository) ListLeastFavorite(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.User), args.Error(1)
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:       testJWTSecret,
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func jsonRequest(method, target string, body any) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeTokenPair(t *testing.T, resp *http.Response) TokenPair {
	t.Helper()
	var pair TokenPair
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pair))
	return pair
}

func TestSignup(t *testing.T) {
	tests := []struct {
		name           string
		body           map[string]string
		mockSetup      func(m *MockUserRepository)
		expectedStatus int
		expectedError  string
	}{
		{
			name: "Success",
			body: map[string]string{
				"username": "testuser",
				"email":    "Test@Example.com",
				"password": "Password123!",
			},
			mockSetup: func(m *MockUserRepository) {
				m.On("GetByUsername", mock.Anything, "testuser").Return(nil, nil)
				m.On("GetByEmail", mock.Anything, "test@example.com").Return(nil, nil)
				m.On("Create", mock.Anything, mock.AnythingOfType("*models.User")).
					Run(func(args mock.Arguments) { args.Get(1).(*models.User).ID = 5 }).
					Return(nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "Duplicate Username",
			body: map[string]string{
				"username": "taken",
				"email":    "new@example.com",
				"password": "Password123!",
			},
			mockSetup: func(m *MockUserRepository) {
				m.On("GetByUsername", mock.Anything, "taken").Return(&models.User{ID: 1}, nil)
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "A user with that username already exists",
		},
		{
			name: "Numeric Password",
			body: map[string]string{
				"username": "testuser",
				"email":    "test@example.com",
				"password": "12345678",
			},
			mockSetup:      func(m *MockUserRepository) {},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "password cannot be entirely numeric",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			tt.mockSetup(mockRepo)
			s := &Server{config: testConfig(), userRepo: mockRepo}

			app := fiber.New()
			app.Post("/api/users/signup", s.Signup)

			resp, err := app.Test(jsonRequest(http.MethodPost, "/api/users/signup", tt.body))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, body["error"])
				return
			}
			assert.Equal(t, "test@example.com", body["email"])
			assert.Equal(t, "http://example.com/api/users/5/", body["url"])
			assert.NotContains(t, body, "password")
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestObtainToken(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("Password123!"), bcrypt.MinCost)
	require.NoError(t, err)

	mockRepo := new(MockUserRepository)
	mockRepo.On("GetByUsername", mock.Anything, "alice").
		Return(&models.User{ID: 7, Username: "alice", Password: string(hashed)}, nil)
	mockRepo.On("GetByUsername", mock.Anything, "nobody").Return(nil, nil)

	s := &Server{config: testConfig(), userRepo: mockRepo}
	app := fiber.New()
	app.Post("/api/token", s.ObtainToken)

	t.Run("JSON credentials", func(t *testing.T) {
		resp, err := app.Test(jsonRequest(http.MethodPost, "/api/token",
			map[string]string{"username": "alice", "password": "Password123!"}))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		pair := decodeTokenPair(t, resp)
		claims, err := middleware.ParseToken(testJWTSecret, pair.Access, middleware.TokenTypeAccess)
		require.NoError(t, err)
		uid, _ := claims.UserID()
		assert.Equal(t, uint(7), uid)

		_, err = middleware.ParseToken(testJWTSecret, pair.Refresh, middleware.TokenTypeRefresh)
		assert.NoError(t, err)
	})

	t.Run("Form credentials", func(t *testing.T) {
		form := url.Values{"username": {"alice"}, "password": {"Password123!"}}
		req := httptest.NewRequest(http.MethodPost, "/api/token", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Wrong password", func(t *testing.T) {
		resp, err := app.Test(jsonRequest(http.MethodPost, "/api/token",
			map[string]string{"username": "alice", "password": "nope-nope"}))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Unknown user", func(t *testing.T) {
		resp, err := app.Test(jsonRequest(http.MethodPost, "/api/token",
			map[string]string{"username": "nobody", "password": "Password123!"}))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Missing fields", func(t *testing.T) {
		resp, err := app.Test(jsonRequest(http.MethodPost, "/api/token",
			map[string]string{"username": "alice"}))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRefreshToken_RotatesAndRevokes(t *testing.T) {
	_, rdb := newTestRedis(t)
	mockRepo := new(MockUserRepository)
	mockRepo.On("GetByID", mock.Anything, uint(7)).Return(&models.User{ID: 7}, nil)

	s := &Server{config: testConfig(), userRepo: mockRepo, redis: rdb}
	app := fiber.New()
	app.Post("/api/token/refresh", s.RefreshToken)

	refresh, _, err := middleware.IssueToken(testJWTSecret, 7, middleware.TokenTypeRefresh, time.Hour)
	require.NoError(t, err)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/token/refresh", map[string]string{"refresh": refresh}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pair := decodeTokenPair(t, resp)
	_ = resp.Body.Close()
	assert.NotEmpty(t, pair.Access)
	assert.NotEqual(t, refresh, pair.Refresh)

	// The old refresh token is single use.
	resp, err = app.Test(jsonRequest(http.MethodPost, "/api/token/refresh", map[string]string{"refresh": refresh}))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRefreshToken_Rejects(t *testing.T) {
	mockRepo := new(MockUserRepository)
	mockRepo.On("GetByID", mock.Anything, uint(8)).Return(nil, models.NewNotFoundError("User", 8))

	s := &Server{config: testConfig(), userRepo: mockRepo}
	app := fiber.New()
	app.Post("/api/token/refresh", s.RefreshToken)

	access, _, _ := middleware.IssueToken(testJWTSecret, 7, middleware.TokenTypeAccess, time.Hour)
	deleted, _, _ := middleware.IssueToken(testJWTSecret, 8, middleware.TokenTypeRefresh, time.Hour)

	tests := []struct {
		name           string
		body           map[string]string
		expectedStatus int
	}{
		{"Missing token", map[string]string{}, http.StatusBadRequest},
		{"Access token", map[string]string{"refresh": access}, http.StatusUnauthorized},
		{"Garbage", map[string]string{"refresh": "not-a-jwt"}, http.StatusUnauthorized},
		{"Deleted user", map[string]string{"refresh": deleted}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(jsonRequest(http.MethodPost, "/api/token/refresh", tt.body))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestRevokeToken(t *testing.T) {
	t.Run("Revoked access token is rejected", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		s := &Server{config: testConfig(), redis: rdb}
		app := fiber.New()
		app.Post("/api/token/revoke", s.AuthRequired(), s.RevokeToken)
		app.Get("/api/ping", s.AuthRequired(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

		access, _, _ := middleware.IssueToken(testJWTSecret, 3, middleware.TokenTypeAccess, time.Hour)
		refresh, refreshClaims, _ := middleware.IssueToken(testJWTSecret, 3, middleware.TokenTypeRefresh, time.Hour)

		req := jsonRequest(http.MethodPost, "/api/token/revoke", map[string]string{"refresh": refresh})
		req.Header.Set("Authorization", "Bearer "+access)
		resp, err := app.Test(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		req = httptest.NewRequest(http.MethodGet, "/api/ping", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		resp, err = app.Test(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		n, err := rdb.Exists(context.Background(), "revoked_jti:"+refreshClaims.ID).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("Another user's refresh token is left alone", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		s := &Server{config: testConfig(), redis: rdb}
		app := fiber.New()
		app.Post("/api/token/revoke", s.AuthRequired(), s.RevokeToken)

		access, _, _ := middleware.IssueToken(testJWTSecret, 3, middleware.TokenTypeAccess, time.Hour)
		other, otherClaims, _ := middleware.IssueToken(testJWTSecret, 4, middleware.TokenTypeRefresh, time.Hour)

		req := jsonRequest(http.MethodPost, "/api/token/revoke", map[string]string{"refresh": other})
		req.Header.Set("Authorization", "Bearer "+access)
		resp, err := app.Test(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		n, _ := rdb.Exists(context.Background(), "revoked_jti:"+otherClaims.ID).Result()
		assert.Zero(t, n)
	})

	t.Run("Without Redis", func(t *testing.T) {
		s := &Server{config: testConfig()}
		app := fiber.New()
		app.Post("/api/token/revoke", s.AuthRequired(), s.RevokeToken)

		access, _, _ := middleware.IssueToken(testJWTSecret, 3, middleware.TokenTypeAccess, time.Hour)
		req := httptest.NewRequest(http.MethodPost, "/api/token/revoke", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}
