package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"socialnet/internal/cache"
	"socialnet/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthRequired_WSTicket(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := &Server{config: testConfig(), redis: rdb}

	app := fiber.New()
	app.Get("/api/ws", s.AuthRequired(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"userID": c.Locals("userID")})
	})

	ctx := context.Background()

	t.Run("Ticket is single use", func(t *testing.T) {
		require.NoError(t, rdb.Set(ctx, cache.WSTicketKey("ticket-1"), "123", time.Minute).Err())

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/ws?ticket=ticket-1", nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		_ = resp.Body.Close()
		assert.Equal(t, float64(123), body["userID"])

		exists, err := rdb.Exists(ctx, cache.WSTicketKey("ticket-1")).Result()
		require.NoError(t, err)
		assert.Zero(t, exists)

		resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/ws?ticket=ticket-1", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Missing ticket", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/ws", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Bearer token is not accepted on websocket route", func(t *testing.T) {
		token, _, err := middleware.IssueToken(testJWTSecret, 123, middleware.TokenTypeAccess, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestIssueWSTicket(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := &Server{config: testConfig(), redis: rdb}

	app := fiber.New()
	app.Post("/api/ws/ticket", s.AuthRequired(), s.IssueWSTicket)
	app.Get("/api/ws", s.AuthRequired(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"userID": c.Locals("userID")})
	})

	token, _, err := middleware.IssueToken(testJWTSecret, 42, middleware.TokenTypeAccess, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/ws/ticket", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ticket WSTicketResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ticket))
	_ = resp.Body.Close()
	assert.NotEmpty(t, ticket.Ticket)
	assert.Equal(t, 30, ticket.ExpiresIn)
	assert.Equal(t, cache.WSTicketTTL, mr.TTL(cache.WSTicketKey(ticket.Ticket)))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/ws?ticket="+ticket.Ticket, nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(42), body["userID"])
}

func TestIssueWSTicket_Expired(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := &Server{config: testConfig(), redis: rdb}

	app := fiber.New()
	app.Get("/api/ws", s.AuthRequired(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	require.NoError(t, rdb.Set(context.Background(), cache.WSTicketKey("old"), "5", cache.WSTicketTTL).Err())
	mr.FastForward(cache.WSTicketTTL + time.Second)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/ws?ticket=old", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIssueWSTicket_NoRedis(t *testing.T) {
	s := &Server{config: testConfig()}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", uint(1))
		return c.Next()
	})
	app.Post("/api/ws/ticket", s.IssueWSTicket)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/ws/ticket", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebsocketUpgradeRequired(t *testing.T) {
	s := &Server{}
	app := fiber.New()
	app.Get("/api/ws", s.WebsocketUpgradeRequired(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/ws", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}
