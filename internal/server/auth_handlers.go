package server

import (
	"context"
	"time"

	"socialnet/internal/cache"
	"socialnet/internal/middleware"
	"socialnet/internal/models"
	"socialnet/internal/service"

	"github.com/gofiber/fiber/v2"
)

// TokenPair is the response of the token endpoints.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type signupRequest struct {
	Username  string `json:"username" form:"username"`
	Email     string `json:"email" form:"email"`
	Password  string `json:"password" form:"password"`
	FirstName string `json:"first_name" form:"first_name"`
	LastName  string `json:"last_name" form:"last_name"`
}

// Signup handles POST /api/users/signup/
// @Summary User signup
// @Description Register a new user account. The email may be verified and the name enriched.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body signupRequest true "Signup request"
// @Success 201 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Router /users/signup/ [post]
func (s *Server) Signup(c *fiber.Ctx) error {
	var req signupRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	user, err := s.userSvc().Signup(c.UserContext(), service.SignupInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(withUserURL(c, user))
}

// ObtainToken handles POST /api/token/
// @Summary Obtain a token pair
// @Description Exchange username and password for access and refresh tokens. Accepts JSON or form data.
// @Tags auth
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param request body object{username=string,password=string} true "Credentials"
// @Success 200 {object} TokenPair
// @Failure 401 {object} models.ErrorResponse
// @Router /token/ [post]
func (s *Server) ObtainToken(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username" form:"username"`
		Password string `json:"password" form:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.Username == "" || req.Password == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Username and password are required"))
	}

	user, err := s.userSvc().Authenticate(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	pair, err := s.issueTokenPair(user.ID)
	if err != nil {
		return models.RespondWithAppError(c, models.NewInternalError(err))
	}
	return c.JSON(pair)
}

// RefreshToken handles POST /api/token/refresh/
// @Summary Refresh a token pair
// @Description Exchange a refresh token for a new access/refresh pair. The old refresh token is revoked.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{refresh=string} true "Refresh token"
// @Success 200 {object} TokenPair
// @Failure 401 {object} models.ErrorResponse
// @Router /token/refresh/ [post]
func (s *Server) RefreshToken(c *fiber.Ctx) error {
	var req struct {
		Refresh string `json:"refresh" form:"refresh"`
	}
	if err := c.BodyParser(&req); err != nil || req.Refresh == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("refresh token is required"))
	}

	ctx := c.UserContext()
	claims, err := middleware.ParseToken(s.config.JWTSecret, req.Refresh, middleware.TokenTypeRefresh)
	if err != nil || s.isRevoked(ctx, claims.ID) {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Token is invalid or expired"))
	}

	userID, _ := claims.UserID()
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("User no longer exists"))
	}

	s.revoke(ctx, claims.ID, claims.ExpiresAt.Time)

	pair, err := s.issueTokenPair(userID)
	if err != nil {
		return models.RespondWithAppError(c, models.NewInternalError(err))
	}
	return c.JSON(pair)
}

// RevokeToken handles POST /api/token/revoke/
// @Summary Revoke tokens
// @Description Revoke the presented access token and, when given, a refresh token.
// @Tags auth
// @Accept json
// @Param request body object{refresh=string} false "Refresh token to revoke"
// @Success 204
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /token/revoke/ [post]
func (s *Server) RevokeToken(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(cache.ErrUnavailable))
	}

	if claims, ok := c.Locals("tokenClaims").(*middleware.TokenClaims); ok {
		s.revoke(ctx, claims.ID, claims.ExpiresAt.Time)
	}

	var req struct {
		Refresh string `json:"refresh" form:"refresh"`
	}
	if err := c.BodyParser(&req); err == nil && req.Refresh != "" {
		refresh, err := middleware.ParseToken(s.config.JWTSecret, req.Refresh, middleware.TokenTypeRefresh)
		if err == nil {
			if uid, _ := refresh.UserID(); uid == currentUserID(c) {
				s.revoke(ctx, refresh.ID, refresh.ExpiresAt.Time)
			}
		}
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) issueTokenPair(userID uint) (*TokenPair, error) {
	access, _, err := middleware.IssueToken(s.config.JWTSecret, userID, middleware.TokenTypeAccess, s.config.AccessTokenTTL)
	if err != nil {
		return nil, err
	}
	refresh, _, err := middleware.IssueToken(s.config.JWTSecret, userID, middleware.TokenTypeRefresh, s.config.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// revoke blacklists jti until the token would have expired anyway.
func (s *Server) revoke(ctx context.Context, jti string, expiresAt time.Time) {
	if s.redis == nil || jti == "" {
		return
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	if err := s.redis.Set(ctx, cache.RevokedTokenKey(jti), "1", ttl).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to revoke token", "error", err)
	}
}
