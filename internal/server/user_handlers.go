package server

import (
	"context"
	"errors"
	"time"

	"socialnet/internal/models"
	"socialnet/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetAllUsers handles GET /api/users/
// @Summary List users
// @Description Users ordered by join date, newest first
// @Tags users
// @Produce json
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {array} models.User
// @Security BearerAuth
// @Router /users/ [get]
func (s *Server) GetAllUsers(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	page := parsePagination(c, 100)

	users, err := s.userSvc().ListUsers(ctx, page.Limit, page.Offset)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return c.Status(fiber.StatusGatewayTimeout).JSON(models.ErrorResponse{
				Error: "Request timeout",
			})
		}
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(withUserURLs(c, users))
}

// GetLeastFavoriteUsers handles GET /api/users/least_favorite/
// @Summary Users without likes
// @Description Users who have at least one post and no likes on any of their posts, newest first
// @Tags users
// @Produce json
// @Success 200 {array} models.User
// @Security BearerAuth
// @Router /users/least_favorite/ [get]
func (s *Server) GetLeastFavoriteUsers(c *fiber.Ctx) error {
	users, err := s.userSvc().LeastFavorite(c.UserContext())
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(withUserURLs(c, users))
}

// GetUserProfile handles GET /api/users/:id/
// @Summary Get user
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /users/{id}/ [get]
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	user, err := s.userSvc().GetUserByID(c.UserContext(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(withUserURL(c, user))
}

// GetMyProfile handles GET /api/users/me/
// @Summary Current user
// @Tags users
// @Produce json
// @Success 200 {object} models.User
// @Security BearerAuth
// @Router /users/me/ [get]
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	user, err := s.userSvc().GetUserByID(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(withUserURL(c, user))
}

// UpdateMyProfile handles PUT /api/users/me/
// @Summary Update current user
// @Description Change first and/or last name. Omitted fields are kept.
// @Tags users
// @Accept json
// @Produce json
// @Param request body object{first_name=string,last_name=string} true "Names"
// @Success 200 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /users/me/ [put]
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	var req struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	user, err := s.userSvc().UpdateProfile(c.UserContext(), service.UpdateProfileInput{
		UserID:    currentUserID(c),
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(withUserURL(c, user))
}

// DeleteUser handles DELETE /api/users/:id/
// @Summary Delete own account
// @Description Deletes the caller's account together with its posts and likes
// @Tags users
// @Param id path int true "User ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /users/{id}/ [delete]
func (s *Server) DeleteUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.userSvc().DeleteUser(c.UserContext(), service.DeleteUserInput{
		ActorID:  currentUserID(c),
		TargetID: id,
	}); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
