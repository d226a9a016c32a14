package server

import (
	"socialnet/internal/models"
	"socialnet/internal/service"

	"github.com/gofiber/fiber/v2"
)

type postRequest struct {
	Data string `json:"data" form:"data"`
}

// GetPosts handles GET /api/posts/
// @Summary List posts
// @Description Posts newest first, optionally filtered by creator
// @Tags posts
// @Produce json
// @Param creator query int false "Creator user ID"
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {array} models.Post
// @Security BearerAuth
// @Router /posts/ [get]
func (s *Server) GetPosts(c *fiber.Ctx) error {
	creatorID, err := parseOptionalQueryID(c, "creator")
	if err != nil {
		return nil
	}
	page := parsePagination(c, 50)

	posts, err := s.postSvc().ListPosts(c.UserContext(), service.ListPostsInput{
		CreatorID: creatorID,
		Limit:     page.Limit,
		Offset:    page.Offset,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(withPostURLs(c, posts))
}

// CreatePost handles POST /api/posts/
// @Summary Create post
// @Tags posts
// @Accept json
// @Produce json
// @Param request body postRequest true "Post body"
// @Success 201 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/ [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req postRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	post, err := s.postSvc().CreatePost(c.UserContext(), service.CreatePostInput{
		UserID: currentUserID(c),
		Data:   req.Data,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(withPostURL(c, post))
}

// GetPost handles GET /api/posts/:id/
// @Summary Get post
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} models.Post
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id}/ [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.postSvc().GetPost(c.UserContext(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(withPostURL(c, post))
}

// UpdatePost handles PUT /api/posts/:id/
// @Summary Update post
// @Description Only the creator may update a post
// @Tags posts
// @Accept json
// @Produce json
// @Param id path int true "Post ID"
// @Param request body postRequest true "Post body"
// @Success 200 {object} models.Post
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id}/ [put]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req postRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	post, err := s.postSvc().UpdatePost(c.UserContext(), service.UpdatePostInput{
		UserID: currentUserID(c),
		PostID: id,
		Data:   req.Data,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(withPostURL(c, post))
}

// DeletePost handles DELETE /api/posts/:id/
// @Summary Delete post
// @Description Only the creator may delete a post
// @Tags posts
// @Param id path int true "Post ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id}/ [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.postSvc().DeletePost(c.UserContext(), service.DeletePostInput{
		UserID: currentUserID(c),
		PostID: id,
	}); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// LikePost handles POST /api/posts/:id/like/
// @Summary Like post
// @Description 202 when the like is recorded, 204 when the post was already liked
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 202 {object} object{detail=string}
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id}/like/ [post]
func (s *Server) LikePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	ctx := c.UserContext()
	userID := currentUserID(c)
	post, created, err := s.postSvc().LikePost(ctx, userID, id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	if !created {
		return c.SendStatus(fiber.StatusNoContent)
	}

	s.notifyPostLiked(ctx, post, userID)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"detail": "Post is liked"})
}

// UnlikePost handles POST /api/posts/:id/unlike/
// @Summary Unlike post
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 202 {object} object{detail=string}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id}/unlike/ [post]
func (s *Server) UnlikePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.postSvc().UnlikePost(c.UserContext(), currentUserID(c), id); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"detail": "Post is unliked"})
}
