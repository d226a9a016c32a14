package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"socialnet/internal/models"
	"socialnet/internal/service"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten tells a handler that a helper already sent the error
// response. Handlers return nil when they see it.
var errResponseWritten = errors.New("response already written")

// Pagination is a parsed limit/offset window.
type Pagination struct {
	Limit  int
	Offset int
}

// parsePagination reads ?limit and ?offset. Missing or non-positive limits
// fall back to def and large ones are capped by service.ClampLimit.
func parsePagination(c *fiber.Ctx, def int) Pagination {
	limit := c.QueryInt("limit", def)
	if limit <= 0 {
		limit = def
	}
	return Pagination{
		Limit:  service.ClampLimit(limit),
		Offset: max(c.QueryInt("offset", 0), 0),
	}
}

func badID(c *fiber.Ctx, name string) error {
	_ = models.RespondWithError(c, fiber.StatusBadRequest,
		models.NewValidationError("Invalid "+humanizeParam(name)))
	return errResponseWritten
}

// parseID reads the route parameter param as a positive id, answering 400
// itself when it is not one.
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(param), 10, 64)
	if err != nil || id == 0 {
		return 0, badID(c, param)
	}
	return uint(id), nil
}

// parseOptionalQueryID is parseID for an optional query parameter. An absent
// or blank value yields 0.
func parseOptionalQueryID(c *fiber.Ctx, name string) (uint, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, badID(c, name)
	}
	return uint(id), nil
}

// humanizeParam turns "id" into "ID" and "userId" into "user ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	stem, ok := strings.CutSuffix(param, "Id")
	if !ok {
		return param
	}
	var b strings.Builder
	for i, r := range stem {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String() + " ID"
}

// currentUserID returns the authenticated user set by AuthRequired.
func currentUserID(c *fiber.Ctx) uint {
	id, _ := c.Locals("userID").(uint)
	return id
}

func absoluteURL(c *fiber.Ctx, format string, args ...any) string {
	return c.BaseURL() + fmt.Sprintf(format, args...)
}

func userURL(c *fiber.Ctx, id uint) string {
	return absoluteURL(c, "/api/users/%d/", id)
}

func postURL(c *fiber.Ctx, id uint) string {
	return absoluteURL(c, "/api/posts/%d/", id)
}

func withUserURL(c *fiber.Ctx, u *models.User) *models.User {
	if u != nil {
		u.URL = userURL(c, u.ID)
	}
	return u
}

func withUserURLs(c *fiber.Ctx, users []models.User) []models.User {
	if users == nil {
		return []models.User{}
	}
	for i := range users {
		users[i].URL = userURL(c, users[i].ID)
	}
	return users
}

func withPostURL(c *fiber.Ctx, p *models.Post) *models.Post {
	if p != nil {
		p.URL = postURL(c, p.ID)
		p.CreatorURL = userURL(c, p.UserID)
		if p.Fans == nil {
			p.Fans = []uint{}
		}
	}
	return p
}

func withPostURLs(c *fiber.Ctx, posts []*models.Post) []*models.Post {
	if posts == nil {
		return []*models.Post{}
	}
	for _, p := range posts {
		withPostURL(c, p)
	}
	return posts
}

func (s *Server) userSvc() *service.UserService {
	if s.userService == nil {
		s.userService = service.NewUserService(s.userRepo, s.verifier, s.enricher, s.featureFlags)
	}
	return s.userService
}

func (s *Server) postSvc() *service.PostService {
	if s.postService == nil {
		s.postService = service.NewPostService(s.postRepo)
	}
	return s.postService
}
