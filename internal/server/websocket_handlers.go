package server

import (
	"encoding/json"
	"time"

	"socialnet/internal/cache"
	"socialnet/internal/middleware"
	"socialnet/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// WSTicketResponse is returned by POST /api/ws/ticket.
type WSTicketResponse struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int    `json:"expires_in"`
}

// IssueWSTicket handles POST /api/ws/ticket
// @Summary Issue a websocket ticket
// @Description Single-use ticket for GET /api/ws?ticket=...
// @Tags realtime
// @Produce json
// @Success 200 {object} WSTicketResponse
// @Failure 503 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /ws/ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(cache.ErrUnavailable))
	}

	ticket := uuid.NewString()
	ctx := c.UserContext()
	if err := s.redis.Set(ctx, cache.WSTicketKey(ticket), currentUserID(c), cache.WSTicketTTL).Err(); err != nil {
		middleware.RedisErrors.WithLabelValues("set").Inc()
		return models.RespondWithAppError(c, models.NewInternalError(err))
	}

	return c.JSON(WSTicketResponse{
		Ticket:    ticket,
		ExpiresIn: int(cache.WSTicketTTL / time.Second),
	})
}

// WebsocketUpgradeRequired rejects plain HTTP requests to websocket routes.
func (s *Server) WebsocketUpgradeRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}
}

// WebsocketHandler streams like notifications to the ticket holder.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("userID").(uint)
		if userID == 0 {
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			middleware.Logger.Warn("websocket register rejected", "user_id", userID, "error", err)
			msg, _ := json.Marshal(fiber.Map{"type": "error", "payload": err.Error()})
			_ = conn.WriteMessage(websocket.TextMessage, msg)
			_ = conn.Close()
			return
		}

		middleware.Logger.Debug("websocket connected", "user_id", userID)
		client.Serve()
	})
}
