package server

import (
	"context"
	"encoding/json"
	"time"

	"socialnet/internal/featureflags"
	"socialnet/internal/middleware"
	"socialnet/internal/models"
)

// EventPostLiked is sent to a post's creator when someone else likes it.
const EventPostLiked = "post_liked"

func (s *Server) publishUserEvent(ctx context.Context, userID uint, eventType string, payload map[string]any) {
	eventJSON, err := json.Marshal(map[string]any{
		"type":    eventType,
		"payload": payload,
	})
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "failed to marshal event", "type", eventType, "error", err)
		return
	}
	message := string(eventJSON)

	// With Redis every instance receives the message through its subscriber,
	// so the local hub is only used directly when running without it.
	if s.notifier != nil && s.notifier.Enabled() {
		if err := s.notifier.PublishUser(ctx, userID, message); err != nil {
			middleware.Logger.WarnContext(ctx, "failed to publish event",
				"type", eventType, "recipient", userID, "error", err)
		}
		return
	}
	if s.hub != nil {
		s.hub.Broadcast(userID, message)
	}
}

// notifyPostLiked tells the creator of post that likerID liked it.
// Self-likes are not announced.
func (s *Server) notifyPostLiked(ctx context.Context, post *models.Post, likerID uint) {
	if post == nil || post.UserID == likerID {
		return
	}
	if !s.featureFlags.Enabled(featureflags.LikeNotifications, post.UserID) {
		return
	}
	s.publishUserEvent(ctx, post.UserID, EventPostLiked, map[string]any{
		"post_id":  post.ID,
		"liker_id": likerID,
		"liked_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
}
