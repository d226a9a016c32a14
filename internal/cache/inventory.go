package cache

import (
	"context"
	"strconv"
	"time"
)

const (
	UserTTL     = 5 * time.Minute
	PostTTL     = 30 * time.Minute
	WSTicketTTL = 30 * time.Second
)

func UserKey(id uint) string { return "user:" + strconv.FormatUint(uint64(id), 10) }
func PostKey(id uint) string { return "post:" + strconv.FormatUint(uint64(id), 10) }

// RevokedTokenKey marks a revoked jti until the token would have expired anyway.
func RevokedTokenKey(jti string) string { return "revoked_jti:" + jti }

// WSTicketKey holds the user id a websocket ticket was issued to.
func WSTicketKey(ticket string) string { return "ws_ticket:" + ticket }

// Invalidate drops keys. Failures only cost a stale read until the TTL runs out.
func Invalidate(ctx context.Context, keys ...string) {
	if client != nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

func InvalidateUser(ctx context.Context, id uint) { Invalidate(ctx, UserKey(id)) }
func InvalidatePost(ctx context.Context, id uint) { Invalidate(ctx, PostKey(id)) }
