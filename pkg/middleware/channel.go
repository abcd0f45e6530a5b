package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

// Key type biar aman di context (tidak bentrok)
type channelKey struct{}

var ChannelContextKey = channelKey{}

// deriveChannelFromAPIKey menebak channel dari pola API key
func deriveChannelFromAPIKey(key string) string {
	switch {
	case strings.HasPrefix(key, "brand_"):
		return "brand"
	case strings.HasPrefix(key, "creator_"):
		return "creator"
	case strings.HasPrefix(key, "admin_"):
		return "admin"
	default:
		return "api"
	}
}

// Channel tags the request context with the calling channel based on x-api-key.
func Channel() gin.HandlerFunc {
	return func(c *gin.Context) {
		channel := deriveChannelFromAPIKey(c.GetHeader("x-api-key"))
		ctx := context.WithValue(c.Request.Context(), ChannelContextKey, channel)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// FromChannel memeriksa apakah context berasal dari channel tertentu
func FromChannel(ctx context.Context, want string) bool {
	ch, ok := ctx.Value(ChannelContextKey).(string)
	return ok && ch == want
}

// GetChannel mengembalikan string channel saat ini (default "api")
func GetChannel(ctx context.Context) string {
	ch, ok := ctx.Value(ChannelContextKey).(string)
	if !ok {
		return "api"
	}
	return ch
}
