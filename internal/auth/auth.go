// Package auth answers the two permission questions the bot keeps asking:
// is this request from our webhook, and is this user an admin.
package auth

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"collalearn/internal/cache"
)

// SecretHeader carries the shared webhook secret on inbound requests.
const SecretHeader = "X-Webhook-Secret"

// RequireSecret rejects requests whose secret header does not match.
func RequireSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(SecretHeader) != secret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
		c.Next()
	}
}

// AdminLookup resolves a user's admin status in a chat against the chat
// platform. Implementations hit the network, so results are cached.
type AdminLookup interface {
	IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}

// Checker answers admin questions, caching platform lookups in redis.
type Checker struct {
	lookup   AdminLookup
	cache    *cache.Client
	cacheTTL time.Duration
	global   map[int64]struct{}
}

// NewChecker builds a checker. cacheClient may be nil; lookups then go to
// the platform every time.
func NewChecker(lookup AdminLookup, cacheClient *cache.Client, cacheTTL time.Duration, globalAdminIDs []int64) *Checker {
	global := make(map[int64]struct{}, len(globalAdminIDs))
	for _, id := range globalAdminIDs {
		global[id] = struct{}{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Checker{lookup: lookup, cache: cacheClient, cacheTTL: cacheTTL, global: global}
}

// IsGlobalAdmin reports whether the user is on the operator allowlist.
func (c *Checker) IsGlobalAdmin(userID int64) bool {
	_, ok := c.global[userID]
	return ok
}

// IsGroupAdmin reports whether the user administers the chat. Global admins
// pass everywhere. Cache failures fall through to the platform lookup.
func (c *Checker) IsGroupAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if c.IsGlobalAdmin(userID) {
		return true, nil
	}
	key := adminCacheKey(chatID, userID)
	if cached, err := c.cache.Get(ctx, key); err == nil {
		return cached == "1", nil
	} else if err != cache.ErrCacheMiss && err != cache.ErrUnavailable {
		log.Printf("admin cache read failed: %v", err)
	}

	isAdmin, err := c.lookup.IsChatAdmin(ctx, chatID, userID)
	if err != nil {
		return false, fmt.Errorf("chat admin lookup: %w", err)
	}
	value := "0"
	if isAdmin {
		value = "1"
	}
	if err := c.cache.Set(ctx, key, value, c.cacheTTL); err != nil && err != cache.ErrUnavailable {
		log.Printf("admin cache write failed: %v", err)
	}
	return isAdmin, nil
}

// Invalidate drops the cached status for one user in one chat.
func (c *Checker) Invalidate(ctx context.Context, chatID, userID int64) {
	if err := c.cache.Del(ctx, adminCacheKey(chatID, userID)); err != nil && err != cache.ErrUnavailable {
		log.Printf("admin cache invalidate failed: %v", err)
	}
}

func adminCacheKey(chatID, userID int64) string {
	return "admin:" + strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(userID, 10)
}
