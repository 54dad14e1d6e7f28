package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// GatheringCookie binds a browser to its gathering
	GatheringCookie = "gathering_id"
	// GatheringIDKey is the gin context key holding the gathering id
	GatheringIDKey = "gathering_id"
)

// GatheringSession reads the gathering cookie or issues a new random id,
// refreshing the cookie on every request
func GatheringSession(ttl time.Duration, secure bool) gin.HandlerFunc {
	maxAge := int(ttl.Seconds())
	return func(c *gin.Context) {
		id, err := c.Cookie(GatheringCookie)
		if err != nil || uuid.Validate(id) != nil {
			id = uuid.NewString()
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(GatheringCookie, id, maxAge, "/", "", secure, true)
		c.Set(GatheringIDKey, id)
		c.Next()
	}
}

// GatheringID returns the id set by GatheringSession
func GatheringID(c *gin.Context) string {
	return c.GetString(GatheringIDKey)
}
