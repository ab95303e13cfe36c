package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tlemoine/peatrack/internal/models"
)

// UserIDKey is the gin context key holding the resolved account ID
const UserIDKey = "user_id"

// ValidateUser resolves the account from the X-User-ID header. A missing or
// malformed header leaves the request anonymous; RequireAuth decides whether
// that is acceptable for the route.
func ValidateUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-User-ID")
		if raw == "" {
			c.Next()
			return
		}

		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			c.Next()
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// GetUserID returns the account ID set by ValidateUser, if any
func GetUserID(c *gin.Context) (int64, bool) {
	userID, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	return userID.(int64), true
}

// RequireAuth rejects requests that carry no resolved account
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetUserID(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "unauthorized",
				Message: "a valid X-User-ID header is required",
			})
			return
		}
		c.Next()
	}
}
