package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const RequestIDKey = "request_id"

// RequestID tags every request with an ID for log correlation. An incoming
// X-Request-ID header is honored so IDs survive proxies.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()

		if c.Writer.Status() >= 500 {
			log.WithField("request_id", id).Errorf("%s %s returned %d",
				c.Request.Method, c.Request.URL.Path, c.Writer.Status())
		}
	}
}
