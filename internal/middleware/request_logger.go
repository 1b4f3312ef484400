package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/healthcast-go/internal/logging"
)

// RequestLogger writes one structured line per request. Probe paths are not logged.
func RequestLogger(logger *logging.StandardLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if probePaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		userID := c.Param("user_id")
		if authed, ok := AuthenticatedUserID(c); ok {
			userID = authed
		}
		logger.LogAPIRequest(c.Request.Method, routeOrPath(c), c.Writer.Status(), time.Since(start).Milliseconds(), userID)
	}
}
