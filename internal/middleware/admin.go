package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AdminMiddleware provides admin authentication middleware
type AdminMiddleware struct {
	apiKey     string
	apiKeyHash []byte
}

// NewAdminMiddleware accepts either a plain key or a bcrypt hash of it.
// With neither configured every admin request is rejected.
func NewAdminMiddleware(apiKey, apiKeyHash string) *AdminMiddleware {
	am := &AdminMiddleware{apiKey: apiKey}
	if apiKeyHash != "" {
		am.apiKeyHash = []byte(apiKeyHash)
	}
	return am
}

// RequireAdminAuth middleware validates admin API keys
func (am *AdminMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			tokenParts := strings.Split(c.GetHeader("Authorization"), " ")
			if len(tokenParts) == 2 && strings.EqualFold(tokenParts[0], "bearer") {
				key = tokenParts[1]
			}
		}

		if !am.ValidateAdminKey(key) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Valid admin API key required for this endpoint",
			})
			return
		}
		c.Next()
	}
}

// ValidateAdminKey validates an admin API key
func (am *AdminMiddleware) ValidateAdminKey(key string) bool {
	if key == "" {
		return false
	}
	if len(am.apiKeyHash) > 0 {
		return bcrypt.CompareHashAndPassword(am.apiKeyHash, []byte(key)) == nil
	}
	if am.apiKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(am.apiKey)) == 1
}
