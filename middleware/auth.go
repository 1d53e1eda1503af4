package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenVerifier resolves a session token to a participant id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// AuthMiddleware requires a valid bearer token and stores its participant id
// under "uid".
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token required"})
			return
		}
		uid, err := verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set("uid", uid)
		c.Next()
	}
}

// OptionalAuth sets "uid" when a valid token is present and lets the request
// through either way.
func OptionalAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if uid, err := verifier.Verify(token); err == nil {
				c.Set("uid", uid)
			}
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	// browsers cannot set headers on websocket upgrades
	return c.Query("token")
}
