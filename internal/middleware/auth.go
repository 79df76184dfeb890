package middleware

import (
	"net/http"
	"strings"

	"hostpilot/internal/config"

	"github.com/gin-gonic/gin"
)

// APITokenMiddleware guards the API with a static operator token. The daemon
// runs on the managed host itself, so a shared token from config is the
// authentication model; an empty token disables the check.
func APITokenMiddleware(cfg *config.Config) gin.HandlerFunc {
	token := cfg.Security.APIToken
	if token == "" {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		got := c.GetHeader("X-API-Token")
		if got == "" {
			// Bearer 形式也接受
			auth := c.GetHeader("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				got = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if got != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "missing or invalid api token",
			})
			return
		}
		c.Next()
	}
}
