package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the auth introspection routes
func RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/me", func(c *gin.Context) {
		actor, err := ActorFromContext(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, actor)
	})
}
