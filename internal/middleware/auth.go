package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"calendar-sync/internal/models"
)

// ContextUsername is the gin context key holding the authenticated username.
const ContextUsername = "username"

// Authenticator checks a username and secret pair.
type Authenticator interface {
	Authenticate(ctx context.Context, username, secret string) (models.Identity, error)
}

// BasicAuth validates HTTP Basic credentials against the identity store.
func BasicAuth(auth Authenticator, realm string) gin.HandlerFunc {
	challenge := `Basic realm="` + realm + `", charset="UTF-8"`
	return func(c *gin.Context) {
		username, secret, ok := c.Request.BasicAuth()
		if !ok {
			c.Header("WWW-Authenticate", challenge)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		identity, err := auth.Authenticate(c.Request.Context(), username, secret)
		if err != nil {
			c.Header("WWW-Authenticate", challenge)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		c.Set(ContextUsername, identity.Username)
		c.Next()
	}
}
