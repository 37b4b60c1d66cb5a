// Authentication middleware.
// Resolves the session token from the auth cookie or the Authorization
// header into a Principal and stores it in the request context. Requests
// without a resolvable session are rejected with 401.
package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gadify-server/internal/identity"
)

const AUTH_COOKIE_NAME = "auth_token"

const principalKey = "principal"

var ErrNoPrincipal = errors.New("no principal in context")

// sessionToken extracts the raw token from the cookie, falling back to a
// bearer header for non-browser clients.
func sessionToken(c *gin.Context) string {
	if token, err := c.Cookie(AUTH_COOKIE_NAME); err == nil && token != "" {
		return token
	}
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// setAuthCookie stores the session token. The cookie expires with the token.
func setAuthCookie(c *gin.Context, token string, ttlSeconds int) {
	secure := c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https"
	c.SetCookie(AUTH_COOKIE_NAME, token, ttlSeconds, "/", "", secure, true)
}

func clearAuthCookie(c *gin.Context) {
	c.SetCookie(AUTH_COOKIE_NAME, "", -1, "/", "", false, true)
}

// GetPrincipal returns the authenticated principal set by AuthMiddleware.
func GetPrincipal(c *gin.Context) (identity.Principal, error) {
	value, exists := c.Get(principalKey)
	if !exists {
		return identity.Principal{}, ErrNoPrincipal
	}
	principal, ok := value.(identity.Principal)
	if !ok {
		slog.Warn("GetPrincipal: context value is not a Principal")
		return identity.Principal{}, ErrNoPrincipal
	}
	return principal, nil
}

// AuthMiddleware resolves the session and stores the principal in the
// context. Aborts with 401 when no valid session is present.
func (a *API) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := a.identity.Resolve(c.Request.Context(), sessionToken(c))
		if err != nil {
			slog.Debug("AuthMiddleware: Invalid or missing session", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		c.Set(principalKey, principal)
		c.Set("userID", principal.ID)
		c.Next()
	}
}
