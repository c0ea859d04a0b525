package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sportscouncil/tournament-gateway/internal/auth"
)

const identityKey = "identity"

// AuthMiddleware resolves the bearer token and stores the Identity on the
// gin context. Every token problem produces the same 401 body.
func AuthMiddleware(resolver auth.IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			Unauthorized(c)
			return
		}

		identity, err := resolver.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			AbortWithAuthError(c, err)
			return
		}

		c.Set(identityKey, identity)
		c.Set("userID", identity.Username)
		c.Set("role", string(identity.Role))

		c.Next()
	}
}

// RequireRole must run after AuthMiddleware.
func RequireRole(role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, _ := IdentityFrom(c)
		if err := auth.RequireRole(identity, role); err != nil {
			AbortWithAuthError(c, err)
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the Identity stored by AuthMiddleware.
func IdentityFrom(c *gin.Context) (*auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*auth.Identity)
	return identity, ok
}

// AbortWithAuthError maps the auth error taxonomy onto HTTP responses.
func AbortWithAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrStoreUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
	case errors.Is(err, auth.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient privileges"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.Header("WWW-Authenticate", "Bearer")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Incorrect username or password"})
	default:
		Unauthorized(c)
	}
}

func Unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
}

// Expect format: "Bearer <token>"
func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
