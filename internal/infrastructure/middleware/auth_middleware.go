package middleware

import (
	"net/http"
	"strings"

	"pairline/internal/core/domain"
	"pairline/internal/core/ports"
	"pairline/pkg/errors"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserID   = "user_id"
	ContextIdentity = "identity"
)

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware resolves the bearer credential and stores the identity in
// the gin context.
func AuthMiddleware(resolver ports.IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Error(errors.NewUnauthorizedError("authorization header required"))
			c.Abort()
			return
		}

		token, ok := bearerToken(c)
		if !ok {
			c.Error(errors.NewUnauthorizedError("invalid authorization header format"))
			c.Abort()
			return
		}

		identity, err := resolver.ResolveIdentity(c.Request.Context(), token)
		if err != nil {
			c.Error(errors.WrapError(err, errors.ErrCodeUnauthorized, "invalid or expired token", http.StatusUnauthorized))
			c.Abort()
			return
		}

		c.Set(ContextUserID, identity.UserID)
		c.Set(ContextIdentity, identity)
		c.Next()
	}
}

func OptionalAuthMiddleware(resolver ports.IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if identity, err := resolver.ResolveIdentity(c.Request.Context(), token); err == nil {
				c.Set(ContextUserID, identity.UserID)
				c.Set(ContextIdentity, identity)
			}
		}
		c.Next()
	}
}

// RequireRole must run after AuthMiddleware.
func RequireRole(role domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFromContext(c)
		if !ok {
			c.Error(errors.NewUnauthorizedError("authentication required"))
			c.Abort()
			return
		}
		if identity.Attributes.Role != role {
			c.Error(errors.NewForbiddenError("insufficient permissions").
				WithContext("required_role", string(role)))
			c.Abort()
			return
		}
		c.Next()
	}
}

func IdentityFromContext(c *gin.Context) (*domain.Identity, bool) {
	v, exists := c.Get(ContextIdentity)
	if !exists {
		return nil, false
	}
	identity, ok := v.(*domain.Identity)
	return identity, ok
}
