package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/citizen-registry/internal/authz"
	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/pkg/auth"
	"github.com/jwalitptl/citizen-registry/pkg/errors"
	"github.com/jwalitptl/citizen-registry/pkg/httputil"
)

// ContextIdentity is the gin context key holding the *model.Identity.
const ContextIdentity = "identity"

type AuthMiddleware struct {
	jwt   auth.JWTService
	table authz.Table
}

func NewAuthMiddleware(jwt auth.JWTService, table authz.Table) *AuthMiddleware {
	return &AuthMiddleware{
		jwt:   jwt,
		table: table,
	}
}

// Authenticate verifies the bearer token and stores the caller identity.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, errors.NewUnauthenticated("missing authorization header", nil))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			httputil.RespondWithError(c, errors.NewUnauthenticated("invalid authorization format", nil))
			return
		}

		identity, err := m.jwt.Verify(parts[1])
		if err != nil {
			httputil.RespondWithError(c, errors.NewUnauthenticated("invalid token", err))
			return
		}

		c.Set(ContextIdentity, identity)
		c.Next()
	}
}

// Authorize admits the caller if the capability table allows the named route.
func (m *AuthMiddleware) Authorize(route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := IdentityFrom(c)
		if identity == nil {
			httputil.RespondWithError(c, errors.NewUnauthenticated("missing authorization header", nil))
			return
		}
		if !m.table.Allow(route, identity, c.Param("id")) {
			httputil.RespondWithError(c, errors.Forbidden(""))
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the authenticated caller, or nil on public routes.
func IdentityFrom(c *gin.Context) *model.Identity {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return nil
	}
	identity, _ := v.(*model.Identity)
	return identity
}
