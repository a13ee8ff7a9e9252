package httpx

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/bikerhub/internal/auth"
)

const principalKey = "principal"

// Authenticator resolves a bearer token into the calling principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Principal, error)
}

// Auth requires a valid access token from the Authorization header, the
// token cookie or the token query parameter.
func Auth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			Fail(c, Unauthorized("No token, authorization denied"))
			return
		}
		p, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			Fail(c, err)
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if parts := strings.SplitN(h, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if v, err := c.Cookie("token"); err == nil && v != "" {
		return v
	}
	return c.Query("token")
}

// CurrentPrincipal returns the principal set by Auth.
func CurrentPrincipal(c *gin.Context) *auth.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*auth.Principal)
	return p
}

// SetPrincipal is used by tests and internal callers that authenticate out of band.
func SetPrincipal(c *gin.Context, p *auth.Principal) {
	c.Set(principalKey, p)
}

// RequireRoles allows only principals holding one of roles.
func RequireRoles(roles ...auth.Role) gin.HandlerFunc {
	msg := "Access denied. Insufficient permissions."
	if len(roles) == 1 && roles[0] == auth.RoleAdmin {
		msg = "Access denied. Admin privileges required."
	}
	return func(c *gin.Context) {
		p := CurrentPrincipal(c)
		if p == nil {
			Fail(c, Unauthorized("Access denied. Authentication required."))
			return
		}
		if !p.HasRole(roles...) {
			Fail(c, Forbidden(msg))
			return
		}
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc { return RequireRoles(auth.RoleAdmin) }

func ModeratorOrAdmin() gin.HandlerFunc {
	return RequireRoles(auth.RoleModerator, auth.RoleAdmin)
}

// OwnerOrAdmin checks that the caller owns the resource or is an admin.
func OwnerOrAdmin(c *gin.Context, ownerID string) error {
	p := CurrentPrincipal(c)
	if p == nil {
		return Unauthorized("Access denied. Authentication required.")
	}
	if p.Role == auth.RoleAdmin || p.UserID == ownerID {
		return nil
	}
	return Forbidden("Access denied. You can only access your own resources.")
}
