package middleware

import (
	"strings"

	"blendcloud/internal/apierror"
	"blendcloud/internal/model"
	"blendcloud/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	PrincipalKey = "principal"
)

// AccessVerifier validates bearer access tokens.
type AccessVerifier interface {
	VerifyAccess(token string) (*service.Principal, error)
}

// JWTAuth validates the Bearer token on every protected route and stores the
// principal in the Gin context.
func JWTAuth(verifier AccessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			abort(c, &apierror.Error{Code: apierror.CodeUnauthorized, Message: "Autenticacion requerida"})
			return
		}

		p, err := verifier.VerifyAccess(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			abort(c, err)
			return
		}

		ctx := c.Request.Context()
		l := zerolog.Ctx(ctx).With().Str("user_id", p.UsuarioID.String()).Logger()
		c.Request = c.Request.WithContext(l.WithContext(ctx))

		c.Set(PrincipalKey, *p)
		c.Next()
	}
}

// RequireRole rejects requests whose principal role is not in the allowed list.
func RequireRole(roles ...model.Rol) gin.HandlerFunc {
	allowed := make(map[model.Rol]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok || !allowed[p.Rol] {
			abort(c, apierror.Forbidden("Permisos insuficientes"))
			return
		}
		c.Next()
	}
}

// GetPrincipal returns the authenticated caller, if JWTAuth ran.
func GetPrincipal(c *gin.Context) (service.Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return service.Principal{}, false
	}
	p, ok := v.(service.Principal)
	return p, ok
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apierror.HTTPStatus(apierror.CodeOf(err)), apierror.FromError(err))
}
