package middleware

import (
	"strings"

	"blendcloud/internal/tenant"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	TenantHeader = "X-Tenant-ID"
	TenantIDKey  = "tenant_id"
)

// Tenant resolves the request's tenant and binds it to the request context.
// Extraction order: principal > X-Tenant-ID header > :tenant_id route param.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		cand := tenant.Candidates{
			FromHeader:     c.GetHeader(TenantHeader),
			FromRouteParam: c.Param("tenant_id"),
		}
		if p, ok := GetPrincipal(c); ok {
			cand.FromPrincipal = p.TenantID
		}

		id, source, err := tenant.Resolve(cand)
		if err != nil {
			abort(c, err)
			return
		}

		ctx := c.Request.Context()
		if source == tenant.SourcePrincipal && cand.FromHeader != "" && !sameTenant(cand.FromHeader, id) {
			zerolog.Ctx(ctx).Warn().
				Str("header_tenant", cand.FromHeader).
				Str("tenant_id", id.String()).
				Msg("X-Tenant-ID ignorado: no coincide con el token")
		}

		ctx, err = tenant.Bind(ctx, id)
		if err != nil {
			abort(c, err)
			return
		}
		l := zerolog.Ctx(ctx).With().Str("tenant_id", id.String()).Logger()
		c.Request = c.Request.WithContext(l.WithContext(ctx))
		c.Set(TenantIDKey, id)
		c.Next()
	}
}

func sameTenant(raw string, id uuid.UUID) bool {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	return err == nil && parsed == id
}
