package tenant

import (
	"strings"

	"blendcloud/internal/apierror"

	"github.com/google/uuid"
)

// Candidates are the places a request may name its tenant.
type Candidates struct {
	// FromPrincipal comes from a verified access token; uuid.Nil when anonymous.
	FromPrincipal uuid.UUID
	// FromHeader is the raw X-Tenant-ID header.
	FromHeader string
	// FromRouteParam is the raw :tenant_id path parameter.
	FromRouteParam string
}

// Source names which candidate won the resolution.
type Source string

const (
	SourcePrincipal Source = "principal"
	SourceHeader    Source = "header"
	SourceRoute     Source = "route"
)

// Resolve picks the tenant with precedence principal > header > route param,
// so a caller can never override the tenant encoded in their own credential.
// The first non-empty candidate wins; if it is malformed resolution fails
// instead of falling through to a lower-precedence value.
func Resolve(c Candidates) (uuid.UUID, Source, error) {
	if c.FromPrincipal != uuid.Nil {
		return c.FromPrincipal, SourcePrincipal, nil
	}
	raw := []struct {
		value  string
		source Source
	}{
		{c.FromHeader, SourceHeader},
		{c.FromRouteParam, SourceRoute},
	}
	for _, r := range raw {
		v := strings.TrimSpace(r.value)
		if v == "" {
			continue
		}
		id, err := uuid.Parse(v)
		if err != nil || id == uuid.Nil {
			return uuid.Nil, "", apierror.Wrap(apierror.CodeTenantNotResolved, "Identificador de tenant invalido", err)
		}
		return id, r.source, nil
	}
	return uuid.Nil, "", ErrNotResolved
}
