package auth

import "context"

// SecurityContext is the per-request identity derived from validated
// access-token claims. It lives only for the duration of one request.
type SecurityContext struct {
	UserID      string
	TenantID    string
	Email       string
	Roles       []string
	Permissions []string
}

// HasRole reports whether the context carries the given role.
func (sc SecurityContext) HasRole(role string) bool {
	for _, r := range sc.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasPermission reports whether the context carries the given permission key.
func (sc SecurityContext) HasPermission(key string) bool {
	for _, p := range sc.Permissions {
		if p == key {
			return true
		}
	}
	return false
}

type securityContextKey struct{}

// ContextWithSecurity attaches the security context to the request context.
func ContextWithSecurity(ctx context.Context, sc SecurityContext) context.Context {
	return context.WithValue(ctx, securityContextKey{}, &sc)
}

// SecurityFromContext extracts the security context if a validated one was
// attached by the authentication middleware.
func SecurityFromContext(ctx context.Context) (SecurityContext, bool) {
	if ctx == nil {
		return SecurityContext{}, false
	}
	v, ok := ctx.Value(securityContextKey{}).(*SecurityContext)
	if !ok || v == nil || v.UserID == "" {
		return SecurityContext{}, false
	}
	return *v, true
}

// SecurityFromClaims derives a request security context from verified claims.
func SecurityFromClaims(claims *Claims) SecurityContext {
	return SecurityContext{
		UserID:      claims.Subject,
		TenantID:    claims.TenantID,
		Email:       claims.Email,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	}
}
