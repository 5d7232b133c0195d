package auth

import (
	"context"
	"time"
)

// Store describes the relational persistence the auth subsystem needs.
type Store interface {
	// RegisterTenant creates the tenant, its owner user and the owner
	// membership atomically. Slug and email collisions surface as
	// ErrSlugTaken / ErrEmailTaken.
	RegisterTenant(ctx context.Context, tenant *Tenant, owner *User, role string) error

	// FindLogin resolves the first active (user, tenant, membership)
	// triple for the email, or ErrNotFound.
	FindLogin(ctx context.Context, email string) (*Login, error)

	// FindLoginByUserID resolves the triple for an already-known user,
	// used by the refresh path. It prefers a fully active triple, so a
	// multi-membership user resolves the same triple login did; an
	// inactive row comes back only when no active one exists, and
	// callers inspect the flags to report inactive state.
	FindLoginByUserID(ctx context.Context, userID string) (*Login, error)

	// RecordLogin stamps last_login_at.
	RecordLogin(ctx context.Context, userID string, at time.Time) error
}

// Directory resolves the roles and permissions a user holds within a
// tenant. Token issuance goes through this seam so a richer RBAC lookup
// can replace the membership-role default without touching the service.
type Directory interface {
	RolesAndPermissions(ctx context.Context, userID, tenantID string) (roles, permissions []string, err error)
}

// SessionStore is the durable, TTL-bound mapping from refresh token to
// owning user. One active token per user; saving overwrites the previous
// token, which becomes invalid immediately.
type SessionStore interface {
	Save(ctx context.Context, userID, token string, ttl time.Duration) error
	// Owner returns the user owning the token, or ErrNotFound when the
	// token is unknown, expired or superseded.
	Owner(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, userID string) error
}
