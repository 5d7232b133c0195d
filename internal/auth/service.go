package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"nexerp.io/internal/obs"
)

const (
	defaultPlan = "basic"
	ownerRole   = "owner"

	slugMinLength = 2
	slugMaxLength = 50
	nameMinLength = 2
	nameMaxLength = 100
)

// Service orchestrates registration, login and session refresh.
type Service struct {
	store    Store
	dir      Directory
	tokens   *TokenService
	sessions SessionStore
	now      func() time.Time
}

// NewService constructs the authentication service. All collaborators are
// required.
func NewService(store Store, dir Directory, tokens *TokenService, sessions SessionStore) (*Service, error) {
	if store == nil || dir == nil || tokens == nil || sessions == nil {
		return nil, errors.New("auth: store, directory, token service and session store are required")
	}
	return &Service{
		store:    store,
		dir:      dir,
		tokens:   tokens,
		sessions: sessions,
		now:      time.Now,
	}, nil
}

// RegisterTenantInput carries the registration form.
type RegisterTenantInput struct {
	CompanyName    string
	Slug           string
	AdminEmail     string
	AdminPassword  string
	AdminFirstName string
	AdminLastName  string
}

// LoginResult is returned from Login and Refresh.
type LoginResult struct {
	User         User      `json:"user"`
	Tenant       Tenant    `json:"tenant"`
	Permissions  []string  `json:"permissions"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RegisterTenant creates a tenant together with its owning user inside one
// transaction. The uniqueness pre-checks in the store are advisory; the
// unique constraints are the real race guard.
func (s *Service) RegisterTenant(ctx context.Context, in RegisterTenantInput) error {
	if err := validateRegistration(&in); err != nil {
		return err
	}

	hash, err := HashPassword(in.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	tenant := &Tenant{
		ID:        uuid.NewString(),
		Name:      in.CompanyName,
		Slug:      in.Slug,
		Plan:      defaultPlan,
		Settings:  json.RawMessage(`{}`),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	owner := &User{
		ID:           uuid.NewString(),
		Email:        in.AdminEmail,
		PasswordHash: hash,
		FirstName:    in.AdminFirstName,
		LastName:     in.AdminLastName,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return s.store.RegisterTenant(ctx, tenant, owner, ownerRole)
}

// Login verifies credentials and issues a token pair. Every failure mode
// on the credential path collapses to ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	login, err := s.store.FindLogin(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := VerifyPassword(password, login.User.PasswordHash)
	if err != nil {
		// A malformed stored hash is a server-side defect; it must not
		// be distinguishable from a mismatch by the client.
		obs.LogRequest(map[string]any{
			"level": "error",
			"msg":   "password hash unreadable",
			"user":  login.User.ID,
		})
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	result, err := s.issueFor(ctx, login)
	if err != nil {
		return nil, err
	}
	if err := s.store.RecordLogin(ctx, login.User.ID, s.now().UTC()); err != nil {
		obs.LogRequest(map[string]any{
			"level": "warn",
			"msg":   "record login failed",
			"user":  login.User.ID,
		})
	}
	return result, nil
}

// Refresh exchanges a stored refresh token for a fresh token pair and
// rotates the refresh token: the presented token is invalid afterwards.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrTokenInvalid
	}

	userID, err := s.sessions.Owner(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	login, err := s.store.FindLoginByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if !login.User.IsActive {
		return nil, ErrUserInactive
	}
	if !login.Tenant.IsActive || !login.Membership.IsActive {
		return nil, ErrTenantInactive
	}

	return s.issueFor(ctx, login)
}

// Logout drops the user's stored refresh token. Outstanding access tokens
// stay valid until expiry (no denylist).
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.sessions.Revoke(ctx, userID)
}

// issueFor mints a token pair for a resolved login triple and persists the
// refresh token, superseding any previous one.
func (s *Service) issueFor(ctx context.Context, login *Login) (*LoginResult, error) {
	roles, permissions, err := s.dir.RolesAndPermissions(ctx, login.User.ID, login.Tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve roles: %w", err)
	}

	access, expiresAt, err := s.tokens.IssueAccessToken(login.User.ID, login.Tenant.ID, login.User.Email, roles, permissions)
	if err != nil {
		return nil, err
	}
	refresh, err := NewRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, login.User.ID, refresh, s.tokens.RefreshTTL()); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	if permissions == nil {
		permissions = []string{}
	}
	return &LoginResult{
		User:         login.User,
		Tenant:       login.Tenant,
		Permissions:  permissions,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

func validateRegistration(in *RegisterTenantInput) error {
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	in.Slug = strings.TrimSpace(strings.ToLower(in.Slug))
	in.AdminEmail = strings.TrimSpace(strings.ToLower(in.AdminEmail))
	in.AdminFirstName = strings.TrimSpace(in.AdminFirstName)
	in.AdminLastName = strings.TrimSpace(in.AdminLastName)

	var violations []string
	if l := len(in.CompanyName); l < nameMinLength || l > nameMaxLength {
		violations = append(violations, "company_name must be 2-100 characters")
	}
	if !validSlug(in.Slug) {
		violations = append(violations, "slug must be 2-50 lowercase letters, digits or hyphens")
	}
	if _, err := mail.ParseAddress(in.AdminEmail); err != nil {
		violations = append(violations, "admin_email must be a valid email address")
	}
	if in.AdminFirstName == "" || len(in.AdminFirstName) > 50 {
		violations = append(violations, "admin_first_name must be 1-50 characters")
	}
	if in.AdminLastName == "" || len(in.AdminLastName) > 50 {
		violations = append(violations, "admin_last_name must be 1-50 characters")
	}
	if err := CheckPasswordStrength(in.AdminPassword); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			violations = append(violations, verr.Violations...)
		} else {
			return err
		}
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func validSlug(slug string) bool {
	if len(slug) < slugMinLength || len(slug) > slugMaxLength {
		return false
	}
	if slug[0] == '-' || slug[len(slug)-1] == '-' {
		return false
	}
	for _, c := range slug {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return false
		}
	}
	return true
}
