package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memStore struct {
	logins    map[string]*Login   // by email
	byID      map[string][]*Login // all memberships per user, join order
	slugs     map[string]bool
	lastLogin map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		logins:    make(map[string]*Login),
		byID:      make(map[string][]*Login),
		slugs:     make(map[string]bool),
		lastLogin: make(map[string]time.Time),
	}
}

func (m *memStore) RegisterTenant(_ context.Context, tenant *Tenant, owner *User, role string) error {
	if m.slugs[tenant.Slug] {
		return ErrSlugTaken
	}
	if _, ok := m.logins[owner.Email]; ok {
		return ErrEmailTaken
	}
	login := &Login{
		User:   *owner,
		Tenant: *tenant,
		Membership: Membership{
			TenantID: tenant.ID,
			UserID:   owner.ID,
			Role:     role,
			IsActive: true,
		},
	}
	m.slugs[tenant.Slug] = true
	m.logins[owner.Email] = login
	m.byID[owner.ID] = append(m.byID[owner.ID], login)
	return nil
}

func (m *memStore) FindLogin(_ context.Context, email string) (*Login, error) {
	login, ok := m.logins[email]
	if !ok || !login.User.IsActive || !login.Tenant.IsActive || !login.Membership.IsActive {
		return nil, ErrNotFound
	}
	cp := *login
	return &cp, nil
}

func (m *memStore) FindLoginByUserID(_ context.Context, userID string) (*Login, error) {
	triples := m.byID[userID]
	if len(triples) == 0 {
		return nil, ErrNotFound
	}
	// Active triples win; an inactive row is returned only when no
	// active membership exists.
	for _, login := range triples {
		if login.User.IsActive && login.Tenant.IsActive && login.Membership.IsActive {
			cp := *login
			return &cp, nil
		}
	}
	cp := *triples[0]
	return &cp, nil
}

func (m *memStore) RecordLogin(_ context.Context, userID string, at time.Time) error {
	m.lastLogin[userID] = at
	return nil
}

func (m *memStore) RolesAndPermissions(_ context.Context, userID, tenantID string) ([]string, []string, error) {
	for _, login := range m.byID[userID] {
		if login.Tenant.ID == tenantID {
			return []string{login.Membership.Role}, []string{}, nil
		}
	}
	return []string{}, []string{}, nil
}

type memSessions struct {
	byUser  map[string]string
	byToken map[string]string
}

func newMemSessions() *memSessions {
	return &memSessions{byUser: make(map[string]string), byToken: make(map[string]string)}
}

func (m *memSessions) Save(_ context.Context, userID, token string, _ time.Duration) error {
	if old, ok := m.byUser[userID]; ok {
		delete(m.byToken, old)
	}
	m.byUser[userID] = token
	m.byToken[token] = userID
	return nil
}

func (m *memSessions) Owner(_ context.Context, token string) (string, error) {
	userID, ok := m.byToken[token]
	if !ok {
		return "", ErrNotFound
	}
	return userID, nil
}

func (m *memSessions) Revoke(_ context.Context, userID string) error {
	if token, ok := m.byUser[userID]; ok {
		delete(m.byToken, token)
		delete(m.byUser, userID)
	}
	return nil
}

func newTestService(t *testing.T) (*Service, *memStore, *memSessions) {
	t.Helper()
	store := newMemStore()
	sessions := newMemSessions()
	tokens, err := NewTokenService(testSecret, WithIssuer("nexerp"))
	if err != nil {
		t.Fatal(err)
	}
	svc, err := NewService(store, store, tokens, sessions)
	if err != nil {
		t.Fatal(err)
	}
	return svc, store, sessions
}

func registerInput() RegisterTenantInput {
	return RegisterTenantInput{
		CompanyName:    "Acme Corp",
		Slug:           "acme",
		AdminEmail:     "owner@acme.test",
		AdminPassword:  "Sup3r$ecret",
		AdminFirstName: "Ada",
		AdminLastName:  "Lovelace",
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.RegisterTenant(ctx, registerInput()); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := svc.Login(ctx, "owner@acme.test", "Sup3r$ecret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.AccessToken == "" || len(result.RefreshToken) != 32 {
		t.Fatalf("token pair incomplete: %+v", result)
	}
	if result.Tenant.Slug != "acme" || result.User.Email != "owner@acme.test" {
		t.Fatalf("resolved wrong triple: %+v", result)
	}
	if _, ok := store.lastLogin[result.User.ID]; !ok {
		t.Fatal("last login not recorded")
	}
}

func TestLoginNormalisesEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	if err := svc.RegisterTenant(ctx, registerInput()); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Login(ctx, "  Owner@Acme.Test ", "Sup3r$ecret"); err != nil {
		t.Fatalf("login with shouty email: %v", err)
	}
}

func TestLoginFailureModesCollapse(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	if err := svc.RegisterTenant(ctx, registerInput()); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Login(ctx, "owner@acme.test", "Wrong-pass1$"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := svc.Login(ctx, "unknown@acme.test", "Wrong-pass1$"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: got %v", err)
	}

	// Inactive accounts are invisible to the login path.
	store.logins["owner@acme.test"].User.IsActive = false
	if _, err := svc.Login(ctx, "owner@acme.test", "Sup3r$ecret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("inactive user: got %v", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	if err := svc.RegisterTenant(ctx, registerInput()); err != nil {
		t.Fatal(err)
	}
	first, err := svc.Login(ctx, "owner@acme.test", "Sup3r$ecret")
	if err != nil {
		t.Fatal(err)
	}

	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token not rotated")
	}

	if _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("superseded token: got %v, want ErrTokenInvalid", err)
	}
	if _, err := svc.Refresh(ctx, second.RefreshToken); err != nil {
		t.Fatalf("current token: %v", err)
	}
}

func TestRefreshResolvesActiveMembershipAmongSeveral(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	if err := svc.RegisterTenant(ctx, registerInput()); err != nil {
		t.Fatal(err)
	}
	result, err := svc.Login(ctx, "owner@acme.test", "Sup3r$ecret")
	if err != nil {
		t.Fatal(err)
	}

	// The user's earliest membership sits in a deactivated tenant; the
	// refresh path must resolve the later active one login used.
	stale := &Login{
		User: store.byID[result.User.ID][0].User,
		Tenant: Tenant{
			ID: "tenant-defunct", Name: "Defunct Co", Slug: "defunct",
			Plan: "basic", IsActive: false,
		},
		Membership: Membership{
			TenantID: "tenant-defunct", UserID: result.User.ID,
			Role: "owner", IsActive: false,
		},
	}
	store.byID[result.User.ID] = append([]*Login{stale}, store.byID[result.User.ID]...)

	refreshed, err := svc.Refresh(ctx, result.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.Tenant.ID != result.Tenant.ID {
		t.Fatalf("refresh resolved tenant %q, want %q", refreshed.Tenant.ID, result.Tenant.ID)
	}
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Refresh(context.Background(), "never-issued-token-abcdef0123456"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("got %v, want ErrTokenInvalid", err)
	}
	if _, err := svc.Refresh(context.Background(), ""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("empty token: got %v, want ErrTokenInvalid", err)
	}
}

func TestRefreshDeactivatedAccount(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	if err := svc.RegisterTenant(ctx, registerInput()); err != nil {
		t.Fatal(err)
	}
	result, err := svc.Login(ctx, "owner@acme.test", "Sup3r$ecret")
	if err != nil {
		t.Fatal(err)
	}

	store.byID[result.User.ID][0].User.IsActive = false
	if _, err := svc.Refresh(ctx, result.RefreshToken); !errors.Is(err, ErrUserInactive) {
		t.Fatalf("got %v, want ErrUserInactive", err)
	}

	store.byID[result.User.ID][0].User.IsActive = true
	store.byID[result.User.ID][0].Tenant.IsActive = false
	if _, err := svc.Refresh(ctx, result.RefreshToken); !errors.Is(err, ErrTenantInactive) {
		t.Fatalf("got %v, want ErrTenantInactive", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, _, sessions := newTestService(t)
	ctx := context.Background()
	if err := svc.RegisterTenant(ctx, registerInput()); err != nil {
		t.Fatal(err)
	}
	result, err := svc.Login(ctx, "owner@acme.test", "Sup3r$ecret")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Logout(ctx, result.User.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := sessions.Owner(ctx, result.RefreshToken); !errors.Is(err, ErrNotFound) {
		t.Fatal("refresh token survived logout")
	}
}

func TestRegisterDuplicateSlug(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	if err := svc.RegisterTenant(ctx, registerInput()); err != nil {
		t.Fatal(err)
	}
	in := registerInput()
	in.AdminEmail = "second@acme.test"
	if err := svc.RegisterTenant(ctx, in); !errors.Is(err, ErrSlugTaken) {
		t.Fatalf("got %v, want ErrSlugTaken", err)
	}
}

func TestRegisterValidationAggregatesViolations(t *testing.T) {
	svc, _, _ := newTestService(t)
	in := RegisterTenantInput{
		CompanyName:    "A",
		Slug:           "-bad slug-",
		AdminEmail:     "not-an-email",
		AdminPassword:  "weak",
		AdminFirstName: "",
		AdminLastName:  "Lovelace",
	}
	err := svc.RegisterTenant(context.Background(), in)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("got %v, want *ValidationError", err)
	}
	if len(verr.Violations) < 4 {
		t.Fatalf("expected several violations, got %v", verr.Violations)
	}
}
