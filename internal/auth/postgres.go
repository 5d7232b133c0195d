package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	_ Store     = (*PGStore)(nil)
	_ Directory = (*PGStore)(nil)
)

// PGStore implements Store and Directory on PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) RegisterTenant(ctx context.Context, tenant *Tenant, owner *User, role string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Advisory pre-checks. The unique constraints below are the actual
	// guard against concurrent registrations.
	var n int
	if err := tx.QueryRowContext(ctx, `select count(1) from tenants where slug = $1`, tenant.Slug).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrSlugTaken
	}
	if err := tx.QueryRowContext(ctx, `select count(1) from users where email = $1`, owner.Email).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrEmailTaken
	}

	if _, err := tx.ExecContext(ctx,
		`insert into tenants(id, name, slug, plan, settings, is_active, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		tenant.ID, tenant.Name, tenant.Slug, tenant.Plan, []byte(tenant.Settings), tenant.IsActive, tenant.CreatedAt, tenant.UpdatedAt,
	); err != nil {
		return translateUnique(err)
	}

	if _, err := tx.ExecContext(ctx,
		`insert into users(id, email, password_hash, first_name, last_name, is_active, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		owner.ID, owner.Email, owner.PasswordHash, owner.FirstName, owner.LastName, owner.IsActive, owner.CreatedAt, owner.UpdatedAt,
	); err != nil {
		return translateUnique(err)
	}

	if _, err := tx.ExecContext(ctx,
		`insert into tenant_memberships(id, tenant_id, user_id, role, is_active, joined_at)
		 values($1,$2,$3,$4,true,$5)`,
		uuid.NewString(), tenant.ID, owner.ID, role, tenant.CreatedAt,
	); err != nil {
		return translateUnique(err)
	}

	return tx.Commit()
}

const loginColumns = `
	u.id, u.email, u.password_hash, u.first_name, u.last_name, u.is_active,
	u.email_verified_at, u.last_login_at, u.created_at, u.updated_at,
	t.id, t.name, t.slug, t.plan, t.settings, t.is_active, t.created_at, t.updated_at,
	tm.id, tm.role, tm.is_active, tm.joined_at`

func (s *PGStore) FindLogin(ctx context.Context, email string) (*Login, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+loginColumns+`
		from users u
		join tenant_memberships tm on tm.user_id = u.id
		join tenants t on t.id = tm.tenant_id
		where u.email = $1 and u.is_active = true and tm.is_active = true and t.is_active = true
		order by tm.joined_at asc
		limit 1`, email)
	return scanLogin(row)
}

func (s *PGStore) FindLoginByUserID(ctx context.Context, userID string) (*Login, error) {
	// Prefer a fully active triple so a user with several memberships
	// resolves the same one login did. An inactive row is returned only
	// when no active one exists, letting callers report inactive state.
	row := s.db.QueryRowContext(ctx, `
		select `+loginColumns+`
		from users u
		join tenant_memberships tm on tm.user_id = u.id
		join tenants t on t.id = tm.tenant_id
		where u.id = $1
		order by (u.is_active and tm.is_active and t.is_active) desc, tm.joined_at asc
		limit 1`, userID)
	return scanLogin(row)
}

func (s *PGStore) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update users set last_login_at = $2, updated_at = $2 where id = $1`, userID, at)
	return err
}

// RolesAndPermissions resolves the membership role for the pair. The
// permission list is empty until a role/permission catalog lands; the
// seam keeps token issuance independent of that schema.
func (s *PGStore) RolesAndPermissions(ctx context.Context, userID, tenantID string) ([]string, []string, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`select role from tenant_memberships where user_id = $1 and tenant_id = $2 and is_active = true`,
		userID, tenantID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return []string{}, []string{}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return []string{role}, []string{}, nil
}

func scanLogin(row *sql.Row) (*Login, error) {
	var (
		l        Login
		settings []byte
	)
	err := row.Scan(
		&l.User.ID, &l.User.Email, &l.User.PasswordHash, &l.User.FirstName, &l.User.LastName, &l.User.IsActive,
		&l.User.EmailVerifiedAt, &l.User.LastLoginAt, &l.User.CreatedAt, &l.User.UpdatedAt,
		&l.Tenant.ID, &l.Tenant.Name, &l.Tenant.Slug, &l.Tenant.Plan, &settings, &l.Tenant.IsActive,
		&l.Tenant.CreatedAt, &l.Tenant.UpdatedAt,
		&l.Membership.ID, &l.Membership.Role, &l.Membership.IsActive, &l.Membership.JoinedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	l.Tenant.Settings = settings
	l.Membership.TenantID = l.Tenant.ID
	l.Membership.UserID = l.User.ID
	return &l, nil
}

// translateUnique maps unique-constraint violations onto the checked
// registration errors so racing registrations fail cleanly.
func translateUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch {
		case strings.Contains(pgErr.ConstraintName, "slug"):
			return ErrSlugTaken
		case strings.Contains(pgErr.ConstraintName, "email"):
			return ErrEmailTaken
		}
	}
	return err
}
