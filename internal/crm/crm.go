// Package crm implements the company directory, the first tenant-scoped
// resource served through the RLS-bound storage path.
package crm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"nexerp.io/internal/auth"
	"nexerp.io/internal/tenantdb"
)

var (
	ErrNotFound     = errors.New("crm: not found")
	ErrInvalidInput = errors.New("crm: invalid input")
)

// Company is a CRM account record, partitioned per tenant.
type Company struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Industry  string    `json:"industry,omitempty"`
	Website   string    `json:"website,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Service runs every query through a tenant-bound transaction. The SQL
// deliberately has no tenant_id predicates on reads: row visibility is
// enforced by the database's RLS policies against the bound tenant.
type Service struct {
	db  *tenantdb.DB
	now func() time.Time
}

func NewService(db *tenantdb.DB) (*Service, error) {
	if db == nil {
		return nil, errors.New("crm: tenant db is required")
	}
	return &Service{db: db, now: time.Now}, nil
}

// CreateCompanyInput carries the create form.
type CreateCompanyInput struct {
	Name     string
	Industry string
	Website  string
}

func (s *Service) CreateCompany(ctx context.Context, sc auth.SecurityContext, in CreateCompanyInput) (Company, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || len(in.Name) > 200 {
		return Company{}, fmt.Errorf("%w: name must be 1-200 characters", ErrInvalidInput)
	}

	company := Company{
		ID:        uuid.NewString(),
		TenantID:  sc.TenantID,
		Name:      in.Name,
		Industry:  strings.TrimSpace(in.Industry),
		Website:   strings.TrimSpace(in.Website),
		CreatedAt: s.now().UTC(),
	}

	err := s.db.WithTenant(ctx, sc.TenantID, func(tx *sql.Tx) error {
		// The RLS with-check clause rejects an insert whose tenant_id
		// differs from the bound tenant.
		_, err := tx.ExecContext(ctx,
			`insert into companies(id, tenant_id, name, industry, website, created_at)
			 values($1,$2,$3,$4,$5,$6)`,
			company.ID, company.TenantID, company.Name, company.Industry, company.Website, company.CreatedAt,
		)
		return err
	})
	if err != nil {
		return Company{}, err
	}
	return company, nil
}

func (s *Service) ListCompanies(ctx context.Context, sc auth.SecurityContext) ([]Company, error) {
	// Non-nil so an empty tenant serializes as [] rather than null.
	companies := []Company{}
	err := s.db.WithTenant(ctx, sc.TenantID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`select id, tenant_id, name, industry, website, created_at
			 from companies order by created_at asc`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c Company
			if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Industry, &c.Website, &c.CreatedAt); err != nil {
				return err
			}
			companies = append(companies, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return companies, nil
}

func (s *Service) GetCompany(ctx context.Context, sc auth.SecurityContext, id string) (Company, error) {
	if strings.TrimSpace(id) == "" {
		return Company{}, fmt.Errorf("%w: company id is required", ErrInvalidInput)
	}
	var c Company
	err := s.db.WithTenant(ctx, sc.TenantID, func(tx *sql.Tx) error {
		// Another tenant's id scans as no rows: RLS hides the row
		// entirely, so a guessed id cannot probe existence across tenants.
		err := tx.QueryRowContext(ctx,
			`select id, tenant_id, name, industry, website, created_at
			 from companies where id = $1`, id).
			Scan(&c.ID, &c.TenantID, &c.Name, &c.Industry, &c.Website, &c.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return Company{}, err
	}
	return c, nil
}
