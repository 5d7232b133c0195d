// Package tenantdb binds the authenticated tenant onto the database
// connection serving a request so row-level-security policies can filter
// every query to that tenant's rows.
package tenantdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nexerp.io/internal/obs"
)

// settingName is the session variable RLS policies read:
//
//	using (tenant_id = current_setting('app.tenant_id')::uuid)
const settingName = "app.tenant_id"

// DB wraps the shared pool and hands out tenant-bound transactions.
type DB struct {
	db *sql.DB
}

func New(db *sql.DB) (*DB, error) {
	if db == nil {
		return nil, errors.New("tenantdb: db is required")
	}
	return &DB{db: db}, nil
}

// WithTenant runs fn inside a transaction whose first statement binds the
// tenant id with set_config(..., is_local => true). The binding is
// transaction-local, so it cannot leak to another request reusing the
// pooled connection, and running fn in the same transaction guarantees the
// bind happens before every query fn issues.
//
// A failed bind aborts the request: continuing would serve unscoped data.
func (d *DB) WithTenant(ctx context.Context, tenantID string, fn func(tx *sql.Tx) error) error {
	if tenantID == "" {
		return errors.New("tenantdb: tenant id is required")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tenantdb: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `select set_config($1, $2, true)`, settingName, tenantID); err != nil {
		obs.CountTenantBindFailure()
		return fmt.Errorf("tenantdb: bind tenant context: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
