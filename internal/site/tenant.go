package site

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Tenant owns the samples recorded at a site.
type Tenant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Primary bool   `json:"primary"`
}

// SQLiteTenantRepository reads and writes the tenants table.
type SQLiteTenantRepository struct {
	db *sql.DB
}

// NewSQLiteTenantRepository creates a tenant repository.
func NewSQLiteTenantRepository(db *sql.DB) *SQLiteTenantRepository {
	return &SQLiteTenantRepository{db: db}
}

// PrimaryTenant returns the tenant flagged as primary, or ErrTenantNotFound.
func (r *SQLiteTenantRepository) PrimaryTenant(ctx context.Context) (Tenant, error) {
	const query = `SELECT id, name, is_primary FROM tenants WHERE is_primary = 1 LIMIT 1`

	var t Tenant
	err := r.db.QueryRowContext(ctx, query).Scan(&t.ID, &t.Name, &t.Primary)
	if errors.Is(err, sql.ErrNoRows) {
		return Tenant{}, ErrTenantNotFound
	}
	if err != nil {
		return Tenant{}, fmt.Errorf("querying primary tenant: %w", err)
	}
	return t, nil
}

// SaveTenant inserts or updates a tenant. Marking a tenant primary clears
// the flag on every other tenant in the same transaction.
func (r *SQLiteTenantRepository) SaveTenant(ctx context.Context, t Tenant) error {
	if t.ID == "" || t.Name == "" {
		return ErrInvalidTenant
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if t.Primary {
		if _, err := tx.ExecContext(ctx, `UPDATE tenants SET is_primary = 0 WHERE id != ?`, t.ID); err != nil {
			return fmt.Errorf("clearing primary tenant: %w", err)
		}
	}

	primary := 0
	if t.Primary {
		primary = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tenants (id, name, is_primary) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, is_primary = excluded.is_primary`,
		t.ID, t.Name, primary,
	)
	if err != nil {
		return fmt.Errorf("saving tenant %s: %w", t.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing tenant %s: %w", t.ID, err)
	}
	return nil
}
