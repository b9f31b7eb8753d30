// pkg/tenants/postgres.go
package tenants

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgDirectory implements Directory over the principal_tenants table. The table is owned
// by the platform's membership system; this service only reads it.
type pgDirectory struct {
	dbPool *pgxpool.Pool      // Connection pool to PostgreSQL
	log    *zap.SugaredLogger // Logger for diagnostic output
}

// NewPostgresDirectory constructs a PostgreSQL-backed principal directory.
func NewPostgresDirectory(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Directory {
	return &pgDirectory{dbPool: dbPool, log: log}
}

// EnsureSchema creates the membership table for local development.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS principal_tenants (
  principal_id text NOT NULL,
  tenant_id text NOT NULL,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  PRIMARY KEY (principal_id, tenant_id)
);
CREATE INDEX IF NOT EXISTS principal_tenants_principal_idx ON principal_tenants(principal_id);
`)
	return err
}

// SeedFromJSON ingests a PRINCIPAL_TENANTS_JSON document (see ParseSeed).
func SeedFromJSON(ctx context.Context, dbPool *pgxpool.Pool, jsonSeed string) error {
	m, err := ParseSeed(jsonSeed)
	if err != nil {
		return err
	}
	for principal, ts := range m {
		for _, t := range ts {
			if _, err := dbPool.Exec(ctx, `INSERT INTO principal_tenants(principal_id, tenant_id)
			  VALUES ($1,$2) ON CONFLICT DO NOTHING`, principal, t); err != nil {
				return fmt.Errorf("seed %s: %w", principal, err)
			}
		}
	}
	return nil
}

// TenantsForPrincipal lists the tenant ids mapped to principalID.
func (p *pgDirectory) TenantsForPrincipal(ctx context.Context, principalID string) ([]string, error) {
	rows, err := p.dbPool.Query(ctx, `SELECT tenant_id FROM principal_tenants WHERE principal_id=$1`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrPrincipalNotFound
	}
	return out, nil
}
