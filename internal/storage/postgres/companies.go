package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/osvhub/osv-discovery/internal/store"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

const companyColumns = `id::text, name, membership_type, COALESCE(address, ''), COALESCE(phone, ''),
COALESCE(fax, ''), COALESCE(email, ''), COALESCE(website, ''), COALESCE(source_url, ''), created_at, updated_at`

// UpsertCompany inserts or refreshes a company keyed by name.
func (r *Repository) UpsertCompany(ctx context.Context, c *vessel.Company) error {
	membership := c.MembershipType
	if membership == "" {
		membership = vessel.MembershipOrdinary
	}
	const q = `
INSERT INTO companies (name, membership_type, address, phone, fax, email, website, source_url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (name) DO UPDATE SET
    membership_type = EXCLUDED.membership_type,
    address = COALESCE(EXCLUDED.address, companies.address),
    phone = COALESCE(EXCLUDED.phone, companies.phone),
    fax = COALESCE(EXCLUDED.fax, companies.fax),
    email = COALESCE(EXCLUDED.email, companies.email),
    website = COALESCE(EXCLUDED.website, companies.website),
    source_url = COALESCE(EXCLUDED.source_url, companies.source_url)
RETURNING id::text, created_at, updated_at`
	err := r.db.QueryRow(ctx, q,
		c.Name, string(membership), nullString(c.Address), nullString(c.Phone), nullString(c.Fax),
		nullString(c.Email), nullString(c.Website), nullString(c.SourceURL),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert company %q: %w", c.Name, err)
	}
	c.MembershipType = membership
	return nil
}

// ListCompanies filters by name and orders alphabetically.
func (r *Repository) ListCompanies(ctx context.Context, f store.CompanyFilter) ([]vessel.Company, int, error) {
	const where = ` WHERE ($1::text IS NULL OR name ILIKE '%' || $1 || '%')`
	search := nullString(f.Search)

	var total int
	if err := r.db.QueryRow(ctx, "SELECT count(*) FROM companies"+where, search).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count companies: %w", err)
	}
	rows, err := r.db.Query(ctx,
		"SELECT "+companyColumns+" FROM companies"+where+" ORDER BY name LIMIT $2 OFFSET $3",
		search, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	out := []vessel.Company{}
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan company row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate company rows: %w", err)
	}
	return out, total, nil
}

func scanCompany(row pgx.Row) (vessel.Company, error) {
	var c vessel.Company
	var membership string
	err := row.Scan(&c.ID, &c.Name, &membership, &c.Address, &c.Phone, &c.Fax,
		&c.Email, &c.Website, &c.SourceURL, &c.CreatedAt, &c.UpdatedAt)
	c.MembershipType = vessel.Membership(membership)
	return c, err
}
