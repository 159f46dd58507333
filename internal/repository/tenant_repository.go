package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"zia_backend/internal/entities"
)

type TenantRepository struct {
	db *pgxpool.Pool
}

func NewTenantRepository(db *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) scanOne(row pgx.Row) (*entities.Tenant, error) {
	var t entities.Tenant
	var whatsapp *string
	var raw []byte
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &whatsapp, &raw, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}
	if whatsapp != nil {
		t.WhatsApp = *whatsapp
	}
	// Settings parsed once here; the rest of the core sees the struct only.
	t.Settings, err = entities.ParseTenantSettings(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (*entities.Tenant, error) {
	row := r.db.QueryRow(ctx,
		"SELECT id, slug, name, whatsapp, settings, created_at FROM tenants WHERE slug = $1", slug)
	return r.scanOne(row)
}

// GetByWhatsApp resolves the tenant owning an inbound WhatsApp number.
func (r *TenantRepository) GetByWhatsApp(ctx context.Context, number string) (*entities.Tenant, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, slug, name, whatsapp, settings, created_at FROM tenants
		WHERE whatsapp = $1 OR settings->>'whatsapp' = $1
	`, number)
	return r.scanOne(row)
}

// GetByPageID resolves the tenant owning a Meta page, via the settings blob.
func (r *TenantRepository) GetByPageID(ctx context.Context, pageID string) (*entities.Tenant, error) {
	row := r.db.QueryRow(ctx,
		"SELECT id, slug, name, whatsapp, settings, created_at FROM tenants WHERE settings->>'meta_page_id' = $1", pageID)
	return r.scanOne(row)
}

func (r *TenantRepository) Create(ctx context.Context, t *entities.Tenant) error {
	raw, err := entities.EncodeTenantSettings(t.Settings)
	if err != nil {
		return err
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO tenants (slug, name, whatsapp, settings)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		RETURNING id, created_at
	`, t.Slug, t.Name, t.WhatsApp, raw).Scan(&t.ID, &t.CreatedAt)
}

func (r *TenantRepository) Update(ctx context.Context, t *entities.Tenant) error {
	raw, err := entities.EncodeTenantSettings(t.Settings)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		UPDATE tenants SET name=$1, whatsapp=NULLIF($2, ''), settings=$3 WHERE slug=$4
	`, t.Name, t.WhatsApp, raw, t.Slug)
	return err
}

func (r *TenantRepository) Delete(ctx context.Context, slug string) error {
	_, err := r.db.Exec(ctx, "DELETE FROM tenants WHERE slug=$1", slug)
	return err
}

func (r *TenantRepository) GetAll(ctx context.Context) ([]entities.Tenant, error) {
	rows, err := r.db.Query(ctx,
		"SELECT id, slug, name, whatsapp, settings, created_at FROM tenants ORDER BY slug")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tenants := []entities.Tenant{}
	for rows.Next() {
		var t entities.Tenant
		var whatsapp *string
		var raw []byte
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &whatsapp, &raw, &t.CreatedAt); err != nil {
			return nil, err
		}
		if whatsapp != nil {
			t.WhatsApp = *whatsapp
		}
		if t.Settings, err = entities.ParseTenantSettings(raw); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, nil
}

// Count supports the admin stats endpoint.
func (r *TenantRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM tenants").Scan(&n)
	return n, err
}

// rawSettings round-trips for callers that need the stored blob verbatim.
func (r *TenantRepository) RawSettings(ctx context.Context, slug string) (json.RawMessage, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, "SELECT settings FROM tenants WHERE slug=$1", slug).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return raw, err
}
