package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"zia_backend/internal/entities"
)

type LeadRepository struct {
	db *pgxpool.Pool
}

func NewLeadRepository(db *pgxpool.Pool) *LeadRepository {
	return &LeadRepository{db: db}
}

// Insert persists a completed contact capture and returns the new id.
func (r *LeadRepository) Insert(ctx context.Context, l *entities.Lead) (int64, error) {
	meta := l.Meta
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO leads (tenant_slug, session_id, name, method, contact, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, l.TenantSlug, l.SessionID, l.Name, l.Method, l.Contact, meta).Scan(&l.ID, &l.CreatedAt)
	return l.ID, err
}

// PatchMeta merges fields into the lead's meta blob (slot updates).
func (r *LeadRepository) PatchMeta(ctx context.Context, id int64, patch map[string]interface{}) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, "UPDATE leads SET meta = meta || $1 WHERE id = $2", raw, id)
	return err
}

// ListByTenant returns leads newest first; empty tenant returns all.
func (r *LeadRepository) ListByTenant(ctx context.Context, tenantSlug string, limit int) ([]entities.Lead, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_slug, session_id, name, method, contact, meta, created_at
		FROM leads
		WHERE ($1 = '' OR tenant_slug = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantSlug, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []entities.Lead{}
	for rows.Next() {
		var l entities.Lead
		if err := rows.Scan(&l.ID, &l.TenantSlug, &l.SessionID, &l.Name, &l.Method, &l.Contact, &l.Meta, &l.CreatedAt); err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, nil
}

// CountSince supports the admin stats endpoint.
func (r *LeadRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM leads WHERE created_at >= $1", since).Scan(&n)
	return n, err
}
