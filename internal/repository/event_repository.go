package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"zia_backend/internal/entities"
)

type EventRepository struct {
	db *pgxpool.Pool
}

func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Insert(ctx context.Context, tenantSlug, sessionID, eventType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte(`{}`)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO events (tenant_slug, session_id, type, payload)
		VALUES ($1, $2, $3, $4)
	`, tenantSlug, sessionID, eventType, raw)
	return err
}

func (r *EventRepository) ListByTenant(ctx context.Context, tenantSlug string, limit int) ([]entities.Event, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_slug, COALESCE(session_id, ''), type, payload, ts
		FROM events
		WHERE ($1 = '' OR tenant_slug = $1)
		ORDER BY ts DESC
		LIMIT $2
	`, tenantSlug, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []entities.Event{}
	for rows.Next() {
		var e entities.Event
		if err := rows.Scan(&e.ID, &e.TenantSlug, &e.SessionID, &e.Type, &e.Payload, &e.TS); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}
