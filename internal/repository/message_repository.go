package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"zia_backend/internal/entities"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Insert(ctx context.Context, m *entities.StoredMessage) error {
	payload := m.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO messages (tenant_slug, session_id, channel, direction, author, content, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.TenantSlug, m.SessionID, m.Channel, m.Direction, m.Author, m.Content, payload)
	return err
}

func (r *MessageRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]entities.StoredMessage, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_slug, COALESCE(session_id, ''), channel, direction, COALESCE(author, ''), COALESCE(content, ''), payload, ts
		FROM messages
		WHERE session_id = $1
		ORDER BY ts ASC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []entities.StoredMessage{}
	for rows.Next() {
		var m entities.StoredMessage
		if err := rows.Scan(&m.ID, &m.TenantSlug, &m.SessionID, &m.Channel, &m.Direction, &m.Author, &m.Content, &m.Payload, &m.TS); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
