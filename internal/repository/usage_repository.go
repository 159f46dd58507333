package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type UsageRepository struct {
	db *pgxpool.Pool
}

// UsageSummary is the per-session token aggregate.
type UsageSummary struct {
	SessionID        string  `json:"sessionId"`
	Model            string  `json:"model"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

func NewUsageRepository(db *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{db: db}
}

// Insert records one turn's token counts.
func (r *UsageRepository) Insert(ctx context.Context, sessionID, model string, promptTokens, completionTokens int) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO usage_events (ts, session_id, model, prompt_tokens, completion_tokens)
		VALUES ($1, $2, $3, $4, $5)
	`, time.Now().Unix(), sessionID, model, promptTokens, completionTokens)
	return err
}

// Summarize sums a session's token usage.
func (r *UsageRepository) Summarize(ctx context.Context, sessionID string) (*UsageSummary, error) {
	var s UsageSummary
	var model *string
	err := r.db.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			MAX(model)
		FROM usage_events
		WHERE session_id = $1
	`, sessionID).Scan(&s.PromptTokens, &s.CompletionTokens, &model)
	if err != nil {
		return nil, err
	}
	s.SessionID = sessionID
	if model != nil {
		s.Model = *model
	}
	s.TotalTokens = s.PromptTokens + s.CompletionTokens
	return &s, nil
}
