package entities

import (
	"encoding/json"
	"time"
)

// Lead is a captured prospect contact tied to a tenant and session.
// Append-only after creation; slot updates patch the Meta field.
type Lead struct {
	ID         int64           `json:"id"`
	TenantSlug string          `json:"tenant_slug"`
	SessionID  string          `json:"session_id"`
	Name       string          `json:"name"`
	Method     string          `json:"method"`
	Contact    string          `json:"contact"` // normalized (digits for phone, lowercased email)
	Meta       json.RawMessage `json:"meta"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Event is an analytics row (lead_saved, checkout_link, purchase, ...).
type Event struct {
	ID         int64           `json:"id"`
	TenantSlug string          `json:"tenant_slug"`
	SessionID  string          `json:"session_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	TS         time.Time       `json:"ts"`
}

// Channel/direction values for persisted messages.
const (
	ChannelWidget   = "widget"
	ChannelMeta     = "meta"
	ChannelWhatsApp = "whatsapp"
	DirectionIn     = "in"
	DirectionOut    = "out"
)

// StoredMessage is a persisted copy of a conversation turn on any channel.
type StoredMessage struct {
	ID         int64           `json:"id"`
	TenantSlug string          `json:"tenant_slug"`
	SessionID  string          `json:"session_id"`
	Channel    string          `json:"channel"`
	Direction  string          `json:"direction"`
	Author     string          `json:"author"`
	Content    string          `json:"content"`
	Payload    json.RawMessage `json:"payload"`
	TS         time.Time       `json:"ts"`
}
