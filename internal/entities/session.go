package entities

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single conversation turn. Immutable once appended.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	TS      time.Time `json:"ts"`
}

// Session holds one widget conversation: the transcript, the contact-capture
// flow state and scratch data. Owned exclusively by the session store.
type Session struct {
	ID         string      `json:"id"`
	StartedAt  time.Time   `json:"startedAt"`
	Status     string      `json:"status"` // always "active" for now
	Messages   []Message   `json:"messages"`
	Flow       ContactFlow `json:"flow"`
	LastLeadID int64       `json:"lastLeadId"` // transient, set after a lead insert completes
	TouchedAt  time.Time   `json:"touchedAt"`
}
