package entities

import "time"

// User is a dashboard login belonging to a tenant.
type User struct {
	ID           int       `json:"id"`
	TenantSlug   string    `json:"tenant_slug"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"` // "owner" or "member"
	CreatedAt    time.Time `json:"created_at"`
}
