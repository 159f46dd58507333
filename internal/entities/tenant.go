package entities

import (
	"encoding/json"
	"time"
)

// Plan is one purchasable catalog entry in a tenant's settings.
type Plan struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	PriceID  string   `json:"price_id"` // Stripe price id
	Amount   int64    `json:"amount"`   // display amount in cents, informational
	Currency string   `json:"currency"`
	Mode     string   `json:"mode"` // "payment" or "subscription", defaults to payment
}

// TenantSettings is the parsed form of the tenants.settings JSONB column.
// Fields are optional; zero values fall back to the documented defaults at the
// point of use. Extra keeps genuinely tenant-specific custom fields opaque.
type TenantSettings struct {
	SystemPrompt     string                     `json:"system_prompt"`
	BrandName        string                     `json:"brand_name"`
	Model            string                     `json:"model"`
	WhatsApp         string                     `json:"whatsapp"` // overrides tenants.whatsapp column
	SuggestionChips  []string                   `json:"suggestion_chips"`
	Catalog          []Plan                     `json:"catalog"`
	ChecklistURL     string                     `json:"checklist_url"`
	MetaPageID       string                     `json:"meta_page_id"`
	CommentAutoReply string                     `json:"comment_auto_reply"`
	Extra            map[string]json.RawMessage `json:"-"`
}

// Tenant is a customer business using the chat widget under its own slug.
type Tenant struct {
	ID        int            `json:"id"`
	Slug      string         `json:"slug"`
	Name      string         `json:"name"`
	WhatsApp  string         `json:"whatsapp"`
	Settings  TenantSettings `json:"settings"`
	CreatedAt time.Time      `json:"created_at"`
}

// WhatsAppNumber resolves the effective WhatsApp number for deep links.
func (t *Tenant) WhatsAppNumber() string {
	if t.Settings.WhatsApp != "" {
		return t.Settings.WhatsApp
	}
	return t.WhatsApp
}

// ParseTenantSettings decodes the raw settings blob once at the data-access
// boundary. Unknown keys are preserved in Extra instead of being dropped.
func ParseTenantSettings(raw []byte) (TenantSettings, error) {
	var s TenantSettings
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err == nil {
		known := map[string]bool{
			"system_prompt": true, "brand_name": true, "model": true,
			"whatsapp": true, "suggestion_chips": true, "catalog": true,
			"checklist_url": true, "meta_page_id": true, "comment_auto_reply": true,
		}
		for k, v := range all {
			if !known[k] {
				if s.Extra == nil {
					s.Extra = map[string]json.RawMessage{}
				}
				s.Extra[k] = v
			}
		}
	}
	return s, nil
}

// EncodeTenantSettings serializes settings back to the JSONB column,
// re-merging the opaque Extra fields.
func EncodeTenantSettings(s TenantSettings) ([]byte, error) {
	base, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}
