package entities

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTenantSettingsDefaults(t *testing.T) {
	s, err := ParseTenantSettings(nil)
	require.NoError(t, err)
	assert.Empty(t, s.SystemPrompt)
	assert.Nil(t, s.Extra)
}

func TestParseTenantSettingsKeepsUnknownKeys(t *testing.T) {
	raw := []byte(`{
		"brand_name": "Clínica Azul",
		"whatsapp": "+5215512345678",
		"catalog": [{"id":"pro","name":"Plan Pro","keywords":["pro"],"price_id":"price_1"}],
		"custom_widget_color": "#336699",
		"promo": {"active": true}
	}`)

	s, err := ParseTenantSettings(raw)
	require.NoError(t, err)
	assert.Equal(t, "Clínica Azul", s.BrandName)
	require.Len(t, s.Catalog, 1)
	assert.Equal(t, "price_1", s.Catalog[0].PriceID)

	require.Contains(t, s.Extra, "custom_widget_color")
	require.Contains(t, s.Extra, "promo")
	assert.NotContains(t, s.Extra, "brand_name")
}

func TestEncodeTenantSettingsRoundTripsExtra(t *testing.T) {
	raw := []byte(`{"brand_name":"X","custom_field":42}`)
	s, err := ParseTenantSettings(raw)
	require.NoError(t, err)

	out, err := EncodeTenantSettings(s)
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &m))
	assert.JSONEq(t, `"X"`, string(m["brand_name"]))
	assert.JSONEq(t, `42`, string(m["custom_field"]))
}

func TestWhatsAppNumberPrefersSettings(t *testing.T) {
	tenant := Tenant{WhatsApp: "+111", Settings: TenantSettings{WhatsApp: "+222"}}
	assert.Equal(t, "+222", tenant.WhatsAppNumber())

	tenant.Settings.WhatsApp = ""
	assert.Equal(t, "+111", tenant.WhatsAppNumber())
}
