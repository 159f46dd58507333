package usecases

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zia_backend/internal/entities"
)

var testFlowCfg = FlowConfig{
	BrandName:    "Clínica Azul",
	WhatsApp:     "+52 1 555 123 4567",
	ChecklistURL: "https://example.com/checklist.pdf",
}

func TestQuoteIntentStartsFlow(t *testing.T) {
	for _, msg := range []string{"quiero cotizar", "Cotización por favor", "can I get a quote", "necesito un presupuesto"} {
		res := AdvanceFlow(entities.ContactFlow{}, msg, testFlowCfg)
		assert.True(t, res.Handled, msg)
		assert.Equal(t, entities.StageAskName, res.State.Stage, msg)
	}
}

func TestNonQuoteFallsThroughToLLM(t *testing.T) {
	res := AdvanceFlow(entities.ContactFlow{}, "hola, ¿qué hacen ustedes", testFlowCfg)
	assert.False(t, res.Handled)
	assert.False(t, res.State.Active())
}

func TestWhatsAppBranchEndToEnd(t *testing.T) {
	res := AdvanceFlow(entities.ContactFlow{}, "quiero cotizar", testFlowCfg)
	require.Equal(t, entities.StageAskName, res.State.Stage)

	res = AdvanceFlow(res.State, "Ana López", testFlowCfg)
	require.Equal(t, entities.StageAskMethod, res.State.Stage)
	assert.Equal(t, "Ana López", res.State.Name)
	require.NotNil(t, res.UI)
	assert.Equal(t, []string{"WhatsApp", "Email", "Llamada"}, res.UI.Chips)

	res = AdvanceFlow(res.State, "WhatsApp", testFlowCfg)
	require.Equal(t, entities.StageAskValue, res.State.Stage)
	assert.Equal(t, entities.MethodWhatsApp, res.State.Method)

	res = AdvanceFlow(res.State, "55 1234 5678 (celular)", testFlowCfg)
	assert.True(t, res.SaveLead)
	assert.False(t, res.State.Active(), "terminal transition resets the flow")
	assert.Equal(t, "5512345678", res.Captured.Contact)
	assert.Equal(t, "Ana López", res.Captured.Name)
	require.NotNil(t, res.UI)
	assert.Equal(t, "https://wa.me/5215551234567", res.UI.WhatsApp)
	assert.True(t, res.UI.ShowWhatsAppBubble)
}

func TestEmailBranchRetriesInvalidThenFinishes(t *testing.T) {
	flow := entities.ContactFlow{Stage: entities.StageAskValue, Name: "Luis", Method: entities.MethodEmail}

	res := AdvanceFlow(flow, "not-an-email", testFlowCfg)
	assert.True(t, res.Handled)
	assert.False(t, res.SaveLead)
	assert.Equal(t, entities.StageAskValue, res.State.Stage, "invalid input re-prompts in place")

	res = AdvanceFlow(res.State, "  Luis@Example.COM ", testFlowCfg)
	assert.True(t, res.SaveLead)
	assert.Equal(t, "luis@example.com", res.Captured.Contact)
	assert.False(t, res.State.Active())
	require.NotNil(t, res.UI)
	assert.NotEmpty(t, res.UI.Chips)
}

func TestLlamadaBranchAsksForSlot(t *testing.T) {
	flow := entities.ContactFlow{Stage: entities.StageAskMethod, Name: "Eva"}

	res := AdvanceFlow(flow, "prefiero una llamada", testFlowCfg)
	require.Equal(t, entities.StageAskValue, res.State.Stage)
	require.Equal(t, entities.MethodLlamada, res.State.Method)

	res = AdvanceFlow(res.State, "+52 (55) 8765-4321", testFlowCfg)
	assert.True(t, res.SaveLead)
	assert.Equal(t, entities.StageAskSlot, res.State.Stage, "llamada continues into slot capture")
	assert.Equal(t, "525587654321", res.Captured.Contact)
	assert.Equal(t, "Eva", res.Captured.Name)
}

func TestSlotCapture(t *testing.T) {
	flow := entities.ContactFlow{Stage: entities.StageAskSlot, Name: "Eva", Method: entities.MethodLlamada, Contact: "5587654321"}

	// Vague answers re-prompt.
	res := AdvanceFlow(flow, "cuando sea", testFlowCfg)
	assert.Equal(t, entities.StageAskSlot, res.State.Stage)
	assert.Empty(t, res.Slot)

	res = AdvanceFlow(flow, "martes a las 10am", testFlowCfg)
	assert.Equal(t, "martes a las 10am", res.Slot)
	assert.False(t, res.State.Active())
}

func TestInterruptIntents(t *testing.T) {
	assert.True(t, HasInterruptIntent("mejor quiero comprar el plan"))
	assert.True(t, HasInterruptIntent("muéstrame el catálogo"))
	assert.True(t, HasInterruptIntent("¿cuánto cuesta el precio base"))
	assert.True(t, HasInterruptIntent("cancelar"))
	assert.True(t, HasInterruptIntent("y esto qué incluye?"))
	assert.False(t, HasInterruptIntent("Ana López"))
	assert.False(t, HasInterruptIntent("55 1234 5678"))
}

func TestMethodRetryInPlace(t *testing.T) {
	flow := entities.ContactFlow{Stage: entities.StageAskMethod, Name: "Ana"}
	res := AdvanceFlow(flow, "paloma mensajera", testFlowCfg)
	assert.True(t, res.Handled)
	assert.Equal(t, entities.StageAskMethod, res.State.Stage)
	require.NotNil(t, res.UI)
	assert.Equal(t, []string{"WhatsApp", "Email", "Llamada"}, res.UI.Chips)
}

func TestAdvanceFlowIsDeterministic(t *testing.T) {
	flow := entities.ContactFlow{Stage: entities.StageAskName}
	a := AdvanceFlow(flow, "Ana", testFlowCfg)
	b := AdvanceFlow(flow, "Ana", testFlowCfg)
	assert.Equal(t, a.State, b.State)
	assert.Equal(t, a.Reply, b.Reply)
}

func TestNormalizePhone(t *testing.T) {
	got, ok := NormalizePhone("+52 (55) 1234-5678")
	require.True(t, ok)
	assert.Equal(t, "525512345678", got)

	_, ok = NormalizePhone("12345")
	assert.False(t, ok, "7 digits or fewer rejected")

	_, ok = NormalizePhone("1234567890123456")
	assert.False(t, ok, "16 digits rejected")

	got, ok = NormalizePhone("55123456")
	require.True(t, ok, "8 digits is the lower bound")
	assert.Equal(t, "55123456", got)
}

func TestValidEmail(t *testing.T) {
	got, ok := ValidEmail(" User@Mail.COM ")
	require.True(t, ok)
	assert.Equal(t, "user@mail.com", got)

	for _, bad := range []string{"", "a@b", "no-at.com", "two@@x.com", "spa ce@x.com"} {
		_, ok := ValidEmail(bad)
		assert.False(t, ok, bad)
	}
}

func TestNormalizeMethod(t *testing.T) {
	cases := map[string]string{
		"WhatsApp":          entities.MethodWhatsApp,
		"por wasap porfa":   entities.MethodWhatsApp,
		"email":             entities.MethodEmail,
		"mándame un correo": entities.MethodEmail,
		"una llamada":       entities.MethodLlamada,
		"pueden llamarme":   entities.MethodLlamada,
		"call me":           entities.MethodLlamada,
	}
	for in, want := range cases {
		got, ok := NormalizeMethod(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := NormalizeMethod("fax")
	assert.False(t, ok)
}

func TestMatchPlan(t *testing.T) {
	catalog := []entities.Plan{
		{ID: "basic", Name: "Plan Básico", Keywords: []string{"basico", "básico"}, PriceID: "price_1"},
		{ID: "pro", Name: "Plan Pro", Keywords: []string{"pro", "premium"}, PriceID: "price_2"},
	}

	p := MatchPlan(catalog, "quiero comprar el plan básico")
	require.NotNil(t, p)
	assert.Equal(t, "basic", p.ID)

	p = MatchPlan(catalog, "me interesa el premium")
	require.NotNil(t, p)
	assert.Equal(t, "pro", p.ID)

	assert.Nil(t, MatchPlan(catalog, "quiero comprar algo"))
	assert.Nil(t, MatchPlan(nil, "comprar"))
}
