package usecases

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zia_backend/internal/config"
	"zia_backend/internal/entities"
	"zia_backend/internal/infrastructure"
	"zia_backend/internal/interfaces"
)

// collectEmitter records every frame a streamed turn produces.
type collectEmitter struct {
	deltas []string
	uis    []*UIHint
	dones  []string
	errs   []string
}

func (e *collectEmitter) Delta(_ int, content string) { e.deltas = append(e.deltas, content) }
func (e *collectEmitter) UI(hint *UIHint)             { e.uis = append(e.uis, hint) }
func (e *collectEmitter) Done(sid string)             { e.dones = append(e.dones, sid) }
func (e *collectEmitter) Error(msg string)            { e.errs = append(e.errs, msg) }

// scriptedAI yields a fixed token list and can cancel the caller's context
// after a set number of tokens, simulating a client disconnect mid-stream.
type scriptedAI struct {
	tokens      []string
	cancelAfter int
	cancel      context.CancelFunc
}

func (a *scriptedAI) Generate(_ context.Context, _ []interfaces.ChatMessage) (string, error) {
	return strings.Join(a.tokens, ""), nil
}

func (a *scriptedAI) Stream(_ context.Context, _ []interfaces.ChatMessage) (interfaces.TokenStream, error) {
	return &scriptedStream{ai: a}, nil
}

type scriptedStream struct {
	ai  *scriptedAI
	pos int
}

func (s *scriptedStream) Recv() (string, error) {
	if s.pos >= len(s.ai.tokens) {
		return "", io.EOF
	}
	tok := s.ai.tokens[s.pos]
	s.pos++
	if s.ai.cancel != nil && s.pos == s.ai.cancelAfter {
		s.ai.cancel()
	}
	return tok, nil
}

func (s *scriptedStream) Close() error { return nil }

func newTestChatService(ai interfaces.AIClient, checkout interfaces.CheckoutProvider) (*ChatService, *infrastructure.SessionStore) {
	store := infrastructure.NewSessionStore(infrastructure.NewMemorySessionDriver(0, 0))
	cfg := config.Config{HistoryPairs: 8, OpenAIModel: "test-model"}
	return NewChatService(cfg, store, ai, checkout, nil, nil, nil, nil), store
}

func TestProcessTurnFallsBackToLLM(t *testing.T) {
	svc, store := newTestChatService(infrastructure.NewMockAIClient(), nil)
	ctx := context.Background()

	sid, reply, ui, err := svc.ProcessTurn(ctx, nil, "", "hola")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sid, "sess_"))
	assert.Contains(t, reply, "hola")
	assert.Nil(t, ui)

	msgs, ok := store.Messages(ctx, sid)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, entities.RoleUser, msgs[0].Role)
	assert.Equal(t, entities.RoleAssistant, msgs[1].Role)
}

func TestProcessTurnRunsFlowBeforeLLM(t *testing.T) {
	svc, store := newTestChatService(infrastructure.NewMockAIClient(), nil)
	ctx := context.Background()

	sid, reply, _, err := svc.ProcessTurn(ctx, nil, "", "quiero cotizar")
	require.NoError(t, err)
	assert.NotContains(t, reply, "(mock)", "flow replies never reach the model")
	assert.Equal(t, entities.StageAskName, store.Flow(ctx, sid).Stage)

	_, _, ui, err := svc.ProcessTurn(ctx, nil, sid, "Ana")
	require.NoError(t, err)
	require.NotNil(t, ui)
	assert.Equal(t, []string{"WhatsApp", "Email", "Llamada"}, ui.Chips)
	assert.Equal(t, entities.StageAskMethod, store.Flow(ctx, sid).Stage)
}

func TestInterruptResetsActiveFlow(t *testing.T) {
	svc, store := newTestChatService(infrastructure.NewMockAIClient(), nil)
	ctx := context.Background()

	sid, _, _, err := svc.ProcessTurn(ctx, nil, "", "quiero cotizar")
	require.NoError(t, err)
	require.True(t, store.Flow(ctx, sid).Active())

	// A question mid-flow abandons the capture and goes to the model.
	_, reply, _, err := svc.ProcessTurn(ctx, nil, sid, "¿qué horario tienen?")
	require.NoError(t, err)
	assert.Contains(t, reply, "(mock)")
	assert.False(t, store.Flow(ctx, sid).Active())
}

func TestSessionMessagesMissWithoutPersistence(t *testing.T) {
	svc, _ := newTestChatService(infrastructure.NewMockAIClient(), nil)

	_, ok := svc.SessionMessages(context.Background(), "wa_5215512345678")
	assert.False(t, ok)
}

func TestTranscriptFromStoredKeepsOrderAndRoles(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	stored := []entities.StoredMessage{
		{Author: entities.RoleUser, Content: "hola", TS: ts},
		{Author: entities.RoleAssistant, Content: "¡Hola!", TS: ts.Add(time.Second)},
	}

	msgs := transcriptFromStored(stored)
	require.Len(t, msgs, 2)
	assert.Equal(t, entities.RoleUser, msgs[0].Role)
	assert.Equal(t, "hola", msgs[0].Content)
	assert.Equal(t, entities.RoleAssistant, msgs[1].Role)
	assert.Equal(t, ts.Add(time.Second), msgs[1].TS)
}

func TestStreamTurnEmitsDeltasAndDone(t *testing.T) {
	ai := &scriptedAI{tokens: []string{"Ho", "la", "!"}}
	svc, _ := newTestChatService(ai, nil)

	em := &collectEmitter{}
	svc.StreamTurn(context.Background(), nil, "", "hola", em)

	assert.Equal(t, []string{"Ho", "la", "!"}, em.deltas)
	require.Len(t, em.dones, 1)
	assert.Empty(t, em.errs)
}

func TestStreamTurnDisconnectPersistsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ai := &scriptedAI{
		tokens:      []string{"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9"},
		cancelAfter: 3,
		cancel:      cancel,
	}
	svc, store := newTestChatService(ai, nil)

	sid := store.Ensure(context.Background(), "")

	em := &collectEmitter{}
	svc.StreamTurn(ctx, nil, sid, "hola", em)

	// Three tokens made it out before the disconnect; no done frame after.
	assert.Equal(t, []string{"t0", "t1", "t2"}, em.deltas)
	assert.Empty(t, em.dones)
	assert.Empty(t, em.errs)

	// The partial reply is kept in the transcript.
	msgs, ok := store.Messages(context.Background(), sid)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, entities.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "t0t1t2", msgs[1].Content)
}

func TestStreamTurnScriptedReplySingleDelta(t *testing.T) {
	svc, store := newTestChatService(infrastructure.NewMockAIClient(), nil)
	ctx := context.Background()

	em := &collectEmitter{}
	svc.StreamTurn(ctx, nil, "", "quiero cotizar", em)

	require.Len(t, em.deltas, 1)
	require.Len(t, em.dones, 1)

	sid := em.dones[0]
	assert.Equal(t, entities.StageAskName, store.Flow(ctx, sid).Stage)
	msgs, ok := store.Messages(ctx, sid)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

type fakeCheckout struct {
	calls int
}

func (f *fakeCheckout) CreateCheckoutSession(_ context.Context, priceID, _, _, _ string) (string, error) {
	f.calls++
	return "https://checkout.test/" + priceID, nil
}

func TestPurchaseIntentShortCircuitsToCheckout(t *testing.T) {
	checkout := &fakeCheckout{}
	svc, _ := newTestChatService(infrastructure.NewMockAIClient(), checkout)

	tenant := &entities.Tenant{
		Slug: "acme",
		Settings: entities.TenantSettings{
			Catalog: []entities.Plan{{ID: "pro", Name: "Plan Pro", Keywords: []string{"pro"}, PriceID: "price_pro"}},
		},
	}

	_, reply, ui, err := svc.ProcessTurn(context.Background(), tenant, "", "quiero comprar el plan pro")
	require.NoError(t, err)
	assert.Equal(t, 1, checkout.calls)
	require.NotNil(t, ui)
	assert.Equal(t, "https://checkout.test/price_pro", ui.CheckoutURL)
	assert.Contains(t, reply, "Plan Pro")
}

func TestPurchaseWithoutCatalogFallsThrough(t *testing.T) {
	checkout := &fakeCheckout{}
	svc, _ := newTestChatService(infrastructure.NewMockAIClient(), checkout)

	_, reply, _, err := svc.ProcessTurn(context.Background(), nil, "", "quiero comprar algo")
	require.NoError(t, err)
	assert.Zero(t, checkout.calls)
	assert.Contains(t, reply, "(mock)")
}

func TestRoughTokenCount(t *testing.T) {
	assert.Equal(t, 1, RoughTokenCount(""))
	assert.Equal(t, 1, RoughTokenCount("abc"))
	assert.Equal(t, 2, RoughTokenCount("12345678"))
	assert.Equal(t, 25, RoughTokenCount(strings.Repeat("x", 100)))
}
