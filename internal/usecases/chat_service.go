package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"zia_backend/internal/config"
	"zia_backend/internal/entities"
	"zia_backend/internal/infrastructure"
	"zia_backend/internal/interfaces"
	"zia_backend/internal/repository"
)

// Emitter receives the incremental output of a streamed turn. The SSE handler
// implements it over the wire; tests implement it with a slice.
type Emitter interface {
	Delta(i int, content string)
	UI(hint *UIHint)
	Done(sessionID string)
	Error(msg string)
}

// ChatService runs one widget turn end to end: session bookkeeping, the
// contact-capture flow, the purchase short-circuit and the LLM fallback.
// Repositories may be nil; persistence then degrades to session-only state.
type ChatService struct {
	cfg      config.Config
	store    *infrastructure.SessionStore
	ai       interfaces.AIClient
	checkout interfaces.CheckoutProvider
	leads    *repository.LeadRepository
	events   *repository.EventRepository
	messages *repository.MessageRepository
	usage    *repository.UsageRepository
}

func NewChatService(
	cfg config.Config,
	store *infrastructure.SessionStore,
	ai interfaces.AIClient,
	checkout interfaces.CheckoutProvider,
	leads *repository.LeadRepository,
	events *repository.EventRepository,
	messages *repository.MessageRepository,
	usage *repository.UsageRepository,
) *ChatService {
	return &ChatService{
		cfg:      cfg,
		store:    store,
		ai:       ai,
		checkout: checkout,
		leads:    leads,
		events:   events,
		messages: messages,
		usage:    usage,
	}
}

// RoughTokenCount approximates tokens as len/4, never less than 1.
func RoughTokenCount(text string) int {
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

// turn is the resolved outcome of the deterministic part of a message:
// either a scripted reply, or the message list for the LLM fallback.
type turn struct {
	sessionID string
	reply     string
	ui        *UIHint
	llmMsgs   []interfaces.ChatMessage
}

func flowConfigFor(tenant *entities.Tenant) FlowConfig {
	cfg := FlowConfig{}
	if tenant != nil {
		cfg.BrandName = tenant.Settings.BrandName
		cfg.WhatsApp = tenant.WhatsAppNumber()
		cfg.ChecklistURL = tenant.Settings.ChecklistURL
	}
	return cfg
}

func tenantSlug(tenant *entities.Tenant) string {
	if tenant == nil {
		return ""
	}
	return tenant.Slug
}

// prepare runs everything before the LLM: ensure + append, interrupt reset,
// purchase short-circuit, flow advance. A non-empty reply means the turn is
// scripted and no model call happens.
func (s *ChatService) prepare(ctx context.Context, tenant *entities.Tenant, sessionID, text, channel string) turn {
	sid := s.store.Ensure(ctx, sessionID)
	s.store.Append(ctx, sid, entities.RoleUser, text)
	s.persistMessage(tenant, sid, channel, entities.DirectionIn, entities.RoleUser, text)

	flow := s.store.Flow(ctx, sid)

	// An active flow yields to a clear change of topic before it consumes
	// the message as an answer.
	if flow.Active() && HasInterruptIntent(text) {
		flow = entities.ContactFlow{}
		s.store.SetFlow(ctx, sid, flow)
	}

	if !flow.Active() {
		if t := s.tryCheckout(ctx, tenant, sid, text); t != nil {
			return *t
		}
	}

	res := AdvanceFlow(flow, text, flowConfigFor(tenant))
	if res.Handled {
		s.store.SetFlow(ctx, sid, res.State)
		if res.SaveLead {
			s.saveLead(tenant, sid, res.Captured)
		}
		if res.Slot != "" {
			s.patchSlot(ctx, tenant, sid, res.Slot)
		}
		return turn{sessionID: sid, reply: res.Reply, ui: res.UI}
	}

	return turn{sessionID: sid, llmMsgs: s.llmMessages(ctx, tenant, sid)}
}

// tryCheckout handles purchase intent against the tenant catalog. Returns nil
// when the message is not a purchase or no plan/provider is available.
func (s *ChatService) tryCheckout(ctx context.Context, tenant *entities.Tenant, sid, text string) *turn {
	if tenant == nil || s.checkout == nil || !HasPurchaseIntent(text) {
		return nil
	}
	plan := MatchPlan(tenant.Settings.Catalog, text)
	if plan == nil && len(tenant.Settings.Catalog) == 1 {
		plan = &tenant.Settings.Catalog[0]
	}
	if plan == nil || plan.PriceID == "" {
		return nil
	}

	url, err := s.checkout.CreateCheckoutSession(ctx, plan.PriceID, plan.Mode, sid, tenant.Slug)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenant.Slug).Str("plan", plan.ID).Msg("checkout session failed")
		return &turn{
			sessionID: sid,
			reply:     "No pude generar el enlace de pago ahora mismo. Intenta de nuevo en un momento.",
		}
	}

	s.recordEvent(tenant, sid, "checkout_link", map[string]interface{}{
		"plan":     plan.ID,
		"price_id": plan.PriceID,
	})
	return &turn{
		sessionID: sid,
		reply:     "¡Perfecto! Aquí tienes el enlace para completar tu compra de " + plan.Name + ":",
		ui:        &UIHint{CheckoutURL: url, Label: "Pagar " + plan.Name},
	}
}

// saveLead persists a finished capture off the request path and records the
// new id back onto the session for later slot patches.
func (s *ChatService) saveLead(tenant *entities.Tenant, sid string, captured entities.ContactFlow) {
	lead := &entities.Lead{
		TenantSlug: tenantSlug(tenant),
		SessionID:  sid,
		Name:       captured.Name,
		Method:     captured.Method,
		Contact:    captured.Contact,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if s.leads == nil {
			return
		}
		id, err := s.leads.Insert(ctx, lead)
		if err != nil {
			log.Error().Err(err).Str("session", sid).Msg("lead insert failed")
			return
		}
		s.store.SetLastLead(ctx, sid, id)
		s.recordEvent(tenant, sid, "lead_saved", map[string]interface{}{
			"lead_id": id,
			"method":  lead.Method,
		})
		log.Info().Int64("lead", id).Str("method", lead.Method).Str("session", sid).Msg("lead saved")
	}()
}

func (s *ChatService) patchSlot(ctx context.Context, tenant *entities.Tenant, sid, slot string) {
	if s.leads == nil {
		return
	}
	leadID := s.store.LastLead(ctx, sid)
	if leadID == 0 {
		log.Warn().Str("session", sid).Msg("slot answer with no lead to patch")
		return
	}
	if err := s.leads.PatchMeta(ctx, leadID, map[string]interface{}{"preferred_slot": slot}); err != nil {
		log.Error().Err(err).Int64("lead", leadID).Msg("slot patch failed")
		return
	}
	s.recordEvent(tenant, sid, "slot_set", map[string]interface{}{"lead_id": leadID, "slot": slot})
}

// llmMessages builds the model prompt: tenant system prompt plus a bounded
// tail of the transcript (the just-appended user message included).
func (s *ChatService) llmMessages(ctx context.Context, tenant *entities.Tenant, sid string) []interfaces.ChatMessage {
	system := "Eres un asistente amable y conciso. Responde en el idioma del usuario."
	if tenant != nil && tenant.Settings.SystemPrompt != "" {
		system = tenant.Settings.SystemPrompt
	}
	msgs := []interfaces.ChatMessage{{Role: entities.RoleSystem, Content: system}}
	for _, m := range s.store.History(ctx, sid, s.cfg.HistoryPairs) {
		msgs = append(msgs, interfaces.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return msgs
}

// ProcessTurn is the blocking variant backing POST /v1/chat and the relay
// channels (Twilio, Meta DMs).
func (s *ChatService) ProcessTurn(ctx context.Context, tenant *entities.Tenant, sessionID, text string) (string, string, *UIHint, error) {
	return s.processOn(ctx, tenant, sessionID, text, entities.ChannelWidget)
}

// ProcessRelayTurn runs the same pipeline for an external channel (Twilio
// WhatsApp, Meta DM); persisted rows carry that channel.
func (s *ChatService) ProcessRelayTurn(ctx context.Context, tenant *entities.Tenant, sessionID, text, channel string) (string, string, *UIHint, error) {
	return s.processOn(ctx, tenant, sessionID, text, channel)
}

func (s *ChatService) processOn(ctx context.Context, tenant *entities.Tenant, sessionID, text, channel string) (string, string, *UIHint, error) {
	t := s.prepare(ctx, tenant, sessionID, text, channel)
	if t.reply != "" {
		s.finishTurn(ctx, tenant, t.sessionID, t.reply, 0, channel)
		return t.sessionID, t.reply, t.ui, nil
	}

	reply, err := s.generate(ctx, t.llmMsgs)
	if err != nil {
		return t.sessionID, "", nil, err
	}
	s.finishTurn(ctx, tenant, t.sessionID, reply, promptTokens(t.llmMsgs), channel)
	return t.sessionID, reply, t.ui, nil
}

// StreamTurn is the SSE variant. Scripted replies go out as a single delta;
// LLM replies stream token by token with the client context polled between
// tokens. On disconnect the partial reply is persisted and no done frame is
// emitted.
func (s *ChatService) StreamTurn(ctx context.Context, tenant *entities.Tenant, sessionID, text string, em Emitter) {
	t := s.prepare(ctx, tenant, sessionID, text, entities.ChannelWidget)

	if t.reply != "" {
		em.Delta(0, t.reply)
		if t.ui != nil {
			em.UI(t.ui)
		}
		s.finishTurn(ctx, tenant, t.sessionID, t.reply, 0, entities.ChannelWidget)
		em.Done(t.sessionID)
		return
	}

	stream, err := s.ai.Stream(ctx, t.llmMsgs)
	if err != nil {
		// One retry before giving up, same policy as the blocking path.
		stream, err = s.ai.Stream(ctx, t.llmMsgs)
	}
	if err != nil {
		log.Error().Err(err).Str("session", t.sessionID).Msg("llm stream failed")
		em.Error("model unavailable")
		return
	}
	defer stream.Close()

	var full string
	i := 0
	for {
		select {
		case <-ctx.Done():
			// Client went away mid-stream: keep what was generated,
			// skip the done frame.
			s.finishTurn(context.Background(), tenant, t.sessionID, full, promptTokens(t.llmMsgs), entities.ChannelWidget)
			return
		default:
		}

		piece, recvErr := stream.Recv()
		if recvErr == io.EOF {
			break
		}
		if recvErr != nil {
			if errors.Is(recvErr, context.Canceled) {
				s.finishTurn(context.Background(), tenant, t.sessionID, full, promptTokens(t.llmMsgs), entities.ChannelWidget)
				return
			}
			log.Error().Err(recvErr).Str("session", t.sessionID).Msg("llm stream broke")
			if full != "" {
				s.finishTurn(ctx, tenant, t.sessionID, full, promptTokens(t.llmMsgs), entities.ChannelWidget)
			}
			em.Error("stream interrupted")
			return
		}
		if piece == "" {
			continue
		}
		em.Delta(i, piece)
		full += piece
		i++
	}

	s.finishTurn(ctx, tenant, t.sessionID, full, promptTokens(t.llmMsgs), entities.ChannelWidget)
	em.Done(t.sessionID)
}

func (s *ChatService) generate(ctx context.Context, msgs []interfaces.ChatMessage) (string, error) {
	reply, err := s.ai.Generate(ctx, msgs)
	if err != nil {
		log.Warn().Err(err).Msg("llm call failed, retrying once")
		reply, err = s.ai.Generate(ctx, msgs)
	}
	return reply, err
}

// finishTurn appends the assistant reply to the session, mirrors it into the
// messages table and meters usage. promptToks of 0 means a scripted reply,
// which is not metered.
func (s *ChatService) finishTurn(ctx context.Context, tenant *entities.Tenant, sid, reply string, promptToks int, channel string) {
	if reply == "" {
		return
	}
	s.store.Append(ctx, sid, entities.RoleAssistant, reply)
	s.persistMessage(tenant, sid, channel, entities.DirectionOut, entities.RoleAssistant, reply)

	if promptToks > 0 && s.usage != nil {
		if err := s.usage.Insert(ctx, sid, s.cfg.OpenAIModel, promptToks, RoughTokenCount(reply)); err != nil {
			log.Error().Err(err).Str("session", sid).Msg("usage insert failed")
		}
	}
}

func promptTokens(msgs []interfaces.ChatMessage) int {
	total := 0
	for _, m := range msgs {
		total += RoughTokenCount(m.Content)
	}
	return total
}

// Usage returns the per-session aggregate with the configured prices applied.
func (s *ChatService) Usage(ctx context.Context, sid string) (*repository.UsageSummary, error) {
	if s.usage == nil {
		return &repository.UsageSummary{SessionID: sid}, nil
	}
	sum, err := s.usage.Summarize(ctx, sid)
	if err != nil {
		return nil, err
	}
	sum.EstimatedCostUSD = float64(sum.PromptTokens)/1000*s.cfg.PriceInPer1K +
		float64(sum.CompletionTokens)/1000*s.cfg.PriceOutPer1K
	return sum, nil
}

// SessionMessages returns the transcript for the session endpoint. Sessions
// that aged out of the store (or relay sessions on another instance) fall back
// to the persisted rows.
func (s *ChatService) SessionMessages(ctx context.Context, sid string) ([]entities.Message, bool) {
	if msgs, ok := s.store.Messages(ctx, sid); ok {
		return msgs, true
	}
	if s.messages == nil {
		return nil, false
	}
	stored, err := s.messages.ListBySession(ctx, sid, 0)
	if err != nil {
		log.Error().Err(err).Str("session", sid).Msg("stored transcript read failed")
		return nil, false
	}
	if len(stored) == 0 {
		return nil, false
	}
	return transcriptFromStored(stored), true
}

// transcriptFromStored projects persisted message rows onto the live
// transcript shape.
func transcriptFromStored(stored []entities.StoredMessage) []entities.Message {
	msgs := make([]entities.Message, 0, len(stored))
	for _, m := range stored {
		msgs = append(msgs, entities.Message{Role: m.Author, Content: m.Content, TS: m.TS})
	}
	return msgs
}

func (s *ChatService) persistMessage(tenant *entities.Tenant, sid, channel, direction, author, content string) {
	if s.messages == nil {
		return
	}
	m := &entities.StoredMessage{
		TenantSlug: tenantSlug(tenant),
		SessionID:  sid,
		Channel:    channel,
		Direction:  direction,
		Author:     author,
		Content:    content,
		Payload:    json.RawMessage(`{}`),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.messages.Insert(ctx, m); err != nil {
			log.Error().Err(err).Str("session", sid).Msg("message insert failed")
		}
	}()
}

func (s *ChatService) recordEvent(tenant *entities.Tenant, sid, eventType string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.events.Insert(ctx, tenantSlug(tenant), sid, eventType, payload); err != nil {
			log.Error().Err(err).Str("type", eventType).Msg("event insert failed")
		}
	}()
}
