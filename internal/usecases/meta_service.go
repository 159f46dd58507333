package usecases

import (
	"context"

	"github.com/rs/zerolog/log"

	"zia_backend/internal/entities"
	"zia_backend/internal/infrastructure"
	"zia_backend/internal/interfaces"
	"zia_backend/internal/repository"
)

// Meta Graph webhook payload, pared down to the fields we react to.
type MetaWebhookPayload struct {
	Object string             `json:"object"`
	Entry  []MetaWebhookEntry `json:"entry"`
}

type MetaWebhookEntry struct {
	ID        string                 `json:"id"` // page id
	Time      int64                  `json:"time"`
	Changes   []MetaWebhookChange    `json:"changes"`
	Messaging []MetaWebhookMessaging `json:"messaging"`
}

type MetaWebhookChange struct {
	Field string               `json:"field"`
	Value MetaWebhookChangeVal `json:"value"`
}

type MetaWebhookChangeVal struct {
	Item      string   `json:"item"`
	Verb      string   `json:"verb"`
	CommentID string   `json:"comment_id"`
	PostID    string   `json:"post_id"`
	Message   string   `json:"message"`
	From      MetaUser `json:"from"`
}

type MetaUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MetaWebhookMessaging struct {
	Sender    MetaUser           `json:"sender"`
	Recipient MetaUser           `json:"recipient"`
	Message   MetaWebhookMessage `json:"message"`
}

type MetaWebhookMessage struct {
	MID    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo"`
}

// MetaService turns Graph webhook deliveries into comment auto-replies and
// DM conversations. Deliveries retry, so every actionable item passes a
// seen-cache gate before any outbound call.
type MetaService struct {
	tenants   *repository.TenantRepository
	chat      *ChatService
	replier   interfaces.CommentReplier
	messenger interfaces.Messenger
	comments  *infrastructure.SeenCache
	dms       *infrastructure.SeenCache
	events    *repository.EventRepository
}

func NewMetaService(
	tenants *repository.TenantRepository,
	chat *ChatService,
	replier interfaces.CommentReplier,
	messenger interfaces.Messenger,
	comments, dms *infrastructure.SeenCache,
	events *repository.EventRepository,
) *MetaService {
	return &MetaService{
		tenants:   tenants,
		chat:      chat,
		replier:   replier,
		messenger: messenger,
		comments:  comments,
		dms:       dms,
		events:    events,
	}
}

// Process walks one webhook delivery. Per-item failures are logged and
// swallowed; the delivery as a whole always succeeds so Meta stops retrying.
func (s *MetaService) Process(ctx context.Context, payload MetaWebhookPayload) {
	for _, entry := range payload.Entry {
		tenant := s.tenantForPage(ctx, entry.ID)
		for _, change := range entry.Changes {
			s.handleComment(ctx, tenant, payload.Object, entry.ID, change)
		}
		for _, m := range entry.Messaging {
			s.handleDM(ctx, tenant, payload.Object, entry.ID, m)
		}
	}
}

func (s *MetaService) tenantForPage(ctx context.Context, pageID string) *entities.Tenant {
	if s.tenants == nil || pageID == "" {
		return nil
	}
	tenant, err := s.tenants.GetByPageID(ctx, pageID)
	if err != nil {
		log.Error().Err(err).Str("page", pageID).Msg("tenant lookup by page failed")
		return nil
	}
	return tenant
}

func (s *MetaService) handleComment(ctx context.Context, tenant *entities.Tenant, object, pageID string, change MetaWebhookChange) {
	v := change.Value
	if change.Field != "feed" || v.Item != "comment" || v.Verb != "add" || v.CommentID == "" {
		return
	}
	if v.From.ID == pageID {
		return // our own reply echoing back
	}
	// The key is the full event coordinate, so the same id on another page
	// is a distinct event.
	if s.comments.Seen(infrastructure.SeenKey(object, pageID, change.Field, v.Verb, v.CommentID)) {
		return
	}

	reply := "¡Gracias por tu comentario! Te escribimos por mensaje directo. 📩"
	if tenant != nil && tenant.Settings.CommentAutoReply != "" {
		reply = tenant.Settings.CommentAutoReply
	}
	if err := s.replier.ReplyToComment(ctx, v.CommentID, reply); err != nil {
		log.Error().Err(err).Str("comment", v.CommentID).Msg("comment reply failed")
		return
	}

	s.record(ctx, tenant, "", "meta_comment_replied", map[string]interface{}{
		"comment_id": v.CommentID,
		"post_id":    v.PostID,
	})
	log.Info().Str("comment", v.CommentID).Str("page", pageID).Msg("comment auto-replied")
}

func (s *MetaService) handleDM(ctx context.Context, tenant *entities.Tenant, object, pageID string, m MetaWebhookMessaging) {
	msg := m.Message
	if msg.IsEcho || msg.Text == "" || m.Sender.ID == "" || m.Sender.ID == pageID {
		return
	}
	if msg.MID != "" && s.dms.Seen(infrastructure.SeenKey(object, pageID, "messaging", "message", msg.MID)) {
		return
	}

	sid := "meta_" + m.Sender.ID
	_, reply, _, err := s.chat.ProcessRelayTurn(ctx, tenant, sid, msg.Text, entities.ChannelMeta)
	if err != nil {
		log.Error().Err(err).Str("sender", m.Sender.ID).Msg("dm turn failed")
		return
	}
	if reply == "" {
		return
	}
	if err := s.messenger.SendMessage(ctx, m.Sender.ID, reply); err != nil {
		log.Error().Err(err).Str("sender", m.Sender.ID).Msg("dm send failed")
		return
	}

	s.record(ctx, tenant, sid, "meta_dm_replied", map[string]interface{}{"mid": msg.MID})
}

func (s *MetaService) record(ctx context.Context, tenant *entities.Tenant, sid, eventType string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Insert(ctx, tenantSlug(tenant), sid, eventType, payload); err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("event insert failed")
	}
}
