package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"zia_backend/internal/entities"
	"zia_backend/internal/interfaces"
	"zia_backend/internal/repository"
	"zia_backend/internal/usecases"
)

type WebhookHandler struct {
	metaVerifyToken     string
	stripeWebhookSecret string

	metaService *usecases.MetaService
	chatService *usecases.ChatService
	tenantRepo  *repository.TenantRepository
	eventRepo   *repository.EventRepository
	whatsapp    interfaces.Messenger // twilio outbound
}

func NewWebhookHandler(
	metaVerifyToken, stripeWebhookSecret string,
	metaService *usecases.MetaService,
	chatService *usecases.ChatService,
	tenantRepo *repository.TenantRepository,
	eventRepo *repository.EventRepository,
	whatsapp interfaces.Messenger,
) *WebhookHandler {
	return &WebhookHandler{
		metaVerifyToken:     metaVerifyToken,
		stripeWebhookSecret: stripeWebhookSecret,
		metaService:         metaService,
		chatService:         chatService,
		tenantRepo:          tenantRepo,
		eventRepo:           eventRepo,
		whatsapp:            whatsapp,
	}
}

// MetaVerify answers Meta's subscription handshake: echo the challenge when
// the verify token matches, 403 otherwise.
func (h *WebhookHandler) MetaVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.metaVerifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "verification failed"})
}

// MetaReceive accepts a webhook delivery. Always 200 on parseable payloads;
// per-item errors are logged inside the service.
func (h *WebhookHandler) MetaReceive(c *gin.Context) {
	var payload usecases.MetaWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}
	h.metaService.Process(c.Request.Context(), payload)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// TwilioWhatsApp handles an inbound WhatsApp message: run the chat pipeline
// blocking, reply through the REST API, answer Twilio with empty TwiML.
func (h *WebhookHandler) TwilioWhatsApp(c *gin.Context) {
	from := c.PostForm("From") // "whatsapp:+521..."
	to := c.PostForm("To")
	body := strings.TrimSpace(c.PostForm("Body"))

	if from == "" || body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing From or Body"})
		return
	}

	var tenant *entities.Tenant
	if h.tenantRepo != nil && to != "" {
		t, err := h.tenantRepo.GetByWhatsApp(c.Request.Context(), strings.TrimPrefix(to, "whatsapp:"))
		if err != nil {
			log.Error().Err(err).Str("to", to).Msg("tenant lookup by whatsapp failed")
		} else {
			tenant = t
		}
	}

	sid := "wa_" + digitsOnly(from)
	_, reply, _, err := h.chatService.ProcessRelayTurn(c.Request.Context(), tenant, sid, body, entities.ChannelWhatsApp)
	if err != nil {
		log.Error().Err(err).Str("from", from).Msg("whatsapp turn failed")
	} else if reply != "" && h.whatsapp != nil {
		if err := h.whatsapp.SendMessage(c.Request.Context(), from, reply); err != nil {
			log.Error().Err(err).Str("to", from).Msg("whatsapp send failed")
		}
	}

	c.Data(http.StatusOK, "text/xml", []byte(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`))
}

// Stripe verifies the event signature and records completed checkouts.
func (h *WebhookHandler) Stripe(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read failed"})
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.stripeWebhookSecret)
	if err != nil {
		log.Warn().Err(err).Msg("stripe signature rejected")
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
		return
	}

	if event.Type == "checkout.session.completed" {
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			log.Error().Err(err).Msg("checkout session decode failed")
		} else {
			tenantSlug := sess.Metadata["tenant_slug"]
			if h.eventRepo != nil {
				if err := h.eventRepo.Insert(c.Request.Context(), tenantSlug, sess.ClientReferenceID, "purchase", map[string]interface{}{
					"checkout_session": sess.ID,
					"amount_total":     sess.AmountTotal,
					"currency":         sess.Currency,
				}); err != nil {
					log.Error().Err(err).Str("session", sess.ClientReferenceID).Msg("purchase event insert failed")
				}
			}
			log.Info().Str("tenant", tenantSlug).Str("session", sess.ClientReferenceID).Msg("checkout completed")
		}
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
