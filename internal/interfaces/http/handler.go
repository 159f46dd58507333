package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"

	"zia_backend/internal/entities"
	"zia_backend/internal/infrastructure"
	"zia_backend/internal/repository"
	"zia_backend/internal/usecases"
)

type Handler struct {
	chatService *usecases.ChatService
	tenantRepo  *repository.TenantRepository
	limiter     *infrastructure.ChatRateLimiter
}

func NewHandler(chatService *usecases.ChatService, tenantRepo *repository.TenantRepository, limiter *infrastructure.ChatRateLimiter) *Handler {
	return &Handler{
		chatService: chatService,
		tenantRepo:  tenantRepo,
		limiter:     limiter,
	}
}

type chatRequest struct {
	Tenant    string `json:"tenant"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// bindChat validates the request body shared by the blocking and streaming
// chat endpoints. A nil tenant with ok=true means no tenant was named.
func (h *Handler) bindChat(c *gin.Context) (*chatRequest, *entities.Tenant, bool) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return nil, nil, false
	}
	req.Message = SanitizeString(TruncateString(req.Message, MaxMessageLength))
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return nil, nil, false
	}
	if !ValidSessionID(req.SessionID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sessionId"})
		return nil, nil, false
	}

	key := req.SessionID
	if key == "" {
		key = c.ClientIP()
	}
	if !h.limiter.Allow(key) {
		c.Header("Retry-After", strconv.Itoa(int(h.limiter.RetryAfter().Seconds())))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many messages, slow down"})
		return nil, nil, false
	}

	var tenant *entities.Tenant
	if req.Tenant != "" {
		if !ValidSlug(req.Tenant) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant"})
			return nil, nil, false
		}
		if h.tenantRepo != nil {
			t, err := h.tenantRepo.GetBySlug(c.Request.Context(), req.Tenant)
			if err != nil {
				log.Error().Err(err).Str("tenant", req.Tenant).Msg("tenant lookup failed")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
				return nil, nil, false
			}
			if t == nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown tenant"})
				return nil, nil, false
			}
			tenant = t
		}
	}
	return &req, tenant, true
}

// Chat is the blocking variant: whole reply in one JSON response.
func (h *Handler) Chat(c *gin.Context) {
	req, tenant, ok := h.bindChat(c)
	if !ok {
		return
	}

	sid, reply, ui, err := h.chatService.ProcessTurn(c.Request.Context(), tenant, req.SessionID, req.Message)
	if err != nil {
		log.Error().Err(err).Str("session", sid).Msg("chat turn failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "model unavailable", "sessionId": sid})
		return
	}

	resp := gin.H{"sessionId": sid, "answer": reply}
	if ui != nil {
		resp["ui"] = ui
	}
	c.JSON(http.StatusOK, resp)
}

// ChatStream is the SSE variant used by the widget.
func (h *Handler) ChatStream(c *gin.Context) {
	req, tenant, ok := h.bindChat(c)
	if !ok {
		return
	}

	sse, err := NewSSEWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}
	sse.Ping()

	h.chatService.StreamTurn(c.Request.Context(), tenant, req.SessionID, req.Message, sse)
}

// SessionMessages returns the live transcript of a session.
func (h *Handler) SessionMessages(c *gin.Context) {
	sid := c.Param("sid")
	msgs, ok := h.chatService.SessionMessages(c.Request.Context(), sid)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sid, "messages": msgs})
}

// Usage returns the per-session token aggregate with estimated cost.
func (h *Handler) Usage(c *gin.Context) {
	sid := c.Param("sid")
	sum, err := h.chatService.Usage(c.Request.Context(), sid)
	if err != nil {
		log.Error().Err(err).Str("session", sid).Msg("usage summary failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// WhatsAppQR renders the tenant's wa.me link as a PNG QR code.
func (h *Handler) WhatsAppQR(c *gin.Context) {
	slug := c.Param("slug")
	if !ValidSlug(slug) || h.tenantRepo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tenant"})
		return
	}
	tenant, err := h.tenantRepo.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		log.Error().Err(err).Str("tenant", slug).Msg("tenant lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	if tenant == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tenant"})
		return
	}
	link := waDeepLink(tenant.WhatsAppNumber())
	if link == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant has no WhatsApp number"})
		return
	}

	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "QR generation failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// waDeepLink builds the wa.me URL from a stored number, which may carry
// formatting ("+52 1 555 ..."). Empty when no digits remain.
func waDeepLink(number string) string {
	digits := digitsOnly(number)
	if digits == "" {
		return ""
	}
	return "https://wa.me/" + digits
}

func SetupRoutes(
	r *gin.Engine,
	h *Handler,
	wh *WebhookHandler,
	admin *AdminHandler,
	auth *usecases.AuthUsecase,
	middleware *Middleware,
) {
	// Apply Security Middleware
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(1 << 20)) // 1MB max request size
	r.Use(middleware.CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	v1 := r.Group("/v1")
	{
		v1.POST("/chat", h.Chat)
		v1.POST("/chat/stream", h.ChatStream)
		v1.GET("/sessions/:sid/messages", h.SessionMessages)
		v1.GET("/usage/:sid", h.Usage)
		v1.GET("/tenants/:slug/whatsapp/qr", h.WhatsAppQR)
	}

	// Webhooks are public; each verifies its own caller.
	v1.GET("/meta/webhook", wh.MetaVerify)
	v1.POST("/meta/webhook", wh.MetaReceive)
	v1.POST("/twilio/whatsapp/webhook", wh.TwilioWhatsApp)
	v1.POST("/stripe/webhook", wh.Stripe)

	// Public Auth Routes
	authGroup := v1.Group("/auth")
	authGroup.Use(func(c *gin.Context) {
		if auth == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "auth not configured"})
			return
		}
		c.Next()
	})
	{
		authGroup.POST("/login", func(c *gin.Context) {
			var loginReq struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&loginReq); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			token, err := auth.Login(c.Request.Context(), loginReq.Email, loginReq.Password)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})

		authGroup.POST("/register", func(c *gin.Context) {
			var regReq struct {
				Tenant   string `json:"tenant"`
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&regReq); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			if regReq.Tenant != "" && !ValidSlug(regReq.Tenant) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant"})
				return
			}
			if regReq.Email == "" || len(regReq.Password) < 6 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email or password (min 6 chars)"})
				return
			}
			if err := auth.Register(c.Request.Context(), regReq.Tenant, regReq.Email, regReq.Password); err != nil {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusCreated, gin.H{"status": "registered"})
		})

		authGroup.GET("/me", func(c *gin.Context) {
			header := c.GetHeader("Authorization")
			if header == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				return
			}
			claims, err := auth.VerifyToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"user_id": claims["user_id"],
				"tenant":  claims["tenant"],
				"role":    claims["role"],
			})
		})
	}

	// Tenant dashboard, JWT-gated. Each token only sees its own tenant's data.
	dashboard := v1.Group("/dashboard")
	dashboard.Use(middleware.AuthRequired())
	dashboard.Use(middleware.RateLimitPerUser(rate.Limit(5), 10))
	{
		dashboard.GET("/leads", admin.DashboardLeads)
		dashboard.GET("/events", admin.DashboardEvents)
	}

	// Admin surface, gated by the shared key.
	adminGroup := v1.Group("/admin")
	adminGroup.Use(middleware.AdminKeyRequired())
	{
		adminGroup.GET("/tenants", admin.ListTenants)
		adminGroup.POST("/tenants", admin.CreateTenant)
		adminGroup.GET("/tenants/:slug", admin.GetTenant)
		adminGroup.GET("/tenants/:slug/settings", admin.TenantSettingsRaw)
		adminGroup.PUT("/tenants/:slug", admin.UpdateTenant)
		adminGroup.DELETE("/tenants/:slug", admin.DeleteTenant)

		adminGroup.GET("/leads", admin.ListLeads)
		adminGroup.GET("/leads/export", admin.ExportLeadsCSV)
		adminGroup.GET("/events", admin.ListEvents)
		adminGroup.GET("/stats", admin.Stats)
	}
}
