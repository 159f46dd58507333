package http

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"zia_backend/internal/entities"
	"zia_backend/internal/repository"
)

// AdminHandler is the ops surface behind the X-Admin-Key gate: tenant CRUD,
// lead browsing/export and rollup stats.
type AdminHandler struct {
	tenantRepo *repository.TenantRepository
	leadRepo   *repository.LeadRepository
	eventRepo  *repository.EventRepository
	userRepo   *repository.UserRepository
}

func NewAdminHandler(
	tenantRepo *repository.TenantRepository,
	leadRepo *repository.LeadRepository,
	eventRepo *repository.EventRepository,
	userRepo *repository.UserRepository,
) *AdminHandler {
	return &AdminHandler{
		tenantRepo: tenantRepo,
		leadRepo:   leadRepo,
		eventRepo:  eventRepo,
		userRepo:   userRepo,
	}
}

func (h *AdminHandler) dbReady(c *gin.Context) bool {
	if h.tenantRepo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
		return false
	}
	return true
}

func (h *AdminHandler) ListTenants(c *gin.Context) {
	if !h.dbReady(c) {
		return
	}
	tenants, err := h.tenantRepo.GetAll(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("tenant list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenants": tenants})
}

func (h *AdminHandler) GetTenant(c *gin.Context) {
	if !h.dbReady(c) {
		return
	}
	slug := c.Param("slug")
	tenant, err := h.tenantRepo.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		log.Error().Err(err).Str("tenant", slug).Msg("tenant get failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	if tenant == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tenant"})
		return
	}
	c.JSON(http.StatusOK, tenant)
}

// TenantSettingsRaw returns the stored settings blob verbatim, unknown keys
// included, for ops inspection.
func (h *AdminHandler) TenantSettingsRaw(c *gin.Context) {
	if !h.dbReady(c) {
		return
	}
	slug := c.Param("slug")
	raw, err := h.tenantRepo.RawSettings(c.Request.Context(), slug)
	if err != nil {
		log.Error().Err(err).Str("tenant", slug).Msg("settings read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	if raw == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tenant"})
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

type tenantRequest struct {
	Slug     string                  `json:"slug"`
	Name     string                  `json:"name"`
	WhatsApp string                  `json:"whatsapp"`
	Settings entities.TenantSettings `json:"settings"`
}

func (h *AdminHandler) CreateTenant(c *gin.Context) {
	if !h.dbReady(c) {
		return
	}
	var req tenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !ValidSlug(req.Slug) || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slug and name are required"})
		return
	}

	tenant := &entities.Tenant{
		Slug:     req.Slug,
		Name:     req.Name,
		WhatsApp: req.WhatsApp,
		Settings: req.Settings,
	}
	if err := h.tenantRepo.Create(c.Request.Context(), tenant); err != nil {
		log.Error().Err(err).Str("tenant", req.Slug).Msg("tenant create failed")
		c.JSON(http.StatusConflict, gin.H{"error": "tenant exists or invalid"})
		return
	}
	c.JSON(http.StatusCreated, tenant)
}

func (h *AdminHandler) UpdateTenant(c *gin.Context) {
	if !h.dbReady(c) {
		return
	}
	slug := c.Param("slug")
	existing, err := h.tenantRepo.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		log.Error().Err(err).Str("tenant", slug).Msg("tenant get failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	if existing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tenant"})
		return
	}

	var req tenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	existing.Name = req.Name
	existing.WhatsApp = req.WhatsApp
	existing.Settings = req.Settings
	if err := h.tenantRepo.Update(c.Request.Context(), existing); err != nil {
		log.Error().Err(err).Str("tenant", slug).Msg("tenant update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, existing)
}

func (h *AdminHandler) DeleteTenant(c *gin.Context) {
	if !h.dbReady(c) {
		return
	}
	slug := c.Param("slug")
	if err := h.tenantRepo.Delete(c.Request.Context(), slug); err != nil {
		log.Error().Err(err).Str("tenant", slug).Msg("tenant delete failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *AdminHandler) ListLeads(c *gin.Context) {
	if !h.dbReady(c) {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	leads, err := h.leadRepo.ListByTenant(c.Request.Context(), c.Query("tenant"), limit)
	if err != nil {
		log.Error().Err(err).Msg("lead list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": leads})
}

// ExportLeadsCSV streams the lead table as a CSV download.
func (h *AdminHandler) ExportLeadsCSV(c *gin.Context) {
	if !h.dbReady(c) {
		return
	}
	leads, err := h.leadRepo.ListByTenant(c.Request.Context(), c.Query("tenant"), 10000)
	if err != nil {
		log.Error().Err(err).Msg("lead export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="leads.csv"`)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"id", "tenant", "session", "name", "method", "contact", "meta", "created_at"})
	for _, l := range leads {
		_ = w.Write([]string{
			strconv.FormatInt(l.ID, 10),
			l.TenantSlug,
			l.SessionID,
			l.Name,
			l.Method,
			l.Contact,
			string(l.Meta),
			l.CreatedAt.Format(time.RFC3339),
		})
	}
	w.Flush()
}

func (h *AdminHandler) ListEvents(c *gin.Context) {
	if !h.dbReady(c) {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	events, err := h.eventRepo.ListByTenant(c.Request.Context(), c.Query("tenant"), limit)
	if err != nil {
		log.Error().Err(err).Msg("event list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// tokenTenant reads the tenant claim AuthRequired stored on the context.
func tokenTenant(c *gin.Context) (string, bool) {
	v, ok := c.Get("tenant")
	if !ok {
		return "", false
	}
	slug, ok := v.(string)
	return slug, ok && slug != ""
}

// DashboardLeads lists the authenticated tenant's leads. Unlike the admin
// listing, the scope comes from the token, never from a query param.
func (h *AdminHandler) DashboardLeads(c *gin.Context) {
	if !h.dbReady(c) {
		return
	}
	tenant, ok := tokenTenant(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "no tenant on this account"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	leads, err := h.leadRepo.ListByTenant(c.Request.Context(), tenant, limit)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenant).Msg("lead list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": tenant, "leads": leads})
}

// DashboardEvents lists the authenticated tenant's events.
func (h *AdminHandler) DashboardEvents(c *gin.Context) {
	if !h.dbReady(c) {
		return
	}
	tenant, ok := tokenTenant(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "no tenant on this account"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	events, err := h.eventRepo.ListByTenant(c.Request.Context(), tenant, limit)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenant).Msg("event list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": tenant, "events": events})
}

func (h *AdminHandler) Stats(c *gin.Context) {
	if !h.dbReady(c) {
		return
	}
	ctx := c.Request.Context()
	now := time.Now()

	tenants, err := h.tenantRepo.Count(ctx)
	if err != nil {
		log.Error().Err(err).Msg("stats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	leads7d, _ := h.leadRepo.CountSince(ctx, now.AddDate(0, 0, -7))
	leads30d, _ := h.leadRepo.CountSince(ctx, now.AddDate(0, 0, -30))
	users, _ := h.userRepo.Count(ctx)

	c.JSON(http.StatusOK, gin.H{
		"tenants":   tenants,
		"leads_7d":  leads7d,
		"leads_30d": leads30d,
		"users":     users,
	})
}
