package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"zia_backend/internal/config"
	"zia_backend/internal/infrastructure"
	"zia_backend/internal/interfaces"
	httpapi "zia_backend/internal/interfaces/http"
	"zia_backend/internal/repository"
	"zia_backend/internal/usecases"
)

func main() {
	// Load .env file (optional in production)
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_PRETTY") == "true" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg := config.Load()

	// Connect to PostgreSQL. Without a DATABASE_URL the server still runs,
	// with session-only state and the admin surface disabled.
	var (
		tenantRepo  *repository.TenantRepository
		leadRepo    *repository.LeadRepository
		eventRepo   *repository.EventRepository
		messageRepo *repository.MessageRepository
		userRepo    *repository.UserRepository
		usageRepo   *repository.UsageRepository
	)
	if cfg.DatabaseURL != "" {
		pgClient, err := infrastructure.NewPostgresClient(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pgClient.Close()

		tenantRepo = repository.NewTenantRepository(pgClient.Pool)
		leadRepo = repository.NewLeadRepository(pgClient.Pool)
		eventRepo = repository.NewEventRepository(pgClient.Pool)
		messageRepo = repository.NewMessageRepository(pgClient.Pool)
		userRepo = repository.NewUserRepository(pgClient.Pool)
		usageRepo = repository.NewUsageRepository(pgClient.Pool)
	} else {
		log.Warn().Msg("DATABASE_URL not set, running without persistence")
	}

	// Session storage: redis when configured, in-process otherwise.
	var driver infrastructure.SessionDriver
	if cfg.RedisURL != "" {
		redisDriver, err := infrastructure.NewRedisSessionDriver(cfg.RedisURL, cfg.SessionMaxAge)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		driver = redisDriver
		log.Info().Msg("session storage: redis")
	} else {
		driver = infrastructure.NewMemorySessionDriver(cfg.SessionMaxAge, cfg.SweepInterval)
		log.Info().Msg("session storage: memory")
	}
	store := infrastructure.NewSessionStore(driver)

	// LLM client
	var ai interfaces.AIClient
	if cfg.UseMock || cfg.OpenAIKey == "" {
		ai = infrastructure.NewMockAIClient()
		log.Warn().Msg("USE_MOCK active, serving canned replies")
	} else {
		ai = infrastructure.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel)
	}

	// Vendor clients, each optional behind its credentials.
	var checkout interfaces.CheckoutProvider
	if cfg.StripeSecretKey != "" {
		checkout = infrastructure.NewStripeClient(cfg.StripeSecretKey, cfg.StripeSuccessURL, cfg.StripeCancelURL)
	}
	var twilioClient interfaces.Messenger
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		twilioClient = infrastructure.NewTwilioClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom)
	}
	metaClient := infrastructure.NewMetaGraphClient(cfg.MetaPageToken)

	chatService := usecases.NewChatService(cfg, store, ai, checkout, leadRepo, eventRepo, messageRepo, usageRepo)

	commentSeen := infrastructure.NewSeenCache(cfg.MetaSeenTTL, cfg.MetaSeenMax)
	dmSeen := infrastructure.NewSeenCache(cfg.MetaSeenTTL, cfg.MetaSeenMax)
	metaService := usecases.NewMetaService(tenantRepo, chatService, metaClient, metaClient, commentSeen, dmSeen, eventRepo)

	var authUsecase *usecases.AuthUsecase
	if userRepo != nil {
		authUsecase = usecases.NewAuthUsecase(userRepo, cfg.JWTSecret)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := authUsecase.EnsureAdmin(ctx, os.Getenv("ROOT_EMAIL"), os.Getenv("ROOT_PASSWORD")); err != nil {
			log.Warn().Err(err).Msg("failed to ensure admin user")
		}
		cancel()
	}

	limiter := infrastructure.NewChatRateLimiter(cfg.RateLimit, cfg.RateWindow)
	middleware := httpapi.NewMiddleware(cfg.JWTSecret, cfg.AdminKey, cfg.AllowedOrigins)

	h := httpapi.NewHandler(chatService, tenantRepo, limiter)
	wh := httpapi.NewWebhookHandler(cfg.MetaVerifyToken, cfg.StripeWebhookSecret,
		metaService, chatService, tenantRepo, eventRepo, twilioClient)
	admin := httpapi.NewAdminHandler(tenantRepo, leadRepo, eventRepo, userRepo)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	httpapi.SetupRoutes(r, h, wh, admin, authUsecase, middleware)

	log.Info().Str("port", cfg.Port).Msg("listening")
	if err := r.Run("0.0.0.0:" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
