package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/google/uuid"

	"github.com/ssimba1203/gather-map-clean/internal/bothandler"
	"github.com/ssimba1203/gather-map-clean/internal/cache"
	"github.com/ssimba1203/gather-map-clean/internal/config"
	"github.com/ssimba1203/gather-map-clean/internal/database"
	"github.com/ssimba1203/gather-map-clean/internal/httpserver"
	"github.com/ssimba1203/gather-map-clean/internal/middleware"
	"github.com/ssimba1203/gather-map-clean/internal/monitoring"
	"github.com/ssimba1203/gather-map-clean/internal/services"
	"github.com/ssimba1203/gather-map-clean/internal/services/geocoding"
	"github.com/ssimba1203/gather-map-clean/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		telemetry.LogFromContext(context.Background()).WithError(err).Fatal("Failed to load configuration")
	}

	if err := telemetry.InitGlobalLogger(&telemetry.LogConfig{
		Level:      telemetry.LogLevel(cfg.LogLevel),
		Format:     cfg.LogFormat,
		Output:     cfg.LogOutput,
		Rotation:   cfg.LogRotation,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
		Service:    cfg.OTelService,
	}); err != nil {
		telemetry.LogFromContext(context.Background()).WithError(err).Fatal("Failed to initialize logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = telemetry.EnsureCorrelationID(ctx)
	logger := telemetry.LogFromContext(ctx).WithField("service", "server")

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	shutdownOTel, err := telemetry.InitializeOpenTelemetry(ctx, &telemetry.Config{
		ServiceName:    cfg.OTelService,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTelEndpoint,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize OpenTelemetry")
	}
	defer shutdownOTel()

	metrics := monitoring.NewMetricsCollector()
	health := monitoring.NewHealthChecker(cfg.OTelService, cfg.Version)

	var redisSvc *cache.RedisService
	if cfg.StoreBackend == config.StoreRedis || cfg.SearchCacheTTL > 0 {
		redisSvc, err = cache.NewRedisService(ctx, cache.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		})
		switch {
		case err == nil:
			defer redisSvc.Close()
			health.RegisterRedisCheck("redis", redisSvc)
		case cfg.StoreBackend == config.StoreRedis:
			logger.WithField("addr", cfg.RedisAddr()).WithError(err).Fatal("Failed to connect to Redis")
		default:
			logger.WithField("addr", cfg.RedisAddr()).WithError(err).Warn("Redis unavailable, search cache disabled")
		}
	}

	store, closeStore := buildStore(ctx, cfg, redisSvc, metrics, health)
	defer closeStore()

	searcher := buildSearcher(ctx, cfg, health)
	if redisSvc != nil && cfg.SearchCacheTTL > 0 {
		searcher = cache.NewCachedSearcher(searcher, redisSvc, cfg.SearchCacheTTL)
	}

	svc := services.NewGatheringService(store, searcher, services.GatheringOptions{
		DefaultCenter: database.LatLng{Lat: cfg.DefaultLat, Lng: cfg.DefaultLng},
		SearchRadius:  cfg.PlaceSearchRadius,
		ResultLimit:   cfg.PlaceResultLimit,
		Metrics:       metrics,
	})

	opts := []httpserver.Option{
		httpserver.WithMonitoring(monitoring.NewMonitoringMiddleware(nil, metrics, health)),
	}

	if cfg.TelegramBotToken != "" {
		webhook := startBot(ctx, cfg, svc, metrics, health)
		if webhook != nil {
			opts = append(opts, httpserver.WithWebhook(webhook.HandleWebhook))
		}
	}

	server := httpserver.New(httpserver.Config{
		Addr:              cfg.HTTPAddr,
		ServiceName:       cfg.OTelService,
		KakaoJSKey:        cfg.KakaoJSKey,
		SessionTTL:        cfg.SessionTTL,
		SecureCookie:      !cfg.IsDevelopment(),
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	}, svc, opts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("HTTP server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	logger.Info("Server exited")
}

// buildStore picks the gathering store named by STORE_BACKEND
func buildStore(ctx context.Context, cfg config.Config, redisSvc *cache.RedisService, metrics *monitoring.MetricsCollector, health *monitoring.HealthChecker) (services.GatheringStore, func()) {
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"service": "server",
		"backend": cfg.StoreBackend,
	})

	switch cfg.StoreBackend {
	case config.StoreRedis:
		logger.Info("Using Redis gathering store")
		return cache.NewGatheringStore(redisSvc, cfg.SessionTTL), func() {}

	case config.StorePostgres:
		db, err := database.NewConnection(ctx, database.Config{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to database")
		}
		if err := db.Migrate(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to migrate database")
		}
		health.RegisterDatabaseCheck("postgres", db.DB)

		repo := database.NewGatheringRepository(db, cfg.SessionTTL)
		go purgeLoop(ctx, repo, time.Hour)
		logger.Info("Using Postgres gathering store")
		return repo, func() { _ = db.Close() }

	default:
		mem := services.NewMemoryStore(cfg.SessionTTL)
		mem.StartCleanupRoutine(ctx, time.Hour)
		metrics.RegisterActiveGatherings(mem.Count)
		logger.Info("Using in-memory gathering store")
		return mem, func() {}
	}
}

func purgeLoop(ctx context.Context, repo *database.GatheringRepository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.PurgeExpired(ctx)
			logger := telemetry.LogFromContext(ctx).WithField("operation", "purge_expired")
			if err != nil {
				logger.WithError(err).Warn("Failed to purge expired gatherings")
				continue
			}
			if n > 0 {
				logger.WithField("purged", n).Info("Purged expired gatherings")
			}
		}
	}
}

// buildSearcher picks the place search backend named by PLACE_BACKEND
func buildSearcher(ctx context.Context, cfg config.Config, health *monitoring.HealthChecker) geocoding.Searcher {
	kakao := geocoding.NewService(cfg.KakaoRESTKey,
		geocoding.WithBaseURL(cfg.KakaoBaseURL),
		geocoding.WithHTTPClient(&http.Client{Timeout: cfg.SearchTimeout}),
	)
	if cfg.PlaceBackend != config.PlacesElastic {
		health.RegisterPingCheck("kakao", kakao.Ping, 2*time.Second)
		return kakao
	}

	logger := telemetry.LogFromContext(ctx).WithField("service", "server")
	client, err := geocoding.NewElasticClient(cfg.ElasticURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Elasticsearch client")
	}
	es := geocoding.NewElasticSearcher(client, cfg.ElasticIndex)
	if err := es.EnsureIndex(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to prepare Elasticsearch index")
	}
	health.RegisterPingCheck("elasticsearch", es.Ping, time.Second)
	logger.WithField("index", cfg.ElasticIndex).Info("Using Elasticsearch place search")
	return es
}

// startBot runs the Telegram front-end. In webhook mode it returns the handler
// to mount on the HTTP server; in polling mode it starts polling and returns nil.
func startBot(ctx context.Context, cfg config.Config, svc *services.GatheringService, metrics *monitoring.MetricsCollector, health *monitoring.HealthChecker) *bothandler.Handler {
	logger := telemetry.LogFromContext(ctx).WithField("service", "telegram")

	b, err := bot.New(cfg.TelegramBotToken)
	if err != nil {
		logger.WithError(err).Error("Failed to create bot, Telegram front-end disabled")
		return nil
	}
	health.RegisterTelegramBotCheck("telegram", b)

	secret := cfg.TelegramWebhookSecret
	if secret == "" {
		// Telegram allows A-Z a-z 0-9 _ - in secret tokens
		secret = uuid.NewString()
	}

	handler := bothandler.NewHandler(b, svc,
		bothandler.WithMetrics(metrics),
		bothandler.WithMiddleware(
			middleware.BotLogging(),
			middleware.BotRateLimit(middleware.NewKeyedRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)),
		),
		bothandler.WithWebhookSecret(secret),
	)

	if cfg.TelegramWebhookURL != "" {
		url := cfg.TelegramWebhookURL + httpserver.WebhookPath
		if _, err := b.SetWebhook(ctx, &bot.SetWebhookParams{URL: url, SecretToken: secret}); err != nil {
			logger.WithError(err).Error("Failed to set webhook")
			return nil
		}
		logger.WithField("url", url).Info("Webhook set")
		return handler
	}

	if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		logger.WithError(err).Warn("Failed to remove webhook")
	}
	handler.RegisterHandlers(b)
	go b.Start(ctx)
	logger.Info("Bot started in polling mode")
	return nil
}
