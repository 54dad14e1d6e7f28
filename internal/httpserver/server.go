package httpserver

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ssimba1203/gather-map-clean/internal/interfaces"
	"github.com/ssimba1203/gather-map-clean/internal/middleware"
	"github.com/ssimba1203/gather-map-clean/internal/monitoring"
	"github.com/ssimba1203/gather-map-clean/internal/telemetry"
)

//go:embed templates/*.html
var templatesFS embed.FS

// WebhookPath receives Telegram updates in webhook mode
const WebhookPath = "/telegram/webhook"

// Config holds the HTTP front-end settings
type Config struct {
	Addr              string
	ServiceName       string
	KakaoJSKey        string
	SessionTTL        time.Duration
	SecureCookie      bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	Logging           *middleware.LoggingConfig
}

// Option customises a Server
type Option func(*Server)

// WithMonitoring mounts metrics and health endpoints
func WithMonitoring(mm *monitoring.MonitoringMiddleware) Option {
	return func(s *Server) { s.monitoring = mm }
}

// WithWebhook mounts a Telegram webhook handler at WebhookPath
func WithWebhook(h gin.HandlerFunc) Option {
	return func(s *Server) { s.webhook = h }
}

// Server is the gin HTTP front-end over a GatheringService
type Server struct {
	cfg        Config
	router     *gin.Engine
	srv        *http.Server
	handler    *Handler
	monitoring *monitoring.MonitoringMiddleware
	webhook    gin.HandlerFunc
}

// New builds the router: tracing, request logging, error rendering and
// metrics apply to every route; the page and the API also get the
// gathering session cookie, and the API is rate limited per client IP.
func New(cfg Config, svc interfaces.GatheringServiceInterface, opts ...Option) *Server {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "gathermap"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = 30
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}

	s := &Server{
		cfg:     cfg,
		handler: NewHandler(svc, cfg.KakaoJSKey),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("").ParseFS(templatesFS, "templates/*.html")))
	r.Use(
		otelgin.Middleware(cfg.ServiceName),
		middleware.LoggingMiddleware(cfg.Logging),
		middleware.ErrorHandler(),
	)
	if s.monitoring != nil {
		r.Use(s.monitoring.GinMiddleware())
		s.monitoring.RegisterRoutes(r)
	}
	if s.webhook != nil {
		r.POST(WebhookPath, s.webhook)
	}

	session := middleware.GatheringSession(cfg.SessionTTL, cfg.SecureCookie)
	r.GET("/", session, s.handler.Index)

	api := r.Group("/api", session, middleware.RateLimit(middleware.NewKeyedRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)))
	{
		api.GET("/config", s.handler.Config)
		api.GET("/gathering", s.handler.GetGathering)
		api.POST("/gathering/origin", s.handler.SetOrigin)
		api.POST("/gathering/friends", s.handler.AddFriend)
		api.DELETE("/gathering/friends/:id", s.handler.RemoveFriend)
		api.PUT("/gathering/category", s.handler.SelectCategory)
		api.POST("/gathering/reset", s.handler.Reset)
	}

	r.NoRoute(s.handler.NotFound)

	s.router = r
	return s
}

// Router exposes the gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	telemetry.LogFromContext(context.Background()).WithFields(map[string]interface{}{
		"addr":    s.cfg.Addr,
		"service": "httpserver",
	}).Info("Starting HTTP server")

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
