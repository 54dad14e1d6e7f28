package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Place search backends
const (
	PlacesKakao   = "kakao"
	PlacesElastic = "elastic"
)

const maxPlaceResultLimit = 5

// Config holds runtime settings loaded from env vars.
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"1.0.0"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"json"`
	LogOutput     string `env:"LOG_OUTPUT" envDefault:"stdout"`
	LogRotation   bool   `env:"LOG_ROTATION" envDefault:"false"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"28"`

	KakaoRESTKey string `env:"KAKAO_REST_API_KEY"`
	KakaoJSKey   string `env:"KAKAO_JS_KEY"`
	KakaoBaseURL string `env:"KAKAO_BASE_URL" envDefault:"https://dapi.kakao.com"`

	DefaultLat        float64       `env:"DEFAULT_LAT" envDefault:"37.5665"`
	DefaultLng        float64       `env:"DEFAULT_LNG" envDefault:"126.9780"`
	PlaceSearchRadius int           `env:"PLACE_SEARCH_RADIUS" envDefault:"1000"`
	PlaceResultLimit  int           `env:"PLACE_RESULT_LIMIT" envDefault:"5"`
	SearchTimeout     time.Duration `env:"SEARCH_TIMEOUT" envDefault:"10s"`
	SearchCacheTTL    time.Duration `env:"SEARCH_CACHE_TTL" envDefault:"10m"`
	PlaceBackend      string        `env:"PLACE_BACKEND" envDefault:"kakao"`
	ElasticURL        string        `env:"ELASTIC_URL" envDefault:"http://localhost:9200"`
	ElasticIndex      string        `env:"ELASTIC_INDEX" envDefault:"places"`

	StoreBackend string        `env:"STORE_BACKEND" envDefault:"memory"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"10"`

	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"gathermap"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"30"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	TelegramBotToken   string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramWebhookURL string `env:"TELEGRAM_WEBHOOK_URL"`
	// TelegramWebhookSecret is echoed by Telegram in every webhook request;
	// a random one is generated at startup when unset
	TelegramWebhookSecret string `env:"TELEGRAM_WEBHOOK_SECRET"`

	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelService  string `env:"OTEL_SERVICE_NAME" envDefault:"gathermap"`
}

// Load reads an optional .env file and parses the environment.
// A missing .env file is not an error.
func Load(files ...string) (Config, error) {
	_ = godotenv.Load(files...)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.PlaceBackend = strings.ToLower(strings.TrimSpace(cfg.PlaceBackend))
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory, StoreRedis, StorePostgres:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of memory, redis, postgres (got %q)", c.StoreBackend)
	}
	switch c.PlaceBackend {
	case PlacesKakao, PlacesElastic:
	default:
		return fmt.Errorf("PLACE_BACKEND must be kakao or elastic (got %q)", c.PlaceBackend)
	}
	// the elastic backend resolves addresses from its own index
	if c.PlaceBackend == PlacesKakao && c.KakaoRESTKey == "" {
		return fmt.Errorf("KAKAO_REST_API_KEY is required when PLACE_BACKEND=kakao")
	}
	if c.PlaceResultLimit < 1 || c.PlaceResultLimit > maxPlaceResultLimit {
		return fmt.Errorf("PLACE_RESULT_LIMIT must be within 1..%d", maxPlaceResultLimit)
	}
	if c.PlaceSearchRadius < 1 || c.PlaceSearchRadius > 20000 {
		return fmt.Errorf("PLACE_SEARCH_RADIUS must be within 1..20000 meters")
	}
	if c.DefaultLat < -90 || c.DefaultLat > 90 || c.DefaultLng < -180 || c.DefaultLng > 180 {
		return fmt.Errorf("DEFAULT_LAT/DEFAULT_LNG out of range")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// RedisAddr returns host:port for the Redis client.
func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}
