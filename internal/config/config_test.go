package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/missing.env")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, PlacesKakao, cfg.PlaceBackend)
	assert.Equal(t, 1000, cfg.PlaceSearchRadius)
	assert.Equal(t, 5, cfg.PlaceResultLimit)
	assert.InDelta(t, 37.5665, cfg.DefaultLat, 1e-9)
	assert.InDelta(t, 126.9780, cfg.DefaultLng, 1e-9)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("STORE_BACKEND", " Redis ")
	t.Setenv("PLACE_SEARCH_RADIUS", "500")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("KAKAO_REST_API_KEY", "rest-key")
	t.Setenv("TELEGRAM_WEBHOOK_SECRET", "hook-secret")

	cfg, err := Load("testdata/missing.env")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, StoreRedis, cfg.StoreBackend)
	assert.Equal(t, 500, cfg.PlaceSearchRadius)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "rest-key", cfg.KakaoRESTKey)
	assert.Equal(t, "hook-secret", cfg.TelegramWebhookSecret)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("PLACE_SEARCH_RADIUS", "wide")

	_, err := Load("testdata/missing.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			StoreBackend:      StoreMemory,
			PlaceBackend:      PlacesKakao,
			KakaoRESTKey:      "key",
			PlaceResultLimit:  5,
			PlaceSearchRadius: 1000,
			DefaultLat:        37.5665,
			DefaultLng:        126.9780,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown store", mutate: func(c *Config) { c.StoreBackend = "mongo" }, wantErr: "STORE_BACKEND"},
		{name: "unknown places", mutate: func(c *Config) { c.PlaceBackend = "google" }, wantErr: "PLACE_BACKEND"},
		{name: "missing key", mutate: func(c *Config) { c.KakaoRESTKey = "" }, wantErr: "KAKAO_REST_API_KEY"},
		{name: "elastic without key", mutate: func(c *Config) {
			c.PlaceBackend = PlacesElastic
			c.KakaoRESTKey = ""
		}},
		{name: "zero limit", mutate: func(c *Config) { c.PlaceResultLimit = 0 }, wantErr: "PLACE_RESULT_LIMIT"},
		{name: "limit above five", mutate: func(c *Config) { c.PlaceResultLimit = 10 }, wantErr: "PLACE_RESULT_LIMIT must be within 1..5"},
		{name: "limit of five", mutate: func(c *Config) { c.PlaceResultLimit = 5 }},
		{name: "radius too wide", mutate: func(c *Config) { c.PlaceSearchRadius = 20001 }, wantErr: "PLACE_SEARCH_RADIUS"},
		{name: "bad default", mutate: func(c *Config) { c.DefaultLat = 91 }, wantErr: "DEFAULT_LAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
