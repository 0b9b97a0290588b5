package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"APP_PORT", "SESSION_TTL", "SESSION_SWEEP_INTERVAL", "PRESENCE_BACKEND", "PAYMENT_API_URL", "PAYMENT_TIMEOUT", "PUBLIC_URL", "KAKAO_CID"} {
		t.Setenv(key, "")
	}
	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, time.Minute, cfg.SessionSweep)
	assert.Equal(t, PresenceNATS, cfg.PresenceBackend)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.PaymentAPIURL)
	assert.Equal(t, 30*time.Second, cfg.PaymentTimeout)
	assert.Equal(t, "TC0ONETIME", cfg.KakaoCID)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9000")
	t.Setenv("PRESENCE_BACKEND", PresenceMemory)
	t.Setenv("PAYMENT_TIMEOUT", "5s")
	t.Setenv("SESSION_TTL", "not-a-duration")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("IS_PROD", "true")

	cfg := LoadConfig()
	assert.Equal(t, "9000", cfg.AppPort)
	assert.Equal(t, PresenceMemory, cfg.PresenceBackend)
	assert.Equal(t, 5*time.Second, cfg.PaymentTimeout)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.True(t, cfg.IsProd)
}
