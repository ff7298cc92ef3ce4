package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	req := require.New(t)
	cfg := NewConfig()

	req.Equal(":8080", cfg.Port)
	req.Equal(DefaultAdminName, cfg.AdminName)
	req.Equal(int64(4096), cfg.MaxMessageSize)
	req.Equal(5, cfg.RateLimit.Burst)
	req.Equal(time.Second, cfg.RateLimit.RefillInterval)
}

func TestSetConfigSanitizesValues(t *testing.T) {
	req := require.New(t)
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(&Config{
		Port:           "9000",
		MaxMessageSize: -1,
		AdminName:      "  ",
		RateLimit:      RateLimitConfig{Burst: 0, RefillInterval: 0},
	})

	cfg := currentConfig()
	req.Equal(":9000", cfg.Port, "bare port numbers get a colon prefix")
	req.Equal(int64(4096), cfg.MaxMessageSize)
	req.Equal(DefaultAdminName, cfg.AdminName, "blank admin names fall back to the default")
	req.Equal(5, cfg.RateLimit.Burst)
	req.Equal(time.Second, cfg.RateLimit.RefillInterval)
}

func TestNewConfigFromEnv(t *testing.T) {
	req := require.New(t)
	t.Cleanup(func() { SetConfig(nil) })

	t.Setenv("SERVER_PORT", ":9999")
	t.Setenv("ADMIN_NAME", "operator")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "2")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")

	cfg, err := NewConfigFromEnv()
	req.NoError(err)
	req.Equal(":9999", cfg.Port)
	req.Equal("operator", cfg.AdminName)
	req.Equal(int64(1024), cfg.MaxMessageSize)
	req.Equal(2, cfg.RateLimit.Burst)
	req.Equal(2*time.Second, cfg.RateLimit.RefillInterval)
}

func TestOriginNormalization(t *testing.T) {
	req := require.New(t)

	normalized, allowAll := normalizeOrigins([]string{
		"HTTP://LocalHost:8080",
		"  ",
		"not a url",
		"*",
	})
	req.True(allowAll)
	req.Equal([]string{"http://localhost:8080"}, normalized)
}
