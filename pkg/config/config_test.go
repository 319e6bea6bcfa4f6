package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("KREDENSIA_JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "mongo", cfg.Store.Type)
	assert.Equal(t, 8*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("KREDENSIA_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KREDENSIA_JWT_SECRET")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KREDENSIA_JWT_SECRET", "test-secret")
	t.Setenv("KREDENSIA_STORE_TYPE", "memory")
	t.Setenv("KREDENSIA_TOKEN_TTL", "30m")
	t.Setenv("KREDENSIA_CORS_ORIGINS", "https://app.example.com, https://staging.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"https://app.example.com", "https://staging.example.com"}, cfg.Server.CORSOrigins)
}

func TestValidate_Rejections(t *testing.T) {
	t.Setenv("KREDENSIA_JWT_SECRET", "test-secret")

	t.Run("bad store type", func(t *testing.T) {
		t.Setenv("KREDENSIA_STORE_TYPE", "dynamo")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("weak bcrypt cost", func(t *testing.T) {
		t.Setenv("KREDENSIA_BCRYPT_COST", "4")
		_, err := Load()
		assert.Error(t, err)
	})
}
