package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, VariantStudent, cfg.API.Variant)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, StoreFile, cfg.TokenStore.Driver)
	assert.Equal(t, 10*time.Second, cfg.Session.ExpirySkew)
	assert.Equal(t, 16, cfg.Reconcile.QueueSize)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("API_BASE_URL", "https://sis.example.edu/api/")
	v.Set("API_VARIANT", " ADMIN ")
	v.Set("API_TIMEOUT", "not-a-duration")
	v.Set("TOKEN_STORE_DRIVER", "Redis")
	v.Set("ENDPOINT_WITHDRAW", "/v2/enrollments/{id}")
	v.Set("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	v.Set("RECONCILE_QUEUE_SIZE", -3)

	cfg := fromViper(v)

	assert.Equal(t, "https://sis.example.edu/api", cfg.API.BaseURL)
	assert.Equal(t, VariantAdmin, cfg.API.Variant)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, StoreRedis, cfg.TokenStore.Driver)
	assert.Equal(t, "/v2/enrollments/{id}", cfg.Endpoints.Withdraw)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 16, cfg.Reconcile.QueueSize)
}

func TestLoadWithoutEnvFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("API_VARIANT", "admin")
	t.Setenv("PORT", "9911")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, VariantAdmin, cfg.API.Variant)
	assert.Equal(t, 9911, cfg.Port)
}
