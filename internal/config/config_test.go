package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_URL", "")
	t.Setenv("SHOPIFY_STORE_DOMAIN", "")
	t.Setenv("SHOPIFY_CUSTOMER_ACCOUNT_CLIENT_ID", "")
	t.Setenv("SHOPIFY_IDENTITY_HOST", "")
	t.Setenv("SHOPIFY_CUSTOMER_API_VERSION", "")
	t.Setenv("TOKEN_STORE", "")
	t.Setenv("PKCE_TTL", "")
	t.Setenv("ACCOUNT_RETURN_URL", "")

	cfg := Load(zerolog.Nop())

	assert.Equal(t, "http://localhost:8080", cfg.AppURL)
	assert.Equal(t, "http://localhost:8080/account", cfg.ReturnURL)
	assert.Equal(t, "https://shopify.com", cfg.IdentityHost)
	assert.Equal(t, "2024-10", cfg.APIVersion)
	assert.Equal(t, StoreMemory, cfg.TokenStore)
	assert.Equal(t, 10*time.Minute, cfg.PKCETTL)
	assert.False(t, cfg.SecureCookies())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_URL", "https://farm.example.com/")
	t.Setenv("PKCE_TTL", "2m")
	t.Setenv("SESSION_IDLE_TIMEOUT", "not-a-duration")
	t.Setenv("ACCOUNT_RETURN_URL", "https://farm.example.com/my-account")

	cfg := Load(zerolog.Nop())

	assert.Equal(t, "https://farm.example.com/my-account", cfg.ReturnURL)
	assert.Equal(t, "https://farm.example.com", cfg.AppURL)
	assert.Equal(t, 2*time.Minute, cfg.PKCETTL)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.True(t, cfg.SecureCookies())
}
