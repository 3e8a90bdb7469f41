package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Token store backends
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreMongo  = "mongo"
)

// Config holds the environment-supplied settings of the service.
// Shopify values are not validated here; they fail on first use.
type Config struct {
	AppURL    string
	ReturnURL string
	Port      string

	ShopDomain   string
	ClientID     string
	IdentityHost string
	APIVersion   string

	TokenStore    string
	RedisURL      string
	MongoURI      string
	MongoDatabase string

	PKCETTL            time.Duration
	SessionIdleTimeout time.Duration
	CookieName         string
	LogLevel           string
}

// Load reads .env (if present) and the process environment
func Load(logger zerolog.Logger) Config {
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("⚠️  Warning: .env file not found")
	}

	cfg := Config{
		AppURL:             strings.TrimRight(getenv("APP_URL", "http://localhost:8080"), "/"),
		ReturnURL:          os.Getenv("ACCOUNT_RETURN_URL"),
		Port:               getenv("PORT", "8080"),
		ShopDomain:         os.Getenv("SHOPIFY_STORE_DOMAIN"),
		ClientID:           os.Getenv("SHOPIFY_CUSTOMER_ACCOUNT_CLIENT_ID"),
		IdentityHost:       strings.TrimRight(getenv("SHOPIFY_IDENTITY_HOST", "https://shopify.com"), "/"),
		APIVersion:         getenv("SHOPIFY_CUSTOMER_API_VERSION", "2024-10"),
		TokenStore:         getenv("TOKEN_STORE", StoreMemory),
		RedisURL:           os.Getenv("REDIS_URL"),
		MongoURI:           getenv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:      getenv("MONGODB_DATABASE", "storefront"),
		PKCETTL:            getduration(logger, "PKCE_TTL", 10*time.Minute),
		SessionIdleTimeout: getduration(logger, "SESSION_IDLE_TIMEOUT", 30*time.Minute),
		CookieName:         getenv("SESSION_COOKIE_NAME", "storefront_sid"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
	}

	if cfg.ReturnURL == "" {
		cfg.ReturnURL = cfg.AppURL + "/account"
	}
	return cfg
}

// SecureCookies reports whether cookies must carry the Secure attribute
func (c Config) SecureCookies() bool {
	return strings.HasPrefix(c.AppURL, "https://")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(logger zerolog.Logger, key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logger.Warn().Str("key", key).Str("value", v).Msg("Invalid duration, using default")
		return fallback
	}
	return d
}
