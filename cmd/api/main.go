package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-customer-layer/internal/application"
	"storefront-customer-layer/internal/config"
	apiinfra "storefront-customer-layer/internal/infrastructure/api"
	"storefront-customer-layer/internal/infrastructure/metrics"
	"storefront-customer-layer/internal/infrastructure/pubsub"
	"storefront-customer-layer/internal/infrastructure/repository"
	shopifyinfra "storefront-customer-layer/internal/infrastructure/shopify"
	"storefront-customer-layer/internal/ports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// stores are the two slot backends: tokens persist, PKCE records expire
type stores struct {
	tokens ports.KeyValueStore
	flow   ports.KeyValueStore
	// memory stores that need periodic cleanup
	sweepable []*repository.MemoryStore
	closers   []func()
}

func main() {
	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg := config.Load(logger)

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warn().Str("level", cfg.LogLevel).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.TokenStore).Msg("Failed to open token store")
	}
	defer func() {
		for _, c := range st.closers {
			c()
		}
	}()

	// Metrics on a dedicated registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to register metrics")
	}

	// Shopify customer account adapters
	endpoints := shopifyinfra.Endpoints{
		IdentityHost: cfg.IdentityHost,
		ShopDomain:   cfg.ShopDomain,
		APIVersion:   cfg.APIVersion,
	}
	if cfg.ShopDomain == "" || cfg.ClientID == "" {
		logger.Warn().Msg("Shopify customer account is not configured; login will fail until it is")
	}
	httpClient := &http.Client{Timeout: 15 * time.Second}
	auth := shopifyinfra.NewCustomerOAuth(cfg.ClientID, endpoints, httpClient, logger)
	graphQL := shopifyinfra.NewGraphQLClient(endpoints, httpClient, collector, logger)
	customers := shopifyinfra.NewCustomerAccount(graphQL, logger)

	events := pubsub.NewSessionPubSub(logger)

	pool := application.NewSessionPool(func(sessionID string) *application.SessionManager {
		prefix := sessionID + ":"
		return application.NewSessionManagerWithOptions(
			auth,
			customers,
			repository.WithPrefix(st.tokens, prefix),
			repository.WithPrefix(st.flow, prefix),
			logger,
			application.SessionOptions{
				SessionID: sessionID,
				Publisher: events,
				Metrics:   collector,
			},
		)
	}, logger)

	accountHandler := apiinfra.NewAccountHandler(pool, events, apiinfra.AccountOptions{
		AppURL:        cfg.AppURL,
		ReturnURL:     cfg.ReturnURL,
		CookieName:    cfg.CookieName,
		SecureCookies: cfg.SecureCookies(),
	}, logger)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.AppURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":        "ok",
			"sessions":      pool.Len(),
			"subscriptions": events.Stats(),
		})
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, r, "./docs/swagger.json")
	})

	r.Mount("/account", accountHandler.Routes())

	go sweep(ctx, cfg, pool, st.sweepable, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info().Msg("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shut down server")
		}
		pool.Close()
	}()

	logger.Info().Str("port", cfg.Port).Str("store", cfg.TokenStore).Msg("Starting API server")
	logger.Info().Msg("Swagger documentation available at http://localhost:" + cfg.Port + "/swagger/index.html")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
}

// openStores selects the slot backends from TOKEN_STORE. PKCE records go to
// Redis when it is configured and to memory otherwise.
func openStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*stores, error) {
	st := &stores{}

	if cfg.RedisURL != "" {
		client, err := repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() { client.Close() })
		st.flow = repository.NewRedisStore(client, cfg.PKCETTL, logger)
		if cfg.TokenStore == config.StoreRedis {
			st.tokens = repository.NewRedisStore(client, 0, logger)
		}
	} else {
		flow := repository.NewMemoryStore(cfg.PKCETTL)
		st.flow = flow
		st.sweepable = append(st.sweepable, flow)
	}

	switch cfg.TokenStore {
	case config.StoreRedis:
		if st.tokens == nil {
			return nil, errors.New("TOKEN_STORE=redis requires REDIS_URL")
		}
	case config.StoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() { client.Disconnect(context.Background()) })

		store := repository.NewMongoStore(client.Database(cfg.MongoDatabase), repository.DefaultSlotCollection)
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		st.tokens = store
	default:
		if cfg.TokenStore != config.StoreMemory {
			logger.Warn().Str("store", cfg.TokenStore).Msg("Unknown token store, using memory")
		}
		st.tokens = repository.NewMemoryStore(0)
	}

	return st, nil
}

// sweep drops idle sessions from memory and purges expired PKCE records
func sweep(ctx context.Context, cfg config.Config, pool *application.SessionPool, memory []*repository.MemoryStore, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pool.Sweep(cfg.SessionIdleTimeout)
			for _, m := range memory {
				if n := m.Cleanup(); n > 0 {
					logger.Debug().Int("removed", n).Msg("Purged expired slots")
				}
			}
		}
	}
}
