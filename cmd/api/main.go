package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gurutvapay/checkout-api/internal/config"
	"github.com/gurutvapay/checkout-api/internal/domain/intent"
	"github.com/gurutvapay/checkout-api/internal/domain/session"
	"github.com/gurutvapay/checkout-api/internal/domain/transaction"
	"github.com/gurutvapay/checkout-api/internal/middleware"
	"github.com/gurutvapay/checkout-api/internal/pkg/database"
	"github.com/gurutvapay/checkout-api/internal/pkg/gateway"
	pkgresponse "github.com/gurutvapay/checkout-api/internal/pkg/response"
	"github.com/gurutvapay/checkout-api/internal/pkg/sessiontoken"
)

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting checkout API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL: cfg.GatewayBaseURL,
		SaltKey: cfg.GatewaySaltKey,
		AppID:   cfg.GatewayAppID,
		Timeout: cfg.GatewayTimeout,
	})

	tokenService := sessiontoken.NewService(cfg.BridgeTokenSecret, cfg.BridgeTokenTTL)

	intentCfg := intent.Config{
		DedupeWindow:   cfg.IntentDedupeWindow,
		LaunchCooldown: cfg.LaunchCooldown,
		Wallets:        intent.ParseWalletTable(cfg.WalletSchemeTable),
	}

	// ---------- Repositories ----------
	transactionRepo := transaction.NewRepository(db)

	// ---------- Bridge hub ----------
	hub := session.NewHub(redis)
	go hub.Run()

	// ---------- Services ----------
	sessionStore := &sessionStoreAdapter{repo: transactionRepo}
	registry := session.NewRegistry()
	sessionService := session.NewService(registry, hub, gatewayClient, sessionStore, tokenService, intentCfg)
	transactionService := transaction.NewService(transactionRepo, gatewayClient)

	// ---------- Handlers ----------
	sessionHandler := session.NewHandler(sessionService, hub, cfg.AllowedOrigins)
	transactionHandler := transaction.NewHandler(transactionService)

	apiKeyMiddleware := middleware.APIKey(cfg.MerchantAPIKeys)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// Bridge WebSocket, authenticated with the session token from creation
	r.Get("/ws/checkout/{id}", sessionHandler.BridgeRoute())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/checkout", sessionHandler.Routes(apiKeyMiddleware))
		r.Mount("/transactions", transactionHandler.Routes(apiKeyMiddleware))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	registry.CloseAll()
	hub.Shutdown()

	log.Info().Msg("Server exited properly")
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}
}

// Adapter implementations to bridge interface mismatches

// sessionStoreAdapter persists session snapshots as transaction rows
type sessionStoreAdapter struct {
	repo transaction.Repository
}

func (a *sessionStoreAdapter) SaveSnapshot(ctx context.Context, snap session.Snapshot) error {
	t := &transaction.Transaction{
		ID:              uuid.New(),
		SessionID:       uuid.NullUUID{UUID: snap.ID, Valid: true},
		MerchantOrderID: snap.MerchantOrderID,
		Amount:          snap.Amount,
		Status:          string(snap.State),
		PaymentURL:      nullString(snap.PaymentURL),
		TransactionID:   nullString(snap.TransactionID),
		GatewayOrderID:  nullString(snap.GatewayOrderID),
		LastError:       nullString(snap.LastError),
		CreatedAt:       snap.CreatedAt,
		UpdatedAt:       snap.UpdatedAt,
	}
	return a.repo.Upsert(ctx, t)
}

func (a *sessionStoreAdapter) GetSnapshot(ctx context.Context, id uuid.UUID) (session.Snapshot, error) {
	t, err := a.repo.GetBySessionID(ctx, id)
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound) {
			return session.Snapshot{}, session.ErrSessionNotFound
		}
		return session.Snapshot{}, err
	}
	return session.Snapshot{
		ID:              id,
		MerchantOrderID: t.MerchantOrderID,
		Amount:          t.Amount,
		State:           session.State(t.Status),
		PaymentURL:      t.PaymentURL.String,
		TransactionID:   t.TransactionID.String,
		GatewayOrderID:  t.GatewayOrderID.String,
		LastError:       t.LastError.String,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
