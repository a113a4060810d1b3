package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/fintrack/wa-gateway/internal/api"
	"github.com/fintrack/wa-gateway/internal/backend"
	"github.com/fintrack/wa-gateway/internal/config"
	"github.com/fintrack/wa-gateway/internal/delivery"
	"github.com/fintrack/wa-gateway/internal/extract"
	"github.com/fintrack/wa-gateway/internal/identity"
	"github.com/fintrack/wa-gateway/internal/orchestrator"
	"github.com/fintrack/wa-gateway/internal/session"
	"github.com/fintrack/wa-gateway/internal/storage"
	"github.com/fintrack/wa-gateway/internal/trigger"
	"github.com/fintrack/wa-gateway/internal/wallet"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate storage: %w", err)
	}

	selectionStore, err := buildSelectionStore(ctx, cfg)
	if err != nil {
		return err
	}

	transport, err := session.NewWhatsmeowTransport(cfg.WhatsApp.StorePath, logger)
	if err != nil {
		return fmt.Errorf("failed to build WhatsApp transport: %w", err)
	}

	sessions := session.NewManager(transport, session.ManagerConfig{
		ReconnectDelay: cfg.WhatsApp.ReconnectDelay,
		MaxReconnects:  cfg.WhatsApp.MaxReconnects,
		CountryCode:    cfg.WhatsApp.CountryCode,
	}, logger)

	queue := delivery.NewQueue(store, sessions, delivery.Config{
		Concurrency:    cfg.Delivery.Concurrency,
		RatePerMinute:  cfg.Delivery.RatePerMinute,
		MaxAttempts:    cfg.Delivery.MaxAttempts,
		InitialBackoff: cfg.Delivery.InitialBackoff,
		SentRetention:  cfg.Delivery.SentRetention,
		FailRetention:  cfg.Delivery.FailRetention,
		MaxSentKept:    cfg.Delivery.MaxSentKept,
	}, logger)

	extractor, err := extract.NewExtractor(extract.Config{
		APIURL:      cfg.Inference.APIURL,
		APIKey:      cfg.Inference.APIKey,
		Model:       cfg.Inference.Model,
		Temperature: cfg.Inference.Temperature,
		MaxTokens:   cfg.Inference.MaxTokens,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to build extractor: %w", err)
	}

	backendClient := backend.NewClient(cfg.Backend.APIURL)
	tokens := backend.NewTokenSource()

	resolver := identity.NewResolver(store, cfg.WhatsApp.CountryCode, logger)
	wallets := wallet.NewEngine(backendClient, selectionStore, cfg.Selection.TTL, logger)
	notifier := trigger.NewService(store, queue, logger)

	orch := orchestrator.New(resolver, extractor, wallets, backendClient, tokens, queue, notifier, logger)
	sessions.SetHandler(orch.HandleMessage)

	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start delivery queue: %w", err)
	}
	defer func() { _ = queue.Close() }()

	if err := sessions.Start(ctx); err != nil {
		// The HTTP surface stays up so operators can fetch the QR code
		// or trigger a reconnect.
		logger.Error("WhatsApp session failed to start", "error", err)
	}
	defer func() { _ = sessions.Close() }()

	server := api.NewServer(queue, store, sessions, tokens, resolver, api.AuthConfig{
		JWTSecret: cfg.Auth.JWTSecret,
		APIKey:    cfg.Auth.APIKey,
		TokenTTL:  cfg.Auth.TokenTTL,
	}, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func buildSelectionStore(ctx context.Context, cfg *config.Config) (wallet.SelectionStore, error) {
	switch cfg.Selection.Store {
	case "", "memory":
		return wallet.NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return wallet.NewRedisStore(client), nil
	default:
		return nil, fmt.Errorf("unknown selection store %q", cfg.Selection.Store)
	}
}
