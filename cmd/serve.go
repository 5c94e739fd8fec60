package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/wavebridge/adapters"
	"github.com/satriahrh/wavebridge/adapters/llm"
	"github.com/satriahrh/wavebridge/adapters/modem"
	"github.com/satriahrh/wavebridge/adapters/mongo"
	"github.com/satriahrh/wavebridge/domain/repositories"
	"github.com/satriahrh/wavebridge/internal/api"
	"github.com/satriahrh/wavebridge/internal/auth"
	"github.com/satriahrh/wavebridge/internal/config"
	"github.com/satriahrh/wavebridge/internal/metrics"
	"github.com/satriahrh/wavebridge/internal/websocket"
	"github.com/satriahrh/wavebridge/usecase"
)

const storeCloseTimeout = 5 * time.Second

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting wavebridge",
		zap.String("version", Version),
		zap.String("listen", cfg.Server.Listen),
		zap.String("llmProvider", cfg.LLM.Provider),
		zap.Int("protocolID", cfg.Modem.ProtocolID),
		zap.Int("volume", cfg.Modem.Volume),
		zap.String("historyStore", cfg.History.Store),
		zap.Bool("auth", cfg.AuthEnabled()))

	// Initialize adapters
	toneModem := modem.NewToneModem(logger)
	responder, err := llm.NewResponder(cfg.LLMAdapterConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to create responder: %w", err)
	}

	exchanges, closeStore, err := newExchangeRepository(context.Background(), cfg.History, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.NewMetrics()

	// Initialize usecase services
	opts := []usecase.Option{usecase.WithObserver(m)}
	if cfg.Prompt.Practice != "" {
		opts = append(opts, usecase.WithPromptBuilder(usecase.NewDoctorPrompt(cfg.Prompt.Practice)))
	}
	if exchanges != nil {
		opts = append(opts, usecase.WithExchangeRepository(exchanges))
	}
	service := usecase.NewAudioService(toneModem, toneModem, responder, cfg.TransmitProfile(), logger, opts...)

	var tokens *auth.TokenManager
	if cfg.AuthEnabled() {
		tokens, err = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err != nil {
			return err
		}
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub(service, m, logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	e := api.NewServer(api.Dependencies{
		Service:   service,
		Hub:       hub,
		Auth:      api.NewAuthenticator(tokens, logger),
		Exchanges: exchanges,
		Metrics:   m.Handler(),
		Logger:    logger,
	}, cfg.Server.BodyLimit)
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", cfg.Server.Listen))
		if err := e.Start(cfg.Server.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("Server is shutting down...", zap.String("signal", sig.String()))
	}

	stopHub()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("Server exited")
	return nil
}

// newExchangeRepository opens the configured history store. The returned
// repository is nil when history is disabled.
func newExchangeRepository(ctx context.Context, cfg config.HistoryConfig, logger *zap.Logger) (repositories.ExchangeRepository, func(), error) {
	noop := func() {}

	switch cfg.Store {
	case config.StoreMemory:
		return adapters.NewMemoryExchangeRepository(cfg.MemoryCapacity), noop, nil

	case config.StoreMongo:
		client, err := mongo.NewClient(ctx, mongo.Config{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDatabase,
		}, logger)
		if err != nil {
			return nil, noop, err
		}

		repo := mongo.NewExchangeRepository(client.Database, logger)
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Warn("Failed to create exchange indexes", zap.Error(err))
		}

		closeClient := func() {
			ctx, cancel := context.WithTimeout(context.Background(), storeCloseTimeout)
			defer cancel()
			_ = client.Close(ctx)
		}
		return repo, closeClient, nil

	default:
		return nil, noop, nil
	}
}
