package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/ai-advisor/backend/internal/config"
	"github.com/zhouzirui/ai-advisor/backend/internal/handler"
	"github.com/zhouzirui/ai-advisor/backend/internal/logging"
	"github.com/zhouzirui/ai-advisor/backend/internal/service/ai"
	"github.com/zhouzirui/ai-advisor/backend/internal/service/chat"
	"github.com/zhouzirui/ai-advisor/backend/internal/service/realtime"
	"github.com/zhouzirui/ai-advisor/backend/internal/service/transcript"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(cfg.Log)
	log.Logger = logger
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file, using system environment variables only")
	}

	store := transcript.NewStore(transcript.WithMaxMessages(cfg.Chat.MaxMessages))

	broker := newBroker(ctx, cfg.Realtime, logger)

	opts := []chat.Option{
		chat.WithBroker(broker),
		chat.WithLogger(logger),
	}
	if aiService := newAIService(ctx, cfg, logger); aiService != nil {
		opts = append(opts, chat.WithAnswerer(aiService))
	}
	chatService := chat.NewService(store, opts...)

	router := handler.NewRouter(handler.Dependencies{
		Chat:      chatService,
		Provider:  cfg.AI.Provider,
		StaticDir: cfg.Server.StaticDir,
		Logger:    logger,
	})

	startServer(ctx, cfg.Server, router, broker, logger)
}

// newAIService returns nil when no credential is configured; questions then
// receive the placeholder answer.
func newAIService(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *ai.Service {
	if !cfg.AI.Enabled() {
		logger.Warn().Str("provider", cfg.AI.Provider).Msg("AI credential not configured, answering with placeholder")
		return nil
	}

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("provider", cfg.AI.Provider).Msg("failed to create chat model, answering with placeholder")
		return nil
	}

	svc, err := ai.NewService(ctx, chatModel, ai.Options{
		Provider:     cfg.AI.Provider,
		HistoryLimit: cfg.Chat.HistoryLimit,
		Timeout:      cfg.AI.Timeout,
		Logger:       logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialize AI service, answering with placeholder")
		return nil
	}

	logger.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Msg("AI service initialized")
	return svc
}

func newBroker(ctx context.Context, cfg config.RealtimeConfig, logger zerolog.Logger) realtime.Broker {
	if cfg.RedisURL == "" {
		return realtime.NewHub()
	}

	broker, err := realtime.NewRedisBroker(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, using in-process realtime hub")
		return realtime.NewHub()
	}
	logger.Info().Msg("realtime events published through redis")
	return broker
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, broker realtime.Broker, logger zerolog.Logger) {
	addr := serverCfg.Addr
	srv := newServer(addr, router, broker)

	logger.Info().Str("addr", addr).Str("static_dir", serverCfg.StaticDir).Msg("AI advisor backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
	logger.Info().Msg("server stopped")
}

// newServer builds the HTTP server. Shutdown closes the broker first: mirror
// feeds only end when their subscription closes, and Shutdown neither cancels
// request contexts nor tracks hijacked WebSocket connections.
func newServer(addr string, router http.Handler, broker realtime.Broker) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv.RegisterOnShutdown(func() {
		_ = broker.Close()
	})
	return srv
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
