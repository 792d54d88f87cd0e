package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"dealdesk/internal/api"
	"dealdesk/internal/config"
	"dealdesk/internal/llm"
	"dealdesk/internal/notify"
	"dealdesk/internal/observability"
	"dealdesk/internal/review"
	"dealdesk/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// config failures happen before the logger exists
		panic("load config: " + err.Error())
	}

	log := observability.NewLogger(cfg.AppEnv)

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := store.Ping(ctx); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("postgres ping")
	}
	cancel()

	images, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket)
	if err != nil {
		log.Fatal().Err(err).Msg("connect minio")
	}

	notifications := notify.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	verdictClient := llm.NewHTTPClient(cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMBaseURL, llm.Sampling{
		Temperature:      cfg.LLMTemperature,
		MaxTokens:        cfg.LLMMaxTokens,
		TopP:             cfg.LLMTopP,
		FrequencyPenalty: cfg.LLMFrequencyPen,
		PresencePenalty:  cfg.LLMPresencePen,
	})

	reviewer := review.NewService(store, verdictClient, notifications, log,
		cfg.LLMModel, time.Duration(cfg.LLMTimeoutSec)*time.Second)

	observability.Serve(cfg.MetricsAddr, observability.InitRegistry())

	h := api.NewHandler(cfg, store, images, reviewer, notifications, log)
	router := api.NewRouter(h, log)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		log.Info().Str("port", cfg.HTTPPort).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("shutdown complete")
}
