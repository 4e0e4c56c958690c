package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"velvetink/internal/config"
	"velvetink/internal/domain/model"
	"velvetink/internal/domain/ports/adapter"
	aiAdapters "velvetink/internal/infra/adapters/ai"
	pg "velvetink/internal/infra/db/postgres"
	"velvetink/internal/infra/logging"
	"velvetink/internal/infra/metrics"
	"velvetink/internal/infra/payment"
	red "velvetink/internal/infra/redis"
	"velvetink/internal/infra/web"
	"velvetink/internal/infra/worker"
	"velvetink/internal/storygen"
	"velvetink/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop AI provider, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	eventDedupe := red.NewEventDedupe(redisClient, 0)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	userRepo := pg.NewUserRepo(pool)
	storyRepo := pg.NewStoryRepo(pool, tm)
	creditRepo := pg.NewCreditTransactionRepo(pool, tm)
	historyRepo := pg.NewSubscriptionHistoryRepo(pool)

	// ---- Use cases ----
	ledger := usecase.NewCreditLedger(userRepo, creditRepo, tm, logger)
	storySvc := usecase.NewStoryService(storyRepo, ledger, logger)
	userSvc := usecase.NewUserService(userRepo, ledger, logger)

	priceOverrides := make(map[string]model.Tier, len(cfg.Billing.PriceTiers))
	for priceID, tierName := range cfg.Billing.PriceTiers {
		priceOverrides[priceID] = model.ParseTier(tierName)
	}
	reconciler := usecase.NewBillingReconciler(userRepo, ledger, historyRepo, tm, priceOverrides, logger)

	// ---- AI providers ----
	var textGen adapter.TextGenerator
	var imageGen adapter.ImageGenerator
	if cfg.Runtime.Dev {
		noop := aiAdapters.NewNoopGenerator()
		textGen, imageGen = noop, noop
		logger.Info().Msg("AI provider: noop (dev)")
	} else {
		openAI, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.TextModel, cfg.AI.ImageModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter")
		}
		textGen = openAI
		imageGen = openAI
		if cfg.AI.GeminiKey != "" {
			gemini, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.FallbackModel)
			if err != nil {
				logger.Fatal().Err(err).Msg("gemini adapter")
			}
			textGen = aiAdapters.NewFallbackGenerator(openAI, gemini, logger)
			logger.Info().Str("primary", cfg.AI.TextModel).Str("fallback", cfg.AI.FallbackModel).Msg("AI provider: openai with gemini fallback")
		} else {
			logger.Info().Str("model", cfg.AI.TextModel).Msg("AI provider: openai")
		}
	}
	textGen = aiAdapters.NewLimitedText(textGen, cfg.AI.ConcurrentLimit)
	imageGen = aiAdapters.NewLimitedImage(imageGen, cfg.AI.ConcurrentLimit)

	// ---- Generation workers ----
	workerPool := worker.NewPool(cfg.Worker.Workers, logger)
	workerPool.Start(ctx)
	defer workerPool.Stop()
	processor := worker.NewStoryProcessor(storyRepo, ledger, textGen, imageGen, storygen.NewBuilder(), cfg.Worker.PollInterval, logger)
	go processor.Start(ctx, workerPool)

	// ---- HTTP ----
	webhook := payment.NewStripeWebhookHandler(reconciler, eventDedupe, cfg.Billing.StripeWebhookSecret, logger)
	authMgr := web.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.SecureCookie, cfg.Auth.CookieDomain, cfg.Auth.TokenTTL)
	srv := web.NewServer(userSvc, storySvc, ledger, authMgr, rateLimiter, webhook, cfg.Server.RequestTimeout, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
