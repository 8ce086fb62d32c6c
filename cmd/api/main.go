package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/paperproof/paperproof-api/internal/config"
	"github.com/paperproof/paperproof-api/internal/database"
	"github.com/paperproof/paperproof-api/internal/fetch"
	"github.com/paperproof/paperproof-api/internal/handler"
	"github.com/paperproof/paperproof-api/internal/middleware"
	"github.com/paperproof/paperproof-api/internal/models"
	"github.com/paperproof/paperproof-api/internal/repository"
	"github.com/paperproof/paperproof-api/internal/router"
	"github.com/paperproof/paperproof-api/internal/search"
	"github.com/paperproof/paperproof-api/internal/service"
	"github.com/paperproof/paperproof-api/pkg/ai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.FactCheckSession{}, &models.CandidatePaper{}, &models.PaperAnalysis{}, &models.PaperDocument{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	extractor, streamer, err := buildExtractor(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create ai extractor: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	sessionRepo := repository.NewSessionRepository(db)
	documentRepo := repository.NewDocumentRepository(db)

	openAlex := search.NewOpenAlexClient(search.OpenAlexConfig{
		BaseURL:    cfg.OpenAlexBaseURL,
		Mailto:     cfg.OpenAlexMailto,
		RatePerSec: cfg.SearchRatePerSec,
		Timeout:    cfg.FetchTimeout,
		Logger:     logger,
	})
	arxiv := search.NewArxivClient("", logger)
	pdfFetcher := fetch.NewPDFFetcher(cfg.FetchTimeout, cfg.MaxPDFBytes, logger)

	queryBuilder := service.NewQueryBuilder(extractor, logger)
	preEvaluator := service.NewPreEvaluator(extractor, cfg.PreEvalConcurrency, logger)
	aggregator := service.NewVerdictAggregator(extractor, logger)
	analyzer := service.NewDeepAnalyzer(extractor, pdfFetcher, logger)
	sessionService := service.NewSessionService(sessionRepo, redisClient, cfg.SessionCacheTTL, validate, cfg.StatementMaxLen, logger)
	factCheckService := service.NewFactCheckService(
		queryBuilder,
		openAlex,
		arxiv,
		preEvaluator,
		aggregator,
		sessionService,
		analyzer,
		validate,
		service.FactCheckConfig{
			PerPage:         cfg.SearchPerPage,
			StatementMaxLen: cfg.StatementMaxLen,
			DeepBatchSize:   cfg.DeepBatchSize,
			DeepPacingDelay: cfg.DeepPacingDelay,
		},
		logger,
	)
	chatService := service.NewChatService(sessionService, streamer, validate, logger)
	readerService := service.NewReaderService(documentRepo, extractor, pdfFetcher, validate, logger)

	factCheckHandler := handler.NewFactCheckHandler(factCheckService, sessionService, chatService, cfg, logger)
	readerHandler := handler.NewReaderHandler(readerService, cfg, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})

	var jwtMiddleware fiber.Handler
	if cfg.JWTSecret != "" {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	router.Register(app, cfg, router.Dependencies{
		FactCheckHandler: factCheckHandler,
		ReaderHandler:    readerHandler,
		JWTMiddleware:    jwtMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func buildExtractor(cfg config.Config, logger zerolog.Logger) (ai.Extractor, ai.ChatStreamer, error) {
	extractor, err := ai.NewOpenAIExtractor(ai.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.ExtractionTimeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return extractor, extractor, nil
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
