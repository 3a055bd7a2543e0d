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

	"github.com/isdelr/neuroscan-be/internal/api"
	"github.com/isdelr/neuroscan-be/internal/auth"
	"github.com/isdelr/neuroscan-be/internal/config"
	"github.com/isdelr/neuroscan-be/internal/database"
	"github.com/isdelr/neuroscan-be/internal/inference"
	"github.com/isdelr/neuroscan-be/internal/llm"
	"github.com/isdelr/neuroscan-be/internal/logger"
	"github.com/isdelr/neuroscan-be/internal/monitoring"
	"github.com/isdelr/neuroscan-be/internal/services"
	"github.com/isdelr/neuroscan-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

const tokenTTL = 24 * time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Model adapters. An unreachable sidecar is not fatal; uploads fail until it is up.
	detector := inference.NewHTTPDetector(cfg.DetectorURL, cfg.DetectorModelPath, cfg.InferenceTimeout)
	segmenter := inference.NewHTTPSegmenter(cfg.SegmenterURL, cfg.SegmenterModelPath, cfg.InferenceTimeout)
	checkCtx, cancelCheck := context.WithTimeout(context.Background(), 5*time.Second)
	if err := detector.CheckHealth(checkCtx); err != nil {
		log.Warn().Err(err).Str("url", cfg.DetectorURL).Msg("Detector sidecar is not healthy")
	}
	if err := segmenter.CheckHealth(checkCtx); err != nil {
		log.Warn().Err(err).Str("url", cfg.SegmenterURL).Msg("Segmenter sidecar is not healthy")
	}
	cancelCheck()

	if cfg.LLMAPIKey == "" {
		log.Warn().Msg("LLM_API_KEY is empty; report generation will fail")
	}
	completer := llm.NewClient(llm.Config{BaseURL: cfg.LLMBaseURL, APIKey: cfg.LLMAPIKey, Model: cfg.LLMModel})

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	// Set up services
	history := services.NewHistoryStore(services.SystemMessage())
	userService := services.NewUserService(db)
	reportService := services.NewReportService(db)
	eventService := services.NewEventService(db)
	chatService := services.NewChatService(completer, history)
	analysisService := services.NewAnalysisService(detector, segmenter, userService, reportService, chatService, eventService, cfg.ConfidenceMin, cfg.MaxImagePixels)

	issuer := auth.NewIssuer(cfg.JWTSecret, tokenTTL)
	if !issuer.Enabled() {
		log.Info().Msg("JWT_SECRET not set; login returns no token and requests are trusted by user_id")
	}

	// Set up and run the background stats updater
	statUpdater := monitoring.NewStatUpdater(monitoring.HostSampler, eventService, cfg.StatsInterval)
	go statUpdater.Run()

	// Conversation sweeping is off when HISTORY_TTL is 0.
	var sweeper *monitoring.HistorySweeper
	if cfg.HistoryTTL > 0 {
		sweeper, err = monitoring.NewHistorySweeper(history, cfg.HistoryTTL, cfg.HistorySweep)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to set up history sweeper")
		}
		sweeper.Start()
	}

	// Set up router
	router := api.NewRouter(
		api.Options{AllowedOrigins: cfg.AllowOrigins, MaxUploadMB: cfg.MaxUploadMB},
		api.Services{
			Users:    userService,
			Reports:  reportService,
			Analysis: analysisService,
			Chat:     chatService,
			Events:   eventService,
			Stats:    statUpdater,
		},
		issuer,
		hub,
	)

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	statUpdater.Stop()
	if sweeper != nil {
		sweeper.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	hub.Stop()

	log.Info().Msg("Server exiting")
}
