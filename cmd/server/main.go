package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/RichardoC/compi/internal/api"
	"github.com/RichardoC/compi/internal/assets"
	"github.com/RichardoC/compi/internal/auth"
	"github.com/RichardoC/compi/internal/config"
	"github.com/RichardoC/compi/internal/db"
	"github.com/RichardoC/compi/internal/llm"
	"github.com/RichardoC/compi/internal/logging"
	"github.com/RichardoC/compi/internal/mapview"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogDev)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg.DBPath, cfg.ChatHistoryLimit)
	if err != nil {
		logger.Fatal("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.DBPath))
	}
	defer database.Close()

	var listings db.ListingReader = database
	if cfg.DatabaseURL != "" {
		pg, err := db.NewPostgresListings(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("failed to connect to listing database", zap.Error(err))
		}
		defer pg.Close()
		listings = pg
	}

	llmService, err := llm.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize LLM service", zap.Error(err))
	}

	viewOpts := mapview.DefaultOptions()
	viewOpts.OnDetach = func(id string) error {
		logger.Debug("map view detached", zap.String("view", id))
		return nil
	}
	views := mapview.NewRegistry(viewOpts, cfg.MapViewTTL, logger)
	go views.Run(ctx, time.Minute)

	loader := assets.NewLoader(cfg.LeafletBaseURL, nil, logger)
	resolver := auth.NewSupabaseClient(auth.SupabaseConfig{
		URL:       cfg.SupabaseURL,
		AnonKey:   cfg.SupabaseAnonKey,
		JWTSecret: cfg.SupabaseJWTSecret,
	}, nil, logger)

	handler := api.NewHandler(listings, database, llmService, views, logger)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("/assets/{name}", loader)
	mux.Handle("/", http.FileServer(http.Dir("web")))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           auth.Guard(resolver, logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down cleanly", zap.Error(err))
		}
	}()

	logger.Info("Starting server", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
