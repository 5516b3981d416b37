package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/api"
	"github.com/UkralStul/crewfeed-service/internal/config"
	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/prefs"
	"github.com/UkralStul/crewfeed-service/internal/reconcile"
	"github.com/UkralStul/crewfeed-service/internal/storage"
	"github.com/UkralStul/crewfeed-service/internal/storage/inmemory"
	"github.com/UkralStul/crewfeed-service/internal/storage/mongodb"
	"github.com/UkralStul/crewfeed-service/internal/storage/postgres"
	"github.com/UkralStul/crewfeed-service/internal/upload"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	appVersion = "1.0.0"
	devSecret  = "crewfeed-dev-secret"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
}

func main() {
	// Booting screen
	fmt.Println(color.HiGreenString("  ___ _ __ _____      __/ _| ___  ___  __| |\n / __| '__/ _ \\ \\ /\\ / / |_ / _ \\/ _ \\/ _` |\n| (__| | |  __/\\ V  V /|  _|  __/  __/ (_| |\n \\___|_|  \\___| \\_/\\_/ |_|  \\___|\\___|\\__,_|"))
	fmt.Printf("%s v%s\n", color.New(color.FgHiGreen).Add(color.Bold).Sprintf("crewfeed"), appVersion)
	fmt.Printf("Works, comment threads and crews for the job site\n")
	color.HiBlack("=====================================================\n")

	storageType := flag.String("storage", "", "Storage type (in-memory, postgres or mongo); overrides settings")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("An error occurred when loading settings.")
	}
	if *storageType != "" {
		cfg.Storage.Type = *storageType
		if err := cfg.Validate(); err != nil {
			log.Fatal().Err(err).Msg("Invalid storage flag.")
		}
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("storage", cfg.Storage.Type).Msg("Starting server...")
	store, closeStore := openStorage(ctx, cfg)
	defer closeStore()

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		log.Warn().Msg("No auth.jwt_secret configured, using the development secret.")
		secret = devSecret
	}
	verifier := identity.NewVerifier(secret)

	uploader, uploadDir := openUploader(cfg)
	preferences, err := prefs.NewStore(cfg.Prefs.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("An error occurred when opening the preferences store.")
	}

	server, err := api.New(store, uploader, verifier, preferences, api.Options{
		CommentPageSize: cfg.Feed.CommentPageSize,
		ReplyPageSize:   cfg.Feed.ReplyPageSize,
		SessionIdle:     cfg.Session.IdleTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("An error occurred when wiring services.")
	}
	server.UploadDir = uploadDir

	if cfg.Storage.Type == config.StorageInMemory {
		// Seed data for local testing
		fillWithMockData(ctx, server, verifier)
	}

	// Configure timed tasks
	quartz, err := reconcile.New(store).Schedule(cfg.Reconcile.Schedule)
	if err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Reconcile.Schedule).Msg("An error occurred when scheduling reconciliation.")
	}
	if _, err := quartz.AddFunc(cfg.Session.EvictSchedule, server.EvictSessions); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Session.EvictSchedule).Msg("An error occurred when scheduling session eviction.")
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("Listening...")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start.")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")
	<-quartz.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("An error occurred when shutting down.")
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, func()) {
	switch cfg.Storage.Type {
	case config.StoragePostgres:
		store, err := postgres.New(cfg.Storage.DatabaseURL, cfg.Debug)
		if err != nil {
			log.Fatal().Err(err).Msg("An error occurred when connecting to postgres.")
		}
		return store, func() {}
	case config.StorageMongo:
		store, err := mongodb.New(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
		if err != nil {
			log.Fatal().Err(err).Msg("An error occurred when connecting to mongo.")
		}
		return store, func() {
			if err := store.Close(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Unable to disconnect from mongo")
			}
		}
	default:
		return inmemory.New(), func() {}
	}
}

func openUploader(cfg *config.Config) (upload.Uploader, string) {
	if cfg.Upload.Type == config.UploadS3 {
		uploader, err := upload.NewS3(cfg.Upload.S3Region, cfg.Upload.S3Bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("An error occurred when creating the S3 session.")
		}
		return uploader, ""
	}
	uploader, err := upload.NewLocal(cfg.Upload.LocalPath, cfg.Upload.BaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("An error occurred when creating the upload directory.")
	}
	return uploader, uploader.BasePath()
}
