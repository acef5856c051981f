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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dwnmf/Screen-recoder/internal/acquirer"
	"github.com/dwnmf/Screen-recoder/internal/api"
	"github.com/dwnmf/Screen-recoder/internal/config"
	"github.com/dwnmf/Screen-recoder/internal/db"
	"github.com/dwnmf/Screen-recoder/internal/downloads"
	"github.com/dwnmf/Screen-recoder/internal/notify"
	"github.com/dwnmf/Screen-recoder/internal/repository"
	"github.com/dwnmf/Screen-recoder/internal/service"
	"github.com/dwnmf/Screen-recoder/internal/settings"
	"github.com/dwnmf/Screen-recoder/internal/utils"
	"github.com/dwnmf/Screen-recoder/internal/webrtc"
	"github.com/dwnmf/Screen-recoder/pkg/ffmpeg"
)

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogFormat != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func main() {
	// Load configuration
	cfg := config.New()
	setupLogger(cfg)

	log.Info().Msg("Starting Screen Recorder...")

	// Create downloads directory
	if err := os.MkdirAll(cfg.DownloadsDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create downloads directory")
	}

	// Notifications: log always, RabbitMQ when enabled
	relay := notify.NewRelay(notify.LogSink{})
	var amqpSink *notify.AMQPSink
	if cfg.RabbitMQEnabled {
		sink, err := notify.DialAMQP(notify.AMQPConfig{
			URL:              cfg.RabbitMQURL,
			Exchange:         cfg.RabbitMQExchange,
			RoutingKeyPrefix: cfg.RabbitMQRoutingKeyPrefix,
		})
		if err != nil {
			log.Error().Err(err).Msg("RabbitMQ unavailable, notifications will not be published")
		} else {
			amqpSink = sink
			relay.AddSink(sink)
		}
	}

	// Settings store
	var store settings.Store = settings.NewMemoryStore()
	var redisStore *settings.RedisStore
	if cfg.RedisEnabled {
		redisStore = settings.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKey)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisStore.Ping(ctx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		store = redisStore
		log.Info().Msgf("Settings stored in Redis at %s", cfg.RedisAddr)
	}

	// Recording history
	var dbConn *sql.DB
	var recordings *repository.RecordingRepository
	if cfg.PostgresEnabled {
		conn, err := db.ConnectPostgres(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		dbConn = conn
		recordings = repository.NewRecordingRepository(dbConn)
		log.Info().Msg("Database connected successfully")
	}

	// Capture sources
	streams := webrtc.NewStreamHandler(cfg.STUNServers)
	relay.AddSink(streams)

	// Downloads
	blobs := downloads.NewBlobRegistry()
	manager := downloads.NewManager(cfg.DownloadsDir, blobs, downloads.AcceptPrompter)
	saver := downloads.NewBlobSaver(blobs, manager, func(res downloads.Result) {
		log.Info().Msgf("Saved %s (%d bytes, download %d)", res.Filename, res.Bytes, res.DownloadID)
	})

	deps := service.ControllerDeps{
		Acquirer: acquirer.New(streams, streams),
		Encoders: streams.Encoders(),
		Saver:    saver,
		Emitter:  relay,
		Settings: store,
		Tabs:     streams,
		Picker:   streams,
	}
	if recordings != nil {
		deps.History = recordings
	}
	durations := ffmpeg.NewMetadataReader(cfg.FFprobePath)
	if err := durations.CheckInstallation(); err != nil {
		log.Warn().Err(err).Msg("Recording durations will not be measured")
	} else {
		deps.Durations = durations
	}

	controller := service.NewController(cfg, deps)
	dispatcher := service.NewDispatcher(controller, manager, relay)
	streams.SetControlHandler(dispatcher.Dispatch)

	// Sweep stale partial downloads
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	go service.NewPartialCleanup(cfg.DownloadsDir, cfg).Start(cleanupCtx)

	// Setup HTTP server
	var history api.RecordingStore
	if recordings != nil {
		history = recordings
	}
	if cfg.AuthEnabled && cfg.PairingCodeHash == "" {
		log.Warn().Msg("AUTH_ENABLED is set without PAIRING_CODE_HASH, control routes stay open")
	}
	tokens := utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiry)
	handler := api.NewHandler(cfg, dispatcher, store, history, streams, tokens)
	router := api.SetupRoutes(handler)
	server := api.NewHTTPServer(cfg, router)

	// Start server in goroutine
	go func() {
		log.Info().Msgf("Server starting on %s", cfg.ServerAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	controller.Shutdown(ctx)
	stopCleanup()
	streams.Close()

	if amqpSink != nil {
		if err := amqpSink.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing RabbitMQ connection")
		}
	}
	if redisStore != nil {
		if err := redisStore.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing Redis client")
		}
	}
	if dbConn != nil {
		dbConn.Close()
	}

	log.Info().Msg("Server exited gracefully")
}
