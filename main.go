package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/Perceptus-Labs/voicenav-go-sdk/config"
	"github.com/Perceptus-Labs/voicenav-go-sdk/handlers"
	"github.com/Perceptus-Labs/voicenav-go-sdk/transcript"
	"github.com/Perceptus-Labs/voicenav-go-sdk/utils"
)

func main() {
	// config.Load reads .env before the environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		ForceColors:   true,
		FullTimestamp: true,
	})
	log.Info("Server Version: Voice Navigation V1")

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create zap logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	zap.ReplaceGlobals(zapLogger)

	var transcripts handlers.TranscriptStores
	if cfg.TranscriptBackend == config.BackendRedis {
		redisClient := redis.NewClient(&redis.Options{
			Addr:        cfg.RedisHost,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: 20 * time.Second, // initial connection timeout
		})
		defer redisClient.Close()

		redisCtx, cancelRedis := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := redisClient.Ping(redisCtx).Result()
		cancelRedis()
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		log.Info("Successfully connected to Redis")

		// a room's transcript lives as long as its token
		transcripts = func(roomName string) transcript.Store {
			return utils.NewRedisTranscriptStore(redisClient, roomName, cfg.TokenTTL)
		}
	} else {
		log.Info("Transcripts are kept in the browser session only")
	}

	archive, err := utils.OpenSQLiteArchive(cfg.TranscriptArchivePath)
	if err != nil {
		log.Fatalf("Failed to open transcript archive: %v", err)
	}
	defer archive.Close()

	validator := utils.NewCallerValidator(cfg.AuthJWTSecret)
	signer := utils.NewTokenSigner(cfg.RoomAPIKey, cfg.RoomAPISecret, cfg.TokenTTL)
	api := handlers.NewAPIHandler(validator, signer, cfg.RoomURL, cfg.TokenRatePerMinute, transcripts, archive, zapLogger)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	api.Routes(r.Group("/api"))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Set up signal handling
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverExit := make(chan struct{})

	// Start HTTP server in a goroutine
	go func() {
		defer close(serverExit)
		log.Info("Starting server on ", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error: ", err)
		}
	}()

	// On termination, close all connections and shut down the server
	select {
	case <-stop:
		log.Info("Shutting down server...")
	case <-serverExit:
		log.Info("Server exited unexpectedly...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed: ", err)
	}

	log.Info("Server shut down gracefully")
}
