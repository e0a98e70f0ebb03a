package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/merchpulse/storesync/config"
	eventsHandler "github.com/merchpulse/storesync/internal/handler/events"
	hooksHandler "github.com/merchpulse/storesync/internal/handler/hooks"
	syncHandler "github.com/merchpulse/storesync/internal/handler/sync"
	"github.com/merchpulse/storesync/internal/handler"
	"github.com/merchpulse/storesync/internal/middleware"
	"github.com/merchpulse/storesync/internal/remote"
	"github.com/merchpulse/storesync/internal/repository"
	"github.com/merchpulse/storesync/internal/repository/postgres"
	"github.com/merchpulse/storesync/internal/router"
	"github.com/merchpulse/storesync/internal/service/admin"
	"github.com/merchpulse/storesync/internal/service/dispatcher"
	"github.com/merchpulse/storesync/internal/service/initializer"
	syncService "github.com/merchpulse/storesync/internal/service/sync"
	"github.com/merchpulse/storesync/pkg/logger"
	"github.com/merchpulse/storesync/pkg/metrics"
	"github.com/merchpulse/storesync/pkg/security"
	"github.com/merchpulse/storesync/pkg/validator"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	encryptor, err := security.NewAESEncryptorFromPassphrase(cfg.Sync.SecretKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build credential encryptor")
	}

	baseRepo := postgres.NewBaseRepository(db)
	queueRepo := postgres.NewQueueRepository(baseRepo)
	catalogRepo := postgres.NewCatalogRepository(baseRepo)
	settingsRepo := postgres.NewSettingsRepository(baseRepo, encryptor)

	m := metrics.New("storesync")

	builder := syncService.NewBuilder(catalogRepo, cfg.Store.URL, cfg.Sync.CancelledStateID)
	adapters := syncService.NewAdapters(queueRepo, catalogRepo, builder, m, appLogger)
	bootstrap := initializer.NewService(queueRepo, catalogRepo, cfg.Sync.ChunkSize, appLogger)

	clientFactory := func(creds *repository.Credentials) *remote.Client {
		return remote.NewClient(remote.Config{
			BaseURL:        cfg.Remote.BaseURL,
			APIKey:         creds.APIKey,
			APISecret:      creds.APISecret,
			RequestTimeout: cfg.Remote.RequestTimeout,
			MaxRetries:     cfg.Remote.MaxRetries,
			RateLimit:      cfg.Remote.RateLimit,
			RateBurst:      cfg.Remote.RateBurst,
		}, m, appLogger)
	}

	locker := dispatcher.NewRedisLocker(redisClient)
	dispatchSvc := dispatcher.NewService(queueRepo, catalogRepo, settingsRepo, builder, clientFactory, locker, m, cfg.Sync, appLogger)
	adminSvc := admin.NewService(queueRepo, settingsRepo, bootstrap, clientFactory, appLogger)

	v := validator.New()
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	h := handler.NewHandler(db, redisClient)
	syncH := syncHandler.NewHandler(adminSvc, dispatchSvc, v, appLogger)
	hooksH := hooksHandler.NewHandler(adapters, v, appLogger)
	eventsH := eventsHandler.NewHandler(adapters, appLogger)

	r := router.NewRouter(authMiddleware, syncH, hooksH, eventsH, h, router.RouterConfig{
		RateLimit:  cfg.RateLimit.RequestsPerSecond,
		RateBurst:  cfg.RateLimit.Burst,
		CORSConfig: middleware.DefaultCORSConfig(),
	})
	r.Setup()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("api listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
