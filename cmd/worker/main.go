package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/merchpulse/storesync/config"
	"github.com/merchpulse/storesync/internal/remote"
	"github.com/merchpulse/storesync/internal/repository"
	"github.com/merchpulse/storesync/internal/repository/postgres"
	"github.com/merchpulse/storesync/internal/service/dispatcher"
	"github.com/merchpulse/storesync/internal/service/initializer"
	"github.com/merchpulse/storesync/internal/service/resync"
	syncService "github.com/merchpulse/storesync/internal/service/sync"
	"github.com/merchpulse/storesync/internal/worker"
	"github.com/merchpulse/storesync/pkg/logger"
	"github.com/merchpulse/storesync/pkg/metrics"
	"github.com/merchpulse/storesync/pkg/security"
)

func setupHealthCheck(appLogger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			appLogger.Fatal(err, "health check server failed")
		}
	}()
}

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

	m := metrics.New("storesync_worker")

	builder := syncService.NewBuilder(catalogRepo, cfg.Store.URL, cfg.Sync.CancelledStateID)
	adapters := syncService.NewAdapters(queueRepo, catalogRepo, builder, m, appLogger)
	bootstrap := initializer.NewService(queueRepo, catalogRepo, cfg.Sync.ChunkSize, appLogger)
	resyncSvc := resync.NewService(queueRepo, catalogRepo, adapters, bootstrap, appLogger)

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
	cleanup := worker.NewCleanupWorker(queueRepo, settingsRepo, cfg.Sync.Retention, cfg.Sync.CleanupInterval, appLogger)

	setupHealthCheck(appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runResync := func() {
		last, err := settingsRepo.LastRun(ctx, repository.GateResync)
		if err != nil {
			appLogger.Error(err, "resync gate check failed")
			return
		}
		if time.Since(last) < cfg.Sync.ResyncInterval {
			return
		}
		if err := settingsRepo.SetLastRun(ctx, repository.GateResync, time.Now()); err != nil {
			appLogger.Error(err, "resync gate update failed")
			return
		}

		creds, err := settingsRepo.Credentials(ctx)
		if err != nil || creds == nil {
			return
		}
		client := clientFactory(creds)
		if err := resyncSvc.Run(ctx, client, client.Overview); err != nil {
			appLogger.Error(err, "resync run failed")
		}
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Sync.ResyncSchedule, runResync); err != nil {
		log.Fatal().Err(err).Msg("invalid resync schedule")
	}
	if _, err := scheduler.AddFunc(cfg.Sync.CleanupSchedule, func() {
		if err := cleanup.Run(ctx); err != nil {
			appLogger.Error(err, "cleanup run failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("invalid cleanup schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("shutting down")
		cancel()
	}()

	appLogger.Info("worker started", "dispatch_interval", cfg.Sync.DispatchInterval.String())

	ticker := time.NewTicker(cfg.Sync.DispatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := dispatchSvc.MaybeTick(ctx); err != nil {
				appLogger.Error(err, "dispatch tick failed")
			}
		}
	}
}
