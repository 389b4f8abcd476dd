package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledgerquest/ledgerquest/pkg/achievements"
	"github.com/ledgerquest/ledgerquest/pkg/api"
	authproviders "github.com/ledgerquest/ledgerquest/pkg/auth/providers"
	"github.com/ledgerquest/ledgerquest/pkg/avatars"
	"github.com/ledgerquest/ledgerquest/pkg/battles"
	"github.com/ledgerquest/ledgerquest/pkg/cache"
	"github.com/ledgerquest/ledgerquest/pkg/config"
	"github.com/ledgerquest/ledgerquest/pkg/log"
	"github.com/ledgerquest/ledgerquest/pkg/notifications"
	"github.com/ledgerquest/ledgerquest/pkg/queue"
	"github.com/ledgerquest/ledgerquest/pkg/repositories"
	"github.com/ledgerquest/ledgerquest/pkg/workers"
	"github.com/ledgerquest/ledgerquest/pkg/worldmap"
)

func main() {
	port := flag.Int("port", 8080, "HTTP port to listen on")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repository := newRepository(ctx, cfg)
	defer repository.Close(ctx)

	cacheLayer := newCache(ctx, cfg)

	authProvider := newAuthProvider(ctx, cfg)

	worldCatalog := worldmap.NewCatalog()
	gate := worldmap.NewGate(worldmap.NewGateOptions{
		Catalog:    worldCatalog,
		Cache:      cacheLayer,
		CatalogTTL: cfg.CatalogCacheTTL,
	})

	achievementCatalog := achievements.NewCatalog()
	evaluator := achievements.NewEvaluator(achievementCatalog)

	avatarStore := avatars.NewStore(avatars.NewStoreOptions{
		Repository:   repository,
		Cache:        cacheLayer,
		AvatarTTL:    cfg.AvatarCacheTTL,
		StoreTimeout: cfg.StoreTimeout,
	})

	events := queue.NewInMemoryQueue(cfg.EventQueueSize)

	engine := battles.NewEngine(battles.NewEngineOptions{
		Repository:        repository,
		Avatars:           avatarStore,
		Gate:              gate,
		Evaluator:         evaluator,
		Events:            events,
		InactivityTimeout: cfg.BattleInactivityTimeout,
	})

	hub := notifications.NewHub()

	notificationWorker := workers.NewNotificationWorker(workers.NewNotificationWorkerOptions{
		Events:    events,
		Notifiers: []notifications.Notifier{notifications.NewLogNotifier(), hub},
		Interval:  cfg.NotifyInterval,
	})
	go notificationWorker.Start(ctx)

	sweepWorker := workers.NewBattleSweepWorker(workers.NewBattleSweepWorkerOptions{
		Engine:   engine,
		Interval: cfg.BattleSweepInterval,
	})
	go sweepWorker.Start(ctx)

	server := api.NewAPIServer(api.NewAPIServerOptions{
		Port:         *port,
		AuthProvider: authProvider,
		Avatars:      avatarStore,
		Engine:       engine,
		Gate:         gate,
		Achievements: achievementCatalog,
		Hub:          hub,
	})
	go server.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server: %v", err)
	}
}

func newRepository(ctx context.Context, cfg *config.Config) repositories.Repository {
	if cfg.DatabaseURL != "" {
		repository, err := repositories.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			panic(fmt.Sprintf("Failed to create postgres repository: %v", err))
		}
		log.Info("Using postgres repository")
		return repository
	}

	repository, err := repositories.NewSQLiteRepository(ctx, cfg.SQLitePath, cfg.SQLiteMigrations)
	if err != nil {
		panic(fmt.Sprintf("Failed to create sqlite repository: %v", err))
	}
	log.Info("Using sqlite repository at %s", cfg.SQLitePath)
	return repository
}

func newCache(ctx context.Context, cfg *config.Config) cache.Cache {
	if cfg.CacheDisabled {
		log.Info("Cache disabled")
		return cache.NewDisabledCache()
	}

	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(ctx, cache.NewRedisCacheOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   "ledgerquest",
		})
		if err != nil {
			// the cache is an accelerator only, degrade instead of
			// failing startup
			log.Warn("Failed to connect to redis, running without cache: %v", err)
			return cache.NewDisabledCache()
		}
		log.Info("Using redis cache at %s", cfg.RedisAddr)
		return redisCache
	}

	memoryCache := cache.NewInMemoryCache()
	go memoryCache.StartJanitor(ctx, time.Minute)
	log.Info("Using in-memory cache")
	return memoryCache
}

func newAuthProvider(ctx context.Context, cfg *config.Config) authproviders.AuthProvider {
	switch cfg.AuthProvider {
	case "firebase":
		provider, err := authproviders.NewFirebaseAuthProvider(ctx, cfg.FirebaseProjectID, cfg.FirebaseAPIKey)
		if err != nil {
			panic(fmt.Sprintf("Failed to create firebase auth provider: %v", err))
		}
		return provider
	default:
		return authproviders.NewJWTAuthProvider(cfg.JWTSecret)
	}
}
