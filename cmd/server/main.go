// Command server runs the progression and reward engine HTTP API together
// with its background jobs.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/praxislms/progression-engine/internal/api/engine"
	"github.com/praxislms/progression-engine/internal/cache"
	"github.com/praxislms/progression-engine/internal/catalog"
	"github.com/praxislms/progression-engine/internal/config"
	"github.com/praxislms/progression-engine/internal/repository"
	"github.com/praxislms/progression-engine/internal/service/drills"
	"github.com/praxislms/progression-engine/internal/service/leaderboard"
	"github.com/praxislms/progression-engine/internal/service/ledger"
	"github.com/praxislms/progression-engine/internal/service/missions"
	"github.com/praxislms/progression-engine/internal/service/scheduler"
	"github.com/praxislms/progression-engine/internal/service/streaks"
	"github.com/praxislms/progression-engine/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log := logger.Get()

	log.Info().
		Str("environment", cfg.Server.Environment).
		Int("port", cfg.Server.Port).
		Msg("Starting progression engine")

	loc, err := cfg.Engine.GetLocation()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid engine timezone")
	}

	cat, err := catalog.Load(cfg.Engine.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load catalog")
	}
	log.Info().
		Int("missions", len(cat.Missions)).
		Int("drills", len(cat.Drills)).
		Int("achievements", len(cat.Achievements)).
		Msg("Catalog loaded")

	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	redisCache, err := cache.NewRedis(&cfg.Database.Redis, log)
	if err != nil {
		// The engine is correct without Redis; leaderboards just skip caching.
		log.Warn().Err(err).Msg("Redis unavailable, leaderboard caching disabled")
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	// Repositories
	ledgerRepo := repository.NewLedgerRepository(db)
	missionRepo := repository.NewMissionRepository(db)
	drillRepo := repository.NewDrillRepository(db)
	streakRepo := repository.NewStreakRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	achievementRepo := repository.NewAchievementRepository(db)

	// Services
	ledgerService := ledger.NewService(ledgerRepo, log)
	generator := missions.NewGenerator(cat, loc, nil)
	missionService := missions.NewService(missionRepo, ledgerService, statsRepo, generator, log)
	drillService := drills.NewService(drillRepo, cat, ledgerService, missionService, statsRepo, log)
	streakService := streaks.NewService(streakRepo, achievementRepo, statsRepo, ledgerService, cat, loc, log)
	missionService.SetObserver(streakService)
	drillService.SetObserver(streakService)

	var leaderboardCache cache.Cache
	if redisCache != nil && cfg.Engine.LeaderboardCacheTTL > 0 {
		leaderboardCache = redisCache
	}
	leaderboardService := leaderboard.NewService(
		ledgerRepo,
		leaderboardCache,
		time.Duration(cfg.Engine.LeaderboardCacheTTL)*time.Second,
		log,
	)

	schedulerService := scheduler.NewService(cfg, ledgerService, streakService, statsRepo, log)
	if err := schedulerService.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	defer schedulerService.Stop()

	// HTTP server
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := engine.NewHandler(
		missionService,
		drillService,
		ledgerService,
		streakService,
		leaderboardService,
		db,
		log,
	)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().
				Int("port", cfg.Metrics.Port).
				Str("path", cfg.Metrics.Path).
				Msg("Metrics server listening")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}
}
