package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/api"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/providers"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/session"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/websocket"
	"github.com/stitts-dev/tourney-sim-dashboard/pkg/config"
	"github.com/stitts-dev/tourney-sim-dashboard/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	client := providers.NewTournamentClient(providers.ClientConfig{
		BaseURL:          cfg.APIBaseURL,
		Timeout:          cfg.APITimeout,
		BreakerThreshold: cfg.CircuitBreakerThreshold,
		BreakerTimeout:   cfg.CircuitBreakerTimeout,
	}, log)

	var snapshots session.SnapshotStore
	if cfg.SessionStore == "redis" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err := session.NewRedisClient(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		snapshots = session.NewRedisSnapshots(redisClient, log)
	}

	sessions := session.NewManager(client, session.Options{
		DefaultRuns:       cfg.DefaultRuns,
		NotificationLimit: cfg.NotificationLimit,
		IdleTTL:           cfg.SessionIdleTTL,
		SweepSchedule:     cfg.SessionSweepSchedule,
		ActionRateLimit:   cfg.ActionRateLimit,
		ActionRateBurst:   cfg.ActionRateBurst,
	}, snapshots, log)
	if err := sessions.Start(); err != nil {
		log.Fatalf("Failed to start session sweeper: %v", err)
	}
	defer sessions.Stop()

	router, err := api.NewRouter(api.Dependencies{
		Config:   cfg,
		Logger:   log,
		Backend:  client,
		Sessions: sessions,
		Hub:      websocket.NewNotificationHub(cfg.CorsOrigins, log),
	})
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}

	for _, route := range router.Routes() {
		log.Debugf("%s %s", route.Method, route.Path)
	}

	// WriteTimeout stays unset: simulations and training have no client-side bound
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.WithService(logger.DashboardService).WithFields(logrus.Fields{
			"port":          cfg.Port,
			"env":           cfg.Env,
			"api_base":      cfg.APIBaseURL,
			"session_store": cfg.SessionStore,
		}).Info("Starting tournament dashboard")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}
