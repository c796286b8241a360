package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-sensor-alerts/internal/alerting"
	"github.com/mr1hm/go-sensor-alerts/internal/api"
	"github.com/mr1hm/go-sensor-alerts/internal/channels"
	"github.com/mr1hm/go-sensor-alerts/internal/classifier"
	"github.com/mr1hm/go-sensor-alerts/internal/config"
	internalgrpc "github.com/mr1hm/go-sensor-alerts/internal/grpc"
	"github.com/mr1hm/go-sensor-alerts/internal/ingestion"
	"github.com/mr1hm/go-sensor-alerts/internal/logging"
	"github.com/mr1hm/go-sensor-alerts/internal/metrics"
	"github.com/mr1hm/go-sensor-alerts/internal/repository"
	"github.com/mr1hm/go-sensor-alerts/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sink := metrics.NewPrometheus(reg)

	// Real-time stream for /topic/alerts
	broadcaster := internalgrpc.NewBroadcaster()
	hub := ws.New(broadcaster, alerting.TopicAlerts)
	go hub.Run(ctx)

	chans := channels.NewSet(cfg.Alerts)
	chans.Start(ctx)

	alerts := alerting.NewService(alerting.NewDispatcher(chans.All(), sink), broadcaster, sink)

	registry := classifier.NewDefaultRegistry(cfg.Sensors)
	mgr := ingestion.NewManager(cfg, db, classifier.New(registry), alerts, sink)
	mgr.Start(ctx)

	grpcServer := internalgrpc.NewServer()
	go func() {
		grpcAddr := fmt.Sprintf(":%d", cfg.GRPC.Port)
		if err := grpcServer.Start(grpcAddr); err != nil {
			logging.Fatalf("gRPC server error: %v", err)
		}
	}()

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))

	handler := api.NewHandler(api.Deps{
		Store:    db,
		Ingestor: mgr,
		Alerts:   alerts,
		Registry: registry,
		Phones:   chans.SMS,
		Devices:  chans.Push,
		Stream:   hub,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	grpcServer.SetServing(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Drain in pipeline order: readings, then alert fan-out, then deliveries
	mgr.Stop()
	alerts.Wait()
	chans.Stop()

	cancel()
	broadcaster.Close() // Close all streams gracefully
	grpcServer.Stop()

	slog.Info("shutdown complete", "stats", mgr.Stats())
}
