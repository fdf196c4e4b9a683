package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"audiocast/internal/core/domain"
	httphandlers "audiocast/internal/handlers/http"
	"audiocast/internal/infrastructure/middleware"
	"audiocast/internal/infrastructure/monitoring"
	webrtcinfra "audiocast/internal/infrastructure/webrtc"
	"audiocast/pkg/config"
	"audiocast/pkg/logger"
	"audiocast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Load the asset up front so a missing file fails the process, not the
	// first session.
	asset, err := domain.LoadAsset(cfg.Stream.AssetPath, cfg.Stream.ChunkSize)
	if err != nil {
		log.Fatalw("failed to load asset", "path", cfg.Stream.AssetPath, "error", err)
	}
	log.Infow("asset loaded",
		"path", cfg.Stream.AssetPath,
		"total_bytes", asset.TotalBytes(),
		"total_chunks", asset.TotalChunks(),
	)

	var iceServers []webrtc.ICEServer
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	collector := monitoring.NewPrometheusCollector()
	registry := webrtcinfra.NewRegistry(collector, log)
	peerManager := webrtcinfra.NewPeerManager(
		webrtcinfra.PeerConfig{
			ICEServers:    iceServers,
			SendInterval:  cfg.Stream.SendInterval,
			HighWaterMark: cfg.Stream.HighWaterMark,
		},
		asset,
		registry,
		collector,
		log,
	)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	offerHandler := httphandlers.NewOfferHandler(peerManager, log)
	offerHandler.SetupRoutes(router)

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting audiocast server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down audiocast server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	}

	// Close every live session's channel before exiting.
	registry.CloseAll()

	if err := tracerProvider.Shutdown(context.Background()); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}

	log.Info("audiocast server stopped")
}
