package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"examcast/internal/core/ports"
	"examcast/internal/core/services"
	httphandlers "examcast/internal/handlers/http"
	"examcast/internal/infrastructure/middleware"
	"examcast/internal/infrastructure/monitoring"
	"examcast/internal/infrastructure/repositories/memory"
	redisrepo "examcast/internal/infrastructure/repositories/redis"
	signalinfra "examcast/internal/infrastructure/signal"
	webrtcinfra "examcast/internal/infrastructure/webrtc"
	"examcast/pkg/config"
	"examcast/pkg/logger"
	"examcast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := os.Getenv("EXAMCAST_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	// Tracing
	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Exam storage: Redis when enabled, in-memory otherwise.
	var examRepo ports.ExamRepository
	if cfg.Redis.Enabled {
		redisClient, err := redisrepo.NewClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			log,
		)
		if err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		examRepo = redisrepo.NewExamRepository(redisClient)
		log.Infow("using redis exam repository", "address", cfg.Redis.Address)
	} else {
		examRepo = memory.NewExamRepository()
	}

	// Media engine
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

	engineConfig := webrtcinfra.Config{ICEServers: iceServers}
	engineConfig.PortRange.Min = cfg.WebRTC.PortRange.Min
	engineConfig.PortRange.Max = cfg.WebRTC.PortRange.Max

	engine, err := webrtcinfra.NewEngine(engineConfig, log)
	if err != nil {
		log.Fatalw("failed to create media engine", "error", err)
	}

	// Metrics
	var metrics ports.MetricsRecorder = ports.NopMetrics{}
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector()
	}

	// Signaling core
	registry := signalinfra.NewRegistry(cfg.Signal.WriteTimeout, log)
	roomService := services.NewRoomService(
		memory.NewRoomDirectory(),
		engine,
		registry,
		metrics,
		log,
	)
	// A failed push to a client is treated as that client disconnecting.
	registry.OnSendFailure(func(clientID string) {
		roomService.Disconnect(context.Background(), clientID)
		registry.Unregister(clientID)
	})

	wsServer := signalinfra.NewWebSocketServer(roomService, registry, metrics, log)
	wsServer.SetTimeouts(cfg.Signal.PingInterval, cfg.Signal.ReadTimeout, cfg.Signal.WriteTimeout)
	if cfg.RateLimiting.Enabled {
		wsServer.SetRateLimit(signalinfra.RateLimit{
			MessagesPerSecond: cfg.RateLimiting.Signal.MessagesPerSecond,
			Burst:             cfg.RateLimiting.Signal.Burst,
			MaxMessageBytes:   cfg.RateLimiting.Signal.MaxMessageSizeBytes,
		})
	}

	// Services behind the HTTP API
	examService := services.NewExamService(examRepo, log)
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	// HTTP router
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	// Mutating exam endpoints are examiner-only when auth is on.
	var guards []gin.HandlerFunc
	if cfg.Auth.Enabled {
		guards = []gin.HandlerFunc{
			middleware.AuthMiddleware(authService),
			middleware.RequireRole("examiner"),
		}
		authHandler := httphandlers.NewAuthHandler(authService, cfg.Auth.AccessTokenTTL)
		authHandler.SetupRoutes(router)
	}

	examHandler := httphandlers.NewExamHandler(examService, roomService, registry)
	examHandler.SetupRoutes(router, guards...)

	router.GET("/ws", func(c *gin.Context) {
		wsServer.HandleWebSocket(c.Writer, c.Request)
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infow("starting server", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// Separate metrics listener so /metrics is never exposed on the API port.
	var metricsSrv *http.Server
	if cfg.Monitoring.PrometheusEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
			Handler: mux,
		}
		go func() {
			log.Infow("starting metrics server", "port", cfg.Monitoring.PrometheusPort)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("metrics server failed", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server shutdown failed", "error", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			log.Errorw("metrics server shutdown failed", "error", err)
		}
	}
	if err := tp.Shutdown(ctx); err != nil {
		log.Errorw("tracing shutdown failed", "error", err)
	}

	log.Info("server stopped")
}
