package main

import (
	"context"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"skillcall/internal/core/domain"
	"skillcall/internal/core/ports"
	"skillcall/internal/core/services"
	httphandlers "skillcall/internal/handlers/http"
	"skillcall/internal/infrastructure/events"
	"skillcall/internal/infrastructure/middleware"
	"skillcall/internal/infrastructure/monitoring"
	repositories "skillcall/internal/infrastructure/repositories"
	"skillcall/internal/infrastructure/signal"
	"skillcall/pkg/config"
	"skillcall/pkg/logger"
	"skillcall/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// lateNotifier breaks the construction cycle between the call/match services
// and the WebSocket gateway: services send through it, and the gateway is
// bound after both sides exist.
type lateNotifier struct {
	ws *signal.WebSocketServer
}

func (n *lateNotifier) Send(userID domain.UserID, msgType string, payload interface{}) error {
	if n.ws == nil {
		return nil
	}
	return n.ws.Send(userID, msgType, payload)
}

func (n *lateNotifier) IsConnected(userID domain.UserID) bool {
	return n.ws != nil && n.ws.IsConnected(userID)
}

var _ ports.Notifier = (*lateNotifier)(nil)

// wsRate returns the per-connection message rate, or 0 (unlimited) when rate
// limiting is disabled.
func wsRate(cfg *config.Config) float64 {
	if !cfg.RateLimiting.Enabled {
		return 0
	}
	return cfg.RateLimiting.WebSocket.MessagesPerSecond
}

func main() {
	startTime := time.Now()

	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/skillcall/config.yaml",
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

	if cfg.Tracing.Enabled {
		tp, err := tracing.Init(tracing.Config{
			Enabled:     true,
			ServiceName: "skillcall-signal",
			JaegerURL:   cfg.Tracing.JaegerURL,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			log.Fatalw("failed to initialize tracing", "error", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				log.Errorw("error shutting down tracer", "error", err)
			}
		}()
	}

	metrics := monitoring.NewPrometheusCollector()

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	presenceRepo := repoFactory.CreatePresenceRepository()
	matchRepo := repoFactory.CreateMatchRepository(presenceRepo)
	callStore := repoFactory.CreateCallStore()

	publisher, err := events.NewNATSPublisher(events.Config{
		URL:           cfg.NATS.URL,
		StreamName:    cfg.NATS.StreamName,
		PendingBuffer: cfg.NATS.PendingBuffer,
		PublishRetry:  cfg.NATS.PublishRetry,
		RetryDelay:    cfg.NATS.RetryDelay,
	}, log, metrics)
	if err != nil {
		log.Fatalw("failed to connect to NATS", "error", err)
	}
	defer publisher.Close()

	authService := services.NewAuthService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)
	credentialService := services.NewCredentialService(
		cfg.Turn.Secret,
		cfg.Turn.CredentialTTL,
		cfg.Turn.STUNURLs,
		cfg.Turn.TURNURLs,
	)

	notifier := &lateNotifier{}
	callService := services.NewCallService(
		callStore, matchRepo, presenceRepo, notifier, publisher, log,
		cfg.Call.AcceptTimeout, cfg.Call.MaxDuration,
	)
	matchService := services.NewMatchService(
		matchRepo, presenceRepo, callService, notifier, log,
		cfg.Matchmaking.MaxSkills, cfg.Matchmaking.AutoCall,
	)

	wsServer := signal.NewWebSocketServer(
		authService, matchService, callService, presenceRepo, metrics, log,
		signal.Options{
			PingInterval:      cfg.Signal.PingInterval,
			PongTimeout:       cfg.Signal.PongTimeout,
			WriteTimeout:      cfg.Signal.WriteTimeout,
			SendBufferSize:    cfg.Signal.SendBufferSize,
			HeartbeatInterval: cfg.Presence.HeartbeatInterval,
			MessagesPerSecond: wsRate(cfg),
			MessageBurst:      cfg.RateLimiting.WebSocket.Burst,
			AllowedOrigins:    cfg.Auth.AllowedOrigins,
		},
	)
	notifier.ws = wsServer

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("repositories", repoFactory.HealthCheck, 2*time.Second)
	healthChecker.AddCheck("nats", publisher.HealthCheck, 2*time.Second)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	ctxLog := logger.NewContextLogger(zapLogger)
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(ctxLog))
	router.Use(middleware.ErrorHandlerMiddleware(ctxLog))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	httphandlers.NewAuthHandler(authService, cfg.Auth.AccessTokenTTL).SetupRoutes(router)
	httphandlers.NewCallHandler(callStore, credentialService, authService).SetupRoutes(router)

	router.GET("/ws", gin.WrapF(wsServer.HandleWebSocket))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting signaling server", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	if err := publisher.Close(); err != nil {
		log.Errorw("error closing event publisher", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}

	log.Info("signaling server stopped")
}
