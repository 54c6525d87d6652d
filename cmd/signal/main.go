package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pairline/internal/core/domain"
	"pairline/internal/core/ports"
	"pairline/internal/core/services"
	httphandlers "pairline/internal/handlers/http"
	"pairline/internal/infrastructure/distributed"
	"pairline/internal/infrastructure/identity"
	"pairline/internal/infrastructure/middleware"
	"pairline/internal/infrastructure/moderation"
	"pairline/internal/infrastructure/monitoring"
	"pairline/internal/infrastructure/reliability"
	"pairline/internal/infrastructure/repositories"
	signalserver "pairline/internal/infrastructure/signal"
	webrtcinfra "pairline/internal/infrastructure/webrtc"
	"pairline/pkg/circuitbreaker"
	"pairline/pkg/config"
	"pairline/pkg/logger"
	"pairline/pkg/retry"
	"pairline/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	flags := pflag.NewFlagSet("pairline", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "configs/config.yaml", "path to the YAML configuration file")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if err := run(cfg, zapLogger); err != nil {
		log.Fatalw("pairline stopped with error", "error", err)
	}
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	log := zapLogger.Sugar()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("tracer shutdown failed", "error", err)
		}
	}()

	repoFactory := repositories.NewRepositoryFactory(cfg, log)
	defer func() {
		if err := repoFactory.Close(); err != nil {
			log.Errorw("error closing repository factory", "error", err)
		}
	}()
	reportRepo := repoFactory.CreateReportRepository()
	userRepo := repoFactory.CreateUserRepository()

	var external ports.IdentityResolver
	if cfg.Auth.OIDC.Enabled {
		resolver, err := identity.NewOIDCResolver(ctx, cfg.Auth.OIDC.IssuerURL, cfg.Auth.OIDC.ClientID, log)
		if err != nil {
			return fmt.Errorf("init oidc: %w", err)
		}
		defer resolver.Close()
		external = resolver
		log.Infow("oidc identity provider enabled", "issuer", cfg.Auth.OIDC.IssuerURL)
	}
	authService := services.NewAuthService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
		userRepo,
		external,
		log,
	)

	wordFilter := moderation.NewWordFilter(nil, cfg.Moderation.Replacement, log)
	if path := cfg.Moderation.WordListPath; path != "" {
		if err := wordFilter.LoadFile(path); err != nil {
			return fmt.Errorf("load word list: %w", err)
		}
		if cfg.Moderation.WatchChanges {
			if err := wordFilter.Watch(ctx, path); err != nil {
				log.Warnw("word list hot reload disabled", "path", path, "error", err)
			}
		}
	}

	reportRecorder := reliability.NewReportRecorderWrapper(
		reportRepo,
		userRepo,
		retry.DefaultConfig(),
		circuitbreaker.DefaultConfig(),
		log,
	)

	instanceID := uuid.NewString()
	var events ports.EventPublisher = services.NoopPublisher
	if client := repoFactory.RedisClient(); client != nil {
		bus := distributed.NewEventBus(client, cfg.Redis.EventChannel, instanceID, log)
		defer bus.Close()
		events = bus
		go func() {
			err := bus.Subscribe(ctx, func(ev *domain.LifecycleEvent) error {
				log.Debugw("lifecycle event from peer instance",
					"type", ev.Type,
					"instance_id", ev.InstanceID,
					"session_id", ev.SessionID,
				)
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warnw("event bus subscription ended", "error", err)
			}
		}()
	}

	metricsService := services.NewMetricsService()
	var metrics ports.MetricsRecorder = metricsService
	var collector *monitoring.PrometheusCollector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewPrometheusCollector(nil)
		metrics = services.MultiRecorder{metricsService, collector}
	}

	qualityService, err := services.NewQualityService(services.QualityPolicy{
		Catalog:       domain.DefaultCatalog(),
		DefaultTier:   cfg.Quality.DefaultTier,
		FreeCeiling:   cfg.Quality.FreeCeiling,
		ProCeiling:    cfg.Quality.ProCeiling,
		HeadroomRatio: cfg.Quality.HeadroomRatio,
		MaxRoundTrip:  cfg.Quality.MaxRoundTrip,
		MaxPacketLoss: cfg.Quality.MaxPacketLoss,
	})
	if err != nil {
		return fmt.Errorf("init quality policy: %w", err)
	}

	webrtcConfig := webrtcinfra.ClientConfig(cfg.WebRTC.ICEServers)
	if err := webrtcinfra.Validate(webrtcConfig, cfg.WebRTC.PortRange.Min, cfg.WebRTC.PortRange.Max); err != nil {
		return fmt.Errorf("invalid webrtc configuration: %w", err)
	}

	seed := cfg.Matching.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	coordinator := services.NewCoordinator(
		services.CoordinatorConfig{
			PreferredWeight: cfg.Matching.PreferredWeight,
			StaleAfter:      cfg.Matching.StaleAfter,
			SweepInterval:   cfg.Matching.SweepInterval,
			MaxChatBytes:    cfg.Moderation.MaxTextBytes,
			Quality: services.QualityControllerConfig{
				SampleInterval: cfg.Quality.SampleInterval,
				WindowSize:     cfg.Quality.WindowSize,
			},
			WebRTC: webrtcConfig,
			Rand:   rand.New(rand.NewSource(seed)),
		},
		qualityService,
		wordFilter,
		reportRecorder,
		metrics,
		events,
		log,
	)
	coordinatorDone := make(chan struct{})
	go func() {
		defer close(coordinatorDone)
		coordinator.Run(ctx)
	}()

	wsConfig := signalserver.DefaultConfig()
	wsConfig.PingInterval = cfg.Signal.PingInterval
	wsConfig.PongTimeout = cfg.Signal.PongTimeout
	wsConfig.WriteTimeout = cfg.Signal.WriteTimeout
	wsConfig.AuthTimeout = cfg.Signal.AuthTimeout
	wsConfig.SendQueueSize = cfg.Signal.SendQueueSize
	wsConfig.AllowedOrigins = cfg.Signal.AllowedOrigins
	wsConfig.MaxMessageSize = cfg.RateLimiting.WebSocket.MaxMessageSizeBytes
	if cfg.RateLimiting.Enabled {
		wsConfig.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		wsConfig.MessageBurst = cfg.RateLimiting.WebSocket.Burst
	} else {
		wsConfig.MessagesPerSecond = 0
	}
	wsServer := signalserver.NewWebSocketServer(coordinator, authService, wsConfig, log.Named("signal"))

	checker := monitoring.NewHealthChecker()
	if client := repoFactory.RedisClient(); client != nil {
		checker.AddRedisCheck(client, cfg.Monitoring.HealthInterval, cfg.Monitoring.HealthTimeout)
	}
	if cfg.Monitoring.MaxConnections > 0 {
		checker.AddCapacityCheck(coordinator.ConnectedCount, cfg.Monitoring.MaxConnections, cfg.Monitoring.HealthInterval)
	}
	checker.StartBackgroundChecks(ctx)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	if collector != nil {
		router.Use(middleware.MetricsMiddleware(collector))
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	router.Use(
		middleware.TracingMiddleware(),
		middleware.RequestLogMiddleware(logger.NewContextLogger(zapLogger)),
		middleware.ErrorHandlerMiddleware(log),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)

	router.GET(cfg.Signal.Path, gin.WrapF(wsServer.HandleWebSocket))
	httphandlers.NewHealthHandler(checker).RegisterRoutes(&router.RouterGroup)

	api := router.Group("/api/v1")
	for _, h := range []ports.HTTPHandler{
		httphandlers.NewAuthHandler(authService, cfg.Auth.GuestEnabled, log),
		httphandlers.NewStatsHandler(coordinator, metricsService, reportRepo, authService),
	} {
		h.RegisterRoutes(api)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting pairline signaling server",
			"address", cfg.Server.Address,
			"instance_id", instanceID,
			"redis", repoFactory.UsingRedis(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		cancel()
		<-coordinatorDone
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("graceful shutdown failed, closing", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}
	<-coordinatorDone

	log.Info("pairline signaling server stopped")
	return nil
}
