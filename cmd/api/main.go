package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"sentio/internal/capture"
	"sentio/internal/classifier"
	"sentio/internal/config"
	"sentio/internal/db"
	"sentio/internal/domain"
	"sentio/internal/feed"
	apihttp "sentio/internal/http"
	"sentio/internal/repository"
	"sentio/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	var (
		events repository.EventRepository = repository.NewMemoryEventRepository()
		health apihttp.HealthCheck
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal("db schema", zap.Error(err))
		}
		events = repository.NewPgEventRepository(pool)
		health = func(ctx context.Context) error { return db.Ping(ctx, pool) }
	} else {
		logger.Warn("DATABASE_URL not set, events are kept in memory")
	}

	var (
		liveFeed    feed.Feed               = feed.NewMemoryFeed()
		chatLimiter service.ChatRateLimiter = service.NewMemoryChatRateLimiter(cfg.ChatRateWindow, cfg.ChatRateLimit)
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-process feed", zap.Error(err))
		} else {
			liveFeed = feed.NewRedisFeed(redisClient, cfg.RedisChannel, logger)
			chatLimiter = service.NewRedisChatRateLimiter(redisClient, cfg.ChatRateWindow, cfg.ChatRateLimit)
		}
		cancel()
	}

	catalog, err := service.LoadRecommendationCatalog(cfg.RecommendationsFile)
	if err != nil {
		logger.Fatal("recommendation catalog", zap.Error(err))
	}
	recs := service.NewRecommendationTracker(catalog)
	tones := service.NewToneTracker()
	publisher := service.NewPublisher(events, liveFeed, logger, cfg.PersistTimeout, recs, tones)

	classifierClient := classifier.NewClient(cfg.ClassifierBaseURL, cfg.ClassifierTimeout, logger)
	device := capture.NewPushDevice()
	manager := capture.NewManager(device, classifierClient, publisher, map[domain.Modality]time.Duration{
		domain.ModalityFace:  cfg.FaceInterval,
		domain.ModalityVoice: cfg.VoiceInterval,
	}, logger)
	chatSvc := service.NewChatService(classifierClient, publisher, tones, chatLimiter, logger)
	dashboardSvc := service.NewDashboardService(events, cfg.DashboardWindow)

	var jwtSvc *service.JWTService
	if cfg.JWTSecret != "" {
		jwtSvc = service.NewJWTService(cfg.JWTSecret, 0)
	} else {
		logger.Warn("jwt secret not configured, identifying users by X-User-ID")
	}

	router := apihttp.NewRouter(
		logger,
		apihttp.IdentityMiddleware(jwtSvc),
		apihttp.NewCaptureHandler(logger, manager, device),
		apihttp.NewChatHandler(logger, chatSvc),
		apihttp.NewInsightsHandler(logger, catalog, recs, events),
		apihttp.NewDashboardHandler(logger, dashboardSvc, liveFeed),
		health,
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	manager.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	publisher.Wait()
}
