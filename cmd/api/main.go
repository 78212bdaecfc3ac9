// cmd/api/main.go

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pairlyhq/pairly-backend/internal/auth"
	"github.com/pairlyhq/pairly-backend/internal/chat"
	"github.com/pairlyhq/pairly-backend/internal/common/database"
	"github.com/pairlyhq/pairly-backend/internal/config"
	"github.com/pairlyhq/pairly-backend/internal/content"
	"github.com/pairlyhq/pairly-backend/internal/match"
	"github.com/pairlyhq/pairly-backend/internal/media"
	"github.com/pairlyhq/pairly-backend/internal/ratelimit"
	"github.com/pairlyhq/pairly-backend/pkg/logger"
)

func main() {
	godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic("invalid configuration: " + err.Error())
	}

	log, err := logger.New(logger.Config{Development: cfg.IsDevelopment()})
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	if err := runMigrations(db); err != nil {
		log.Fatalw("failed to run migrations", "error", err)
	}

	redisClient, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	awsSession, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWSRegion),
	})
	if err != nil {
		log.Fatalw("failed to create aws session", "error", err)
	}

	// Shared per-instance sliding-window limiter. The match authorizer
	// and the send pipeline draw from the same window store but use
	// distinct action keys.
	limiter := ratelimit.NewLimiter()
	planLimiter := ratelimit.NewPlanLimiter(limiter, ratelimit.Config{
		MessagesPerMinute:    cfg.MessagesPerMinute,
		MessagesPerHour:      cfg.MessagesPerHour,
		UploadsPerMinute:     cfg.UploadsPerMinute,
		UploadsPerHour:       cfg.UploadsPerHour,
		MatchChecksPerMinute: cfg.MatchChecksPerMinute,
	})

	authorizer := match.NewAuthorizer(
		match.NewPostgresStore(db),
		match.NewRedisCache(redisClient, "match"),
		limiter,
		cfg.MatchChecksPerMinute,
		cfg.MatchCacheTTL,
		log,
	)

	sanitizer := content.NewSanitizer(cfg.MaxMessageLength, cfg.SpamDenylist)

	mediaValidator := media.NewValidator(
		media.ImageLimits{
			Free:        cfg.ImageSizeLimitFree,
			Premium:     cfg.ImageSizeLimitPremium,
			PremiumPlus: cfg.ImageSizeLimitPremiumPlus,
		},
		cfg.VoiceSizeLimit,
		cfg.VoiceMaxDuration,
	)

	objectStore := media.NewS3Store(awsSession, cfg.S3Bucket, cfg.SignedURLExpiry)

	chatRepo := chat.NewPostgresRepository(db)
	quota := chat.NewQuotaEnforcer(chatRepo, cfg.VoiceMessagesPerDay, log)
	notifier := chat.NewRedisNotifier(redisClient, log)

	chatService := chat.NewService(
		chatRepo, authorizer, sanitizer, mediaValidator,
		quota, planLimiter, objectStore, notifier, log,
	)

	hub := chat.NewHub(chatService, log)
	go hub.Run()

	pubsub := redisClient.Subscribe(context.Background(), chat.EventChannel)
	go hub.ConsumeEvents(pubsub)

	authMW := auth.NewMiddleware(cfg.JWTSecret)
	handler := chat.NewHandler(chatService, hub, log)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", promhttp.Handler())

	chat.RegisterRoutes(router, handler, authMW)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	waitForShutdown(server, hub, pubsub, log)
}

func waitForShutdown(server *http.Server, hub *chat.Hub, pubsub interface{ Close() error }, log *zap.SugaredLogger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorw("server shutdown failed", "error", err)
	}

	pubsub.Close()
	hub.Shutdown()

	log.Info("shutdown complete")
}

func runMigrations(db *sqlx.DB) error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id VARCHAR(64) PRIMARY KEY,
        subscription_plan VARCHAR(20) NOT NULL DEFAULT 'free',
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );

    CREATE TABLE IF NOT EXISTS interests (
        id BIGSERIAL PRIMARY KEY,
        from_user_id VARCHAR(64) NOT NULL,
        to_user_id VARCHAR(64) NOT NULL,
        status VARCHAR(20) NOT NULL DEFAULT 'pending',
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (from_user_id, to_user_id)
    );

    CREATE TABLE IF NOT EXISTS messages (
        id BIGSERIAL PRIMARY KEY,
        conversation_id VARCHAR(140) NOT NULL,
        from_user_id VARCHAR(64) NOT NULL,
        to_user_id VARCHAR(64) NOT NULL,
        text TEXT NOT NULL DEFAULT '',
        type VARCHAR(10) NOT NULL DEFAULT 'text',
        media_key TEXT,
        duration INTEGER,
        file_size BIGINT,
        mime_type VARCHAR(100),
        width INTEGER,
        height INTEGER,
        reply_to_message_id BIGINT,
        is_edited BOOLEAN NOT NULL DEFAULT false,
        edited_at TIMESTAMPTZ,
        is_deleted BOOLEAN NOT NULL DEFAULT false,
        deleted_at TIMESTAMPTZ,
        read_at TIMESTAMPTZ,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS idx_messages_conversation
        ON messages (conversation_id, created_at DESC, id DESC);
    CREATE INDEX IF NOT EXISTS idx_messages_voice_quota
        ON messages (from_user_id, created_at) WHERE type = 'voice';

    CREATE TABLE IF NOT EXISTS message_receipts (
        message_id BIGINT NOT NULL REFERENCES messages(id),
        user_id VARCHAR(64) NOT NULL,
        status VARCHAR(10) NOT NULL,
        delivered_at TIMESTAMPTZ,
        read_at TIMESTAMPTZ,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (message_id, user_id)
    );

    CREATE TABLE IF NOT EXISTS conversations (
        conversation_id VARCHAR(140) PRIMARY KEY,
        user_a_id VARCHAR(64) NOT NULL,
        user_b_id VARCHAR(64) NOT NULL,
        last_message_id BIGINT,
        last_message_preview TEXT,
        last_activity TIMESTAMPTZ NOT NULL DEFAULT now(),
        unread_a INTEGER NOT NULL DEFAULT 0,
        unread_b INTEGER NOT NULL DEFAULT 0
    );
    CREATE INDEX IF NOT EXISTS idx_conversations_user_a ON conversations (user_a_id, last_activity DESC);
    CREATE INDEX IF NOT EXISTS idx_conversations_user_b ON conversations (user_b_id, last_activity DESC);

    CREATE TABLE IF NOT EXISTS user_blocks (
        blocker_id VARCHAR(64) NOT NULL,
        blocked_id VARCHAR(64) NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (blocker_id, blocked_id)
    );`

	_, err := db.Exec(schema)
	return err
}
