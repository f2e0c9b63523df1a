package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/autoflowai/autoflow/internal/api/router"
	"github.com/autoflowai/autoflow/internal/availability"
	"github.com/autoflowai/autoflow/internal/bookings"
	appconfig "github.com/autoflowai/autoflow/internal/config"
	"github.com/autoflowai/autoflow/internal/conversation"
	"github.com/autoflowai/autoflow/internal/followup"
	"github.com/autoflowai/autoflow/internal/http/handlers"
	"github.com/autoflowai/autoflow/internal/intake"
	"github.com/autoflowai/autoflow/internal/leads"
	"github.com/autoflowai/autoflow/internal/messaging"
	"github.com/autoflowai/autoflow/internal/notify"
	"github.com/autoflowai/autoflow/internal/observability/metrics"
	"github.com/autoflowai/autoflow/internal/profiles"
	"github.com/autoflowai/autoflow/internal/reminders"
	"github.com/autoflowai/autoflow/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting autoflow API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	redisClient := buildRedisClient(ctx, cfg, logger)

	// Stores
	profileStore := profiles.NewStore(pool)
	leadStore := leads.NewStore(pool)
	convStore := conversation.NewStore(pool)
	bookingStore := bookings.NewStore(pool)
	availabilityStore := availability.NewStore(pool)

	// Intent classifier
	llmClient, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
	if err != nil {
		logger.Error("failed to create gemini client", "error", err)
		os.Exit(1)
	}
	classifier := conversation.NewLLMClassifier(llmClient, cfg.GeminiModelID)

	// Outbound channels
	smsSender := messaging.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	notifySvc := notify.NewService(buildEmailSender(ctx, cfg, logger), logger)

	engineMetrics := metrics.NewEngineMetrics(nil)

	// Core services
	resolver := availability.NewResolver(availabilityStore, bookingStore,
		cfg.SlotLookaheadDays, cfg.SlotTargetDays, cfg.DefaultOpenHour, cfg.DefaultCloseHour)
	engine := conversation.NewEngine(convStore, leadStore, bookingStore, resolver,
		classifier, smsSender, notifySvc, engineMetrics, logger)
	intakeSvc := intake.NewService(leadStore, convStore, smsSender, notifySvc,
		classifier, engineMetrics, logger)
	sweeper := reminders.NewSweeper(profileStore, bookingStore, smsSender,
		engineMetrics, cfg.BusinessTimezone, logger)
	followUps := followup.NewEngine(leadStore, profileStore, classifier, notifySvc,
		engineMetrics, logger)
	deduper := conversation.NewDeduper(redisClient, cfg.DedupeTTL)

	// Signature validation needs the public URL Twilio signed against. An
	// empty token disables validation, which is only safe locally.
	webhookAuthToken := ""
	if cfg.TwilioValidateSig {
		webhookAuthToken = cfg.TwilioAuthToken
	}

	// Initialize handlers
	twilioWebhooks := handlers.NewTwilioWebhookHandler(profileStore, engine, intakeSvc,
		deduper, engineMetrics, webhookAuthToken, cfg.PublicBaseURL, logger)
	leadWebhook := handlers.NewLeadWebhookHandler(profileStore, leadStore, classifier, notifySvc, logger)
	cronHandler := handlers.NewCronHandler(sweeper, followUps, logger)
	adminConversations := handlers.NewAdminConversationsHandler(convStore, logger)

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		TwilioWebhooks:     twilioWebhooks,
		LeadWebhook:        leadWebhook,
		Cron:               cronHandler,
		AdminConversations: adminConversations,
		MetricsHandler:     promhttp.Handler(),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CronSecret:         cfg.CronSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildRedisClient returns a configured Redis client or nil when disabled.
// The webhook deduper treats a nil client as pass-through.
func buildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		logger.Warn("redis not configured, webhook dedupe disabled")
		return nil
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, webhook dedupe disabled", "error", err)
		return nil
	}
	return client
}

// buildEmailSender picks the configured provider: SendGrid by default, SES
// when selected, and a logging stub when neither is configured so owner
// notifications degrade instead of failing.
func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	if cfg.EmailProvider == "ses" && strings.TrimSpace(cfg.SESFromEmail) != "" {
		loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
		if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
			loaders = append(loaders, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
		if err != nil {
			logger.Error("failed to load AWS config, falling back to stub email sender", "error", err)
			return notify.NewStubEmailSender(logger)
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
	}

	if strings.TrimSpace(cfg.SendGridAPIKey) != "" {
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	}

	logger.Warn("no email provider configured, owner notifications disabled")
	return notify.NewStubEmailSender(logger)
}
