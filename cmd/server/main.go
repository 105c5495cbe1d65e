// HTTP Server
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/samuell-k/booking-center-sub004/internal/aggregator"
	"github.com/samuell-k/booking-center-sub004/internal/config"
	"github.com/samuell-k/booking-center-sub004/internal/fraud"
	"github.com/samuell-k/booking-center-sub004/internal/handler"
	"github.com/samuell-k/booking-center-sub004/internal/models"
	"github.com/samuell-k/booking-center-sub004/internal/publisher"
	"github.com/samuell-k/booking-center-sub004/internal/repository"
	"github.com/samuell-k/booking-center-sub004/internal/reservation"
	"github.com/samuell-k/booking-center-sub004/internal/service"
	"github.com/samuell-k/booking-center-sub004/pkg/database"
	"github.com/samuell-k/booking-center-sub004/pkg/logger"
	"github.com/samuell-k/booking-center-sub004/pkg/redis"
)

func main() {
	// Initialize logger
	log := logger.NewLogger("payment-engine")
	defer log.Sync()

	// Load configuration
	cfg, err := config.New()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	// Initialize database
	db, err := database.NewPostgresDB(cfg.DB.URL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	paymentRepo := repository.NewPaymentRepository(db.DB)
	if err := paymentRepo.Migrate(context.Background()); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Initialize Redis for the idempotency fast path
	redisClient := redis.NewRedisClient(cfg.Redis.Addr)
	defer redisClient.Close()

	// Initialize event publisher
	eventPublisher := publisher.NewKafkaPublisher(cfg.Kafka.Brokers, []string{
		models.TopicPaymentCompleted,
		models.TopicPaymentFailed,
		models.TopicTicketIssueRequested,
	}, log)
	defer eventPublisher.Close()

	// Initialize aggregator channels
	primary := aggregator.NewClient(aggregator.Config{
		Name:        cfg.Aggregator.PrimaryName,
		BaseURL:     cfg.Aggregator.PrimaryURL,
		Username:    cfg.Aggregator.PrimaryUsername,
		AccountNo:   cfg.Aggregator.PrimaryAccountNo,
		Secret:      cfg.Aggregator.PrimarySecret,
		CallbackURL: cfg.Aggregator.CallbackURL,
		MinAmount:   cfg.Aggregator.MinAmount,
		Timeout:     cfg.Aggregator.Timeout,
	}, log)

	channels := []service.AggregatorClient{primary}
	if cfg.Aggregator.SecondaryURL != "" {
		secondary := aggregator.NewClient(aggregator.Config{
			Name:        cfg.Aggregator.SecondaryName,
			BaseURL:     cfg.Aggregator.SecondaryURL,
			Username:    cfg.Aggregator.SecondaryUsername,
			AccountNo:   cfg.Aggregator.SecondaryAccountNo,
			Secret:      cfg.Aggregator.SecondarySecret,
			CallbackURL: cfg.Aggregator.CallbackURL,
			MinAmount:   cfg.Aggregator.MinAmount,
			Timeout:     cfg.Aggregator.Timeout,
		}, log)
		channels = append(channels, secondary)
	}
	failover := service.NewFailoverOrchestrator(log, channels...)

	// Initialize fraud scorer
	fraudCfg := fraud.DefaultConfig()
	fraudCfg.Threshold = cfg.Policy.FraudThreshold
	scorer := fraud.NewScorer(paymentRepo, fraudCfg, log)

	// Reservation collaborator
	reservations := reservation.NewClient(cfg.App.ReservationURL, 10*time.Second, log)

	// Initialize payment state machine and reconciler
	paymentService := service.NewPaymentService(paymentRepo, failover, scorer,
		reservations, eventPublisher, redisClient, log, service.Config{
			MaxRetries:          cfg.Policy.MaxRetries,
			IdempotencyCacheTTL: cfg.Policy.IdempotencyCacheTTL,
		})
	reconciler := service.NewReconciler(paymentService, service.ReconcilerConfig{
		Interval:    cfg.Policy.PollInterval,
		MaxAttempts: cfg.Policy.PollMaxAttempts,
	}, log)
	paymentService.AttachReconciler(reconciler)

	// Initialize handlers
	paymentHandler := handler.NewPaymentHandler(paymentService, cfg.Aggregator.WebhookSecret, log)

	// Setup router
	router := setupRouter(paymentHandler, log, cfg.App.Environment)

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info("starting server", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

func setupRouter(paymentHandler *handler.PaymentHandler, log *zap.Logger, environment string) *gin.Engine {
	if environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	// Health checks
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	v1 := router.Group("/api/v1")
	{
		payments := v1.Group("/payments")
		{
			payments.POST("", paymentHandler.CreatePayment)
			payments.GET("/:id", paymentHandler.GetPayment)
			payments.POST("/:id/retry", paymentHandler.RetryPayment)
			payments.POST("/:id/cancel", paymentHandler.CancelPayment)
		}

		v1.GET("/account/balance", paymentHandler.GetAccountBalance)

		// Webhook for the aggregator callback
		v1.POST("/webhooks/aggregator", paymentHandler.AggregatorWebhook)
	}

	return router
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}
