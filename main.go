package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // Import pprof for profiling
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fitverse/class-booking/internal/di"
	"github.com/fitverse/class-booking/internal/gateway"
	"github.com/fitverse/class-booking/internal/metrics"
	"github.com/fitverse/class-booking/internal/service"
	"github.com/fitverse/class-booking/internal/worker"
	"github.com/fitverse/class-booking/pkg/config"
	"github.com/fitverse/class-booking/pkg/database"
	pkgkafka "github.com/fitverse/class-booking/pkg/kafka"
	"github.com/fitverse/class-booking/pkg/logger"
	"github.com/fitverse/class-booking/pkg/middleware"
	pkgredis "github.com/fitverse/class-booking/pkg/redis"
	"github.com/fitverse/class-booking/pkg/telemetry"
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCfg := &logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: "class-booking",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Class Booking Service...")

	ctx := context.Background()

	// Tracing
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	}); err != nil {
		appLog.Warn(fmt.Sprintf("Telemetry init failed, continuing without tracing: %v", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Metrics init failed: %v", err))
	}

	// Database
	dbCfg := &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   1 * time.Second,
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()
	appLog.Info(fmt.Sprintf("Database connected (pool: min=%d, max=%d)", dbCfg.MinConns, dbCfg.MaxConns))

	// Redis
	redisCfg := &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
	}
	redisClient, err := pkgredis.NewClient(ctx, redisCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Redis connection failed: %v", err))
	}
	defer redisClient.Close()
	appLog.Info("Redis connected")

	// Kafka event publisher; a broker outage must not stop bookings
	var eventPublisher service.EventPublisher
	eventPublisher, err = service.NewKafkaEventPublisher(ctx, &service.EventPublisherConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       "booking-events",
		ServiceName: "class-booking",
		ClientID:    cfg.Kafka.ClientID,
	})
	if err != nil {
		appLog.Warn(fmt.Sprintf("Kafka connection failed, using no-op publisher: %v", err))
		eventPublisher = service.NewNoOpEventPublisher()
	} else {
		appLog.Info("Kafka event publisher connected")
		defer eventPublisher.Close()
	}

	// Notification producer shares the Kafka cluster
	var notifier gateway.Notifier = gateway.NewNoOpNotifier()
	notifierProducer, err := pkgkafka.NewProducer(ctx, &pkgkafka.ProducerConfig{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: cfg.Kafka.ClientID + "-notifier",
	})
	if err != nil {
		appLog.Warn(fmt.Sprintf("Notification producer unavailable, using no-op notifier: %v", err))
	} else {
		notifier = gateway.NewKafkaNotifier(notifierProducer, "notifications")
		defer notifierProducer.Close()
	}

	// Collaborator services
	paymentClient := gateway.NewHTTPPaymentClient(&gateway.PaymentClientConfig{
		BaseURL: cfg.Services.BillingServiceURL,
		Timeout: 10 * time.Second,
	})
	memberClient := gateway.NewHTTPMemberClient(&gateway.MemberClientConfig{
		BaseURL: cfg.Services.MemberServiceURL,
		Timeout: 5 * time.Second,
	})

	container := di.NewContainer(&di.ContainerConfig{
		Config:         cfg,
		DB:             db,
		Redis:          redisClient,
		PaymentClient:  paymentClient,
		MemberClient:   memberClient,
		Notifier:       notifier,
		EventPublisher: eventPublisher,
	})

	// In-process reclaim worker; can also run standalone via
	// cmd/reclaim-worker
	reclaimWorker := worker.NewReclaimWorker(worker.ReclaimWorkerDeps{
		SessionRepo:    container.SessionRepo,
		BookingRepo:    container.BookingRepo,
		TxRunner:       container.TxManager,
		Locker:         container.Locker,
		Waitlist:       container.WaitlistService,
		EventPublisher: container.EventPublisher,
		Config: &worker.ReclaimWorkerConfig{
			ScanInterval: 30 * time.Second,
			PaymentTTL:   cfg.Booking.PaymentTTL,
			BatchSize:    100,
		},
	})
	if err := reclaimWorker.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start reclaim worker: %v", err))
	}
	defer reclaimWorker.Stop()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
		gin.DisableConsoleColor()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware("class-booking"))

	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"version": cfg.App.Version,
				"service": "class-booking",
			})
		})

		authCfg := &middleware.AuthConfig{
			Secret:              cfg.JWT.Secret,
			Issuer:              cfg.JWT.Issuer,
			AllowHeaderFallback: cfg.IsDevelopment(),
		}

		idempotencyConfig := middleware.DefaultIdempotencyConfig(redisClient.Client())
		idempotencyConfig.SkipPaths = []string{"/health", "/ready"}

		bookings := v1.Group("/bookings")
		bookings.Use(middleware.MemberAuth(authCfg))
		{
			bookings.POST("", middleware.IdempotencyMiddleware(idempotencyConfig), container.BookingHandler.CreateBooking)
			bookings.POST("/:id/confirm-payment", middleware.IdempotencyMiddleware(idempotencyConfig), container.BookingHandler.ConfirmPayment)
			bookings.POST("/:id/cancel", middleware.IdempotencyMiddleware(idempotencyConfig), container.BookingHandler.CancelBooking)

			bookings.GET("", container.BookingHandler.GetMemberBookings)
			bookings.GET("/:id", container.BookingHandler.GetBooking)
		}

		schedules := v1.Group("/schedules")
		schedules.Use(middleware.MemberAuth(authCfg))
		{
			schedules.GET("/:id/waitlist", container.WaitlistHandler.GetWaitlist)
			schedules.POST("/:id/waitlist/promote", container.WaitlistHandler.PromoteNext)
			schedules.POST("/:id/waitlist/notify", container.WaitlistHandler.NotifyAvailability)
		}

		waitlist := v1.Group("/waitlist")
		waitlist.Use(middleware.MemberAuth(authCfg))
		{
			waitlist.DELETE("/:id", container.WaitlistHandler.RemoveEntry)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.MemberAuth(authCfg))
		{
			admin.POST("/resync-capacity", container.AdminHandler.ResyncCapacity)
			admin.GET("/capacity-status", container.AdminHandler.GetCapacityStatus)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	// pprof on a side port
	go func() {
		pprofAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port+1000)
		appLog.Info(fmt.Sprintf("pprof server listening on %s", pprofAddr))
		if err := http.ListenAndServe(pprofAddr, nil); err != nil {
			appLog.Error(fmt.Sprintf("pprof server error: %v", err))
		}
	}()

	go func() {
		appLog.Info(fmt.Sprintf("Class Booking Service listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Fatal(fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	appLog.Info("Server exited gracefully")
}
