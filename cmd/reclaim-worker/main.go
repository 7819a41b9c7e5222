package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fitverse/class-booking/internal/repository"
	"github.com/fitverse/class-booking/internal/service"
	"github.com/fitverse/class-booking/internal/worker"
	"github.com/fitverse/class-booking/pkg/config"
	"github.com/fitverse/class-booking/pkg/database"
	"github.com/fitverse/class-booking/pkg/lock"
	"github.com/fitverse/class-booking/pkg/logger"
	pkgredis "github.com/fitverse/class-booking/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCfg := &logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: "reclaim-worker",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Reclaim Worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbCfg := &database.PostgresConfig{
		Host:          cfg.Database.Host,
		Port:          cfg.Database.Port,
		User:          cfg.Database.User,
		Password:      cfg.Database.Password,
		Database:      cfg.Database.DBName,
		SSLMode:       cfg.Database.SSLMode,
		MaxConns:      10,
		MinConns:      2,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to connect to database: %v", err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	redisCfg := &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      20,
		MinIdleConns:  5,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	}
	redis, err := pkgredis.NewClient(ctx, redisCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to connect to Redis: %v", err))
	}
	defer redis.Close()
	appLog.Info("Redis connected")

	// Kafka event publisher; degraded mode without it is acceptable
	var eventPublisher service.EventPublisher
	eventPublisher, err = service.NewKafkaEventPublisher(ctx, &service.EventPublisherConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       "booking-events",
		ServiceName: "reclaim-worker",
		ClientID:    "reclaim-worker",
	})
	if err != nil {
		appLog.Warn(fmt.Sprintf("Kafka connection failed, using no-op publisher: %v", err))
		eventPublisher = service.NewNoOpEventPublisher()
	} else {
		appLog.Info("Kafka event publisher connected")
		defer eventPublisher.Close()
	}

	sessionRepo := repository.NewPostgresSessionRepository(db.Pool())
	bookingRepo := repository.NewPostgresBookingRepository(db.Pool())
	txManager := repository.NewTxManager(db.Pool(), 0)

	lockCfg := lock.DefaultConfig()
	if cfg.Booking.LockTTL > 0 {
		lockCfg.TTL = cfg.Booking.LockTTL
	}
	locker := service.NewSessionLocker(lock.NewManager(redis, lockCfg))

	waitlistSvc := service.NewWaitlistService(service.WaitlistServiceDeps{
		SessionRepo:    sessionRepo,
		BookingRepo:    bookingRepo,
		TxRunner:       txManager,
		Locker:         locker,
		EventPublisher: eventPublisher,
	})

	reclaimWorker := worker.NewReclaimWorker(worker.ReclaimWorkerDeps{
		SessionRepo:    sessionRepo,
		BookingRepo:    bookingRepo,
		TxRunner:       txManager,
		Locker:         locker,
		Waitlist:       waitlistSvc,
		EventPublisher: eventPublisher,
		Config: &worker.ReclaimWorkerConfig{
			ScanInterval: 30 * time.Second,
			PaymentTTL:   cfg.Booking.PaymentTTL,
			BatchSize:    100,
		},
	})

	if err := reclaimWorker.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start reclaim worker: %v", err))
	}

	appLog.Info("Reclaim Worker started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down worker...")
	reclaimWorker.Stop()
	cancel()

	appLog.Info("Worker exited gracefully")
}
