package di

import (
	"github.com/fitverse/class-booking/internal/gateway"
	"github.com/fitverse/class-booking/internal/handler"
	"github.com/fitverse/class-booking/internal/repository"
	"github.com/fitverse/class-booking/internal/service"
	"github.com/fitverse/class-booking/pkg/config"
	"github.com/fitverse/class-booking/pkg/database"
	"github.com/fitverse/class-booking/pkg/lock"
	"github.com/fitverse/class-booking/pkg/redis"
)

// Container holds all dependencies for the class booking service
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Repositories
	SessionRepo repository.SessionRepository
	BookingRepo repository.BookingRepository
	BlockStore  repository.MemberBlockStore
	TxManager   *repository.TxManager

	// Concurrency
	Locker service.SessionLocker

	// Gateways
	PaymentClient gateway.PaymentClient
	MemberClient  gateway.MemberClient
	Notifier      gateway.Notifier

	// Publishers
	EventPublisher service.EventPublisher

	// Services
	BookingService  service.BookingService
	WaitlistService service.WaitlistService

	// Handlers
	HealthHandler   *handler.HealthHandler
	BookingHandler  *handler.BookingHandler
	WaitlistHandler *handler.WaitlistHandler
	AdminHandler    *handler.AdminHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	Config         *config.Config
	DB             *database.PostgresDB
	Redis          *redis.Client
	PaymentClient  gateway.PaymentClient
	MemberClient   gateway.MemberClient
	Notifier       gateway.Notifier
	EventPublisher service.EventPublisher
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:             cfg.DB,
		Redis:          cfg.Redis,
		PaymentClient:  cfg.PaymentClient,
		MemberClient:   cfg.MemberClient,
		Notifier:       cfg.Notifier,
		EventPublisher: cfg.EventPublisher,
	}

	// Repositories
	c.SessionRepo = repository.NewPostgresSessionRepository(cfg.DB.Pool())
	c.BookingRepo = repository.NewPostgresBookingRepository(cfg.DB.Pool())
	c.BlockStore = repository.NewRedisMemberBlockStore(cfg.Redis)
	c.TxManager = repository.NewTxManager(cfg.DB.Pool(), 0)

	// Session lease manager
	lockCfg := lock.DefaultConfig()
	if cfg.Config != nil {
		if cfg.Config.Booking.LockTTL > 0 {
			lockCfg.TTL = cfg.Config.Booking.LockTTL
		}
		if cfg.Config.Booking.LockRetries > 0 {
			lockCfg.MaxRetries = cfg.Config.Booking.LockRetries
		}
		if cfg.Config.Booking.LockRetryInterval > 0 {
			lockCfg.RetryInterval = cfg.Config.Booking.LockRetryInterval
		}
	}
	c.Locker = service.NewSessionLocker(lock.NewManager(cfg.Redis, lockCfg))

	// Services
	c.WaitlistService = service.NewWaitlistService(service.WaitlistServiceDeps{
		SessionRepo:    c.SessionRepo,
		BookingRepo:    c.BookingRepo,
		TxRunner:       c.TxManager,
		Locker:         c.Locker,
		PaymentClient:  c.PaymentClient,
		MemberClient:   c.MemberClient,
		Notifier:       c.Notifier,
		EventPublisher: c.EventPublisher,
	})

	c.BookingService = service.NewBookingService(service.BookingServiceDeps{
		SessionRepo:    c.SessionRepo,
		BookingRepo:    c.BookingRepo,
		BlockStore:     c.BlockStore,
		TxRunner:       c.TxManager,
		Locker:         c.Locker,
		Waitlist:       c.WaitlistService,
		PaymentClient:  c.PaymentClient,
		MemberClient:   c.MemberClient,
		Notifier:       c.Notifier,
		EventPublisher: c.EventPublisher,
	})

	// Handlers
	c.HealthHandler = handler.NewHealthHandler(c.DB, c.Redis)
	c.BookingHandler = handler.NewBookingHandler(c.BookingService)
	c.WaitlistHandler = handler.NewWaitlistHandler(c.WaitlistService)
	c.AdminHandler = handler.NewAdminHandler(c.DB)

	return c
}
