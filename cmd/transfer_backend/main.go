package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	portsrepo "github.com/SscSPs/money_transfer_saga/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/money_transfer_saga/internal/core/ports/services"
	"github.com/SscSPs/money_transfer_saga/internal/core/services"
	"github.com/SscSPs/money_transfer_saga/internal/events"
	"github.com/SscSPs/money_transfer_saga/internal/events/memory"
	"github.com/SscSPs/money_transfer_saga/internal/events/rabbitmq"
	"github.com/SscSPs/money_transfer_saga/internal/handlers"
	"github.com/SscSPs/money_transfer_saga/internal/middleware"
	"github.com/SscSPs/money_transfer_saga/internal/outbox"
	"github.com/SscSPs/money_transfer_saga/internal/platform/config"
	"github.com/SscSPs/money_transfer_saga/internal/repositories/database/pgsql"
	memstore "github.com/SscSPs/money_transfer_saga/internal/repositories/memory"
	"github.com/SscSPs/money_transfer_saga/pkg/database"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service stopped with error", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
	logger.Info("Service stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	repos, closeStorage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	b, err := openBroker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	publisher := events.NewResilientPublisher(b.publisher, events.BreakerSettings{Name: "outbox-publisher"},
		3, 100*time.Millisecond, logger.With(slog.String("component", "publisher")))
	defer b.close(publisher)

	svc := services.NewServiceContainer(cfg, repos, services.NewLogAlerter(logger.With(slog.String("component", "alerting"))))

	g, gctx := errgroup.WithContext(ctx)

	if err := subscribeAudit(gctx, cfg, b.subscriber, repos, svc, logger); err != nil {
		return err
	}

	relay := outbox.NewRelay(repos.OutboxRepo, publisher,
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithPublishTimeout(cfg.OutboxPublishTimeout),
		outbox.WithLogger(logger.With(slog.String("component", "outbox-relay"))),
	)

	router, err := newRouter(cfg, svc, logger)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("Server starting", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		// a nil channel (in-memory broker) never fires
		select {
		case <-gctx.Done():
			return nil
		case err := <-b.failures:
			logger.Error("Event broker lost, shutting down", slog.String("error", err.Error()))
			return err
		}
	})
	g.Go(func() error {
		return services.RunRecovery(gctx, svc.Recovery, cfg.RecoveryInterval, logger.With(slog.String("component", "recovery")))
	})

	return g.Wait()
}

// openStorage returns the repositories for the configured driver and a func releasing them.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (portsrepo.RepositoryProvider, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		logger.Warn("Using in-memory storage")
		return memstore.NewStore().Provider(), func() {}, nil
	}

	logger.Info("Running database migrations...")
	if err := database.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, logger); err != nil {
		return portsrepo.RepositoryProvider{}, nil, err
	}

	dbPool, err := database.NewPgxPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return portsrepo.RepositoryProvider{}, nil, err
	}
	logger.Info("Database connection pool established.")
	return pgsql.NewRepositoryProvider(dbPool), func() { database.ClosePgxPool(dbPool, logger) }, nil
}

// broker is the event transport. close releases it once the wrapping publisher is done with
// it; failures yields a transport loss that consumers cannot recover from.
type broker struct {
	publisher  events.Publisher
	subscriber events.Subscriber
	close      func(events.Publisher)
	failures   <-chan error
}

func openBroker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*broker, error) {
	brokerLogger := logger.With(slog.String("component", "broker"))

	if cfg.EventBroker == config.BrokerMemory {
		mem := memory.NewBroker(memory.WithLogger(brokerLogger))
		return &broker{
			publisher:  mem,
			subscriber: mem,
			close: func(p events.Publisher) {
				if err := p.Close(); err != nil {
					brokerLogger.Error("Failed to close in-memory broker", slog.String("error", err.Error()))
				}
			},
		}, nil
	}

	conn, err := rabbitmq.Dial(ctx, cfg.RabbitMQURL, brokerLogger)
	if err != nil {
		return nil, err
	}
	pub, err := rabbitmq.NewPublisher(conn, cfg.RabbitMQExchange, brokerLogger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	sub := rabbitmq.NewSubscriber(conn, cfg.RabbitMQExchange, 10, brokerLogger)
	logger.Info("Connected to RabbitMQ", slog.String("exchange", cfg.RabbitMQExchange))

	return &broker{
		publisher:  pub,
		subscriber: sub,
		failures:   sub.Failed(),
		close: func(p events.Publisher) {
			if err := p.Close(); err != nil {
				brokerLogger.Error("Failed to close RabbitMQ publisher", slog.String("error", err.Error()))
			}
			sub.Wait()
			if err := conn.Close(); err != nil {
				brokerLogger.Error("Failed to close RabbitMQ connection", slog.String("error", err.Error()))
			}
		},
	}, nil
}

// subscribeAudit feeds account and balance events to the audit trail.
func subscribeAudit(ctx context.Context, cfg *config.Config, sub events.Subscriber, repos portsrepo.RepositoryProvider, svc *portssvc.ServiceContainer, logger *slog.Logger) error {
	consumer := events.NewConsumer(cfg.ConsumerGroup, repos.DeadLetterRepo,
		events.WithMaxAttempts(cfg.ConsumerMaxAttempts),
		events.WithConsumerLogger(logger.With(slog.String("component", "audit-consumer"))),
	)

	subscriptions := map[domain.EventType]events.EventHandler{
		domain.AccountCreated: svc.Audit.HandleAccountCreated,
		domain.BalanceUpdated: svc.Audit.HandleBalanceUpdated,
	}
	for eventType, handle := range subscriptions {
		topic := domain.TopicFor(eventType)
		if err := sub.Subscribe(ctx, topic, cfg.ConsumerGroup, consumer.Wrap(events.DecodeEvents(handle))); err != nil {
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}
	}
	return nil
}

func newRouter(cfg *config.Config, svc *portssvc.ServiceContainer, logger *slog.Logger) (*gin.Engine, error) {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware (logging, recovery, cors)
	r.Use(middleware.StructuredLoggingMiddleware(logger), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if err := r.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
	}

	transferLimiter, err := middleware.NewRateLimiter(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	handlers.RegisterRoutes(r, cfg, svc, transferLimiter)
	return r, nil
}
