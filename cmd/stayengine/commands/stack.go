package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"stayengine/internal/app/engine"
	"stayengine/internal/app/middleware"
	appoutbox "stayengine/internal/app/outbox"
	"stayengine/internal/app/policies"
	"stayengine/internal/app/uow"
	"stayengine/internal/domain/availability"
	"stayengine/internal/domain/pricing"
	"stayengine/internal/infra/broker/kafka"
	"stayengine/internal/infra/config"
	"stayengine/internal/infra/db/mongo"
	"stayengine/internal/infra/db/postgres"
	"stayengine/internal/infra/fixtures"
	"stayengine/internal/infra/lock"
	"stayengine/internal/infra/obs"
	"stayengine/internal/infra/outbox"
	"stayengine/internal/infra/storage/bolt"
	"stayengine/internal/infra/storage/memory"
)

const eventSource = "app://stayengine"

// stack is everything the commands share: storage, messaging and the engine.
type stack struct {
	engine      *engine.Engine
	factory     uow.UoWFactory
	listings    fixtures.ListingSaver
	outbox      appoutbox.Outbox
	queue       outbox.Queue
	producer    *kafka.Producer
	idempotency middleware.IdempotencyStore
	purge       func(context.Context) error
	checks      []obs.Check
	closers     []func(context.Context) error
}

func buildStack(ctx context.Context, cfg config.Config, logger *slog.Logger) (*stack, error) {
	s := &stack{}
	if len(cfg.KafkaBrokers) > 0 {
		p, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		s.producer = p
		s.closers = append(s.closers, func(context.Context) error { return p.Close() })
	}

	var locker availability.Locker = availability.NoopLocker{}
	switch cfg.Store {
	case config.StoreMemory:
		if err := s.memory(cfg); err != nil {
			return nil, s.fail(ctx, err)
		}
		locker = availability.NewLocalLocker()
	case config.StoreMongo:
		if err := s.mongo(ctx, cfg); err != nil {
			return nil, s.fail(ctx, err)
		}
	case config.StorePostgres:
		if err := s.postgres(ctx, cfg); err != nil {
			return nil, s.fail(ctx, err)
		}
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		s.closers = append(s.closers, func(context.Context) error { return client.Close() })
		s.checks = append(s.checks, obs.Check{Name: "redis", Probe: func(ctx context.Context) error { return client.Ping(ctx).Err() }})
		locker = lock.NewRedisLocker(client, cfg.LockTTL)
	}

	var notifier policies.Notifier = logNotifier{logger: logger}
	if s.producer != nil {
		notifier = kafka.Notifier{Publisher: s.producer, TopicPrefix: cfg.KafkaTopicPrefix}
	}

	fees, err := pricing.NewFeeSchedule(cfg.GuestServiceFeePercent, cfg.HostServiceFeePercent)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	eng, err := engine.New(engine.Options{
		UoWFactory:         s.factory,
		Gateway:            memory.NewSandboxGateway(),
		Notifier:           notifier,
		Outbox:             s.outbox,
		Encoder:            appoutbox.JSONEventEncoder{Source: eventSource},
		Idempotency:        s.idempotency,
		Locker:             locker,
		Fees:               fees,
		RequestTTL:         cfg.RequestTTL,
		RetryBackoff:       cfg.FirstBackoff(),
		MaxPaymentAttempts: cfg.RetryAttempts(),
		Logger:             logger,
	})
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	s.engine = eng
	return s, nil
}

func (s *stack) memory(cfg config.Config) error {
	listingsRepo := memory.NewListingRepository()
	s.factory = memory.Factory{ListingsRepo: listingsRepo, BookingsRepo: memory.NewBookingRepository()}
	s.listings = listingsRepo

	var sink memory.Sink
	if s.producer != nil {
		sink = outbox.Sink{Producer: s.producer, TopicPrefix: cfg.KafkaTopicPrefix, Source: eventSource}
	}
	s.outbox = memory.NewOutbox(sink)

	if cfg.BoltPath == "" {
		s.idempotency = memory.NewIdempotencyStore(cfg.IdempotencyTTL)
		return nil
	}
	store, err := bolt.Open(cfg.BoltPath, cfg.IdempotencyTTL)
	if err != nil {
		return fmt.Errorf("bolt: %w", err)
	}
	s.idempotency = store
	s.purge = func(ctx context.Context) error {
		_, err := store.Purge(ctx)
		return err
	}
	s.closers = append(s.closers, func(context.Context) error { return store.Close() })
	return nil
}

func (s *stack) mongo(ctx context.Context, cfg config.Config) error {
	client, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return fmt.Errorf("mongo: %w", err)
	}
	s.closers = append(s.closers, client.Close)
	if err := client.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("mongo schema: %w", err)
	}
	factory := mongo.NewFactory(client.DB)
	s.factory = factory
	s.listings = mongo.NewListingRepository(client.DB)
	box, err := outbox.NewMongoStore(ctx, client.DB, time.Minute)
	if err != nil {
		return err
	}
	s.outbox, s.queue = box, box
	idem, err := mongo.NewIdempotencyStore(ctx, client.DB, cfg.IdempotencyTTL)
	if err != nil {
		return err
	}
	s.idempotency = idem
	s.checks = append(s.checks, obs.Check{Name: "mongo", Probe: client.Ping})
	return nil
}

func (s *stack) postgres(ctx context.Context, cfg config.Config) error {
	db, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, func(context.Context) error { return postgres.Close(db) })
	if err := postgres.Migrate(ctx, db); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	s.factory = postgres.NewFactory(db)
	s.listings = postgres.NewListingRepository(db)
	box := postgres.NewOutboxStore(db, time.Minute)
	s.outbox, s.queue = box, box
	idem := postgres.NewIdempotencyStore(db, cfg.IdempotencyTTL)
	s.idempotency = idem
	s.purge = func(ctx context.Context) error {
		_, err := idem.Purge(ctx)
		return err
	}
	s.checks = append(s.checks, obs.Check{Name: "postgres", Probe: func(ctx context.Context) error { return postgres.Ping(ctx, db) }})
	return nil
}

// relay returns the outbox worker, or nil when nothing would publish.
func (s *stack) relay(cfg config.Config, logger *slog.Logger) *outbox.Worker {
	if s.queue == nil || s.producer == nil {
		return nil
	}
	return &outbox.Worker{
		Store:       s.queue,
		Producer:    s.producer,
		Interval:    cfg.OutboxPollInterval,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Source:      eventSource,
		ID:          "relay-" + uuid.NewString()[:8],
		Backoff:     cfg.RetryBackoff,
		Logger:      logger,
	}
}

func (s *stack) fail(ctx context.Context, err error) error {
	return errors.Join(err, s.Close(ctx))
}

// Close releases resources in reverse order of acquisition.
func (s *stack) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// logNotifier stands in for a delivery channel when no broker is configured.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) Notify(ctx context.Context, userID, eventType string, payload any) error {
	n.logger.InfoContext(ctx, "notification", "user_id", userID, "event", eventType, "payload", payload)
	return nil
}
