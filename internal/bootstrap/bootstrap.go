// Package bootstrap turns a loaded config into the wired components each
// service binary runs on.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bidding-engine/internal/config"
	"bidding-engine/internal/domain"
	"bidding-engine/internal/infrastructure/gormstore"
	"bidding-engine/internal/infrastructure/leader"
	"bidding-engine/internal/infrastructure/memory"
	"bidding-engine/internal/infrastructure/mysql"
	"bidding-engine/internal/infrastructure/rabbitmq"
	"bidding-engine/internal/infrastructure/redis"
	"bidding-engine/internal/services"
	"bidding-engine/pkg/clock"
	"bidding-engine/pkg/logger"
	"bidding-engine/pkg/utils"

	redisClient "github.com/go-redis/redis/v8"
)

const (
	connectTimeout = 5 * time.Second
	leaderCacheTTL = 24 * time.Hour
)

// Components holds the infrastructure selected by the config. Redis, MySQL
// and BidCache are nil when not configured.
type Components struct {
	Redis *redisClient.Client
	MySQL *sql.DB

	Store         domain.AuctionStore
	Locker        domain.AuctionLocker
	BidCache      domain.LeadingBidCache
	Publisher     domain.EventPublisher
	Subscriber    domain.EventSubscriber
	Leader        domain.LeaderElection
	SchedulerRepo domain.SchedulerRepository

	closers []func() error
	log     logger.Logger
}

// Build connects every backend the config asks for. On error, whatever was
// already opened is closed.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (*Components, error) {
	c := &Components{log: log}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := c.build(ctx, cfg); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Components) build(ctx context.Context, cfg *config.Config) error {
	if cfg.Redis.Enabled {
		rdb, err := utils.InitializeRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		c.Redis = rdb
		c.closers = append(c.closers, rdb.Close)
		c.log.Info("Connected to Redis", "address", cfg.Redis.Address)
	}

	if err := c.buildStore(ctx, cfg); err != nil {
		return err
	}
	if err := c.buildEvents(cfg); err != nil {
		return err
	}

	if c.Redis != nil {
		c.Locker = redis.NewAuctionLocker(c.Redis, cfg.Engine.LockTTL, c.log)
		c.BidCache = redis.NewRedisBidCache(c.Redis, leaderCacheTTL)
		c.Leader = leader.NewRedisLeaderElection(c.Redis, cfg.Leader.TTL)
	} else {
		c.Locker = services.NewKeyedLocker()
		c.Leader = leader.Standalone{}
	}
	return nil
}

func (c *Components) buildStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		c.Store = memory.NewAuctionStore()
		c.SchedulerRepo = memory.NewSchedulerRepository()

	case config.StoreMySQL:
		db, err := c.OpenMySQL(ctx, cfg)
		if err != nil {
			return err
		}
		if err := mysql.Migrate(ctx, db); err != nil {
			return err
		}
		c.Store = mysql.NewMySQLAuctionRepository(db)
		c.SchedulerRepo = mysql.NewMySQLSchedulerRepository(db)

	case config.StorePostgres, config.StoreSQLite:
		db, err := gormstore.Open(cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		c.closers = append(c.closers, sqlDB.Close)
		c.Store = gormstore.NewAuctionStore(db)
		c.SchedulerRepo = gormstore.NewSchedulerRepository(db)

	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	c.log.Info("Auction store ready", "driver", cfg.Store.Driver)
	return nil
}

func (c *Components) buildEvents(cfg *config.Config) error {
	switch cfg.Events.Driver {
	case config.EventsLocal:
		bus := memory.NewEventBus(c.log)
		c.Publisher = bus
		c.Subscriber = bus

	case config.EventsRedis:
		if c.Redis == nil {
			return errors.New("events driver redis requires redis.enabled")
		}
		c.Publisher = redis.NewEventPublisher(c.Redis)
		c.Subscriber = redis.NewRedisEventSubscriber(c.Redis, c.log)

	case config.EventsRabbitMQ:
		client, err := rabbitmq.NewClient(rabbitmq.Config{
			URL:      cfg.Events.RabbitMQURL,
			Exchange: cfg.Events.Exchange,
		}, c.log)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, client.Close)
		c.Publisher = client
		c.Subscriber = client

	default:
		return fmt.Errorf("unknown events driver %q", cfg.Events.Driver)
	}
	c.log.Info("Event transport ready", "driver", cfg.Events.Driver)
	return nil
}

// OpenMySQL returns the shared MySQL pool, opening it on first use.
func (c *Components) OpenMySQL(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if c.MySQL != nil {
		return c.MySQL, nil
	}
	db, err := utils.InitializeMysql(ctx, cfg.MySQL)
	if err != nil {
		return nil, err
	}
	c.MySQL = db
	c.closers = append(c.closers, db.Close)
	c.log.Info("Connected to MySQL")
	return db, nil
}

// Engine wires the lifecycle manager, the cron close scheduler and the
// bidding engine on top of the components.
func (c *Components) Engine(cfg *config.Config, clk clock.Clock) (*services.BiddingEngine, *services.LifecycleManager, *services.CronCloseScheduler) {
	lifecycle := services.NewLifecycleManager(
		c.Store,
		c.Publisher,
		nil, // scheduler is set below
		c.Leader,
		cfg.Instance.ID,
		clk,
		c.log,
	)
	scheduler := services.NewCronCloseScheduler(c.SchedulerRepo, lifecycle, cfg.Scheduler.Spec, clk, c.log)
	lifecycle.SetScheduler(scheduler)

	engine := services.NewBiddingEngine(
		c.Store,
		c.Locker,
		lifecycle,
		c.Publisher,
		c.BidCache,
		clk,
		services.EngineConfig{
			MaxRetries:   cfg.Engine.MaxRetries,
			StoreTimeout: cfg.Engine.StoreTimeout,
		},
		c.log,
	)
	return engine, lifecycle, scheduler
}

// Close releases connections in reverse order of opening.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// IsolationWarnings lists the settings that keep this process from seeing
// state written by the other services. A memory store or local events are
// fine for a single process and silently empty across several.
func IsolationWarnings(cfg *config.Config) []string {
	var warnings []string
	if cfg.Store.Driver == config.StoreMemory {
		warnings = append(warnings, "store.driver=memory: auctions created by other services are not visible here")
	}
	if cfg.Events.Driver == config.EventsLocal {
		warnings = append(warnings, "events.driver=local: events published by other services never arrive here")
	}
	return warnings
}
