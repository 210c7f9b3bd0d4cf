package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-settlement/internal/api/handlers"
	"auction-settlement/internal/config"
	"auction-settlement/internal/domain"
	"auction-settlement/internal/events"
	"auction-settlement/internal/infrastructure/leader"
	"auction-settlement/internal/infrastructure/mysql"
	"auction-settlement/internal/infrastructure/redis"
	"auction-settlement/internal/keyregistry"
	"auction-settlement/internal/ledger"
	"auction-settlement/internal/metrics"
	"auction-settlement/internal/notification"
	"auction-settlement/internal/services"
	"auction-settlement/internal/settlement"
	"auction-settlement/internal/signature"
	"auction-settlement/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// keySource is a registry that the maintenance scheduler can refresh.
type keySource interface {
	domain.KeyRegistry
	services.KeyReloader
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run wires and runs the service, returning the process exit code so that
// deferred cleanup happens before the process exits.
func run(args []string) int {
	flags := pflag.NewFlagSet("settlement-service", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to a YAML config file")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Error("Failed to load config", "error", err)
		bootLog.Sync()
		return 1
	}

	log := logger.NewWithLevel(cfg.Log.Level)
	defer log.Sync()
	log.Info("Starting settlement service", "config", cfg.GetConfigString())

	// Initialize Redis
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		return 1
	}
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	keys, db, err := newKeySource(ctx, cfg, rdb, log)
	if err != nil {
		log.Error("Failed to initialize key registry", "source", cfg.Keys.Source, "error", err)
		return 1
	}
	if db != nil {
		defer db.Close()
	}

	m := metrics.NewNop()
	if cfg.Metrics.Enabled {
		if m, err = metrics.NewDatadog(cfg.Metrics.Address, cfg.Metrics.Namespace, log); err != nil {
			log.Error("Failed to initialize metrics", "error", err)
			return 1
		}
	}
	defer m.Close()

	codec, err := events.NewCodec(cfg.Bus.Codec)
	if err != nil {
		log.Error("Failed to initialize codec", "error", err)
		return 1
	}

	publisher := redis.NewEventPublisher(rdb)
	subscriber := redis.NewRedisEventSubscriber(rdb, cfg.Bus.ReconnectBaseWait, cfg.Bus.ReconnectMaxWait, log)

	auctions := ledger.NewMemoryLedger(log)
	router := notification.NewRouter(publisher, events.NewEncoder(codec), cfg.Bus.NotificationPrefix, cfg.Bus.PublishTimeout, m, log)
	engine := settlement.NewEngine(auctions, signature.NewVerifier(keys), router, m, log,
		settlement.WithRejectionEvents(cfg.Settlement.PublishRejections))
	dispatcher := services.NewDispatcher(events.NewDecoder(codec), engine, cfg.Settlement.Workers, cfg.Settlement.QueueLength, m, log)
	defer dispatcher.Close(30 * time.Second)

	var election domain.LeaderElection
	if cfg.Leader.Enabled {
		election = leader.NewRedisLeaderElection(rdb, cfg.Leader.Key, cfg.Leader.TTL, log)
	}
	consumer := services.NewConsumer(subscriber, election, cfg.Instance.ID, cfg.Leader.RetryInterval,
		dispatcher.HandleMessage, log, cfg.Bus.BroadcastChannel, cfg.Bus.SettlementChannel)

	scheduler := services.NewCronMaintenanceScheduler(auctions, keys, m, log)
	if err := scheduler.Start(cfg.Keys.RefreshSchedule, cfg.Settlement.StatsSchedule); err != nil {
		log.Error("Failed to start scheduler", "error", err)
		return 1
	}
	defer scheduler.Stop()

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	handlers.NewAuctionHandler(e, auctions, handlers.HealthCheckFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}))

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Info("Starting admin server", "address", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()
	log.Info("Shutting down settlement service...")

	if runErr != nil {
		if errors.Is(runErr, domain.ErrLeadershipLost) {
			log.Error("Exiting after losing leadership", "instance_id", cfg.Instance.ID)
		} else {
			log.Error("Settlement service failed", "error", runErr)
		}
		return 1
	}
	log.Info("Settlement service stopped")
	return 0
}

func newKeySource(ctx context.Context, cfg *config.Config, rdb *redisClient.Client, log logger.Logger) (keySource, *sql.DB, error) {
	switch cfg.Keys.Source {
	case "redis":
		store := redis.NewKeyStore(rdb, cfg.Keys.RedisHash)
		return keyregistry.NewCachedRegistry(store, cfg.Keys.CacheSizeMB, cfg.Keys.CacheTTL, log), nil, nil
	case "mysql":
		db, err := mysql.Open(ctx, cfg.MySQL.DSN, cfg.MySQL.MaxOpenConns, cfg.MySQL.MaxIdleConns, cfg.MySQL.ConnMaxLifetime)
		if err != nil {
			return nil, nil, err
		}
		repo := mysql.NewMySQLKeyRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info("Connected to MySQL")
		return keyregistry.NewCachedRegistry(repo, cfg.Keys.CacheSizeMB, cfg.Keys.CacheTTL, log), db, nil
	default:
		registry, err := keyregistry.NewFileRegistry(cfg.Keys.Dir, cfg.Keys.FilePattern, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Loaded bidder keys", "dir", cfg.Keys.Dir, "count", registry.Len())
		return registry, nil, nil
	}
}
