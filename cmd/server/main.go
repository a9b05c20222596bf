package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/inventory-ledger/internal/adapter/events"
	"github.com/rl1809/inventory-ledger/internal/adapter/handler"
	"github.com/rl1809/inventory-ledger/internal/adapter/storage"
	"github.com/rl1809/inventory-ledger/internal/config"
	"github.com/rl1809/inventory-ledger/internal/core/service"
	"github.com/rl1809/inventory-ledger/internal/port"
)

const shutdownTimeout = 5 * time.Second

func main() {
	app := &cli.App{
		Name:  "inventory",
		Usage: "inventory ledger API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "optional dotenv file"},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP and gRPC servers",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply or roll back database migrations",
				Subcommands: []*cli.Command{
					{Name: "up", Action: migrateAction(storage.MigrateUp)},
					{Name: "down", Action: migrateAction(storage.MigrateDown)},
				},
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		logger, _ := zap.NewProduction()
		logger.Fatal("Exited with error", zap.Error(err))
	}
}

func loadConfig(c *cli.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return nil, nil, err
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Level() == zapcore.DebugLevel {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.Level())
	logger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, errors.Wrap(err, "build logger")
	}
	return cfg, logger, nil
}

func openMySQL(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	dsn, err := storage.NormalizeDSN(cfg.MySQLDSN)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQLMaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping mysql")
	}
	return db, nil
}

func migrateAction(direction string) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, logger, err := loadConfig(c)
		if err != nil {
			return err
		}
		defer logger.Sync()

		if cfg.StorageDriver != config.DriverMySQL {
			return errors.Errorf("migrations need STORAGE_DRIVER=%s", config.DriverMySQL)
		}

		db, err := openMySQL(c.Context, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := storage.Migrate(db.DB, direction); err != nil {
			return err
		}
		logger.Info("Migrations applied", zap.String("direction", direction))
		return nil
	}
}

type repositories struct {
	db    port.DatabaseRepository
	users port.UserRepository
	close func()
}

func openRepositories(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*repositories, error) {
	if cfg.StorageDriver == config.DriverMemory {
		logger.Warn("Using in-memory storage; data is lost on exit")
		mem := storage.NewMemoryAdapter()
		return &repositories{db: mem, users: mem, close: func() {}}, nil
	}

	db, err := openMySQL(ctx, cfg)
	if err != nil {
		return nil, err
	}
	parsed, _ := mysql.ParseDSN(cfg.MySQLDSN)
	logger.Info("Connected to MySQL", zap.String("addr", parsed.Addr), zap.String("database", parsed.DBName))

	adapter := storage.NewMySQLAdapter(db)
	return &repositories{db: adapter, users: adapter, close: func() { db.Close() }}, nil
}

func openCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (port.CacheRepository, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("Redis not configured; report cache and replay guard disabled")
		return storage.NoopCache{}, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, errors.Wrap(err, "ping redis")
	}
	logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
	return storage.NewRedisAdapter(rdb, cfg.ReportCacheTTL, cfg.APISigTTL), func() { rdb.Close() }, nil
}

type publisher interface {
	port.EventPublisher
	Close() error
}

func openPublisher(cfg *config.Config, logger *zap.Logger) publisher {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		logger.Info("Kafka not configured; events are logged")
		return events.NewLogPublisher(logger)
	}
	logger.Info("Publishing events to Kafka", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaTopic))
	return events.NewKafkaPublisher(brokers, cfg.KafkaTopic, logger)
}

func serve(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repos.close()

	cache, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	pub := openPublisher(cfg, logger)
	defer pub.Close()

	inventory := service.NewInventoryService(repos.db, cache, pub, logger, cfg.ItemCodePrefix)
	users := service.NewUserService(repos.users, logger, service.DefaultBcryptCost)
	auth := service.NewAuthService(repos.users, users, cfg.JWTSecret, cfg.JWTTTL, logger)

	httpHandler := &handler.HTTPHandler{
		Items: handler.NewItemHandler(inventory, cfg.UploadDir, logger),
		Users: handler.NewUserHandler(users, logger),
		Auth:  handler.NewAuthHandler(auth, logger),
		Signature: handler.SignatureConfig{
			KeyID:  cfg.APIKeyID,
			Secret: cfg.APISecret,
			TTL:    cfg.APISigTTL,
		},
		Replay: cache,
		Logger: logger,
	}
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           httpHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := handler.NewGRPCServer(handler.NewGRPCHandler(inventory), auth, logger)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return errors.Wrap(err, "listen grpc")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("port", cfg.GRPCPort))
		return errors.Wrap(grpcServer.Serve(lis), "grpc server")
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server forced to shutdown", zap.Error(err))
		}
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		return nil
	})

	return g.Wait()
}
