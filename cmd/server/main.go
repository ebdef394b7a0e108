package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/config"
	"github.com/fekuna/omnipos-fulfillment-service/internal/audit"
	"github.com/fekuna/omnipos-fulfillment-service/internal/auth"
	"github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment"
	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory"
	"github.com/fekuna/omnipos-fulfillment-service/internal/notification"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/broker"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/cache"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/logger"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/tracing"
	"github.com/fekuna/omnipos-fulfillment-service/internal/ratelimit"
	"github.com/fekuna/omnipos-fulfillment-service/internal/server"
	"github.com/fekuna/omnipos-fulfillment-service/internal/storage"
	"github.com/fekuna/omnipos-fulfillment-service/internal/storage/memory"
	"github.com/fekuna/omnipos-fulfillment-service/internal/storage/postgres"

	fulH "github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment/handler"
	fulListenerPkg "github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment/listener"
	fulRepoPkg "github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment/repository"
	fulUCPkg "github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment/usecase"

	invH "github.com/fekuna/omnipos-fulfillment-service/internal/inventory/handler"
	invRepoPkg "github.com/fekuna/omnipos-fulfillment-service/internal/inventory/repository"
	invUCPkg "github.com/fekuna/omnipos-fulfillment-service/internal/inventory/usecase"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load()
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}
	if cfg.Server.AppEnv == "dev" || cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = cfg.Logger.Encoding
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing
	shutdownTracing := func(context.Context) error { return nil }
	if cfg.Otel.Enabled {
		fn, err := tracing.SetupTracingSDK(ctx, &tracing.Config{
			Endpoint:    cfg.Otel.Endpoint,
			SampleRatio: cfg.Otel.SampleRatio,
			Insecure:    cfg.Otel.Insecure,
		})
		if err != nil {
			appLogger.Warn("Could not set up tracing, continuing without it", zap.Error(err))
		} else {
			shutdownTracing = fn
			appLogger.Info("Tracing enabled", zap.String("endpoint", cfg.Otel.Endpoint))
		}
	}

	grpcHealth := health.NewServer()
	healthChecks := server.NewHealth(grpcHealth, appLogger)

	// 4. Storage
	var (
		invRepo inventory.Repository
		fulRepo fulfillment.Repository
		txm     storage.TxManager
		closeDB = func() error { return nil }
	)
	switch cfg.Storage.Driver {
	case "memory":
		store := memory.NewStore()
		invRepo, fulRepo, txm = store, store, store
		appLogger.Warn("Using in-memory storage, data is lost on restart")
	default:
		db, err := postgres.NewPostgres(&postgres.Config{
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			DBName:          cfg.Postgres.DBName,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
		})
		if err != nil {
			appLogger.Fatal("Could not connect to database", zap.Error(err))
		}
		closeDB = db.Close
		appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

		if cfg.Storage.AutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				appLogger.Fatal("Could not apply migrations", zap.Error(err))
			}
			appLogger.Info("Database schema is up to date")
		}

		invRepo = invRepoPkg.NewPGRepository(db)
		fulRepo = fulRepoPkg.NewPGRepository(db)
		txm = postgres.NewTxManager(db)
		healthChecks.Register("postgres", db.PingContext)
	}

	// 5. Redis: order locks and rate limiting. Both are optional.
	var (
		locker  fulfillment.Locker
		limiter *ratelimit.Limiter
	)
	redisClient, err := cache.NewRedisClient(&cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		appLogger.Warn("Could not connect to Redis (order locks and rate limiting disabled)", zap.Error(err))
	} else {
		locker = redisClient
		if cfg.RateLimit.Enabled {
			limiter = ratelimit.NewLimiter(redisClient.Client, cfg.RateLimit.KeyPrefix)
		}
		healthChecks.Register("redis", redisClient.Ping)
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// 6. Kafka: audit sink, low stock notifications and the fulfillment listener
	var (
		auditSink audit.Sink            = audit.NewLogSink(appLogger)
		notifier  notification.Notifier = notification.NewLogNotifier(appLogger)
		consumer  broker.Consumer
		closers   []func() error
	)
	if cfg.Kafka.Enabled {
		auditProducer := broker.NewProducer(&broker.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.AuditTopic})
		lowStockProducer := broker.NewProducer(&broker.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.LowStockTopic})
		kafkaConsumer := broker.NewConsumer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.FulfillmentTopic,
			GroupID: cfg.Kafka.GroupID,
		})
		auditSink = audit.NewKafkaSink(auditProducer)
		notifier = notification.NewKafkaNotifier(lowStockProducer)
		consumer = kafkaConsumer
		closers = append(closers, kafkaConsumer.Close, auditProducer.Close, lowStockProducer.Close)
		appLogger.Info("Kafka enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("fulfillment_topic", cfg.Kafka.FulfillmentTopic),
		)
	}

	// 7. UseCases
	recorder := audit.NewRecorder(auditSink, appLogger)
	invUC := invUCPkg.NewInventoryUseCase(invRepo, txm, recorder, notifier, appLogger, invUCPkg.Config{
		ConflictRetries: cfg.Inventory.ConflictRetries,
	})
	fulUC := fulUCPkg.NewFulfillmentUseCase(fulRepo, invUC, txm, recorder, locker, appLogger, fulUCPkg.Config{
		OrderLockTTL:    cfg.Fulfillment.OrderLockTTL,
		ConflictRetries: cfg.Inventory.ConflictRetries,
	})

	// 8. HTTP
	router := server.NewRouter(server.RouterConfig{
		Inventory:   invH.NewInventoryHandler(invUC, appLogger),
		Fulfillment: fulH.NewFulfillmentHandler(fulUC, appLogger),
		Health:      healthChecks,
		JWT: auth.NewJWTManager(auth.JWTConfig{
			SecretKey: cfg.JWT.SecretKey,
			Issuer:    cfg.JWT.Issuer,
		}),
		CSRFEnabled: cfg.CSRF.Enabled,
		CSRF: auth.CSRFConfig{
			CookieName: cfg.CSRF.CookieName,
			HeaderName: cfg.CSRF.HeaderName,
			Secure:     cfg.Server.AppEnv == "production",
		},
		Limiter:        limiter,
		RateLimit:      ratelimit.Config{Limit: cfg.RateLimit.Limit, Window: cfg.RateLimit.Window},
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         appLogger,
	})
	httpServer := &http.Server{
		Addr:              normalizePort(cfg.Server.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 9. gRPC: health + reflection
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(auth.ContextInterceptor()),
	)
	healthpb.RegisterHealthServer(grpcServer, grpcHealth)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", normalizePort(cfg.Server.GRPCPort))
	if err != nil {
		appLogger.Fatal("failed to listen", zap.Error(err))
	}

	// 10. Run
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.Info("Starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		appLogger.Info("Starting gRPC server", zap.String("addr", lis.Addr().String()))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		return healthChecks.Watch(gctx, 15*time.Second)
	})
	if consumer != nil {
		listener := fulListenerPkg.NewFulfillmentListener(consumer, fulUC, appLogger)
		g.Go(func() error { return listener.Start(gctx) })
	}

	stop := func(ctx context.Context) error {
		appLogger.Info("Shutting down server...")
		grpcHealth.Shutdown()

		errs := []error{httpServer.Shutdown(ctx)}
		grpcServer.GracefulStop()
		cancel()
		errs = append(errs, g.Wait())

		for _, c := range closers {
			errs = append(errs, c())
		}
		if redisClient != nil {
			errs = append(errs, redisClient.Close())
		}
		errs = append(errs, closeDB(), shutdownTracing(ctx))

		appLogger.Info("Server stopped")
		_ = appLogger.Sync()
		return errors.Join(errs...)
	}

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.Server.ShutdownTimeout, map[string]gfshutdown.Operation{
		"server": stop,
	})

	go func() {
		<-gctx.Done()
		if ctx.Err() == nil {
			appLogger.Error("Server component failed", zap.Error(context.Cause(gctx)))
			p, _ := os.FindProcess(os.Getpid())
			_ = p.Signal(os.Interrupt)
		}
	}()

	code := <-wait
	exitAfter(code, os.Exit, func() error { cancel(); return nil }, appLogger.Sync)
}

// exitAfter runs flush in order before exit, since os.Exit skips deferred calls.
func exitAfter(code int, exit func(int), flush ...func() error) {
	for _, f := range flush {
		_ = f()
	}
	exit(code)
}

func normalizePort(port string) string {
	if !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}
