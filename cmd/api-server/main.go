package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/entitlement"
	"github.com/hackgods/clinic-booking/internal/logger"
	"github.com/hackgods/clinic-booking/internal/metrics"
	"github.com/hackgods/clinic-booking/internal/notify"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("store", cfg.StoreDriver),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(rootCtx, cfg, log); err != nil {
		log.Fatal("api-server stopped with error", zap.Error(err))
	}
	log.Info("api-server stopped")
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	m := metrics.New("clinic")

	var (
		store        appointment.Store
		entitlements appointment.EntitlementChecker
		directory    notify.Directory
		storePinger  api.Pinger

		memStore *appointment.MemoryStore
		memDir   *notify.MemoryDirectory
	)

	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.DefaultPoolConfig)
		cancelPg()
		if err != nil {
			return err
		}
		defer pool.Close()
		log.Info("connected to Postgres")

		applied, err := db.Migrate(ctx, pool)
		if err != nil {
			return err
		}
		log.Info("migrations applied", zap.Int("count", applied))

		store = appointment.NewPgStore(pool)
		entitlements = entitlement.NewPgChecker(pool)
		directory = notify.NewPgDirectory(pool)
		storePinger = pool

	case config.StoreDriverMemory:
		log.Warn("using the in-memory store, data is lost on restart")
		memStore = appointment.NewMemoryStore()
		memDir = notify.NewMemoryDirectory()
		store = memStore
		entitlements = entitlement.NewStaticChecker(true)
		directory = memDir
	}

	var redisPinger api.Pinger
	rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Warn("redis unavailable, entitlement cache disabled", zap.Error(err))
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("error closing redis", zap.Error(err))
			}
		}()
		log.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))
		entitlements = entitlement.NewCachedChecker(entitlements, rdb, cfg.EntitlementCacheTTL, log)
		redisPinger = pingRedis(rdb)
	}

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		return err
	}
	notifier, closeNotifier, err := notify.Open(notify.Options{
		AMQPURL:        cfg.AMQPURL,
		Queue:          cfg.MailQueue,
		From:           cfg.MailFrom,
		DoctorOverride: cfg.DoctorEmailOverride,
		Location:       loc,
	}, log.Named("notify"))
	if err != nil {
		return err
	}
	defer closeNotifier()

	dispatcher := notify.NewDispatcher(notifier, directory, log, cfg.NotifyBuffer, notify.WithObserver(m))
	dispatcher.Start(cfg.NotifyWorkers)

	svc := appointment.NewService(store, entitlements, dispatcher, log.Named("appointment"),
		appointment.WithObserver(m))

	if memStore != nil {
		if err := seedDemo(ctx, cfg, log, svc, memStore, memDir); err != nil {
			return err
		}
	}

	router := api.NewRouter(api.RouterConfig{
		Service:          svc,
		Logger:           log.Named("http"),
		JWTSecret:        []byte(cfg.JWTSecret),
		Store:            storePinger,
		Redis:            redisPinger,
		Metrics:          m,
		BookingRateLimit: cfg.BookingRateLimit,
		AllowedOrigins:   cfg.AllowedOrigins,
		Env:              cfg.Env,
		Version:          version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Warn("notification queue not drained", zap.Error(err))
	}
	return nil
}

func pingRedis(rdb *redis.Client) api.Pinger {
	return api.PingFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
}

// seedDemo fills memory mode with fake doctors, patients and slots and logs tokens to use them.
func seedDemo(ctx context.Context, cfg config.Config, log *zap.Logger, svc *appointment.Service,
	store *appointment.MemoryStore, dir *notify.MemoryDirectory) error {
	data, err := seedMemory(ctx, svc, store, dir, gofakeit.New(0), time.Now(), defaultDemoSize)
	if err != nil {
		return fmt.Errorf("seed memory store: %w", err)
	}
	log.Info("memory store seeded",
		zap.Int("doctors", len(data.Doctors)),
		zap.Int("patients", len(data.Patients)),
		zap.Int("slots", data.Slots),
	)

	secret := []byte(cfg.JWTSecret)
	for _, actor := range []appointment.Actor{data.Admin, data.Patients[0]} {
		token, err := api.SignToken(secret, actor, 24*time.Hour)
		if err != nil {
			return fmt.Errorf("sign demo token: %w", err)
		}
		log.Info("sample token", zap.String("role", string(actor.Role)), zap.Stringer("user_id", actor.ID),
			zap.String("token", token))
	}
	return nil
}
