package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/entitlement"
	"github.com/hackgods/clinic-booking/internal/logger"
	"github.com/hackgods/clinic-booking/internal/notify"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

const jobName = "expire-pending-payments"

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

	if cfg.StoreDriver != config.StoreDriverPostgres {
		log.Fatal("expiry-worker requires STORE_DRIVER=postgres")
	}
	if cfg.PendingPaymentTTL <= 0 {
		log.Info("PENDING_PAYMENT_TTL is 0, nothing to do")
		return
	}

	log.Info("expiry-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Duration("pending_payment_ttl", cfg.PendingPaymentTTL),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.DefaultPoolConfig)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pool.Close()
	log.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}()
	log.Info("connected to Redis")

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		log.Fatal("invalid clinic timezone", zap.Error(err))
	}
	notifier, closeNotifier, err := notify.Open(notify.Options{
		AMQPURL:        cfg.AMQPURL,
		Queue:          cfg.MailQueue,
		From:           cfg.MailFrom,
		DoctorOverride: cfg.DoctorEmailOverride,
		Location:       loc,
	}, log.Named("notify"))
	if err != nil {
		log.Fatal("notifier setup error", zap.Error(err))
	}
	defer closeNotifier()

	dispatcher := notify.NewDispatcher(notifier, notify.NewPgDirectory(pool), log, cfg.NotifyBuffer)
	dispatcher.Start(cfg.NotifyWorkers)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := dispatcher.Close(ctx); err != nil {
			log.Warn("notification queue not drained", zap.Error(err))
		}
	}()

	// The sweep never books, so the entitlement checker is never consulted.
	svc := appointment.NewService(appointment.NewPgStore(pool), entitlement.NewStaticChecker(false), dispatcher,
		log.Named("appointment"))
	locker := redisclient.NewRedisJobLocker(rdb, cfg.LockTTL)

	// Run once at startup
	runOnce(rootCtx, log, locker, svc, cfg.PendingPaymentTTL)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, log, locker, svc, cfg.PendingPaymentTTL)
		}
	}
}

func runOnce(ctx context.Context, log *zap.Logger, locker redisclient.Locker, svc *appointment.Service, ttl time.Duration) {
	start := time.Now()

	var expired int
	err := locker.WithJobLock(ctx, jobName, func(ctx context.Context) error {
		n, err := svc.ExpireStalePending(ctx, ttl)
		expired = n
		return err
	})
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		log.Debug("another replica holds the sweep lock")
	case err != nil:
		log.Error("expiry run error", zap.Error(err))
	default:
		log.Info("expiry run complete", zap.Int("expired", expired), zap.Duration("took", time.Since(start)))
	}
}
