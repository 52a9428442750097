package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logger"
)

type seedConfig struct {
	Doctors        int
	Patients       int
	SlotsPerDoctor int
	SlotMinutes    int
}

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
		log.Fatal("seed requires STORE_DRIVER=postgres")
	}

	sc := seedConfig{
		Doctors:        envInt("SEED_DOCTORS", 10),
		Patients:       envInt("SEED_PATIENTS", 500),
		SlotsPerDoctor: envInt("SEED_SLOTS_PER_DOCTOR", 40),
		SlotMinutes:    envInt("SEED_SLOT_MINUTES", 60),
	}
	log.Info("seed starting",
		zap.Int("doctors", sc.Doctors),
		zap.Int("patients", sc.Patients),
		zap.Int("slots_per_doctor", sc.SlotsPerDoctor),
	)

	ctx := context.Background()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connectCtx, cfg.PostgresDSN, db.DefaultPoolConfig)
	cancel()
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	doctors, err := seedDoctors(ctx, pool, sc.Doctors)
	if err != nil {
		log.Fatal("seed doctors", zap.Error(err))
	}
	log.Info("doctors seeded", zap.Int("count", len(doctors)))

	patients, err := seedPatients(ctx, pool, sc.Patients)
	if err != nil {
		log.Fatal("seed patients", zap.Error(err))
	}
	log.Info("patients seeded", zap.Int("count", len(patients)))

	admin, err := insertUser(ctx, pool, appointment.RoleAdmin)
	if err != nil {
		log.Fatal("seed admin", zap.Error(err))
	}

	slots, err := seedSlots(ctx, pool, log, doctors, sc)
	if err != nil {
		log.Fatal("seed slots", zap.Error(err))
	}
	log.Info("slots seeded", zap.Int("count", slots))

	// Tokens for poking at the API by hand.
	secret := []byte(cfg.JWTSecret)
	for _, actor := range []appointment.Actor{
		{ID: admin, Role: appointment.RoleAdmin},
		{ID: patients[0], Role: appointment.RolePatient},
	} {
		token, err := api.SignToken(secret, actor, 24*time.Hour)
		if err != nil {
			log.Fatal("sign token", zap.Error(err))
		}
		log.Info("sample token", zap.String("role", string(actor.Role)), zap.Stringer("user_id", actor.ID),
			zap.String("token", token))
	}

	log.Info("seed complete")
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertUser(ctx context.Context, q execer, role appointment.Role) (uuid.UUID, error) {
	id := uuid.New()
	_, err := q.Exec(ctx, `
		INSERT INTO users (id, name, surname, email, role)
		VALUES ($1, $2, $3, $4, $5)
	`, id, gofakeit.FirstName(), gofakeit.LastName(), uniqueEmail(id), string(role))
	return id, err
}

// uniqueEmail keeps fake addresses unique across repeated seed runs.
func uniqueEmail(id uuid.UUID) string {
	return fmt.Sprintf("%s.%s@%s", gofakeit.Username(), id.String()[:8], gofakeit.DomainName())
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	baseDurations := []int{15, 20, 30, 45}
	ids := make([]uuid.UUID, 0, count)

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			id, err := insertUser(ctx, tx, appointment.RoleDoctor)
			if err != nil {
				return err
			}

			// Roughly a third of the doctors consult for free.
			basePrice := int64(0)
			if gofakeit.Number(0, 2) > 0 {
				basePrice = int64(gofakeit.Number(5, 50)) * 100_000
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO doctor_profiles (user_id, base_duration_minutes, base_price_kobo, extra_block_price_kobo)
				VALUES ($1, $2, $3, $4)
			`, id, baseDurations[gofakeit.Number(0, len(baseDurations)-1)], basePrice,
				int64(gofakeit.Number(1, 10))*100_000)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	plans := []string{"basic", "family", "premium"}

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			for i := offset; i < end; i++ {
				id, err := insertUser(ctx, tx, appointment.RolePatient)
				if err != nil {
					return err
				}
				ids = append(ids, id)

				// Most patients hold an active subscription; the rest exercise the entitlement check.
				status := "ACTIVE"
				if gofakeit.Number(0, 9) == 0 {
					status = "EXPIRED"
				}
				_, err = tx.Exec(ctx, `
					INSERT INTO subscriptions (id, user_id, plan_name, status, end_date)
					VALUES ($1, $2, $3, $4, now() + interval '1 year')
				`, uuid.New(), id, plans[gofakeit.Number(0, len(plans)-1)], status)
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return ids, nil
}

// seedSlots offers back-to-back windows starting tomorrow at 09:00 UTC, through the
// same store the API uses so overlap rules hold.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger, doctors []uuid.UUID, sc seedConfig) (int, error) {
	store := appointment.NewPgStore(pool)
	svc := appointment.NewService(store, nil, nil, log.Named("appointment"))
	admin := appointment.SystemActor

	day := time.Now().UTC().Truncate(24 * time.Hour).Add(24*time.Hour + 9*time.Hour)
	length := time.Duration(sc.SlotMinutes) * time.Minute
	perDay := 8

	created := 0
	for _, doctorID := range doctors {
		for i := 0; i < sc.SlotsPerDoctor; i++ {
			start := day.Add(time.Duration(i/perDay)*24*time.Hour + time.Duration(i%perDay)*length)
			w, err := appointment.NewWindow(start, start.Add(length))
			if err != nil {
				return created, err
			}
			if _, err := svc.CreateSlot(ctx, admin, doctorID, w); err != nil {
				return created, fmt.Errorf("doctor %s: %w", doctorID, err)
			}
			created++
		}
	}
	return created, nil
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
