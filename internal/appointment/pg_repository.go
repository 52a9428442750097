package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const (
	slotColumns        = "id, doctor_id, start_time_utc, end_time_utc, created_at"
	appointmentColumns = "id, patient_id, doctor_id, start_time_utc, end_time_utc, base_duration_minutes, " +
		"extra_minutes, extra_blocks, total_price_kobo, status, created_at, updated_at"
)

type PgRepository struct {
	db dbtx
}

// PgStore runs the repository against a pool and opens read-committed transactions.
// Correctness under concurrency comes from the row locks and per-doctor advisory locks
// taken inside WithinTx, not from the isolation level.
type PgStore struct {
	*PgRepository
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{PgRepository: &PgRepository{db: pool}, pool: pool}
}

func (s *PgStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &PgRepository{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Helpers

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var start, end time.Time

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&start,
		&end,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.Window = Window{Start: start.UTC(), End: end.UTC()}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var start, end time.Time

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&start,
		&end,
		&a.BaseDurationMinutes,
		&a.ExtraMinutes,
		&a.ExtraBlocks,
		&a.TotalPriceKobo,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Window = Window{Start: start.UTC(), End: end.UTC()}
	return &a, nil
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Availability

func (r *PgRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) GetSlotForUpdate(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) FindOverlappingSlots(ctx context.Context, doctorID uuid.UUID, w Window) ([]Slot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE doctor_id = $1
		  AND start_time_utc < $3
		  AND end_time_utc > $2
		ORDER BY start_time_utc
	`, doctorID, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgRepository) CreateSlot(ctx context.Context, doctorID uuid.UUID, w Window) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO availability_slots (id, doctor_id, start_time_utc, end_time_utc, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING `+slotColumns,
		uuid.New(), doctorID, w.Start, w.End)
	return scanSlot(row)
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM availability_slots WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) ListSlots(ctx context.Context, f SlotFilter) ([]Slot, error) {
	q := psql.Select(slotColumns).
		From("availability_slots").
		OrderBy("start_time_utc ASC")

	if f.DoctorID != nil {
		q = q.Where(sq.Eq{"doctor_id": *f.DoctorID})
	}
	if f.From != nil {
		q = q.Where(sq.Gt{"start_time_utc": *f.From})
	}
	if f.To != nil {
		q = q.Where(sq.Lt{"start_time_utc": *f.To})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list slots query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgRepository) GetPricingProfile(ctx context.Context, doctorID uuid.UUID) (*PricingProfile, error) {
	var p PricingProfile

	err := r.db.QueryRow(ctx, `
		SELECT user_id, base_duration_minutes, base_price_kobo, extra_block_price_kobo
		FROM doctor_profiles
		WHERE user_id = $1
	`, doctorID).Scan(&p.DoctorID, &p.BaseDurationMinutes, &p.BasePriceKobo, &p.ExtraBlockPriceKobo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Appointments

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) FindOverlappingAppointments(ctx context.Context, doctorID uuid.UUID, w Window) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status <> 'CANCELLED'
		  AND start_time_utc < $3
		  AND end_time_utc > $2
		ORDER BY start_time_utc
	`, doctorID, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, doctor_id, start_time_utc, end_time_utc,
			base_duration_minutes, extra_minutes, extra_blocks, total_price_kobo,
			status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+appointmentColumns,
		uuid.New(),
		a.PatientID,
		a.DoctorID,
		a.Window.Start,
		a.Window.End,
		a.BaseDurationMinutes,
		a.ExtraMinutes,
		a.ExtraBlocks,
		a.TotalPriceKobo,
		string(a.Status),
	)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, string(to), string(from))
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	q := psql.Select(appointmentColumns).
		From("appointments").
		OrderBy("start_time_utc ASC")

	if f.PatientID != nil {
		q = q.Where(sq.Eq{"patient_id": *f.PatientID})
	}
	if f.DoctorID != nil {
		q = q.Where(sq.Eq{"doctor_id": *f.DoctorID})
	}
	if f.Status != nil {
		q = q.Where(sq.Eq{"status": string(*f.Status)})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list appointments query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) FindStalePending(ctx context.Context, createdBefore time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'PENDING_PAYMENT'
		  AND created_at < $1
		ORDER BY created_at
	`, createdBefore)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// LockDoctor takes a transaction-scoped advisory lock keyed by the doctor id.
func (r *PgRepository) LockDoctor(ctx context.Context, doctorID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, doctorID.String())
	return err
}
