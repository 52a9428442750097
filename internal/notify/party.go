package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrPartyNotFound = errors.New("party not found")

// Party is a notification recipient: a doctor or a patient.
type Party struct {
	ID      uuid.UUID
	Name    string
	Surname string
	Email   string
}

// DisplayName falls back to the email address, then to fallback.
func (p Party) DisplayName(fallback string) string {
	if name := strings.TrimSpace(p.Name + " " + p.Surname); name != "" {
		return name
	}
	if p.Email != "" {
		return p.Email
	}
	return fallback
}

// Directory resolves user ids to contact details.
type Directory interface {
	Party(ctx context.Context, id uuid.UUID) (Party, error)
}

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) Party(ctx context.Context, id uuid.UUID) (Party, error) {
	p := Party{ID: id}
	err := d.pool.QueryRow(ctx, `
		SELECT COALESCE(name, ''), COALESCE(surname, ''), email
		FROM users
		WHERE id = $1
	`, id).Scan(&p.Name, &p.Surname, &p.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Party{}, ErrPartyNotFound
		}
		return Party{}, fmt.Errorf("load party %s: %w", id, err)
	}
	return p, nil
}

type MemoryDirectory struct {
	mu      sync.RWMutex
	parties map[uuid.UUID]Party
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{parties: make(map[uuid.UUID]Party)}
}

func (d *MemoryDirectory) Put(p Party) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parties[p.ID] = p
}

func (d *MemoryDirectory) Party(_ context.Context, id uuid.UUID) (Party, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.parties[id]
	if !ok {
		return Party{}, ErrPartyNotFound
	}
	return p, nil
}
