package entitlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

var (
	_ appointment.EntitlementChecker = (*PgChecker)(nil)
	_ appointment.EntitlementChecker = (*CachedChecker)(nil)
	_ appointment.EntitlementChecker = (*StaticChecker)(nil)
)

// PgChecker reads the subscriptions table. A subscription is active when its status is
// ACTIVE and it has no end date or ends in the future.
type PgChecker struct {
	pool *pgxpool.Pool
}

func NewPgChecker(pool *pgxpool.Pool) *PgChecker {
	return &PgChecker{pool: pool}
}

func (c *PgChecker) HasActiveEntitlement(ctx context.Context, patientID uuid.UUID) (bool, error) {
	var active bool
	err := c.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM subscriptions
			WHERE user_id = $1
			  AND status = 'ACTIVE'
			  AND (end_date IS NULL OR end_date > now())
		)
	`, patientID).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("query subscription: %w", err)
	}
	return active, nil
}

// CachedChecker remembers positive answers in Redis for ttl. Negative answers are never
// cached so a patient who just subscribed can book immediately. Redis failures fall
// through to the wrapped checker.
type CachedChecker struct {
	next appointment.EntitlementChecker
	rdb  redis.Cmdable
	ttl  time.Duration
	log  *zap.Logger
}

func NewCachedChecker(next appointment.EntitlementChecker, rdb redis.Cmdable, ttl time.Duration, log *zap.Logger) *CachedChecker {
	return &CachedChecker{next: next, rdb: rdb, ttl: ttl, log: log}
}

func cacheKey(patientID uuid.UUID) string {
	return "entitlement:active:" + patientID.String()
}

func (c *CachedChecker) HasActiveEntitlement(ctx context.Context, patientID uuid.UUID) (bool, error) {
	if c.rdb == nil || c.ttl <= 0 {
		return c.next.HasActiveEntitlement(ctx, patientID)
	}

	key := cacheKey(patientID)

	err := c.rdb.Get(ctx, key).Err()
	switch {
	case err == nil:
		return true, nil
	case !errors.Is(err, redis.Nil):
		c.log.Warn("entitlement cache read failed", zap.String("key", key), zap.Error(err))
	}

	active, err := c.next.HasActiveEntitlement(ctx, patientID)
	if err != nil {
		return false, err
	}

	if active {
		if err := c.rdb.Set(ctx, key, "1", c.ttl).Err(); err != nil {
			c.log.Warn("entitlement cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return active, nil
}

// StaticChecker is an in-memory checker for the memory store driver and tests.
type StaticChecker struct {
	mu       sync.RWMutex
	allowAll bool
	active   map[uuid.UUID]bool
}

func NewStaticChecker(allowAll bool) *StaticChecker {
	return &StaticChecker{allowAll: allowAll, active: make(map[uuid.UUID]bool)}
}

func (c *StaticChecker) Grant(patientID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[patientID] = true
}

func (c *StaticChecker) Revoke(patientID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, patientID)
}

func (c *StaticChecker) HasActiveEntitlement(_ context.Context, patientID uuid.UUID) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.allowAll || c.active[patientID], nil
}
