package entitlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingChecker struct {
	calls  int
	active bool
	err    error
}

func (c *countingChecker) HasActiveEntitlement(context.Context, uuid.UUID) (bool, error) {
	c.calls++
	return c.active, c.err
}

func TestStaticChecker(t *testing.T) {
	ctx := context.Background()
	patient := uuid.New()

	c := NewStaticChecker(false)
	ok, err := c.HasActiveEntitlement(ctx, patient)
	require.NoError(t, err)
	assert.False(t, ok)

	c.Grant(patient)
	ok, _ = c.HasActiveEntitlement(ctx, patient)
	assert.True(t, ok)

	c.Revoke(patient)
	ok, _ = c.HasActiveEntitlement(ctx, patient)
	assert.False(t, ok)

	ok, _ = NewStaticChecker(true).HasActiveEntitlement(ctx, uuid.New())
	assert.True(t, ok)
}

func TestCachedChecker_WithoutRedisPassesThrough(t *testing.T) {
	next := &countingChecker{active: true}
	c := NewCachedChecker(next, nil, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		ok, err := c.HasActiveEntitlement(context.Background(), uuid.New())
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 3, next.calls)
}

func TestCachedChecker_PropagatesError(t *testing.T) {
	next := &countingChecker{err: errors.New("db down")}
	c := NewCachedChecker(next, nil, time.Minute, zap.NewNop())

	_, err := c.HasActiveEntitlement(context.Background(), uuid.New())
	assert.EqualError(t, err, "db down")
}

func TestCacheKey(t *testing.T) {
	id := uuid.MustParse("6f1c2b7e-9f7a-4d3e-8f51-0c1d2e3f4a5b")
	assert.Equal(t, "entitlement:active:6f1c2b7e-9f7a-4d3e-8f51-0c1d2e3f4a5b", cacheKey(id))
}
