package appointment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePrice(t *testing.T) {
	profile := PricingProfile{BaseDurationMinutes: 30, BasePriceKobo: 500_000, ExtraBlockPriceKobo: 1_000_000}

	tests := []struct {
		extra      int
		wantBlocks int
		wantTotal  int64
	}{
		{0, 0, 500_000},
		{10, 1, 1_500_000},
		{20, 2, 2_500_000},
		{60, 6, 6_500_000},
	}

	for _, tt := range tests {
		price, err := ComputePrice(profile, tt.extra)
		require.NoError(t, err)
		assert.Equal(t, tt.wantBlocks, price.ExtraBlocks, "extra=%d", tt.extra)
		assert.Equal(t, tt.wantTotal, price.TotalPriceKobo, "extra=%d", tt.extra)
	}
}

func TestComputePriceRejectsInvalidMinutes(t *testing.T) {
	for _, extra := range []int{-10, -1, 5, 15, 25} {
		_, err := ComputePrice(PricingProfile{}, extra)
		assert.ErrorIs(t, err, ErrInvalidDuration, "extra=%d", extra)
	}
}

func TestComputePriceRejectsOverflowingTotal(t *testing.T) {
	profile := PricingProfile{BaseDurationMinutes: 30, BasePriceKobo: 500_000, ExtraBlockPriceKobo: 1_000_000}

	_, err := ComputePrice(profile, 5*(1<<53))
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = ComputePrice(PricingProfile{}, math.MaxInt64/10*10)
	assert.NoError(t, err, "a free block price cannot overflow")
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, StatusConfirmed, InitialStatus(0))
	assert.Equal(t, StatusPendingPayment, InitialStatus(1))
}
