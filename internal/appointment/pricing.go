package appointment

import (
	"fmt"
	"math"
)

// ExtraBlockMinutes is the billing granularity for extra consultation time.
const ExtraBlockMinutes = 10

// Price is the server-side pricing of a booking. Client-submitted prices are never used.
type Price struct {
	ExtraBlocks    int
	TotalPriceKobo int64
}

// ComputePrice maps a doctor's pricing profile and the requested extra minutes to a price.
func ComputePrice(profile PricingProfile, extraMinutes int) (Price, error) {
	if extraMinutes < 0 {
		return Price{}, fmt.Errorf("%w: extra minutes cannot be negative", ErrInvalidDuration)
	}
	if extraMinutes%ExtraBlockMinutes != 0 {
		return Price{}, fmt.Errorf("%w: extra minutes must be in %d-minute increments",
			ErrInvalidDuration, ExtraBlockMinutes)
	}

	blocks := extraMinutes / ExtraBlockMinutes
	if profile.ExtraBlockPriceKobo > 0 &&
		int64(blocks) > (math.MaxInt64-profile.BasePriceKobo)/profile.ExtraBlockPriceKobo {
		return Price{}, fmt.Errorf("%w: extra minutes out of range", ErrInvalidDuration)
	}

	return Price{
		ExtraBlocks:    blocks,
		TotalPriceKobo: profile.BasePriceKobo + int64(blocks)*profile.ExtraBlockPriceKobo,
	}, nil
}

// InitialStatus is the status a freshly priced appointment starts in. Free bookings skip payment.
func InitialStatus(totalPriceKobo int64) Status {
	if totalPriceKobo > 0 {
		return StatusPendingPayment
	}
	return StatusConfirmed
}
