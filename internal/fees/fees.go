package fees

import "github.com/ashgrove/scrollmarket/internal/models"

// Policy computes fees as a deterministic function of the intent.
// Placement fees are charged on place only and never refunded;
// settlement fees are charged on each fill and count toward the
// collected-fee total in the pax conservation check.
type Policy interface {
	Placement(side models.Side, price int64) int64
	Settlement(executionPrice int64) int64
}

// Flat is the baseline policy: a fixed placement fee, no settlement fee.
type Flat struct {
	PlacementFee int64
}

// DefaultPlacementFee matches the platform's flat 5 pax listing charge.
const DefaultPlacementFee int64 = 5

// NewFlat returns the baseline policy.
func NewFlat(placementFee int64) Flat {
	return Flat{PlacementFee: placementFee}
}

func (f Flat) Placement(side models.Side, price int64) int64 {
	return f.PlacementFee
}

func (f Flat) Settlement(executionPrice int64) int64 {
	return 0
}
