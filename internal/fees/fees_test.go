package fees

import (
	"testing"

	"github.com/ashgrove/scrollmarket/internal/models"
)

func TestFlat_Placement(t *testing.T) {
	policy := NewFlat(DefaultPlacementFee)

	tests := []struct {
		name  string
		side  models.Side
		price int64
	}{
		{name: "BidLowPrice", side: models.SideBid, price: 1},
		{name: "AskLowPrice", side: models.SideAsk, price: 1},
		{name: "BidHighPrice", side: models.SideBid, price: models.MaxPrice},
		{name: "AskHighPrice", side: models.SideAsk, price: models.MaxPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.Placement(tt.side, tt.price); got != DefaultPlacementFee {
				t.Errorf("expected flat fee %d, got %d", DefaultPlacementFee, got)
			}
		})
	}
}

func TestFlat_Settlement(t *testing.T) {
	policy := NewFlat(DefaultPlacementFee)
	for _, price := range []int64{1, 30, models.MaxPrice} {
		if got := policy.Settlement(price); got != 0 {
			t.Errorf("expected zero settlement fee at price %d, got %d", price, got)
		}
	}
}

func TestFlat_ZeroFee(t *testing.T) {
	policy := NewFlat(0)
	if got := policy.Placement(models.SideBid, 100); got != 0 {
		t.Errorf("expected zero placement fee, got %d", got)
	}
}
