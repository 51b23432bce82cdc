package models

import "testing"

func TestSide(t *testing.T) {
	if SideBid.Opposite() != SideAsk || SideAsk.Opposite() != SideBid {
		t.Error("opposite sides are wrong")
	}
	if !SideBid.Valid() || !SideAsk.Valid() {
		t.Error("known sides must be valid")
	}
	if Side("hold").Valid() || Side("").Valid() {
		t.Error("unknown sides must be invalid")
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusOpen.Terminal() {
		t.Error("open is not terminal")
	}
	if !StatusFilled.Terminal() || !StatusCancelled.Terminal() {
		t.Error("filled and cancelled are terminal")
	}
}
