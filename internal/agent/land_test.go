package agent

import "testing"

func TestSendLandHappyPath(t *testing.T) {
	a, b, _, _ := newPairedAgents(t, "landlord", "tenant")
	a.Mint(0, nil, map[string]float64{"parcel-1": 20})

	ok, err := a.SendLand("parcel-1", 8, b.ID(), "")
	if err != nil || !ok {
		t.Fatalf("SendLand: ok=%v err=%v", ok, err)
	}

	waitFor(t, func() bool { return b.LandHoldingOf("parcel-1") == 8 })
	if got := a.LandHoldingOf("parcel-1"); got != 12 {
		t.Fatalf("sender land holdings = %v, want 12", got)
	}
}

func TestSendLandInsufficientHoldings(t *testing.T) {
	a, b, _, _ := newPairedAgents(t, "landlord", "tenant")
	a.Mint(0, nil, map[string]float64{"parcel-1": 2})

	ok, err := a.SendLand("parcel-1", 5, b.ID(), "")
	if err == nil || ok {
		t.Fatalf("SendLand over holdings = %v, %v, want false, error", ok, err)
	}
	if got := a.LandHoldingOf("parcel-1"); got != 2 {
		t.Fatalf("land holdings changed on rejected send: got %v, want 2", got)
	}
}

func TestAllocateDeallocateLand(t *testing.T) {
	a, _, _, _ := newPairedAgents(t, "farmer", "other")
	a.Mint(0, nil, map[string]float64{"parcel-1": 10})

	if err := a.AllocateLand("parcel-1", 6); err != nil {
		t.Fatalf("AllocateLand: %v", err)
	}
	if err := a.AllocateLand("parcel-1", 5); err == nil {
		t.Fatalf("AllocateLand over the free balance succeeded, want error")
	}
	if err := a.DeallocateLand("parcel-1", 6); err != nil {
		t.Fatalf("DeallocateLand: %v", err)
	}
	if err := a.DeallocateLand("parcel-1", 1); err == nil {
		t.Fatalf("DeallocateLand beyond what's committed succeeded, want error")
	}
}

func TestSendLandZeroAndSelfAreNoops(t *testing.T) {
	a, b, _, _ := newPairedAgents(t, "landlord", "tenant")
	a.Mint(0, nil, map[string]float64{"parcel-1": 4})

	if ok, err := a.SendLand("parcel-1", 0, b.ID(), ""); err != nil || !ok {
		t.Fatalf("SendLand(0, ...) = %v, %v", ok, err)
	}
	if ok, err := a.SendLand("parcel-1", 2, a.ID(), ""); err != nil || !ok {
		t.Fatalf("SendLand(self) = %v, %v", ok, err)
	}
	if got := a.LandHoldingOf("parcel-1"); got != 4 {
		t.Fatalf("land holdings changed by a no-op send: got %v, want 4", got)
	}
}
