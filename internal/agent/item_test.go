package agent

import (
	"testing"

	"agoria/internal/packet"
)

func TestSendItemHappyPath(t *testing.T) {
	a, b, _, _ := newPairedAgents(t, "farmer", "miller")
	a.Mint(0, map[string]float64{"grain": 10}, nil)

	ok, err := a.SendItem(itemOf("grain", 4), b.ID(), "")
	if err != nil || !ok {
		t.Fatalf("SendItem: ok=%v err=%v", ok, err)
	}

	waitFor(t, func() bool { return b.InventoryOf("grain") == 4 })
	if got := a.InventoryOf("grain"); got != 6 {
		t.Fatalf("sender inventory = %v, want 6", got)
	}
}

func TestSendItemInsufficientInventory(t *testing.T) {
	a, b, _, _ := newPairedAgents(t, "farmer", "miller")
	a.Mint(0, map[string]float64{"grain": 1}, nil)

	ok, err := a.SendItem(itemOf("grain", 5), b.ID(), "")
	if err == nil {
		t.Fatalf("SendItem with insufficient inventory succeeded")
	}
	if ok {
		t.Fatalf("SendItem() = true, want false")
	}
	if got := a.InventoryOf("grain"); got != 1 {
		t.Fatalf("inventory changed on rejected send: got %v, want 1", got)
	}
}

func TestSendItemNegativeQuantityIsError(t *testing.T) {
	a, b, _, _ := newPairedAgents(t, "farmer", "miller")
	a.Mint(0, map[string]float64{"grain": 5}, nil)
	if _, err := a.SendItem(itemOf("grain", -1), b.ID(), ""); err == nil {
		t.Fatalf("SendItem with negative quantity succeeded, want error")
	}
}

func TestSendItemZeroAndSelfAreNoops(t *testing.T) {
	a, b, _, _ := newPairedAgents(t, "farmer", "miller")
	a.Mint(0, map[string]float64{"grain": 5}, nil)

	if ok, err := a.SendItem(itemOf("grain", 0), b.ID(), ""); err != nil || !ok {
		t.Fatalf("SendItem(0, ...) = %v, %v", ok, err)
	}
	if ok, err := a.SendItem(itemOf("grain", 2), a.ID(), ""); err != nil || !ok {
		t.Fatalf("SendItem(self) = %v, %v", ok, err)
	}
	if got := a.InventoryOf("grain"); got != 5 {
		t.Fatalf("inventory changed by a no-op send: got %v, want 5", got)
	}
}

func itemOf(itemID string, qty float64) packet.ItemContainer {
	return packet.ItemContainer{ItemID: itemID, Quantity: qty}
}
