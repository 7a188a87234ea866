package agent

import (
	"testing"
	"time"
)

func TestSendCurrencyHappyPath(t *testing.T) {
	a, b, _, _ := newPairedAgents(t, "alice", "bob")
	a.Mint(1000, nil, nil)

	ok, err := a.SendCurrency(300, b.ID(), "")
	if err != nil {
		t.Fatalf("SendCurrency: %v", err)
	}
	if !ok {
		t.Fatalf("SendCurrency() = false, want true")
	}

	waitFor(t, func() bool { return b.Balance() == 300 })
	if got := a.Balance(); got != 700 {
		t.Fatalf("sender balance = %d, want 700", got)
	}
}

func TestSendCurrencyInsufficientBalance(t *testing.T) {
	a, b, _, _ := newPairedAgents(t, "alice", "bob")
	a.Mint(100, nil, nil)

	ok, err := a.SendCurrency(500, b.ID(), "")
	if err == nil {
		t.Fatalf("SendCurrency() with insufficient balance succeeded")
	}
	if ok {
		t.Fatalf("SendCurrency() = true, want false")
	}
	if got := a.Balance(); got != 100 {
		t.Fatalf("balance changed on a rejected send: got %d, want 100", got)
	}
}

func TestSendCurrencyNegativeAmountIsError(t *testing.T) {
	a, b, _, _ := newPairedAgents(t, "alice", "bob")
	a.Mint(100, nil, nil)

	if _, err := a.SendCurrency(-1, b.ID(), ""); err == nil {
		t.Fatalf("SendCurrency(-1) succeeded, want error")
	}
}

func TestSendCurrencyZeroAndSelfAreNoops(t *testing.T) {
	a, b, _, _ := newPairedAgents(t, "alice", "bob")
	a.Mint(50, nil, nil)

	ok, err := a.SendCurrency(0, b.ID(), "")
	if err != nil || !ok {
		t.Fatalf("SendCurrency(0, ...) = %v, %v, want true, nil", ok, err)
	}
	ok, err = a.SendCurrency(20, a.ID(), "")
	if err != nil || !ok {
		t.Fatalf("SendCurrency(20, self) = %v, %v, want true, nil", ok, err)
	}
	if got := a.Balance(); got != 50 {
		t.Fatalf("balance changed by a no-op send: got %d, want 50", got)
	}
}

func TestSendCurrencyReciprocalTransfersNetOut(t *testing.T) {
	a, b, _, _ := newPairedAgents(t, "alice", "bob")
	a.Mint(500, nil, nil)
	b.Mint(500, nil, nil)

	if ok, err := a.SendCurrency(200, b.ID(), ""); err != nil || !ok {
		t.Fatalf("a->b SendCurrency: ok=%v err=%v", ok, err)
	}
	if ok, err := b.SendCurrency(150, a.ID(), ""); err != nil || !ok {
		t.Fatalf("b->a SendCurrency: ok=%v err=%v", ok, err)
	}

	waitFor(t, func() bool { return a.Balance() == 450 && b.Balance() == 550 })
}

func TestSendCurrencyTimeoutReversesDebit(t *testing.T) {
	a := newUnansweredSender(t, "lonely", 500*time.Millisecond)
	a.Mint(1000, nil, nil)

	ok, err := a.SendCurrency(400, "nobody-listening", "")
	if err == nil {
		t.Fatalf("SendCurrency to an unresponsive peer succeeded, want timeout error")
	}
	if ok {
		t.Fatalf("SendCurrency() = true on timeout, want false")
	}
	if got := a.Balance(); got != 1000 {
		t.Fatalf("balance after timeout = %d, want full reversal to 1000", got)
	}
}
