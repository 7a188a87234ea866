package agent

import (
	"sync"
	"testing"
	"time"

	"agoria/internal/link"
	"agoria/internal/packet"
)

// fakeController is a minimal Controller double for exercising the trade,
// land-trade, and labor-hire decision points without pulling in the
// collab package's real policies.
type fakeController struct {
	mu          sync.Mutex
	acceptTrade bool
	acceptLand  bool
	hire        bool
	steps       []int
}

func (c *fakeController) EvalTradeRequest(packet.TradeRequest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acceptTrade
}

func (c *fakeController) EvalLandTradeRequest(packet.LandTradeRequest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acceptLand
}

func (c *fakeController) EvalJobApplication(packet.LaborListing, string, float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hire
}

func (c *fakeController) OnStep(stepNum int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, stepNum)
}

// newPairedAgents builds two Agents wired to each other by an in-process
// LocalLink pair and starts each one's Run loop, tearing both down when
// the test ends.
func newPairedAgents(t *testing.T, idA, idB string) (a, b *Agent, ctrlA, ctrlB *fakeController) {
	t.Helper()
	la, lb := link.NewLocalPair(8)

	ctrlA = &fakeController{}
	ctrlB = &fakeController{}

	a = New(Config{
		Info:        packet.AgentInfo{AgentID: idA, AgentType: "test"},
		Controller:  ctrlA,
		LockTimeout: 200 * time.Millisecond,
	}, la, nil)
	b = New(Config{
		Info:        packet.AgentInfo{AgentID: idB, AgentType: "test"},
		Controller:  ctrlB,
		LockTimeout: 200 * time.Millisecond,
	}, lb, nil)

	done := make(chan struct{}, 2)
	go func() { a.Run(); done <- struct{}{} }()
	go func() { b.Run(); done <- struct{}{} }()

	t.Cleanup(func() {
		a.Close()
		b.Close()
		<-done
		<-done
	})
	return a, b, ctrlA, ctrlB
}

// newUnansweredSender returns a lone Agent whose Link peer never reads,
// so any await() this agent starts runs out the clock — used to exercise
// timeout-reversal behavior without a cooperating counterparty.
func newUnansweredSender(t *testing.T, id string, lockTimeout time.Duration) *Agent {
	t.Helper()
	la, _ := link.NewLocalPair(8)
	a := New(Config{
		Info:        packet.AgentInfo{AgentID: id, AgentType: "test"},
		Controller:  &fakeController{},
		LockTimeout: lockTimeout,
	}, la, nil)
	done := make(chan struct{}, 1)
	go func() { a.Run(); done <- struct{}{} }()
	t.Cleanup(func() {
		a.Close()
		<-done
	})
	return a
}

// waitFor polls cond until it's true or a short deadline elapses, used to
// synchronize with a peer agent's handler goroutine without a fixed sleep.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not satisfied before deadline")
	}
}
