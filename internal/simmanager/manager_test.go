package simmanager

import (
	"context"
	"testing"
	"time"

	"agoria/internal/link"
	"agoria/internal/network"
	"agoria/internal/packet"
)

func newRunningManager(t *testing.T) (*Manager, *link.LocalLink) {
	t.Helper()
	callerSide, managerSide := link.NewLocalPair(16)
	m := New("manager", managerSide, nil, nil, 200*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, nil)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		callerSide.Close()
		<-done
	})
	return m, callerSide
}

// newStepNetwork wires a Manager onto a real *network.Network, the way
// cmd/runsim does, so the barrier tests below can register agent
// connections of their own and exercise the Network's quorum counting
// rather than poking the Manager's own link directly.
func newStepNetwork(t *testing.T, stallBudget time.Duration) (*network.Network, *Manager) {
	t.Helper()
	net := network.New(nil)
	t.Cleanup(net.Shutdown)

	mgrHost, mgrLink := link.NewLocalPair(16)
	net.AddConnection("manager", mgrHost)
	m := New("manager", mgrLink, net, nil, stallBudget)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, nil)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return net, m
}

func registerAgentLink(net *network.Network, agentID string) *link.LocalLink {
	host, agentSide := link.NewLocalPair(16)
	net.AddConnection(agentID, host)
	return agentSide
}

func TestManagerWaitReady(t *testing.T) {
	m, caller := newRunningManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	caller.Send(packet.Packet{Type: packet.ProcReady, SenderID: "farmer-1"})
	caller.Send(packet.Packet{Type: packet.ProcReady, SenderID: "farmer-2"})

	if err := m.WaitReady(ctx, []string{"farmer-1", "farmer-2"}); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
}

func TestManagerWaitReadyReportsError(t *testing.T) {
	m, caller := newRunningManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	caller.Send(packet.Packet{Type: packet.ProcReady, SenderID: "farmer-1"})
	caller.Send(packet.Packet{Type: packet.ProcError, SenderID: "farmer-2", Payload: "boom"})

	if err := m.WaitReady(ctx, []string{"farmer-1", "farmer-2"}); err == nil {
		t.Fatalf("WaitReady() succeeded despite a PROC_ERROR, want error")
	}
}

func TestManagerWaitReadyTimesOutWhenNobodyReports(t *testing.T) {
	m, _ := newRunningManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := m.WaitReady(ctx, []string{"nobody"}); err == nil {
		t.Fatalf("WaitReady() succeeded with no reports, want a context deadline error")
	}
}

// TestRunStepsResendsTickBlockedEachStep exercises the barrier across
// multiple steps with a fake agent that must report TICK_BLOCKED again
// every time it sees a new TICK_GRANT_BROADCAST, not just once. The
// Network (not the Manager) is what actually counts these reports now, so
// the fake agent is a real registered connection rather than a packet sent
// straight at the Manager's own link.
func TestRunStepsResendsTickBlockedEachStep(t *testing.T) {
	net, m := newStepNetwork(t, 200*time.Millisecond)
	farmer := registerAgentLink(net, "farmer-1")
	farmer.Send(packet.Packet{Type: packet.TickBlockSubscribe})
	farmer.Send(packet.Packet{Type: packet.TickBlocked})
	time.Sleep(10 * time.Millisecond)

	stepsSeen := make(chan int, 10)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			p, err := farmer.Recv()
			if err != nil {
				return
			}
			switch p.Type {
			case packet.TickGrantBroadcast:
				stepsSeen <- 1
				farmer.Send(packet.Packet{Type: packet.TickBlocked})
			}
		}
	}()
	defer close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.RunSteps(ctx, 3, 24, 0, ""); err != nil {
		t.Fatalf("RunSteps: %v", err)
	}

	count := 0
loop:
	for {
		select {
		case <-stepsSeen:
			count++
		default:
			break loop
		}
	}
	if count != 3 {
		t.Fatalf("TICK_GRANT_BROADCAST seen %d times, want 3 (once per step)", count)
	}
}

// TestRunStepsAcksEachTickBlocked asserts the Network answers every
// TICK_BLOCKED with a TICK_BLOCKED_ACK addressed back to the reporting
// agent, the handshake half of the step-barrier inversion.
func TestRunStepsAcksEachTickBlocked(t *testing.T) {
	net, _ := newStepNetwork(t, 200*time.Millisecond)
	farmer := registerAgentLink(net, "farmer-1")
	farmer.Send(packet.Packet{Type: packet.TickBlockSubscribe})
	farmer.Send(packet.Packet{Type: packet.TickBlocked, TransactionID: "t1"})

	got, err := recvWithinManager(t, farmer, time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if got.Type != packet.TickBlockedAck || got.TransactionID != "t1" {
		t.Fatalf("got %+v, want TICK_BLOCKED_ACK for transaction t1", got)
	}
}

func TestRunStepsProceedsPastStallBudget(t *testing.T) {
	net, m := newStepNetwork(t, 20*time.Millisecond)
	stuck := registerAgentLink(net, "stuck-agent")
	stuck.Send(packet.Packet{Type: packet.TickBlockSubscribe})
	// Note: no TICK_BLOCKED is ever sent for stuck-agent.
	time.Sleep(10 * time.Millisecond)

	runCtx, runCancel := context.WithTimeout(context.Background(), time.Second)
	defer runCancel()
	start := time.Now()
	if err := m.RunSteps(runCtx, 1, 24, 0, ""); err != nil {
		t.Fatalf("RunSteps: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("RunSteps returned before the stall budget elapsed: %v", elapsed)
	}
}

func TestStartControllersBroadcasts(t *testing.T) {
	m, caller := newRunningManager(t)
	m.StartControllers(0)
	got, err := recvWithinManager(t, caller, time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if got.Type != packet.ControllerStartBroadcast {
		t.Fatalf("got %+v, want CONTROLLER_START_BROADCAST", got)
	}
}

func TestStopTradingAndKillBroadcastsBothPackets(t *testing.T) {
	m, caller := newRunningManager(t)
	m.StopTradingAndKill(0)

	first, err := recvWithinManager(t, caller, time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if first.Type != packet.ControllerMsgBroadcast {
		t.Fatalf("first broadcast = %+v, want CONTROLLER_MSG_BROADCAST", first)
	}
	inner, ok := first.Payload.(packet.Packet)
	if !ok || inner.Type != packet.StopTrading {
		t.Fatalf("wrapped payload = %#v (ok=%v), want a STOP_TRADING packet", first.Payload, ok)
	}

	second, err := recvWithinManager(t, caller, time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if second.Type != packet.KillAllBroadcast {
		t.Fatalf("second broadcast = %+v, want KILL_ALL_BROADCAST", second)
	}
}

func recvWithinManager(t *testing.T, l *link.LocalLink, d time.Duration) (packet.Packet, error) {
	t.Helper()
	type result struct {
		p   packet.Packet
		err error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := l.Recv()
		ch <- result{p, err}
	}()
	select {
	case r := <-ch:
		return r.p, r.err
	case <-time.After(d):
		t.Fatalf("Recv timed out")
		return packet.Packet{}, nil
	}
}
