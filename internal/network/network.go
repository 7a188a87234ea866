// Package network implements the Connection Network: the message-routing
// fabric that spans OS processes, connecting every agent, marketplace, and
// the Simulation Manager over Link instances.
//
// Grounded on the teacher's internal/sim/multiworld/manager.go
// (registry-of-runtimes + mutex + per-entity request/response channel
// pattern) for the registration/routing shape, on
// internal/transport/observer/server.go for the snoop/observer session
// shape, and on original_source/ConnectionNetwork.py for the routing rules
// themselves, which are carried over verbatim.
package network

import (
	"context"
	"fmt"
	"log"
	"sync"

	"agoria/internal/link"
	"agoria/internal/packet"
)

// Network is the central router. One Network instance exists per
// simulation process; agents in other processes attach through a gateway
// link that proxies their traffic into this Network's registry.
//
// It also owns the step barrier: since every TICK_BLOCK_SUBSCRIBE/
// TICK_BLOCKED an agent sends already passes through monitorLink on its
// way to the Simulation Manager, the Network is the natural place to count
// quorum rather than have the Manager re-derive the same count from its own
// copy of the same packets (spec §4.5's barrier belongs to whoever observes
// every link, not to one more subscriber of it).
type Network struct {
	logger *log.Logger

	mu      sync.RWMutex
	links   map[string]link.Link               // agentId -> outbound link
	snoop   map[packet.Type]map[string]struct{} // packetType -> observer set
	killAll bool

	barrierMu     sync.Mutex
	subscribed    map[string]bool
	blocked       map[string]bool
	barrierReady  chan struct{}
	barrierClosed bool
	currentStep   int

	wg sync.WaitGroup
}

// New returns an empty Network. logger may be nil, in which case
// log.Default() is used (grounded on the teacher's
// log.New(os.Stdout, ...) default-to-stdout convention — callers that want
// silence pass a logger writing to io.Discard instead of nil semantics).
func New(logger *log.Logger) *Network {
	if logger == nil {
		logger = log.Default()
	}
	n := &Network{
		logger:     logger,
		links:      make(map[string]link.Link),
		snoop:      make(map[packet.Type]map[string]struct{}),
		subscribed: make(map[string]bool),
		blocked:    make(map[string]bool),
	}
	n.barrierReady = make(chan struct{})
	close(n.barrierReady)
	n.barrierClosed = true
	return n
}

// AddConnection registers an agent's outbound link and starts its reader
// goroutine (original_source's startMonitors/monitorLink per-agent
// thread). The Network takes ownership of l — it will be closed when the
// agent disconnects or the Network tears down.
func (n *Network) AddConnection(agentID string, l link.Link) {
	n.mu.Lock()
	n.links[agentID] = l
	n.mu.Unlock()

	n.wg.Add(1)
	go n.monitorLink(agentID, l)
}

// monitorLink is the per-agent reader loop: it pulls packets off l and
// routes each one, exactly mirroring original_source/ConnectionNetwork.py's
// monitorLink.
func (n *Network) monitorLink(agentID string, l link.Link) {
	defer n.wg.Done()
	for {
		p, err := l.Recv()
		if err != nil {
			n.logger.Printf("network: link closed for %s: %v", agentID, err)
			n.removeConnection(agentID)
			return
		}
		p.SenderID = agentID
		p.Incoming = true

		switch p.Type {
		case packet.KillPipeNetwork:
			n.removeConnection(agentID)
			return
		case packet.KillAllBroadcast:
			n.handleKillAll(p)
			return
		case packet.SnoopStart:
			n.handleSnoopStart(agentID, p)
			continue
		case packet.TickBlockSubscribe:
			n.handleTickBlockSubscribe(agentID)
			continue
		case packet.TickBlocked:
			n.handleTickBlocked(agentID, p)
			continue
		default:
			n.route(p)
		}
	}
}

// route delivers a single packet: broadcasts go to every registered agent
// except the sender, targeted packets go to exactly one destination (with
// an ERROR packet returned to the sender if the destination is unknown),
// and any snoop subscribers for the packet's type receive a clone with
// Incoming cleared (rule: an observer's own forwarded copy never
// re-triggers a snoop loop).
func (n *Network) route(p packet.Packet) {
	if p.Type.IsBroadcast() {
		n.broadcast(p)
	} else {
		n.deliver(p)
	}
	n.forwardToSnoopers(p)
}

func (n *Network) deliver(p packet.Packet) {
	n.mu.RLock()
	dst, ok := n.links[p.DestinationID]
	n.mu.RUnlock()
	if !ok {
		n.sendError(p.SenderID, p.TransactionID, fmt.Sprintf("unknown destination %q", p.DestinationID))
		return
	}
	if err := dst.Send(p); err != nil {
		n.logger.Printf("network: deliver to %s failed: %v", p.DestinationID, err)
	}
}

func (n *Network) broadcast(p packet.Packet) {
	n.mu.RLock()
	targets := make([]link.Link, 0, len(n.links))
	for id, l := range n.links {
		if id == p.SenderID {
			continue
		}
		targets = append(targets, l)
	}
	n.mu.RUnlock()

	for _, l := range targets {
		if err := l.Send(p); err != nil {
			n.logger.Printf("network: broadcast send failed: %v", err)
		}
	}
}

func (n *Network) sendError(toAgent, transactionID, reason string) {
	n.mu.RLock()
	dst, ok := n.links[toAgent]
	n.mu.RUnlock()
	if !ok {
		return
	}
	errPkt := packet.Packet{
		Type:          packet.Error,
		DestinationID: toAgent,
		TransactionID: transactionID,
		Payload:       reason,
	}
	if err := dst.Send(errPkt); err != nil {
		n.logger.Printf("network: error delivery to %s failed: %v", toAgent, err)
	}
}

// SetupSnoop subscribes observerID to every packet type in types
// (copy-on-write replacement of the snoop table, per the Design Notes).
func (n *Network) SetupSnoop(observerID string, types []packet.Type) {
	n.mu.Lock()
	defer n.mu.Unlock()
	next := make(map[packet.Type]map[string]struct{}, len(n.snoop))
	for t, observers := range n.snoop {
		cp := make(map[string]struct{}, len(observers))
		for o := range observers {
			cp[o] = struct{}{}
		}
		next[t] = cp
	}
	for _, t := range types {
		if next[t] == nil {
			next[t] = make(map[string]struct{})
		}
		next[t][observerID] = struct{}{}
	}
	n.snoop = next
}

func (n *Network) handleSnoopStart(agentID string, p packet.Packet) {
	types, ok := p.Payload.([]packet.Type)
	if !ok {
		n.logger.Printf("network: malformed SNOOP_START payload from %s", agentID)
		return
	}
	n.SetupSnoop(agentID, types)
}

func (n *Network) forwardToSnoopers(p packet.Packet) {
	n.mu.RLock()
	observers, ok := n.snoop[p.Type]
	if !ok || len(observers) == 0 {
		n.mu.RUnlock()
		return
	}
	ids := make([]string, 0, len(observers))
	for id := range observers {
		if id == p.SenderID {
			continue
		}
		ids = append(ids, id)
	}
	links := make(map[string]link.Link, len(ids))
	for _, id := range ids {
		if l, ok := n.links[id]; ok {
			links[id] = l
		}
	}
	n.mu.RUnlock()

	snoopCopy := packet.Packet{
		Type:          packet.Snoop,
		SenderID:      p.SenderID,
		DestinationID: p.DestinationID,
		TransactionID: p.TransactionID,
		Payload:       p.Clone(),
		Incoming:      false,
	}
	for id, l := range links {
		if err := l.Send(snoopCopy); err != nil {
			n.logger.Printf("network: snoop forward to %s failed: %v", id, err)
		}
	}
}

// handleTickBlockSubscribe records that agentID participates in the step
// barrier — original_source/SimulationManager.py's tickBlockedAgents
// registry, kept here instead since the Network already sees every such
// packet on its way past.
func (n *Network) handleTickBlockSubscribe(agentID string) {
	n.barrierMu.Lock()
	n.subscribed[agentID] = true
	n.barrierMu.Unlock()
}

// handleTickBlocked records agentID as blocked for the current step, acks
// it with TICK_BLOCKED_ACK, and — if this report is the one that completes
// the quorum — broadcasts the single ADVANCE_STEP the Manager is waiting
// on.
func (n *Network) handleTickBlocked(agentID string, p packet.Packet) {
	n.sendTickBlockedAck(agentID, p.TransactionID)

	n.barrierMu.Lock()
	n.blocked[agentID] = true
	step, ch, ready := n.recomputeBarrierLocked()
	n.barrierMu.Unlock()

	if ready {
		n.broadcastAdvanceStep(step)
		close(ch)
	}
}

func (n *Network) sendTickBlockedAck(agentID, transactionID string) {
	n.mu.RLock()
	dst, ok := n.links[agentID]
	n.mu.RUnlock()
	if !ok {
		return
	}
	ack := packet.Packet{Type: packet.TickBlockedAck, DestinationID: agentID, TransactionID: transactionID}
	if err := dst.Send(ack); err != nil {
		n.logger.Printf("network: TICK_BLOCKED_ACK to %s failed: %v", agentID, err)
	}
}

// allBlockedLocked reports whether every subscribed agent has reported
// TICK_BLOCKED since the barrier was last reset. barrierMu must be held.
func (n *Network) allBlockedLocked() bool {
	for id := range n.subscribed {
		if !n.blocked[id] {
			return false
		}
	}
	return true
}

// recomputeBarrierLocked reports whether this call is the one that just
// satisfied an open barrier, claiming the broadcast/close for its caller so
// two concurrent reports can never both fire it. barrierMu must be held.
func (n *Network) recomputeBarrierLocked() (step int, ch chan struct{}, ready bool) {
	if n.barrierClosed || !n.allBlockedLocked() {
		return 0, nil, false
	}
	n.barrierClosed = true
	return n.currentStep, n.barrierReady, true
}

// broadcastAdvanceStep sends ADVANCE_STEP to every connected link. It has
// no agent sender of its own to exclude, so nothing is skipped — the
// Manager's own connection receives a copy like any other subscriber.
func (n *Network) broadcastAdvanceStep(step int) {
	n.broadcast(packet.Packet{Type: packet.AdvanceStep, Payload: step})
}

// ResetStepBarrier clears every subscribed agent's blocked flag and opens a
// fresh barrier reporting nextStep once satisfied. If nobody is currently
// subscribed the barrier is already vacuously satisfied, matching the
// Manager's former busy-poll semantics for an all-marketplace step.
func (n *Network) ResetStepBarrier(nextStep int) {
	n.barrierMu.Lock()
	defer n.barrierMu.Unlock()
	for id := range n.subscribed {
		n.blocked[id] = false
	}
	n.currentStep = nextStep
	n.barrierReady = make(chan struct{})
	n.barrierClosed = false
	if n.allBlockedLocked() {
		n.barrierClosed = true
		close(n.barrierReady)
	}
}

// AwaitStepBarrier blocks until every subscribed agent has reported
// TICK_BLOCKED since the last ResetStepBarrier — at which point ADVANCE_STEP
// has already gone out — or until ctx is done.
func (n *Network) AwaitStepBarrier(ctx context.Context) error {
	n.barrierMu.Lock()
	ch := n.barrierReady
	n.barrierMu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StalledAgents returns the subscribed agents that haven't reported
// TICK_BLOCKED since the last ResetStepBarrier, for the Manager's stall log.
func (n *Network) StalledAgents() []string {
	n.barrierMu.Lock()
	defer n.barrierMu.Unlock()
	var stalled []string
	for id := range n.subscribed {
		if !n.blocked[id] {
			stalled = append(stalled, id)
		}
	}
	return stalled
}

// removeConnection drops agentID's link from the registry and closes it.
// Other agents are not notified; a KILL_PIPE_AGENT directed at a peer is
// the peer's own concern (spec §4.2 delivery rules). A disconnect can
// itself complete an open barrier (the departed agent was the last one
// stalling it), so it's folded into the same quorum recompute.
func (n *Network) removeConnection(agentID string) {
	n.mu.Lock()
	l, ok := n.links[agentID]
	if ok {
		delete(n.links, agentID)
	}
	for _, observers := range n.snoop {
		delete(observers, agentID)
	}
	n.mu.Unlock()

	n.barrierMu.Lock()
	delete(n.subscribed, agentID)
	delete(n.blocked, agentID)
	step, ch, ready := n.recomputeBarrierLocked()
	n.barrierMu.Unlock()
	if ready {
		n.broadcastAdvanceStep(step)
		close(ch)
	}

	if ok {
		_ = l.Close()
	}
}

// handleKillAll broadcasts KILL_ALL_BROADCAST to every other connection
// exactly once (original_source dedupes via a killAllFlag so a broadcast
// storm doesn't recurse through every agent re-forwarding it) and then
// tears the Network down.
func (n *Network) handleKillAll(p packet.Packet) {
	n.mu.Lock()
	if n.killAll {
		n.mu.Unlock()
		return
	}
	n.killAll = true
	targets := make([]link.Link, 0, len(n.links))
	for id, l := range n.links {
		if id != p.SenderID {
			targets = append(targets, l)
		}
	}
	n.mu.Unlock()

	for _, l := range targets {
		_ = l.Send(p)
	}
	n.Shutdown()
}

// Shutdown closes every registered link and waits for all reader
// goroutines to exit.
func (n *Network) Shutdown() {
	n.mu.Lock()
	links := n.links
	n.links = make(map[string]link.Link)
	n.mu.Unlock()

	for _, l := range links {
		_ = l.Close()
	}
	n.wg.Wait()
}

// ConnectedAgents returns a snapshot of currently registered agent ids,
// used by the Simulation Manager to know who it must wait for.
func (n *Network) ConnectedAgents() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]string, 0, len(n.links))
	for id := range n.links {
		ids = append(ids, id)
	}
	return ids
}

// Send routes a single packet as if it had arrived over an agent's
// link — used by in-process callers (e.g. the Simulation Manager) that
// don't hold a Link of their own.
func (n *Network) Send(p packet.Packet) {
	n.route(p)
}
