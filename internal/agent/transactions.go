package agent

import (
	"sync"
	"time"

	"agoria/internal/packet"
)

// transactionTable is the single-use rendezvous registry a dispatcher
// posts ack results into. Grounded on original_source/EconAgent.py's
// responseBuffer dict plus its responseBufferLock, translated from a
// busy-polled map into a map of one-shot channels, and extended with a
// deadline-based sweep so a reply that never arrives doesn't leak an
// entry forever (spec's Supplemental behavior: stale-transaction GC).
type transactionTable struct {
	mu       sync.Mutex
	pending  map[string]chan packet.Packet
	deadline map[string]time.Time

	gcStop chan struct{}
	gcDone chan struct{}
}

func newTransactionTable() *transactionTable {
	return &transactionTable{
		pending:  make(map[string]chan packet.Packet),
		deadline: make(map[string]time.Time),
	}
}

// register allocates a one-shot rendezvous channel for transactionID,
// good until ttl elapses.
func (t *transactionTable) register(transactionID string, ttl time.Duration) chan packet.Packet {
	ch := make(chan packet.Packet, 1)
	t.mu.Lock()
	t.pending[transactionID] = ch
	t.deadline[transactionID] = time.Now().Add(ttl)
	t.mu.Unlock()
	return ch
}

// resolve delivers p to transactionID's rendezvous channel, if one is
// still registered, and retires the entry.
func (t *transactionTable) resolve(transactionID string, p packet.Packet) {
	t.mu.Lock()
	ch, ok := t.pending[transactionID]
	if ok {
		delete(t.pending, transactionID)
		delete(t.deadline, transactionID)
	}
	t.mu.Unlock()
	if ok {
		ch <- p
	}
}

// expire retires transactionID without delivering a result, used by a
// caller that gave up waiting.
func (t *transactionTable) expire(transactionID string) {
	t.mu.Lock()
	delete(t.pending, transactionID)
	delete(t.deadline, transactionID)
	t.mu.Unlock()
}

// startGC launches the background sweep that expires entries past their
// deadline even if no packet ever arrives for them.
func (t *transactionTable) startGC(period time.Duration) {
	t.gcStop = make(chan struct{})
	t.gcDone = make(chan struct{})
	go func() {
		defer close(t.gcDone)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-t.gcStop:
				return
			case now := <-ticker.C:
				t.sweep(now)
			}
		}
	}()
}

func (t *transactionTable) sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, deadline := range t.deadline {
		if now.After(deadline) {
			delete(t.pending, id)
			delete(t.deadline, id)
		}
	}
}

func (t *transactionTable) stopGC() {
	if t.gcStop == nil {
		return
	}
	close(t.gcStop)
	<-t.gcDone
}
