package netindex

import (
	"log"
	"sync"

	"agoria/internal/link"
	"agoria/internal/packet"
	"agoria/internal/stats"
)

// Watcher attaches an Index to the Connection Network as an observer
// agent, translating snooped broadcasts into Record* calls. Grounded on
// internal/stats's Collector, which already implements the
// SNOOP_START-subscribe-then-dispatch loop this needs.
type Watcher struct {
	ix *Index
	c  *stats.Collector

	mu          sync.Mutex
	pendingDir  map[string]string // broadcast ("save"/"load") -> most recently requested dir
}

// NewWatcher returns a Watcher that will index contract formation,
// production/consumption flows, and checkpoint activity once Run is
// called.
func NewWatcher(id string, l link.Link, logger *log.Logger, ix *Index) *Watcher {
	w := &Watcher{ix: ix, pendingDir: make(map[string]string)}
	w.c = stats.NewCollector(id, l, logger)
	w.c.On(packet.LaborContractFormedBroadcast, w.onContract)
	w.c.On(packet.ProductionNotificationBroadcast, w.onProduction)
	w.c.On(packet.ConsumptionNotificationBroadcast, w.onConsumption)
	w.c.On(packet.SaveCheckpointBroadcast, w.onCheckpointRequest("save"))
	w.c.On(packet.LoadCheckpointBroadcast, w.onCheckpointRequest("load"))
	w.c.On(packet.SaveCheckpointAck, w.onCheckpointAck("save"))
	w.c.On(packet.LoadCheckpointAck, w.onCheckpointAck("load"))
	return w
}

// Run subscribes and processes snooped packets until the link closes.
func (w *Watcher) Run() error { return w.c.Run() }

func (w *Watcher) onContract(p packet.Packet) {
	contract, ok := p.Payload.(packet.LaborContract)
	if !ok {
		return
	}
	w.ix.RecordContract(contract)
}

func (w *Watcher) onProduction(p packet.Packet) {
	n, ok := p.Payload.(packet.ProductionNotification)
	if !ok {
		return
	}
	w.ix.RecordProduction(p.SenderID, n)
}

func (w *Watcher) onConsumption(p packet.Packet) {
	n, ok := p.Payload.(packet.ConsumptionNotification)
	if !ok {
		return
	}
	w.ix.RecordConsumption(p.SenderID, n)
}

func (w *Watcher) onCheckpointRequest(broadcast string) func(packet.Packet) {
	return func(p packet.Packet) {
		req, ok := p.Payload.(packet.CheckpointRequest)
		if !ok {
			return
		}
		w.mu.Lock()
		w.pendingDir[broadcast] = req.Dir
		w.mu.Unlock()
		w.ix.RecordCheckpointRequest(req.Dir, broadcast)
	}
}

func (w *Watcher) onCheckpointAck(broadcast string) func(packet.Packet) {
	return func(p packet.Packet) {
		ack, ok := p.Payload.(packet.CheckpointAck)
		if !ok {
			return
		}
		w.mu.Lock()
		dir := w.pendingDir[broadcast]
		w.mu.Unlock()
		w.ix.RecordCheckpointAck(dir, p.SenderID, broadcast, ack)
	}
}
