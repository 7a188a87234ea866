package stats

import (
	"log"

	"agoria/internal/link"
	"agoria/internal/packet"
)

// Collector is an observer agent: it subscribes to a set of packet types
// via SNOOP_START and dispatches each snooped packet to a registered
// handler, feeding a Tracker. Grounded on
// original_source/StatisticsGatherer.py's StatisticsGatherer, which is
// itself just another Agent whose controller is the tracker set.
type Collector struct {
	id       string
	l        link.Link
	logger   *log.Logger
	handlers map[packet.Type][]func(packet.Packet)
}

// NewCollector returns a Collector bound to l. Call On to register
// handlers before calling Run.
func NewCollector(id string, l link.Link, logger *log.Logger) *Collector {
	if logger == nil {
		logger = log.Default()
	}
	return &Collector{id: id, l: l, logger: logger, handlers: make(map[packet.Type][]func(packet.Packet))}
}

// On registers fn to run for every snooped packet of type t.
func (c *Collector) On(t packet.Type, fn func(packet.Packet)) {
	c.handlers[t] = append(c.handlers[t], fn)
}

// Run subscribes to every type with a registered handler and processes
// snooped packets until the link closes.
func (c *Collector) Run() error {
	types := make([]packet.Type, 0, len(c.handlers))
	for t := range c.handlers {
		types = append(types, t)
	}
	c.l.Send(packet.Packet{Type: packet.SnoopStart, SenderID: c.id, Payload: types})

	for {
		p, err := c.l.Recv()
		if err != nil {
			return err
		}
		if p.Type == packet.KillPipeAgent || p.Type == packet.KillAllBroadcast {
			return nil
		}
		if p.Type != packet.Snoop {
			continue
		}
		inner, ok := p.Payload.(packet.Packet)
		if !ok {
			continue
		}
		for _, fn := range c.handlers[inner.Type] {
			fn(inner)
		}
	}
}
