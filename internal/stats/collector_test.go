package stats

import (
	"testing"
	"time"

	"agoria/internal/link"
	"agoria/internal/packet"
)

func TestCollectorSubscribesAndDispatchesSnoopedPackets(t *testing.T) {
	caller, collectorSide := link.NewLocalPair(8)
	c := NewCollector("collector-1", collectorSide, nil)

	seen := make(chan packet.Packet, 4)
	c.On(packet.ConsumptionNotificationBroadcast, func(p packet.Packet) { seen <- p })

	done := make(chan struct{})
	go func() { c.Run(); close(done) }()

	sub, err := caller.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if sub.Type != packet.SnoopStart {
		t.Fatalf("first packet = %+v, want SNOOP_START", sub)
	}
	types, ok := sub.Payload.([]packet.Type)
	if !ok || len(types) != 1 || types[0] != packet.ConsumptionNotificationBroadcast {
		t.Fatalf("subscribed types = %#v, want just ConsumptionNotificationBroadcast", sub.Payload)
	}

	inner := packet.Packet{Type: packet.ConsumptionNotificationBroadcast, Payload: packet.ConsumptionNotification{ItemID: "bread", Quantity: 2}}
	caller.Send(packet.Packet{Type: packet.Snoop, Payload: inner})

	select {
	case got := <-seen:
		n, ok := got.Payload.(packet.ConsumptionNotification)
		if !ok || n.ItemID != "bread" {
			t.Fatalf("handler saw %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("handler never ran")
	}

	caller.Send(packet.Packet{Type: packet.KillPipeAgent})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run() never returned after KILL_PIPE_AGENT")
	}
}

func TestCollectorIgnoresUnsnoopedAndUnregisteredTypes(t *testing.T) {
	caller, collectorSide := link.NewLocalPair(8)
	c := NewCollector("collector-2", collectorSide, nil)
	seen := make(chan packet.Packet, 4)
	c.On(packet.ProductionNotificationBroadcast, func(p packet.Packet) { seen <- p })

	done := make(chan struct{})
	go func() { c.Run(); close(done) }()
	if _, err := caller.Recv(); err != nil {
		t.Fatalf("Recv subscribe: %v", err)
	}

	// A non-SNOOP envelope must be ignored outright.
	caller.Send(packet.Packet{Type: packet.ConsumptionNotificationBroadcast, Payload: packet.ConsumptionNotification{}})
	// A snooped packet of a type nobody registered a handler for.
	caller.Send(packet.Packet{Type: packet.Snoop, Payload: packet.Packet{Type: packet.ConsumptionNotificationBroadcast}})

	select {
	case got := <-seen:
		t.Fatalf("handler ran unexpectedly: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}

	caller.Send(packet.Packet{Type: packet.KillAllBroadcast})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run() never returned after KILL_ALL_BROADCAST")
	}
}
