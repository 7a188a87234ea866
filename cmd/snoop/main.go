// Command snoop attaches to a running cmd/runsim instance's observer
// websocket endpoint, subscribes to a set of packet types via SNOOP_START,
// and prints every forwarded SNOOP packet as it arrives — the external
// read-only attach point named in spec §4.2's snoop rules.
//
// Grounded on the teacher's cmd/bot/main.go (dial, HELLO-equivalent
// handshake, then a read loop dispatching on message type), re-pointed at
// internal/link.WSLink so the same envelope codec a real agent uses also
// decodes what the Network forwards to an observer.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"

	"agoria/internal/link"
	"agoria/internal/packet"
)

// defaultTypes is the snoop subscription a caller gets without passing
// -types: the broadcasts and market updates that tell a human observer
// what the economy is doing step to step, without the transactional
// chatter (CURRENCY_TRANSFER/TRADE_REQ/etc.) a full audit would also want.
var defaultTypes = []packet.Type{
	packet.ProductionNotificationBroadcast,
	packet.ConsumptionNotificationBroadcast,
	packet.AccountingNotificationBroadcast,
	packet.LaborContractFormedBroadcast,
	packet.ItemMarketUpdate,
	packet.LaborMarketUpdate,
	packet.LandMarketUpdate,
}

func main() {
	var (
		url        = flag.String("url", "ws://localhost:7070/observe", "websocket URL of a cmd/runsim observer endpoint")
		id         = flag.String("id", "snoop", "observer id to register as on the Connection Network")
		typesFlag  = flag.String("types", "", "comma-separated packet types to subscribe to (default: broadcasts and market updates)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[snoop] ", log.LstdFlags|log.Lmicroseconds)

	types := defaultTypes
	if *typesFlag != "" {
		types = nil
		for _, t := range strings.Split(*typesFlag, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				types = append(types, packet.Type(t))
			}
		}
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial %s: %v", *url, err)
	}
	defer conn.Close()

	l := link.NewWSLink(conn)
	defer l.Close()

	if err := l.Send(packet.Packet{Type: packet.SnoopStart, SenderID: *id, Payload: types}); err != nil {
		logger.Fatalf("send SNOOP_START: %v", err)
	}
	logger.Printf("subscribed as %s to %d packet types", *id, len(types))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			p, err := l.Recv()
			if err != nil {
				logger.Printf("link closed: %v", err)
				return
			}
			printSnoop(p)
		}
	}()

	select {
	case <-stop:
	case <-done:
	}
}

// printSnoop renders one forwarded SNOOP packet. The Network wraps the
// original packet's Type/SenderID/DestinationID/TransactionID/Payload
// inside Payload as a packet.Packet clone (see
// internal/network.forwardToSnoopers), so the interesting fields are one
// level down from the envelope snoop itself arrived in.
func printSnoop(p packet.Packet) {
	inner, ok := p.Payload.(packet.Packet)
	if !ok {
		fmt.Printf("%-10s from=%-20s to=%-20s payload=%v\n", p.Type, p.SenderID, p.DestinationID, p.Payload)
		return
	}
	dest := inner.DestinationID
	if dest == "" {
		dest = "*"
	}
	fmt.Printf("%-34s from=%-20s to=%-20s payload=%v\n", inner.Type, inner.SenderID, dest, inner.Payload)
}
