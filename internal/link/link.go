// Package link provides the duplex transports that carry packets between
// an agent and the Connection Network: an in-process channel pair for
// same-process agents, and a websocket-framed link for agents running in
// another OS process (spec §5's "per-process gateway link").
//
// Grounded on the teacher's internal/transport/ws/server.go handshake and
// reader/writer-goroutine shape.
package link

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"agoria/internal/packet"
)

// ErrClosed is returned by Send/Recv once a Link has been closed.
var ErrClosed = errors.New("link: closed")

// Link is a duplex, packet-oriented connection between an agent and the
// Connection Network. Implementations must be safe for concurrent Send
// and Recv, but not necessarily for concurrent Send/Send or Recv/Recv.
type Link interface {
	Send(p packet.Packet) error
	Recv() (packet.Packet, error)
	Close() error
}

// LocalLink is an in-process duplex pair backed by two buffered Go
// channels, used when an agent and the Network share a process. Grounded
// on the teacher's World.Inbox()/Join() channel handshake.
type LocalLink struct {
	out      chan packet.Packet
	in       chan packet.Packet
	closeOnce sync.Once
	closed   chan struct{}
}

// NewLocalPair returns two LocalLinks wired to each other: sends on one
// arrive as receives on the other.
func NewLocalPair(buf int) (a, b *LocalLink) {
	ab := make(chan packet.Packet, buf)
	ba := make(chan packet.Packet, buf)
	a = &LocalLink{out: ab, in: ba, closed: make(chan struct{})}
	b = &LocalLink{out: ba, in: ab, closed: make(chan struct{})}
	return a, b
}

func (l *LocalLink) Send(p packet.Packet) error {
	select {
	case <-l.closed:
		return ErrClosed
	default:
	}
	select {
	case l.out <- p:
		return nil
	case <-l.closed:
		return ErrClosed
	}
}

func (l *LocalLink) Recv() (packet.Packet, error) {
	select {
	case p, ok := <-l.in:
		if !ok {
			return packet.Packet{}, ErrClosed
		}
		return p, nil
	case <-l.closed:
		return packet.Packet{}, ErrClosed
	}
}

func (l *LocalLink) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

// wireMessage is the JSON-on-the-wire shape for WSLink. Payload is
// re-marshaled generically; callers that need a concrete payload type
// decode it themselves from the packet's Type.
type wireMessage struct {
	Type          packet.Type     `json:"type"`
	SenderID      string          `json:"senderId"`
	DestinationID string          `json:"destinationId,omitempty"`
	TransactionID string          `json:"transactionId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// WSLink frames each packet as one JSON text message over a
// gorilla/websocket connection, used by the inter-process gateway a
// non-Network process uses to proxy its agents to the Network's host
// process. Grounded directly on internal/transport/ws/server.go.
type WSLink struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// NewWSLink wraps an already-upgraded websocket connection.
func NewWSLink(conn *websocket.Conn) *WSLink {
	return &WSLink{conn: conn, closed: make(chan struct{})}
}

func (l *WSLink) Send(p packet.Packet) error {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return fmt.Errorf("link: marshal payload: %w", err)
	}
	msg := wireMessage{
		Type:          p.Type,
		SenderID:      p.SenderID,
		DestinationID: p.DestinationID,
		TransactionID: p.TransactionID,
		Payload:       payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("link: marshal envelope: %w", err)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

func (l *WSLink) Recv() (packet.Packet, error) {
	_, data, err := l.conn.ReadMessage()
	if err != nil {
		return packet.Packet{}, err
	}
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return packet.Packet{}, fmt.Errorf("link: unmarshal envelope: %w", err)
	}
	payload, err := decodePayload(msg.Type, msg.Payload)
	if err != nil {
		return packet.Packet{}, fmt.Errorf("link: unmarshal payload for %s: %w", msg.Type, err)
	}
	return packet.Packet{
		Type:          msg.Type,
		SenderID:      msg.SenderID,
		DestinationID: msg.DestinationID,
		TransactionID: msg.TransactionID,
		Payload:       payload,
		Incoming:      true,
	}, nil
}

// payloadShapeByType maps every packet type whose payload crosses a
// WSLink to the concrete type it must decode into — without this, a
// round-tripped payload would come back as a generic map[string]any and
// fail every `p.Payload.(packet.X)` assertion a handler performs.
// Packet types carrying a plain scalar (float64, string, or no payload
// at all) are omitted: json.Unmarshal into `any` already produces the
// right dynamic type for those.
var payloadShapeByType = map[packet.Type]func() any{
	packet.ItemMarketUpdate:    func() any { return new(packet.ItemListing) },
	packet.ItemMarketRemove:    func() any { return new(packet.ItemListing) },
	packet.ItemMarketSample:    func() any { return new(packet.MarketSampleRequest) },
	packet.ItemMarketSampleAck: func() any { return new(packet.ItemSampleResult) },

	packet.LaborMarketUpdate:    func() any { return new(packet.LaborListing) },
	packet.LaborMarketRemove:    func() any { return new(packet.LaborListing) },
	packet.LaborMarketSample:    func() any { return new(packet.MarketSampleRequest) },
	packet.LaborMarketSampleAck: func() any { return new(packet.LaborSampleResult) },

	packet.LandMarketUpdate:    func() any { return new(packet.LandListing) },
	packet.LandMarketRemove:    func() any { return new(packet.LandListing) },
	packet.LandMarketSample:    func() any { return new(packet.MarketSampleRequest) },
	packet.LandMarketSampleAck: func() any { return new(packet.LandSampleResult) },

	packet.TradeReq:     func() any { return new(packet.TradeRequest) },
	packet.LandTradeReq: func() any { return new(packet.LandTradeRequest) },

	packet.InfoReq:          func() any { return new(packet.InfoRequest) },
	packet.InfoReqBroadcast: func() any { return new(packet.InfoRequest) },
	packet.InfoResp:         func() any { return new(packet.InfoRequest) },

	packet.SaveCheckpoint:          func() any { return new(packet.CheckpointRequest) },
	packet.SaveCheckpointBroadcast: func() any { return new(packet.CheckpointRequest) },
	packet.SaveCheckpointAck:       func() any { return new(packet.CheckpointAck) },
	packet.LoadCheckpoint:          func() any { return new(packet.CheckpointRequest) },
	packet.LoadCheckpointBroadcast: func() any { return new(packet.CheckpointRequest) },
	packet.LoadCheckpointAck:       func() any { return new(packet.CheckpointAck) },

	packet.ProductionNotificationBroadcast:  func() any { return new(packet.ProductionNotification) },
	packet.ConsumptionNotificationBroadcast: func() any { return new(packet.ConsumptionNotification) },
	packet.AccountingNotificationBroadcast:  func() any { return new(packet.AccountingNotification) },
	packet.LaborContractFormedBroadcast:     func() any { return new(packet.LaborContract) },

	packet.SnoopStart: func() any { return new([]packet.Type) },
	packet.Snoop:      func() any { return new(packet.Packet) },
}

// decodePayload unmarshals raw into the concrete type registered for t,
// or into a generic any if t carries a scalar or has no registered shape
// (e.g. TICK_GRANT_BROADCAST's plain float64 tick count).
func decodePayload(t packet.Type, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	newPayload, ok := payloadShapeByType[t]
	if !ok {
		var generic any
		err := json.Unmarshal(raw, &generic)
		return generic, err
	}
	payload := newPayload()
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, err
	}
	// A SNOOP envelope's inner packet decodes with a generic Payload;
	// re-decode it by the inner packet's own Type.
	if inner, ok := payload.(*packet.Packet); ok && inner.Payload != nil {
		innerRaw, err := json.Marshal(inner.Payload)
		if err != nil {
			return nil, err
		}
		if inner.Payload, err = decodePayload(inner.Type, innerRaw); err != nil {
			return nil, err
		}
	}
	return derefAny(payload), nil
}

// derefAny dereferences the pointer decodePayload always decodes into,
// so handlers receive the same value shape (packet.X, not *packet.X)
// LocalLink would have carried.
func derefAny(p any) any {
	switch v := p.(type) {
	case *packet.ItemListing:
		return *v
	case *packet.LaborListing:
		return *v
	case *packet.LandListing:
		return *v
	case *packet.MarketSampleRequest:
		return *v
	case *packet.ItemSampleResult:
		return *v
	case *packet.LaborSampleResult:
		return *v
	case *packet.LandSampleResult:
		return *v
	case *packet.TradeRequest:
		return *v
	case *packet.LandTradeRequest:
		return *v
	case *packet.InfoRequest:
		return *v
	case *packet.CheckpointRequest:
		return *v
	case *packet.CheckpointAck:
		return *v
	case *packet.ProductionNotification:
		return *v
	case *packet.ConsumptionNotification:
		return *v
	case *packet.AccountingNotification:
		return *v
	case *packet.LaborContract:
		return *v
	case *[]packet.Type:
		return *v
	case *packet.Packet:
		return *v
	default:
		return p
	}
}

func (l *WSLink) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return l.conn.Close()
}
