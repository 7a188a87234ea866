package netindex

import (
	"context"
	"path/filepath"
	"testing"

	"agoria/internal/link"
	"agoria/internal/packet"
)

func TestWatcherTranslatesSnoopedBroadcastsIntoRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ix, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	_, side := link.NewLocalPair(1)
	w := NewWatcher("watcher-1", side, nil, ix)

	w.onContract(packet.Packet{Payload: packet.LaborContract{ContractID: "ctr-1", EmployerID: "farmer", WorkerID: "hand"}})
	w.onProduction(packet.Packet{SenderID: "miller", Payload: packet.ProductionNotification{ItemID: "flour", Quantity: 2, StepNum: 1}})
	w.onConsumption(packet.Packet{SenderID: "household", Payload: packet.ConsumptionNotification{ItemID: "bread", Quantity: 1, StepNum: 1}})
	w.onCheckpointRequest("save")(packet.Packet{Payload: packet.CheckpointRequest{Dir: "/ckpt/step_1"}})
	w.onCheckpointAck("save")(packet.Packet{SenderID: "farmer", Payload: packet.CheckpointAck{Success: true}})

	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ix2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer ix2.Close()

	contracts, err := ix2.ContractsForAgent(context.Background(), "farmer")
	if err != nil {
		t.Fatalf("ContractsForAgent: %v", err)
	}
	if len(contracts) != 1 {
		t.Fatalf("contracts = %+v, want the watched contract indexed", contracts)
	}

	produced, err := ix2.FlowTotal(context.Background(), "miller", "production", "flour")
	if err != nil {
		t.Fatalf("FlowTotal: %v", err)
	}
	if produced != 2 {
		t.Fatalf("production total = %v, want 2", produced)
	}

	dir, ok, err := ix2.LatestCheckpointDir(context.Background(), "save")
	if err != nil {
		t.Fatalf("LatestCheckpointDir: %v", err)
	}
	if !ok || dir != "/ckpt/step_1" {
		t.Fatalf("LatestCheckpointDir = (%q, %v), want (/ckpt/step_1, true)", dir, ok)
	}
}

func TestWatcherHandlersIgnoreWrongPayloadType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ix, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, side := link.NewLocalPair(1)
	w := NewWatcher("watcher-2", side, nil, ix)

	// None of these carry the payload type the handler expects; each
	// must be a silent no-op rather than indexing garbage or panicking.
	w.onContract(packet.Packet{Payload: "nope"})
	w.onProduction(packet.Packet{SenderID: "miller", Payload: "nope"})
	w.onConsumption(packet.Packet{SenderID: "household", Payload: "nope"})
	w.onCheckpointRequest("save")(packet.Packet{Payload: "nope"})
	w.onCheckpointAck("save")(packet.Packet{Payload: "nope"})

	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ix2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer ix2.Close()

	contracts, err := ix2.ContractsForAgent(context.Background(), "miller")
	if err != nil {
		t.Fatalf("ContractsForAgent: %v", err)
	}
	if len(contracts) != 0 {
		t.Fatalf("contracts = %+v, want none indexed from malformed payloads", contracts)
	}
}
