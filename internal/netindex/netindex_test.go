package netindex

import (
	"context"
	"path/filepath"
	"testing"

	"agoria/internal/packet"
)

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatalf("Open(\"\") succeeded, want error")
	}
}

func TestRecordContractAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ix, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ix.RecordContract(packet.LaborContract{
		ContractID: "ctr-1", EmployerID: "farmer", WorkerID: "hand",
		SkillLevel: 1.0, WagePerTick: 20, TicksPerStep: 24, ContractLength: 5, StartStep: 2, EndStep: 6,
	})
	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ix2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer ix2.Close()

	records, err := ix2.ContractsForAgent(context.Background(), "farmer")
	if err != nil {
		t.Fatalf("ContractsForAgent: %v", err)
	}
	if len(records) != 1 || records[0].ContractID != "ctr-1" || records[0].WagePerTick != 20 {
		t.Fatalf("records = %+v, want one contract for farmer", records)
	}

	asWorker, err := ix2.ContractsForAgent(context.Background(), "hand")
	if err != nil {
		t.Fatalf("ContractsForAgent(hand): %v", err)
	}
	if len(asWorker) != 1 {
		t.Fatalf("records for worker = %+v, want the same contract found by worker id too", asWorker)
	}
}

func TestRecordFlowsAndSumTotal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ix, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ix.RecordProduction("miller", packet.ProductionNotification{ItemID: "flour", Quantity: 4, StepNum: 1})
	ix.RecordProduction("miller", packet.ProductionNotification{ItemID: "flour", Quantity: 3, StepNum: 2})
	ix.RecordConsumption("miller", packet.ConsumptionNotification{ItemID: "grain", Quantity: 8, StepNum: 1})
	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ix2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer ix2.Close()

	total, err := ix2.FlowTotal(context.Background(), "miller", "production", "flour")
	if err != nil {
		t.Fatalf("FlowTotal: %v", err)
	}
	if total != 7 {
		t.Fatalf("production total = %v, want 7", total)
	}

	consumedTotal, err := ix2.FlowTotal(context.Background(), "miller", "consumption", "grain")
	if err != nil {
		t.Fatalf("FlowTotal(consumption): %v", err)
	}
	if consumedTotal != 8 {
		t.Fatalf("consumption total = %v, want 8", consumedTotal)
	}

	none, err := ix2.FlowTotal(context.Background(), "nobody", "production", "flour")
	if err != nil {
		t.Fatalf("FlowTotal(nobody): %v", err)
	}
	if none != 0 {
		t.Fatalf("total for an agent with no recorded flows = %v, want 0", none)
	}
}

func TestCheckpointRequestAndAckTracking(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ix, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ix.RecordCheckpointRequest("/ckpt/step_1", "save")
	ix.RecordCheckpointAck("/ckpt/step_1", "farmer", "save", packet.CheckpointAck{Success: true})
	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ix2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer ix2.Close()

	dir, ok, err := ix2.LatestCheckpointDir(context.Background(), "save")
	if err != nil {
		t.Fatalf("LatestCheckpointDir: %v", err)
	}
	if !ok || dir != "/ckpt/step_1" {
		t.Fatalf("LatestCheckpointDir = (%q, %v), want (/ckpt/step_1, true)", dir, ok)
	}

	_, ok, err = ix2.LatestCheckpointDir(context.Background(), "load")
	if err != nil {
		t.Fatalf("LatestCheckpointDir(load): %v", err)
	}
	if ok {
		t.Fatalf("LatestCheckpointDir(load) reported a dir, want none requested yet")
	}
}

func TestNilIndexRecordCallsAreNoops(t *testing.T) {
	var ix *Index
	// None of these must panic on a nil receiver.
	ix.RecordContract(packet.LaborContract{})
	ix.RecordProduction("x", packet.ProductionNotification{})
	ix.RecordConsumption("x", packet.ConsumptionNotification{})
	ix.RecordCheckpointRequest("/d", "save")
	ix.RecordCheckpointAck("/d", "x", "save", packet.CheckpointAck{})
}
