package agent

import (
	"agoria/internal/checkpoint"
	"agoria/internal/packet"
)

// handleSaveCheckpoint persists this agent's state into the checkpoint
// directory named by the packet payload and acks completion.
func (a *Agent) handleSaveCheckpoint(p packet.Packet) {
	req, ok := p.Payload.(packet.CheckpointRequest)
	success := true
	errMsg := ""
	if !ok {
		success, errMsg = false, "malformed SAVE_CHECKPOINT payload"
	} else {
		state := a.Snapshot()
		if err := checkpoint.Save(req.Dir, "agent", a.ID(), state); err != nil {
			success, errMsg = false, err.Error()
			a.logger.Printf("agent %s: checkpoint save failed: %v", a.ID(), err)
		}
	}
	a.sendPacket(packet.Packet{
		Type:          packet.SaveCheckpointAck,
		DestinationID: p.SenderID,
		TransactionID: p.TransactionID,
		Payload:       packet.CheckpointAck{Success: success, Error: errMsg},
	})
}

// handleLoadCheckpoint restores this agent's state from the checkpoint
// directory named by the packet payload and acks completion. Must only
// be invoked while the agent is quiescent (between steps), since Restore
// replaces state wholesale.
func (a *Agent) handleLoadCheckpoint(p packet.Packet) {
	req, ok := p.Payload.(packet.CheckpointRequest)
	success := true
	errMsg := ""
	if !ok {
		success, errMsg = false, "malformed LOAD_CHECKPOINT payload"
	} else {
		var state State
		if _, err := checkpoint.Load(req.Dir, "agent", a.ID(), &state); err != nil {
			success, errMsg = false, err.Error()
			a.logger.Printf("agent %s: checkpoint load failed: %v", a.ID(), err)
		} else {
			a.Restore(state)
		}
	}
	a.sendPacket(packet.Packet{
		Type:          packet.LoadCheckpointAck,
		DestinationID: p.SenderID,
		TransactionID: p.TransactionID,
		Payload:       packet.CheckpointAck{Success: success, Error: errMsg},
	})
}
