package agent

import (
	"fmt"

	"agoria/internal/packet"
)

type landTransferPayload struct {
	TransferID string
	Allocation string
	Hectares   float64
}

type landTransferAck struct {
	TransferID      string
	TransferSuccess bool
}

// AllocateLand marks hectares of allocation as committed to active use
// (e.g. production), separate from raw ownership bookkeeping. Mirrors
// original_source/EconAgent.py's allocateLand/deallocateLand pair, which
// the original leaves as a bookkeeping stub; here it actually tracks a
// committed-hectares figure per allocation so a ProductionFunction cannot
// be handed more land than the agent owns free and clear.
func (a *Agent) AllocateLand(allocation string, hectares float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	free := a.land[allocation] - a.committedLand[allocation]
	if free < hectares {
		return fmt.Errorf("agent %s: only %v free hectares of %s, cannot allocate %v", a.ID(), free, allocation, hectares)
	}
	if a.committedLand == nil {
		a.committedLand = make(map[string]float64)
	}
	a.committedLand[allocation] += hectares
	return nil
}

// DeallocateLand releases a prior AllocateLand commitment.
func (a *Agent) DeallocateLand(allocation string, hectares float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	committed := a.committedLand[allocation]
	if committed < hectares {
		return fmt.Errorf("agent %s: only %v hectares of %s committed, cannot deallocate %v", a.ID(), committed, allocation, hectares)
	}
	a.committedLand[allocation] -= hectares
	return nil
}

// SendLand transfers hectares of allocation to recipientID.
func (a *Agent) SendLand(allocation string, hectares float64, recipientID, transactionID string) (bool, error) {
	if hectares == 0 {
		return true, nil
	}
	if recipientID == a.ID() {
		return true, nil
	}
	if hectares < 0 {
		return false, fmt.Errorf("agent %s: cannot send negative hectares %v", a.ID(), hectares)
	}

	a.mu.Lock()
	have := a.land[allocation]
	if have < hectares {
		a.mu.Unlock()
		return false, fmt.Errorf("agent %s: land holdings %v of %s too small to send %v", a.ID(), have, allocation, hectares)
	}
	a.land[allocation] = have - hectares
	a.mu.Unlock()

	if transactionID == "" {
		transactionID = packet.NewID()
	}
	transferID := transactionID + "_LAND"

	resp, err := a.await(transferID, packet.Packet{
		Type:          packet.LandTransfer,
		DestinationID: recipientID,
		TransactionID: transferID,
		Payload:       landTransferPayload{TransferID: transferID, Allocation: allocation, Hectares: hectares},
	})
	if err != nil {
		a.reverseLandDebit(allocation, hectares)
		return false, err
	}
	ack, ok := resp.Payload.(landTransferAck)
	if !ok || !ack.TransferSuccess {
		a.reverseLandDebit(allocation, hectares)
		return false, nil
	}
	return true, nil
}

func (a *Agent) reverseLandDebit(allocation string, hectares float64) {
	a.mu.Lock()
	a.land[allocation] += hectares
	a.mu.Unlock()
}

func (a *Agent) handleReceiveLand(p packet.Packet) {
	payload, ok := p.Payload.(landTransferPayload)
	success := ok
	if ok {
		a.mu.Lock()
		a.land[payload.Allocation] += payload.Hectares
		a.mu.Unlock()
	}
	a.sendPacket(packet.Packet{
		Type:          packet.LandTransferAck,
		DestinationID: p.SenderID,
		TransactionID: p.TransactionID,
		Payload:       landTransferAck{TransferID: payload.TransferID, TransferSuccess: success},
	})
}

// LandHoldingOf returns the hectares held of allocation.
func (a *Agent) LandHoldingOf(allocation string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.land[allocation]
}
