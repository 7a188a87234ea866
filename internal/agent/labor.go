package agent

import (
	"fmt"

	"agoria/internal/packet"
)

type laborApplicationPayload struct {
	Listing          packet.LaborListing
	WorkerSkillLevel float64
}

type laborApplicationAck struct {
	Hired      bool
	ContractID string
}

type laborTimeSendPayload struct {
	ContractID string
	Ticks      float64
	SkillLevel float64
}

type laborContractCancelPayload struct {
	ContractID string
}

type laborContractCancelAck struct {
	Cancelled bool
}

// PostLaborListing publishes or replaces a listing for this agent as
// employer, keyed by ListingTag.
func (a *Agent) PostLaborListing(listing packet.LaborListing) {
	a.mu.Lock()
	a.laborListings[listing.ListingTag] = listing
	a.mu.Unlock()
	if a.cfg.LaborMarketID != "" {
		a.sendPacket(packet.Packet{Type: packet.LaborMarketUpdate, DestinationID: a.cfg.LaborMarketID, Payload: listing})
	}
}

// RemoveLaborListing withdraws a previously posted listing.
func (a *Agent) RemoveLaborListing(tag string) {
	a.mu.Lock()
	listing, ok := a.laborListings[tag]
	delete(a.laborListings, tag)
	a.mu.Unlock()
	if ok && a.cfg.LaborMarketID != "" {
		a.sendPacket(packet.Packet{Type: packet.LaborMarketRemove, DestinationID: a.cfg.LaborMarketID, Payload: listing})
	}
}

// SendJobApplication applies to listing (hosted by employerID) with this
// agent's skill level. Returns the contract if hired.
func (a *Agent) SendJobApplication(listing packet.LaborListing, workerSkillLevel float64) (packet.LaborContract, bool, error) {
	transactionID := packet.NewID()
	resp, err := a.await(transactionID, packet.Packet{
		Type:          packet.LaborApplication,
		DestinationID: listing.EmployerID,
		TransactionID: transactionID,
		Payload:       laborApplicationPayload{Listing: listing, WorkerSkillLevel: workerSkillLevel},
	})
	if err != nil {
		return packet.LaborContract{}, false, err
	}
	ack, ok := resp.Payload.(laborApplicationAck)
	if !ok || !ack.Hired {
		return packet.LaborContract{}, false, nil
	}

	contract := packet.LaborContract{
		ContractID:     ack.ContractID,
		EmployerID:     listing.EmployerID,
		WorkerID:       a.ID(),
		SkillLevel:     workerSkillLevel,
		WagePerTick:    listing.WagePerTick,
		TicksPerStep:   listing.TicksPerStep,
		ContractLength: listing.ContractLength,
	}
	a.mu.Lock()
	a.contractsAsWorker[contract.ContractID] = contract
	a.mu.Unlock()
	return contract, true, nil
}

// handleReceiveJobApplication evaluates an applicant via the controller
// and, if hired, generates and records a labor contract. Grounded on
// original_source/TradeClasses.py's LaborListing.generateLaborContract.
func (a *Agent) handleReceiveJobApplication(p packet.Packet) {
	payload, ok := p.Payload.(laborApplicationPayload)
	if !ok {
		return
	}

	a.mu.Lock()
	listing, exists := a.laborListings[payload.Listing.ListingTag]
	currentStep := a.stepNum
	a.mu.Unlock()

	hired := false
	var contract packet.LaborContract
	if exists {
		hired = a.cfg.Controller.EvalJobApplication(listing, p.SenderID, payload.WorkerSkillLevel)
	}
	if hired {
		contract = packet.LaborContract{
			ContractID:     packet.NewID(),
			EmployerID:     a.ID(),
			WorkerID:       p.SenderID,
			SkillLevel:     payload.WorkerSkillLevel,
			WagePerTick:    listing.WagePerTick,
			TicksPerStep:   listing.TicksPerStep,
			ContractLength: listing.ContractLength,
			StartStep:      currentStep,
			EndStep:        currentStep + listing.ContractLength - 1,
		}
		a.mu.Lock()
		a.contractsAsEmployer[contract.ContractID] = contract
		a.mu.Unlock()
		a.sendPacket(packet.Packet{Type: packet.LaborContractFormedBroadcast, Payload: contract})
	}

	a.sendPacket(packet.Packet{
		Type:          packet.LaborApplicationAck,
		DestinationID: p.SenderID,
		TransactionID: p.TransactionID,
		Payload:       laborApplicationAck{Hired: hired, ContractID: contract.ContractID},
	})
}

// SendLaborTime is called by a worker to deliver ticks of labor against
// an active contract. Per spec's Open Question resolution, the employer
// pays wages immediately upon receiving this packet rather than batching
// payment to the end of the step.
func (a *Agent) SendLaborTime(contractID string, ticks, skillLevel float64) {
	a.mu.Lock()
	contract, ok := a.contractsAsWorker[contractID]
	if ok {
		a.timeTicks -= ticks
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	a.sendPacket(packet.Packet{
		Type:          packet.LaborTimeSend,
		DestinationID: contract.EmployerID,
		TransactionID: contractID,
		Payload:       laborTimeSendPayload{ContractID: contractID, Ticks: ticks, SkillLevel: skillLevel},
	})
}

// handleReceiveLaborTime credits the employer's labor inventory for the
// skill level delivered and immediately pays the worker the owed wage.
func (a *Agent) handleReceiveLaborTime(p packet.Packet) {
	payload, ok := p.Payload.(laborTimeSendPayload)
	if !ok {
		return
	}
	a.mu.Lock()
	a.laborInventory[payload.SkillLevel] += payload.Ticks
	contract, hasContract := a.contractsAsEmployer[payload.ContractID]
	a.mu.Unlock()
	if !hasContract {
		return
	}

	wage := packet.Cents(payload.Ticks) * contract.WagePerTick
	if _, err := a.SendCurrency(wage, p.SenderID, payload.ContractID+"_WAGE"); err != nil {
		a.logger.Printf("agent %s: wage payment on contract %s failed: %v", a.ID(), payload.ContractID, err)
	}
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// CancelLaborContract notifies the counterparty of contractID that this
// agent is ending the contract early.
func (a *Agent) CancelLaborContract(contractID, counterpartyID string) (bool, error) {
	transactionID := packet.NewID()
	resp, err := a.await(transactionID, packet.Packet{
		Type:          packet.LaborContractCancel,
		DestinationID: counterpartyID,
		TransactionID: transactionID,
		Payload:       laborContractCancelPayload{ContractID: contractID},
	})
	if err != nil {
		return false, err
	}
	ack, ok := resp.Payload.(laborContractCancelAck)
	if !ok {
		return false, fmt.Errorf("agent %s: malformed cancel ack for contract %s", a.ID(), contractID)
	}
	a.mu.Lock()
	delete(a.contractsAsEmployer, contractID)
	delete(a.contractsAsWorker, contractID)
	a.mu.Unlock()
	return ack.Cancelled, nil
}

func (a *Agent) handleReceiveContractCancel(p packet.Packet) {
	payload, ok := p.Payload.(laborContractCancelPayload)
	cancelled := false
	if ok {
		a.mu.Lock()
		_, asEmployer := a.contractsAsEmployer[payload.ContractID]
		_, asWorker := a.contractsAsWorker[payload.ContractID]
		delete(a.contractsAsEmployer, payload.ContractID)
		delete(a.contractsAsWorker, payload.ContractID)
		a.mu.Unlock()
		cancelled = asEmployer || asWorker
	}
	a.sendPacket(packet.Packet{
		Type:          packet.LaborContractCancelAck,
		DestinationID: p.SenderID,
		TransactionID: p.TransactionID,
		Payload:       laborContractCancelAck{Cancelled: cancelled},
	})
}
