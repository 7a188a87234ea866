package agent

import (
	"fmt"

	"agoria/internal/packet"
)

// ProduceItem asks the configured ProductionFunction to produce up to
// requestedQuantity of itemID using currently available time ticks,
// inventory, free land, and banked labor, then applies the resulting
// consumption/production to the agent's holdings atomically. Land used is
// claimed via AllocateLand/DeallocateLand rather than debited from
// holdings outright: producing from an allocation doesn't consume the
// hectares the way an input item or a labor tick is consumed.
func (a *Agent) ProduceItem(itemID string, requestedQuantity float64) (float64, error) {
	if a.cfg.Production == nil {
		return 0, fmt.Errorf("agent %s: no production function configured", a.ID())
	}

	a.mu.Lock()
	ticksAvailable := a.timeTicks
	inputs := cloneMap(a.inventory)
	landAvailable := make(map[string]float64, len(a.land))
	for allocation, hectares := range a.land {
		landAvailable[allocation] = hectares - a.committedLand[allocation]
	}
	laborAvailable := cloneFloatKeyMap(a.laborInventory)
	a.mu.Unlock()

	produced, ticksUsed, inputsUsed, landUsed, laborUsed := a.cfg.Production.Produce(itemID, requestedQuantity, ticksAvailable, inputs, landAvailable, laborAvailable)
	if produced <= 0 {
		return 0, nil
	}

	for allocation, hectares := range landUsed {
		if hectares <= 0 {
			continue
		}
		if err := a.AllocateLand(allocation, hectares); err != nil {
			return 0, fmt.Errorf("agent %s: production of %s claimed more %s hectares than free: %w", a.ID(), itemID, allocation, err)
		}
	}

	a.mu.Lock()
	a.timeTicks -= ticksUsed
	for input, used := range inputsUsed {
		a.inventory[input] -= used
		a.recordFlowLocked("item_consumed:"+input, -used)
	}
	for skillLevel, used := range laborUsed {
		a.laborInventory[skillLevel] -= used
		a.recordFlowLocked(fmt.Sprintf("labor_consumed:skill_%v", skillLevel), -used)
	}
	a.inventory[itemID] += produced
	a.recordFlowLocked("item_produced:"+itemID, produced)
	a.mu.Unlock()

	for allocation, hectares := range landUsed {
		if hectares <= 0 {
			continue
		}
		_ = a.DeallocateLand(allocation, hectares)
	}

	a.sendPacket(packet.Packet{
		Type:    packet.ProductionNotificationBroadcast,
		Payload: packet.ProductionNotification{ItemID: itemID, Quantity: produced, StepNum: a.StepNum()},
	})

	return produced, nil
}

// ConsumeItem removes quantity of itemID from inventory and notifies the
// nutrition tracker, returning an error if the agent doesn't hold enough.
func (a *Agent) ConsumeItem(itemID string, quantity float64) error {
	if quantity <= 0 {
		return nil
	}
	a.mu.Lock()
	have := a.inventory[itemID]
	if have < quantity {
		a.mu.Unlock()
		return fmt.Errorf("agent %s: inventory %v of %s too small to consume %v", a.ID(), have, itemID, quantity)
	}
	a.inventory[itemID] = have - quantity
	a.recordFlowLocked("item_consumed:"+itemID, -quantity)
	a.mu.Unlock()

	if a.cfg.Nutrition != nil {
		a.cfg.Nutrition.OnConsume(itemID, quantity)
	}

	a.sendPacket(packet.Packet{
		Type:    packet.ConsumptionNotificationBroadcast,
		Payload: packet.ConsumptionNotification{ItemID: itemID, Quantity: quantity, StepNum: a.StepNum()},
	})
	return nil
}

// RelinquishTicks burns n time ticks with no other effect — a controller
// pacing primitive carried forward from
// original_source/EconAgent.py's relinquishTimeTicks.
func (a *Agent) RelinquishTicks(n float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n > a.timeTicks {
		return fmt.Errorf("agent %s: cannot relinquish %v ticks, only %v available", a.ID(), n, a.timeTicks)
	}
	a.timeTicks -= n
	return nil
}

// TimeTicksAvailable returns the ticks currently available to spend this
// step.
func (a *Agent) TimeTicksAvailable() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timeTicks
}

// handleTickGrant credits the granted ticks, advances the step counter,
// clears the tick-blocked flag, applies the nutrition tracker's step
// decay, calls the controller's OnStep, broadcasts the agent's accounting
// snapshot, and, when a ManagerID is configured, marks the agent
// tick-blocked and sends TICK_BLOCKED — grounded on
// original_source/EconAgent.py's TICK_GRANT handling.
func (a *Agent) handleTickGrant(p packet.Packet) {
	granted, _ := p.Payload.(float64)

	a.mu.Lock()
	a.timeTicks += granted
	a.stepNum++
	a.tickBlocked = false
	step := a.stepNum
	starved := false
	a.mu.Unlock()

	if a.cfg.Nutrition != nil {
		starved = a.cfg.Nutrition.OnStepDecay()
		if starved {
			a.logger.Printf("agent %s: starved at step %d", a.ID(), step)
		}
	}

	if a.cfg.Controller != nil {
		a.cfg.Controller.OnStep(step)
	}

	a.mu.Lock()
	acct := make(map[string]packet.AccountingSnapshot, len(a.accounting))
	for flow, tr := range a.accounting {
		acct[flow] = tr.snapshot()
	}
	a.mu.Unlock()
	a.sendPacket(packet.Packet{
		Type:    packet.AccountingNotificationBroadcast,
		Payload: packet.AccountingNotification{AgentID: a.ID(), StepNum: step, Flows: acct},
	})

	if a.cfg.ManagerID != "" {
		// OnStep runs to completion synchronously, so its return is this
		// agent's signal that it has nothing further to do this step —
		// the Go equivalent of each Python controller's receiveMsg sending
		// TICK_BLOCKED itself once its own per-step work is done.
		a.mu.Lock()
		a.tickBlocked = true
		a.mu.Unlock()
		a.sendPacket(packet.Packet{Type: packet.TickBlocked, DestinationID: a.cfg.ManagerID})
	}
}

// StepNum returns the last step number this agent has been granted ticks
// for.
func (a *Agent) StepNum() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stepNum
}

// SubscribeTickBlock tells the Simulation Manager this agent has
// exhausted its useful work for the step and is ready for the barrier to
// advance (TICK_BLOCK_SUBSCRIBE then TICK_BLOCKED, per spec §4.5).
func (a *Agent) SubscribeTickBlock(managerID string) {
	a.mu.Lock()
	a.tickBlocked = true
	a.mu.Unlock()
	a.sendPacket(packet.Packet{Type: packet.TickBlockSubscribe, DestinationID: managerID})
	a.sendPacket(packet.Packet{Type: packet.TickBlocked, DestinationID: managerID})
}
