package agent

import (
	"fmt"

	"agoria/internal/packet"
)

type itemTransferPayload struct {
	TransferID string
	Item       packet.ItemContainer
}

type itemTransferAck struct {
	TransferID      string
	TransferSuccess bool
}

// SendItem transfers an item quantity to recipientID. A zero quantity or
// self-transfer is a no-op success.
func (a *Agent) SendItem(item packet.ItemContainer, recipientID, transactionID string) (bool, error) {
	if item.Quantity == 0 {
		return true, nil
	}
	if recipientID == a.ID() {
		return true, nil
	}
	if item.Quantity < 0 {
		return false, fmt.Errorf("agent %s: cannot send negative quantity %v", a.ID(), item)
	}

	a.mu.Lock()
	have := a.inventory[item.ItemID]
	if have < item.Quantity {
		a.mu.Unlock()
		return false, fmt.Errorf("agent %s: inventory %v too small to send %v of %s", a.ID(), have, item.Quantity, item.ItemID)
	}
	a.inventory[item.ItemID] = have - item.Quantity
	a.recordFlowLocked("item_sent:"+item.ItemID, -item.Quantity)
	a.mu.Unlock()

	if transactionID == "" {
		transactionID = packet.NewID()
	}
	transferID := transactionID + "_ITEM"

	resp, err := a.await(transferID, packet.Packet{
		Type:          packet.ItemTransfer,
		DestinationID: recipientID,
		TransactionID: transferID,
		Payload:       itemTransferPayload{TransferID: transferID, Item: item},
	})
	if err != nil {
		a.reverseItemDebit(item)
		return false, err
	}
	ack, ok := resp.Payload.(itemTransferAck)
	if !ok || !ack.TransferSuccess {
		a.reverseItemDebit(item)
		return false, nil
	}
	return true, nil
}

func (a *Agent) reverseItemDebit(item packet.ItemContainer) {
	a.mu.Lock()
	a.inventory[item.ItemID] += item.Quantity
	a.recordFlowLocked("item_sent:"+item.ItemID, item.Quantity)
	a.mu.Unlock()
}

func (a *Agent) handleReceiveItem(p packet.Packet) {
	payload, ok := p.Payload.(itemTransferPayload)
	success := ok
	if ok {
		a.mu.Lock()
		a.inventory[payload.Item.ItemID] += payload.Item.Quantity
		a.recordFlowLocked("item_received:"+payload.Item.ItemID, payload.Item.Quantity)
		a.mu.Unlock()
	}
	a.sendPacket(packet.Packet{
		Type:          packet.ItemTransferAck,
		DestinationID: p.SenderID,
		TransactionID: p.TransactionID,
		Payload:       itemTransferAck{TransferID: payload.TransferID, TransferSuccess: success},
	})
}

// InventoryOf returns the quantity held of itemID.
func (a *Agent) InventoryOf(itemID string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inventory[itemID]
}
