package agent

import (
	"fmt"

	"agoria/internal/packet"
)

// currencyTransferPayload is the wire shape of CURRENCY_TRANSFER /
// CURRENCY_TRANSFER_ACK packets, pinned down from
// original_source/EconAgent.py's sendCurrency/receiveCurrency.
type currencyTransferPayload struct {
	PaymentID string
	Cents     packet.Cents
}

type currencyTransferAck struct {
	PaymentID       string
	TransferSuccess bool
}

// SendCurrency transfers cents to recipientID. It provisionally debits
// the sender's balance, sends CURRENCY_TRANSFER, and blocks for the ack;
// on rejection or timeout the debit is reversed. A zero amount or a
// self-transfer is a no-op success, per spec's boundary rules.
func (a *Agent) SendCurrency(cents packet.Cents, recipientID, transactionID string) (bool, error) {
	if cents == 0 {
		return true, nil
	}
	if recipientID == a.ID() {
		return true, nil
	}
	if cents < 0 {
		return false, fmt.Errorf("agent %s: cannot send negative amount %d", a.ID(), cents)
	}

	a.mu.Lock()
	if cents > a.balance {
		a.mu.Unlock()
		return false, fmt.Errorf("agent %s: balance %d too small to send %d", a.ID(), a.balance, cents)
	}
	a.balance -= cents
	a.recordFlowLocked("currency_sent", -float64(cents))
	a.mu.Unlock()

	if transactionID == "" {
		transactionID = packet.NewID()
	}
	paymentID := transactionID + "_CURRENCY"

	resp, err := a.await(paymentID, packet.Packet{
		Type:          packet.CurrencyTransfer,
		DestinationID: recipientID,
		TransactionID: paymentID,
		Payload:       currencyTransferPayload{PaymentID: paymentID, Cents: cents},
	})
	if err != nil {
		a.reverseCurrencyDebit(cents)
		return false, err
	}

	ack, ok := resp.Payload.(currencyTransferAck)
	if !ok || !ack.TransferSuccess {
		a.reverseCurrencyDebit(cents)
		return false, nil
	}
	return true, nil
}

func (a *Agent) reverseCurrencyDebit(cents packet.Cents) {
	a.mu.Lock()
	a.balance += cents
	a.recordFlowLocked("currency_sent", float64(cents))
	a.mu.Unlock()
}

// handleReceiveCurrency handles an inbound CURRENCY_TRANSFER packet:
// credits the balance, acks the sender, and resolves this agent's own
// pending currency-landed rendezvous (if any trade leg reserved one under
// this PaymentID) so a blocked seller can proceed to ship its item. The
// resolve is a no-op for ordinary transfers nobody is waiting on.
func (a *Agent) handleReceiveCurrency(p packet.Packet) {
	payload, ok := p.Payload.(currencyTransferPayload)
	success := ok
	if ok {
		a.mu.Lock()
		a.balance += payload.Cents
		a.recordFlowLocked("currency_received", float64(payload.Cents))
		a.mu.Unlock()
	}
	a.sendPacket(packet.Packet{
		Type:          packet.CurrencyTransferAck,
		DestinationID: p.SenderID,
		TransactionID: p.TransactionID,
		Payload:       currencyTransferAck{PaymentID: payload.PaymentID, TransferSuccess: success},
	})
	if success {
		a.tx.resolve(payload.PaymentID, packet.Packet{Payload: currencyLandedSignal{Success: true}})
	}
}

// Balance returns the agent's current currency balance.
func (a *Agent) Balance() packet.Cents {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}
