package agent

import (
	"time"

	"agoria/internal/packet"
)

type tradeReqAck struct {
	Accepted bool
}

// currencyLandedSignal is posted into a seller's own reserved rendezvous
// by handleReceiveCurrency once the buyer's matching CURRENCY_TRANSFER has
// actually been credited. It never crosses a link; it only ever travels
// through a.tx on the seller's own Agent, which is why it can share the
// transactionTable's packet.Packet envelope without a wire codec case.
type currencyLandedSignal struct {
	Success bool
}

// a.tradeMu (declared on Agent) serializes trade evaluation against
// concurrent trade requests touching the same agent, mirroring
// original_source/EconAgent.py's tradeRequestLock: evaluating an offer
// and (if accepted) executing it must look atomic to a third party racing
// a second offer in.

// reserveCurrencyLanding registers this agent's own rendezvous for the
// CURRENCY_TRANSFER tied to transactionID, keyed the same way
// SendCurrency derives its paymentID. The caller must do this before
// sending whichever packet could let the counterparty react (TRADE_REQ if
// this agent is the initiating seller, TRADE_REQ_ACK if this agent is the
// accepting seller) so the buyer's payment can never land before this
// agent is listening for it.
func (a *Agent) reserveCurrencyLanding(transactionID string) (string, chan packet.Packet) {
	paymentID := transactionID + "_CURRENCY"
	return paymentID, a.tx.register(paymentID, a.cfg.LockTimeout)
}

// waitForCurrencyLanded blocks until the rendezvous reserved by
// reserveCurrencyLanding resolves or cfg.LockTimeout elapses, whichever
// comes first, and reports whether the currency leg actually succeeded.
func (a *Agent) waitForCurrencyLanded(paymentID string, ch chan packet.Packet) bool {
	select {
	case p := <-ch:
		signal, _ := p.Payload.(currencyLandedSignal)
		return signal.Success
	case <-time.After(a.cfg.LockTimeout):
		a.tx.expire(paymentID)
		return false
	}
}

// SendTradeRequest offers req to recipientID and, if accepted, executes
// the buyer/seller leg this agent is responsible for.
func (a *Agent) SendTradeRequest(req packet.TradeRequest, recipientID string) (bool, error) {
	a.tradeMu.Lock()
	defer a.tradeMu.Unlock()

	transactionID := packet.NewID()

	var paymentID string
	var currencyCh chan packet.Packet
	if a.ID() == req.SellerID {
		paymentID, currencyCh = a.reserveCurrencyLanding(transactionID)
	}

	resp, err := a.await(transactionID, packet.Packet{
		Type:          packet.TradeReq,
		DestinationID: recipientID,
		TransactionID: transactionID,
		Payload:       req,
	})
	if err != nil {
		if paymentID != "" {
			a.tx.expire(paymentID)
		}
		return false, err
	}
	ack, ok := resp.Payload.(tradeReqAck)
	if !ok || !ack.Accepted {
		if paymentID != "" {
			a.tx.expire(paymentID)
		}
		return false, nil
	}
	return a.executeTrade(req, transactionID, paymentID, currencyCh)
}

// handleReceiveTradeRequest evaluates an incoming trade offer via the
// controller, acks the result, and if accepted executes this agent's leg.
// Only the named buyer or seller may submit the offer; a third party's
// request is rejected outright (original_source's sender-identity check).
// A seller's rendezvous is reserved before the ack goes out, per spec
// §4.3.3: the item only ships once the buyer's currency has landed.
func (a *Agent) handleReceiveTradeRequest(p packet.Packet) {
	req, ok := p.Payload.(packet.TradeRequest)
	if !ok {
		return
	}

	a.tradeMu.Lock()
	defer a.tradeMu.Unlock()

	accepted := false
	if (p.SenderID == req.SellerID || p.SenderID == req.BuyerID) && a.stillHonorsListing(req) {
		accepted = a.cfg.Controller.EvalTradeRequest(req)
	}

	var paymentID string
	var currencyCh chan packet.Packet
	if accepted && a.ID() == req.SellerID {
		paymentID, currencyCh = a.reserveCurrencyLanding(p.TransactionID)
	}

	a.sendPacket(packet.Packet{
		Type:          packet.TradeReqAck,
		DestinationID: p.SenderID,
		TransactionID: p.TransactionID,
		Payload:       tradeReqAck{Accepted: accepted},
	})

	if accepted {
		a.executeTrade(req, p.TransactionID, paymentID, currencyCh)
	}
}

// stillHonorsListing re-validates a still-posted listing before this
// agent, acting as seller, accepts a TRADE_REQ — per spec.md Design Notes
// Open Question 2: a buyer's sampled listing may be stale by the time its
// offer arrives, so the seller checks its own bookkeeping rather than
// trusting the offer at face value. If this agent is the buyer named in
// req rather than the seller, there is nothing of its own to revalidate.
func (a *Agent) stillHonorsListing(req packet.TradeRequest) bool {
	if a.ID() != req.SellerID {
		return true
	}
	a.mu.Lock()
	listing, ok := a.itemListings[packet.ItemListingKey{SellerID: a.ID(), ItemID: req.Item.ItemID}]
	a.mu.Unlock()
	if !ok {
		return false
	}
	minAcceptable := packet.Cents(float64(listing.UnitPrice) * req.Item.Quantity)
	return req.Item.Quantity <= listing.MaxQuantity && req.CurrencyAmount >= minAcceptable
}

// executeTrade carries out whichever leg of req belongs to this agent: the
// buyer sends currency; the seller waits for that currency to actually
// land on the rendezvous reserved by the caller and only then ships the
// item. A currency leg that fails or times out is never followed by an
// item transfer, and nothing was ever debited for it to un-reserve.
func (a *Agent) executeTrade(req packet.TradeRequest, transactionID, paymentID string, currencyCh chan packet.Packet) (bool, error) {
	if a.ID() == req.BuyerID {
		return a.SendCurrency(req.CurrencyAmount, req.SellerID, transactionID)
	}
	if a.ID() == req.SellerID {
		if !a.waitForCurrencyLanded(paymentID, currencyCh) {
			return false, nil
		}
		return a.SendItem(req.Item, req.BuyerID, transactionID)
	}
	return false, nil
}

type landTradeReqAck struct {
	Accepted bool
}

// SendLandTradeRequest is the land analogue of SendTradeRequest.
func (a *Agent) SendLandTradeRequest(req packet.LandTradeRequest, recipientID string) (bool, error) {
	a.tradeMu.Lock()
	defer a.tradeMu.Unlock()

	transactionID := packet.NewID()

	var paymentID string
	var currencyCh chan packet.Packet
	if a.ID() == req.SellerID {
		paymentID, currencyCh = a.reserveCurrencyLanding(transactionID)
	}

	resp, err := a.await(transactionID, packet.Packet{
		Type:          packet.LandTradeReq,
		DestinationID: recipientID,
		TransactionID: transactionID,
		Payload:       req,
	})
	if err != nil {
		if paymentID != "" {
			a.tx.expire(paymentID)
		}
		return false, err
	}
	ack, ok := resp.Payload.(landTradeReqAck)
	if !ok || !ack.Accepted {
		if paymentID != "" {
			a.tx.expire(paymentID)
		}
		return false, nil
	}
	return a.executeLandTrade(req, transactionID, paymentID, currencyCh)
}

// handleReceiveLandTradeRequest mirrors handleReceiveTradeRequest: a
// seller's rendezvous is reserved before the ack goes out, so the land
// parcel only ships once the buyer's currency has landed.
func (a *Agent) handleReceiveLandTradeRequest(p packet.Packet) {
	req, ok := p.Payload.(packet.LandTradeRequest)
	if !ok {
		return
	}

	a.tradeMu.Lock()
	defer a.tradeMu.Unlock()

	accepted := false
	if (p.SenderID == req.SellerID || p.SenderID == req.BuyerID) && a.stillHonorsLandListing(req) {
		accepted = a.cfg.Controller.EvalLandTradeRequest(req)
	}

	var paymentID string
	var currencyCh chan packet.Packet
	if accepted && a.ID() == req.SellerID {
		paymentID, currencyCh = a.reserveCurrencyLanding(p.TransactionID)
	}

	a.sendPacket(packet.Packet{
		Type:          packet.LandTradeReqAck,
		DestinationID: p.SenderID,
		TransactionID: p.TransactionID,
		Payload:       landTradeReqAck{Accepted: accepted},
	})

	if accepted {
		a.executeLandTrade(req, p.TransactionID, paymentID, currencyCh)
	}
}

// stillHonorsLandListing is the land analogue of stillHonorsListing.
func (a *Agent) stillHonorsLandListing(req packet.LandTradeRequest) bool {
	if a.ID() != req.SellerID {
		return true
	}
	a.mu.Lock()
	listing, ok := a.landListings[packet.LandListingKey{SellerID: a.ID(), Allocation: req.Allocation}]
	a.mu.Unlock()
	if !ok {
		return false
	}
	minAcceptable := packet.Cents(float64(listing.UnitPrice) * req.Hectares)
	return req.Hectares <= listing.Hectares && req.CurrencyAmount >= minAcceptable
}

// executeLandTrade is the land analogue of executeTrade: the seller
// waits for the buyer's currency to land before handing over the parcel.
func (a *Agent) executeLandTrade(req packet.LandTradeRequest, transactionID, paymentID string, currencyCh chan packet.Packet) (bool, error) {
	if a.ID() == req.BuyerID {
		return a.SendCurrency(req.CurrencyAmount, req.SellerID, transactionID)
	}
	if a.ID() == req.SellerID {
		if !a.waitForCurrencyLanded(paymentID, currencyCh) {
			return false, nil
		}
		return a.SendLand(req.Allocation, req.Hectares, req.BuyerID, transactionID)
	}
	return false, nil
}
