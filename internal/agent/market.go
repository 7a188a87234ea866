package agent

import "agoria/internal/packet"

// PostItemListing publishes or replaces a listing for itemID, keyed by
// (agent, itemID) — an agent has at most one active listing per item.
func (a *Agent) PostItemListing(listing packet.ItemListing) {
	listing.SellerID = a.ID()
	a.mu.Lock()
	a.itemListings[listing.Key()] = listing
	a.mu.Unlock()
	if a.cfg.ItemMarketID != "" {
		a.sendPacket(packet.Packet{Type: packet.ItemMarketUpdate, DestinationID: a.cfg.ItemMarketID, Payload: listing})
	}
}

// RemoveItemListing withdraws a previously posted item listing.
func (a *Agent) RemoveItemListing(itemID string) {
	key := packet.ItemListingKey{SellerID: a.ID(), ItemID: itemID}
	a.mu.Lock()
	listing, ok := a.itemListings[key]
	delete(a.itemListings, key)
	a.mu.Unlock()
	if ok && a.cfg.ItemMarketID != "" {
		a.sendPacket(packet.Packet{Type: packet.ItemMarketRemove, DestinationID: a.cfg.ItemMarketID, Payload: listing})
	}
}

// PostLandListing publishes or replaces a listing for allocation.
func (a *Agent) PostLandListing(listing packet.LandListing) {
	listing.SellerID = a.ID()
	a.mu.Lock()
	a.landListings[listing.Key()] = listing
	a.mu.Unlock()
	if a.cfg.LandMarketID != "" {
		a.sendPacket(packet.Packet{Type: packet.LandMarketUpdate, DestinationID: a.cfg.LandMarketID, Payload: listing})
	}
}

// RemoveLandListing withdraws a previously posted land listing.
func (a *Agent) RemoveLandListing(allocation string) {
	key := packet.LandListingKey{SellerID: a.ID(), Allocation: allocation}
	a.mu.Lock()
	listing, ok := a.landListings[key]
	delete(a.landListings, key)
	a.mu.Unlock()
	if ok && a.cfg.LandMarketID != "" {
		a.sendPacket(packet.Packet{Type: packet.LandMarketRemove, DestinationID: a.cfg.LandMarketID, Payload: listing})
	}
}

// SampleItemListings asks the item marketplace for up to sampleSize
// random active listings of itemID. Grounded on
// original_source/Marketplace.py's sampleItemListings (random.sample,
// return-all-if-fewer-than-k).
func (a *Agent) SampleItemListings(itemID string, sampleSize int) ([]packet.ItemListing, error) {
	transactionID := packet.NewID()
	resp, err := a.await(transactionID, packet.Packet{
		Type:          packet.ItemMarketSample,
		DestinationID: a.cfg.ItemMarketID,
		TransactionID: transactionID,
		Payload:       packet.MarketSampleRequest{SampleSize: sampleSize, ItemID: itemID},
	})
	if err != nil {
		return nil, err
	}
	ack, _ := resp.Payload.(packet.ItemSampleResult)
	return ack.Listings, nil
}

// SampleLaborListings asks the labor marketplace for up to sampleSize
// random active listings.
func (a *Agent) SampleLaborListings(sampleSize int) ([]packet.LaborListing, error) {
	transactionID := packet.NewID()
	resp, err := a.await(transactionID, packet.Packet{
		Type:          packet.LaborMarketSample,
		DestinationID: a.cfg.LaborMarketID,
		TransactionID: transactionID,
		Payload:       packet.MarketSampleRequest{SampleSize: sampleSize},
	})
	if err != nil {
		return nil, err
	}
	ack, _ := resp.Payload.(packet.LaborSampleResult)
	return ack.Listings, nil
}

// SampleLandListings asks the land marketplace for up to sampleSize
// random active listings of allocation.
func (a *Agent) SampleLandListings(allocation string, sampleSize int) ([]packet.LandListing, error) {
	transactionID := packet.NewID()
	resp, err := a.await(transactionID, packet.Packet{
		Type:          packet.LandMarketSample,
		DestinationID: a.cfg.LandMarketID,
		TransactionID: transactionID,
		Payload:       packet.MarketSampleRequest{SampleSize: sampleSize, Allocation: allocation},
	})
	if err != nil {
		return nil, err
	}
	ack, _ := resp.Payload.(packet.LandSampleResult)
	return ack.Listings, nil
}
