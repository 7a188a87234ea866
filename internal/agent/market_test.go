package agent

import (
	"testing"
	"time"

	"agoria/internal/link"
	"agoria/internal/packet"
)

// newAgentWithMarketPeer builds a lone Agent whose Link peer stands in for
// the marketplace, letting a test answer ITEM/LABOR/LAND_MARKET_SAMPLE
// requests by hand without spinning up a real marketplace.Marketplace.
func newAgentWithMarketPeer(t *testing.T, id string) (a *Agent, marketSide *link.LocalLink) {
	t.Helper()
	la, lb := link.NewLocalPair(8)
	a = New(Config{
		Info:          packet.AgentInfo{AgentID: id, AgentType: "test"},
		Controller:    &fakeController{},
		ItemMarketID:  "item-market",
		LaborMarketID: "labor-market",
		LandMarketID:  "land-market",
		LockTimeout:   500 * time.Millisecond,
	}, la, nil)
	done := make(chan struct{}, 1)
	go func() { a.Run(); done <- struct{}{} }()
	t.Cleanup(func() {
		a.Close()
		<-done
	})
	return a, lb
}

func TestPostAndRemoveItemListingSendsMarketUpdates(t *testing.T) {
	a, marketSide := newAgentWithMarketPeer(t, "farmer")

	a.PostItemListing(packet.ItemListing{ItemID: "grain", UnitPrice: 10, MaxQuantity: 50})
	p, err := marketSide.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if p.Type != packet.ItemMarketUpdate {
		t.Fatalf("got %+v, want ITEM_MARKET_UPDATE", p)
	}
	listing, ok := p.Payload.(packet.ItemListing)
	if !ok || listing.SellerID != "farmer" || listing.ItemID != "grain" {
		t.Fatalf("listing = %#v (ok=%v), want farmer's grain listing", p.Payload, ok)
	}

	a.RemoveItemListing("grain")
	p, err = marketSide.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if p.Type != packet.ItemMarketRemove {
		t.Fatalf("got %+v, want ITEM_MARKET_REMOVE", p)
	}

	// Removing a listing that was never posted sends nothing.
	a.RemoveItemListing("nonexistent")
	select {
	case p := <-recvInto(marketSide):
		t.Fatalf("removing a never-posted listing sent %+v", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPostAndRemoveLandListingSendsMarketUpdates(t *testing.T) {
	a, marketSide := newAgentWithMarketPeer(t, "landlord")

	a.PostLandListing(packet.LandListing{Allocation: "north-40", UnitPrice: 500, Hectares: 40})
	p, err := marketSide.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if p.Type != packet.LandMarketUpdate {
		t.Fatalf("got %+v, want LAND_MARKET_UPDATE", p)
	}

	a.RemoveLandListing("north-40")
	p, err = marketSide.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if p.Type != packet.LandMarketRemove {
		t.Fatalf("got %+v, want LAND_MARKET_REMOVE", p)
	}
}

func TestSampleItemListingsRoundTrips(t *testing.T) {
	a, marketSide := newAgentWithMarketPeer(t, "buyer")

	go func() {
		p, err := marketSide.Recv()
		if err != nil {
			return
		}
		if p.Type != packet.ItemMarketSample {
			return
		}
		req, _ := p.Payload.(packet.MarketSampleRequest)
		marketSide.Send(packet.Packet{
			Type: packet.ItemMarketSampleAck, DestinationID: p.SenderID, TransactionID: p.TransactionID,
			Payload: packet.ItemSampleResult{Listings: []packet.ItemListing{{ItemID: req.ItemID, UnitPrice: 7}}},
		})
	}()

	listings, err := a.SampleItemListings("grain", 5)
	if err != nil {
		t.Fatalf("SampleItemListings: %v", err)
	}
	if len(listings) != 1 || listings[0].ItemID != "grain" || listings[0].UnitPrice != 7 {
		t.Fatalf("listings = %+v, want one grain listing at 7", listings)
	}
}

func TestSampleLaborListingsRoundTrips(t *testing.T) {
	a, marketSide := newAgentWithMarketPeer(t, "worker")

	go func() {
		p, err := marketSide.Recv()
		if err != nil {
			return
		}
		marketSide.Send(packet.Packet{
			Type: packet.LaborMarketSampleAck, DestinationID: p.SenderID, TransactionID: p.TransactionID,
			Payload: packet.LaborSampleResult{Listings: []packet.LaborListing{{EmployerID: "farmer", WagePerTick: 20}}},
		})
	}()

	listings, err := a.SampleLaborListings(5)
	if err != nil {
		t.Fatalf("SampleLaborListings: %v", err)
	}
	if len(listings) != 1 || listings[0].EmployerID != "farmer" {
		t.Fatalf("listings = %+v, want one farmer listing", listings)
	}
}

func TestSampleLandListingsRoundTrips(t *testing.T) {
	a, marketSide := newAgentWithMarketPeer(t, "settler")

	go func() {
		p, err := marketSide.Recv()
		if err != nil {
			return
		}
		req, _ := p.Payload.(packet.MarketSampleRequest)
		marketSide.Send(packet.Packet{
			Type: packet.LandMarketSampleAck, DestinationID: p.SenderID, TransactionID: p.TransactionID,
			Payload: packet.LandSampleResult{Listings: []packet.LandListing{{Allocation: req.Allocation, UnitPrice: 300}}},
		})
	}()

	listings, err := a.SampleLandListings("north-40", 5)
	if err != nil {
		t.Fatalf("SampleLandListings: %v", err)
	}
	if len(listings) != 1 || listings[0].Allocation != "north-40" {
		t.Fatalf("listings = %+v, want the north-40 allocation", listings)
	}
}

func recvInto(l *link.LocalLink) <-chan packet.Packet {
	ch := make(chan packet.Packet, 1)
	go func() {
		p, err := l.Recv()
		if err == nil {
			ch <- p
		}
	}()
	return ch
}
