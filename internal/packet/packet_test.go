package packet

import "testing"

func TestTypeIsBroadcast(t *testing.T) {
	cases := map[Type]bool{
		TickGrantBroadcast:      true,
		KillAllBroadcast:        true,
		LaborContractFormedBroadcast: true,
		CurrencyTransfer:        false,
		TradeReq:                false,
		Type(""):                false,
		Type("_BROADCAST"):      false,
	}
	for typ, want := range cases {
		if got := typ.IsBroadcast(); got != want {
			t.Errorf("%q.IsBroadcast() = %v, want %v", typ, got, want)
		}
	}
}

func TestCloneClearsIncoming(t *testing.T) {
	p := Packet{Type: CurrencyTransfer, SenderID: "a", Incoming: true}
	cp := p.Clone()
	if cp.Incoming {
		t.Fatalf("Clone() left Incoming set")
	}
	if !p.Incoming {
		t.Fatalf("Clone() mutated the original")
	}
	cp.SenderID = "b"
	if p.SenderID != "a" {
		t.Fatalf("Clone() is not independent of the original")
	}
}

func TestNewIDUnique(t *testing.T) {
	a, b := NewID(), NewID()
	if a == "" || b == "" {
		t.Fatalf("NewID() returned empty string")
	}
	if a == b {
		t.Fatalf("NewID() returned the same id twice: %q", a)
	}
}

func TestItemListingKey(t *testing.T) {
	l := ItemListing{SellerID: "s1", ItemID: "grain"}
	want := ItemListingKey{SellerID: "s1", ItemID: "grain"}
	if got := l.Key(); got != want {
		t.Fatalf("Key() = %+v, want %+v", got, want)
	}
}

func TestLaborListingKey(t *testing.T) {
	l := LaborListing{EmployerID: "e1", ListingTag: "farmhand"}
	want := LaborListingKey{EmployerID: "e1", ListingTag: "farmhand"}
	if got := l.Key(); got != want {
		t.Fatalf("Key() = %+v, want %+v", got, want)
	}
}

func TestLandListingKey(t *testing.T) {
	l := LandListing{SellerID: "s1", Allocation: "parcel-1"}
	want := LandListingKey{SellerID: "s1", Allocation: "parcel-1"}
	if got := l.Key(); got != want {
		t.Fatalf("Key() = %+v, want %+v", got, want)
	}
}
