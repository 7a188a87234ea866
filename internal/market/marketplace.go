package market

import (
	"log"
	"math/rand"

	"agoria/internal/checkpoint"
	"agoria/internal/link"
	"agoria/internal/packet"
)

// Marketplace is the common runtime shell for the three marketplace
// kinds: a reader loop over a Link, dispatching update/remove/sample
// packets into a generic Store. Grounded on
// original_source/Marketplace.py's monitorNetworkLink.
type Marketplace struct {
	id     string
	kind   string
	l      link.Link
	logger *log.Logger
	rng    *rand.Rand

	itemStore  *Store[packet.ItemListingKey, packet.ItemListing]
	laborStore *Store[packet.LaborListingKey, packet.LaborListing]
	landStore  *Store[packet.LandListingKey, packet.LandListing]
}

// NewItemMarketplace returns a Marketplace that handles ITEM_MARKET_*
// packets.
func NewItemMarketplace(id string, l link.Link, logger *log.Logger) *Marketplace {
	return &Marketplace{id: id, kind: "item_marketplace", l: l, logger: defaultLogger(logger), itemStore: NewStore[packet.ItemListingKey, packet.ItemListing]()}
}

// NewLaborMarketplace returns a Marketplace that handles LABOR_MARKET_*
// packets.
func NewLaborMarketplace(id string, l link.Link, logger *log.Logger) *Marketplace {
	return &Marketplace{id: id, kind: "labor_marketplace", l: l, logger: defaultLogger(logger), laborStore: NewStore[packet.LaborListingKey, packet.LaborListing]()}
}

// NewLandMarketplace returns a Marketplace that handles LAND_MARKET_*
// packets.
func NewLandMarketplace(id string, l link.Link, logger *log.Logger) *Marketplace {
	return &Marketplace{id: id, kind: "land_marketplace", l: l, logger: defaultLogger(logger), landStore: NewStore[packet.LandListingKey, packet.LandListing]()}
}

func defaultLogger(l *log.Logger) *log.Logger {
	if l == nil {
		return log.Default()
	}
	return l
}

// ID returns the marketplace's agent identity.
func (m *Marketplace) ID() string { return m.id }

// Run is the marketplace's reader/dispatch loop.
func (m *Marketplace) Run() error {
	for {
		p, err := m.l.Recv()
		if err != nil {
			return err
		}
		switch p.Type {
		case packet.KillPipeAgent, packet.KillAllBroadcast:
			return nil
		case packet.ItemMarketUpdate:
			if l, ok := p.Payload.(packet.ItemListing); ok && m.itemStore != nil {
				m.itemStore.Upsert(l.Key(), l)
			}
		case packet.ItemMarketRemove:
			if l, ok := p.Payload.(packet.ItemListing); ok && m.itemStore != nil {
				m.itemStore.Remove(l.Key())
			}
		case packet.ItemMarketSample:
			m.handleItemSample(p)
		case packet.LaborMarketUpdate:
			if l, ok := p.Payload.(packet.LaborListing); ok && m.laborStore != nil {
				m.laborStore.Upsert(l.Key(), l)
			}
		case packet.LaborMarketRemove:
			if l, ok := p.Payload.(packet.LaborListing); ok && m.laborStore != nil {
				m.laborStore.Remove(l.Key())
			}
		case packet.LaborMarketSample:
			m.handleLaborSample(p)
		case packet.LandMarketUpdate:
			if l, ok := p.Payload.(packet.LandListing); ok && m.landStore != nil {
				m.landStore.Upsert(l.Key(), l)
			}
		case packet.LandMarketRemove:
			if l, ok := p.Payload.(packet.LandListing); ok && m.landStore != nil {
				m.landStore.Remove(l.Key())
			}
		case packet.LandMarketSample:
			m.handleLandSample(p)
		case packet.TickGrant, packet.TickGrantBroadcast:
			// Marketplaces don't act on ticks; nothing to do.
		case packet.SaveCheckpoint, packet.SaveCheckpointBroadcast:
			m.handleSaveCheckpoint(p)
		case packet.LoadCheckpoint, packet.LoadCheckpointBroadcast:
			m.handleLoadCheckpoint(p)
		case packet.Error:
			m.logger.Printf("marketplace %s: ERROR %v", m.id, p.Payload)
		default:
			m.logger.Printf("marketplace %s: unhandled packet type %s", m.id, p.Type)
		}
	}
}

func (m *Marketplace) reply(p packet.Packet, t packet.Type, payload any) {
	m.sendPacket(packet.Packet{Type: t, DestinationID: p.SenderID, TransactionID: p.TransactionID, Payload: payload})
}

func (m *Marketplace) sendPacket(p packet.Packet) {
	p.SenderID = m.id
	if err := m.l.Send(p); err != nil {
		m.logger.Printf("marketplace %s: send %s failed: %v", m.id, p.Type, err)
	}
}

func (m *Marketplace) handleItemSample(p packet.Packet) {
	req, _ := p.Payload.(packet.MarketSampleRequest)
	listings := m.itemStore.Sample(req.SampleSize, func(_ packet.ItemListingKey, l packet.ItemListing) bool {
		return l.ItemID == req.ItemID
	}, m.rng)
	m.reply(p, packet.ItemMarketSampleAck, packet.ItemSampleResult{Listings: listings})
}

func (m *Marketplace) handleLaborSample(p packet.Packet) {
	req, _ := p.Payload.(packet.MarketSampleRequest)
	listings := m.laborStore.Sample(req.SampleSize, nil, m.rng)
	m.reply(p, packet.LaborMarketSampleAck, packet.LaborSampleResult{Listings: listings})
}

func (m *Marketplace) handleLandSample(p packet.Packet) {
	req, _ := p.Payload.(packet.MarketSampleRequest)
	listings := m.landStore.Sample(req.SampleSize, func(_ packet.LandListingKey, l packet.LandListing) bool {
		return l.Allocation == req.Allocation
	}, m.rng)
	m.reply(p, packet.LandMarketSampleAck, packet.LandSampleResult{Listings: listings})
}

func (m *Marketplace) handleSaveCheckpoint(p packet.Packet) {
	req, ok := p.Payload.(packet.CheckpointRequest)
	success, errMsg := true, ""
	if !ok {
		success, errMsg = false, "malformed SAVE_CHECKPOINT payload"
	} else if err := checkpoint.Save(req.Dir, "marketplace", m.id, m.exportSnapshot()); err != nil {
		success, errMsg = false, err.Error()
	}
	m.reply(p, packet.SaveCheckpointAck, packet.CheckpointAck{Success: success, Error: errMsg})
}

func (m *Marketplace) handleLoadCheckpoint(p packet.Packet) {
	req, ok := p.Payload.(packet.CheckpointRequest)
	success, errMsg := true, ""
	if !ok {
		success, errMsg = false, "malformed LOAD_CHECKPOINT payload"
	} else {
		var snap marketplaceSnapshot
		if _, err := checkpoint.Load(req.Dir, "marketplace", m.id, &snap); err != nil {
			success, errMsg = false, err.Error()
		} else {
			m.importSnapshot(snap)
		}
	}
	m.reply(p, packet.LoadCheckpointAck, packet.CheckpointAck{Success: success, Error: errMsg})
}

// marketplaceSnapshot is the gob-encodable checkpoint payload for any of
// the three marketplace kinds; only the field matching this instance's
// kind is populated.
type marketplaceSnapshot struct {
	ItemListings  []packet.ItemListing
	LaborListings []packet.LaborListing
	LandListings  []packet.LandListing
}

func (m *Marketplace) exportSnapshot() marketplaceSnapshot {
	var snap marketplaceSnapshot
	if m.itemStore != nil {
		snap.ItemListings = m.itemStore.Sample(0, nil, nil)
	}
	if m.laborStore != nil {
		snap.LaborListings = m.laborStore.Sample(0, nil, nil)
	}
	if m.landStore != nil {
		snap.LandListings = m.landStore.Sample(0, nil, nil)
	}
	return snap
}

func (m *Marketplace) importSnapshot(snap marketplaceSnapshot) {
	if m.itemStore != nil {
		m.itemStore = NewStore[packet.ItemListingKey, packet.ItemListing]()
		for _, l := range snap.ItemListings {
			m.itemStore.Upsert(l.Key(), l)
		}
	}
	if m.laborStore != nil {
		m.laborStore = NewStore[packet.LaborListingKey, packet.LaborListing]()
		for _, l := range snap.LaborListings {
			m.laborStore.Upsert(l.Key(), l)
		}
	}
	if m.landStore != nil {
		m.landStore = NewStore[packet.LandListingKey, packet.LandListing]()
		for _, l := range snap.LandListings {
			m.landStore.Upsert(l.Key(), l)
		}
	}
}
