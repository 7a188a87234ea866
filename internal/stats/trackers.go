package stats

import (
	"fmt"
	"log"
	"path/filepath"

	"agoria/internal/link"
	"agoria/internal/packet"
)

// The five tracker kinds below each pair one Tracker (CSV sink) with a
// Collector subscription, mirroring the named tracker classes of
// original_source/StatisticsGatherer.py. Every tracker runs its Collector
// in its own goroutine via Run, attached to the Network with its own
// Link, same as any other observer agent.

// ConsumptionTracker accumulates total quantity consumed per item per
// step and emits one row per (step, item) pair when a consumption
// notification carrying a different step number arrives, and for the
// last step seen on Close.
type ConsumptionTracker struct {
	t        *Tracker
	c        *Collector
	totals   map[string]float64
	lastStep int
}

// NewConsumptionTracker writes rows [StepNumber, ItemID, Consumption] to
// outputDir/path.
func NewConsumptionTracker(id string, l link.Link, logger *log.Logger, outputDir, path string) (*ConsumptionTracker, error) {
	t, err := NewTracker("consumption", filepath.Join(outputDir, path), []string{"StepNumber", "ItemID", "Consumption"}, 256)
	if err != nil {
		return nil, fmt.Errorf("stats: consumption tracker: %w", err)
	}
	ct := &ConsumptionTracker{t: t, totals: make(map[string]float64)}
	ct.c = NewCollector(id, l, logger)
	ct.c.On(packet.ConsumptionNotificationBroadcast, ct.onConsumption)
	return ct, nil
}

func (ct *ConsumptionTracker) onConsumption(p packet.Packet) {
	n, ok := p.Payload.(packet.ConsumptionNotification)
	if !ok {
		return
	}
	if n.StepNum != ct.lastStep {
		ct.flush()
		ct.lastStep = n.StepNum
	}
	ct.totals[n.ItemID] += n.Quantity
}

func (ct *ConsumptionTracker) flush() {
	for item, qty := range ct.totals {
		ct.t.Record([]string{fmt.Sprint(ct.lastStep), item, fmt.Sprint(qty)})
	}
	ct.totals = make(map[string]float64)
}

// Run subscribes and processes until the link closes.
func (ct *ConsumptionTracker) Run() error { return ct.c.Run() }

// Close flushes any pending step total and closes the CSV file.
func (ct *ConsumptionTracker) Close() error {
	ct.flush()
	return ct.t.Close()
}

// ProductionTracker mirrors ConsumptionTracker for PRODUCTION_NOTIFICATION_BROADCAST.
type ProductionTracker struct {
	t        *Tracker
	c        *Collector
	totals   map[string]float64
	lastStep int
}

// NewProductionTracker writes rows [StepNumber, ItemID, Produced].
func NewProductionTracker(id string, l link.Link, logger *log.Logger, outputDir, path string) (*ProductionTracker, error) {
	t, err := NewTracker("production", filepath.Join(outputDir, path), []string{"StepNumber", "ItemID", "Produced"}, 256)
	if err != nil {
		return nil, fmt.Errorf("stats: production tracker: %w", err)
	}
	pt := &ProductionTracker{t: t, totals: make(map[string]float64)}
	pt.c = NewCollector(id, l, logger)
	pt.c.On(packet.ProductionNotificationBroadcast, pt.onProduction)
	return pt, nil
}

func (pt *ProductionTracker) onProduction(p packet.Packet) {
	n, ok := p.Payload.(packet.ProductionNotification)
	if !ok {
		return
	}
	if n.StepNum != pt.lastStep {
		pt.flush()
		pt.lastStep = n.StepNum
	}
	pt.totals[n.ItemID] += n.Quantity
}

func (pt *ProductionTracker) flush() {
	for item, qty := range pt.totals {
		pt.t.Record([]string{fmt.Sprint(pt.lastStep), item, fmt.Sprint(qty)})
	}
	pt.totals = make(map[string]float64)
}

func (pt *ProductionTracker) Run() error { return pt.c.Run() }

func (pt *ProductionTracker) Close() error {
	pt.flush()
	return pt.t.Close()
}

// ItemPriceTracker records every item listing posted to the item
// marketplace, one row per ITEM_MARKET_UPDATE observed — a time series
// of quoted unit prices, not a step aggregate, matching
// original_source/StatisticsGatherer.py's ItemPriceTracker which logs
// every listing event rather than a per-step summary.
type ItemPriceTracker struct {
	t *Tracker
	c *Collector
}

// NewItemPriceTracker writes rows [SellerID, ItemID, UnitPriceCents, MaxQuantity].
func NewItemPriceTracker(id string, l link.Link, logger *log.Logger, outputDir, path string) (*ItemPriceTracker, error) {
	t, err := NewTracker("item_price", filepath.Join(outputDir, path), []string{"SellerID", "ItemID", "UnitPriceCents", "MaxQuantity"}, 256)
	if err != nil {
		return nil, fmt.Errorf("stats: item price tracker: %w", err)
	}
	ipt := &ItemPriceTracker{t: t}
	ipt.c = NewCollector(id, l, logger)
	ipt.c.On(packet.ItemMarketUpdate, ipt.onListing)
	return ipt, nil
}

func (ipt *ItemPriceTracker) onListing(p packet.Packet) {
	listing, ok := p.Payload.(packet.ItemListing)
	if !ok {
		return
	}
	ipt.t.Record([]string{listing.SellerID, listing.ItemID, fmt.Sprint(listing.UnitPrice), fmt.Sprint(listing.MaxQuantity)})
}

func (ipt *ItemPriceTracker) Run() error  { return ipt.c.Run() }
func (ipt *ItemPriceTracker) Close() error { return ipt.t.Close() }

// LaborContractTracker records every contract formed via
// LABOR_CONTRACT_FORMED_BROADCAST.
type LaborContractTracker struct {
	t *Tracker
	c *Collector
}

// NewLaborContractTracker writes rows [ContractID, EmployerID, WorkerID,
// SkillLevel, WagePerTickCents, TicksPerStep, ContractLength, StartStep].
func NewLaborContractTracker(id string, l link.Link, logger *log.Logger, outputDir, path string) (*LaborContractTracker, error) {
	t, err := NewTracker("labor_contract", filepath.Join(outputDir, path),
		[]string{"ContractID", "EmployerID", "WorkerID", "SkillLevel", "WagePerTickCents", "TicksPerStep", "ContractLength", "StartStep"}, 256)
	if err != nil {
		return nil, fmt.Errorf("stats: labor contract tracker: %w", err)
	}
	lct := &LaborContractTracker{t: t}
	lct.c = NewCollector(id, l, logger)
	lct.c.On(packet.LaborContractFormedBroadcast, lct.onContract)
	return lct, nil
}

func (lct *LaborContractTracker) onContract(p packet.Packet) {
	contract, ok := p.Payload.(packet.LaborContract)
	if !ok {
		return
	}
	lct.t.Record([]string{
		contract.ContractID, contract.EmployerID, contract.WorkerID,
		fmt.Sprint(contract.SkillLevel), fmt.Sprint(contract.WagePerTick),
		fmt.Sprint(contract.TicksPerStep), fmt.Sprint(contract.ContractLength), fmt.Sprint(contract.StartStep),
	})
}

func (lct *LaborContractTracker) Run() error  { return lct.c.Run() }
func (lct *LaborContractTracker) Close() error { return lct.t.Close() }

// AccountingTracker flattens every agent's per-step ACCOUNTING_NOTIFICATION_BROADCAST
// into one row per (agent, flow, step).
type AccountingTracker struct {
	t *Tracker
	c *Collector
}

// NewAccountingTracker writes rows [StepNumber, AgentID, Flow, EMA, Cumulative, LastDelta].
func NewAccountingTracker(id string, l link.Link, logger *log.Logger, outputDir, path string) (*AccountingTracker, error) {
	t, err := NewTracker("accounting", filepath.Join(outputDir, path),
		[]string{"StepNumber", "AgentID", "Flow", "EMA", "Cumulative", "LastDelta"}, 256)
	if err != nil {
		return nil, fmt.Errorf("stats: accounting tracker: %w", err)
	}
	at := &AccountingTracker{t: t}
	at.c = NewCollector(id, l, logger)
	at.c.On(packet.AccountingNotificationBroadcast, at.onAccounting)
	return at, nil
}

func (at *AccountingTracker) onAccounting(p packet.Packet) {
	n, ok := p.Payload.(packet.AccountingNotification)
	if !ok {
		return
	}
	for flow, snap := range n.Flows {
		at.t.Record([]string{
			fmt.Sprint(n.StepNum), n.AgentID, flow,
			fmt.Sprint(snap.EMA), fmt.Sprint(snap.Cumulative), fmt.Sprint(snap.LastDelta),
		})
	}
}

func (at *AccountingTracker) Run() error  { return at.c.Run() }
func (at *AccountingTracker) Close() error { return at.t.Close() }
