// Package agent implements the Agent Runtime: the per-agent execution
// context that owns an agent's balance, inventory, land holdings, listings,
// and labor contracts, and drives every transactional multi-packet
// protocol named in spec §4.3 (currency transfer, item transfer, trade,
// land trade, labor application/cancel, production/consumption,
// marketplace sampling, accounting, nutrition, checkpointing).
//
// Grounded on original_source/EconAgent.py's Agent class. Where the
// original serializes every operation through per-field locks and a
// busy-polled response buffer, this package uses the same shape translated
// into idiomatic Go: a mutex guarding agent state, and a dispatcher that
// resolves single-use rendezvous channels registered by in-flight
// transactional calls — grounded on the teacher's
// internal/persistence/indexdb/sqlite.go single-writer/request-channel
// hand-off pattern, adapted here to a wait-for-ack hand-off instead of a
// write-and-forget one.
package agent

import (
	"time"

	"agoria/internal/packet"
)

// State is the externally-visible snapshot of an agent's holdings, used
// for INFO_RESP responses, statistics trackers, and checkpointing.
type State struct {
	Info           packet.AgentInfo
	Balance        packet.Cents
	Inventory      map[string]float64
	LandHoldings   map[string]float64
	TimeTicks      float64
	StepNum        int
	LaborInventory map[float64]float64 // ticks credited by skill level, as employer

	ItemListings  map[packet.ItemListingKey]packet.ItemListing
	LaborListings map[string]packet.LaborListing
	LandListings  map[packet.LandListingKey]packet.LandListing

	ContractsAsEmployer map[string]packet.LaborContract
	ContractsAsWorker   map[string]packet.LaborContract

	Accounting map[string]AccountingSnapshot
}

// AccountingSnapshot aliases packet.AccountingSnapshot, exposed over
// INFO_RESP and the AccountingNotification broadcast
// (original_source/StatisticsGatherer.py's AccountingTracker).
type AccountingSnapshot = packet.AccountingSnapshot

// Config bundles an agent's construction-time parameters.
type Config struct {
	Info             packet.AgentInfo
	TicksPerStep     float64
	ManagerID        string // if set, Run subscribes to the tick barrier and reports TICK_BLOCKED after each step's OnStep returns
	Controller       Controller
	ControllerFactory func(*Agent) Controller // used only if Controller is nil
	Production       ProductionFn
	Nutrition        NutritionFn
	ItemMarketID     string
	LaborMarketID    string
	LandMarketID     string
	AccountingAlpha  float64 // EMA smoothing factor, default 0.2 per spec Design Notes
	LockTimeout      time.Duration
	StallBudget      time.Duration
}

// Controller, ProductionFn, and NutritionFn alias the collab package's
// interfaces so this package doesn't import collab directly and create an
// import cycle with packages collab may grow to depend on; the method
// sets are identical to collab.Controller / collab.ProductionFunction /
// collab.NutritionTracker.
type Controller interface {
	EvalTradeRequest(req packet.TradeRequest) bool
	EvalLandTradeRequest(req packet.LandTradeRequest) bool
	EvalJobApplication(listing packet.LaborListing, workerID string, workerSkillLevel float64) bool
	OnStep(stepNum int)
}

type ProductionFn interface {
	MaxProduction(itemID string, ticksAvailable float64, inputs map[string]float64, landAvailable map[string]float64, laborAvailable map[float64]float64) float64
	Produce(itemID string, requestedQuantity, ticksAvailable float64, inputs map[string]float64, landAvailable map[string]float64, laborAvailable map[float64]float64) (produced, ticksUsed float64, inputsUsed map[string]float64, landUsed map[string]float64, laborUsed map[float64]float64)
}

type NutritionFn interface {
	OnConsume(itemID string, quantity float64)
	OnStepDecay() (starved bool)
}
