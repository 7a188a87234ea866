// Package collab defines the collaborator interfaces an Agent delegates
// business decisions to — whether to accept a trade, how much utility a
// quantity of an item yields, how an item is produced, and how hunger
// accrues — plus small default implementations good enough to run an
// end-to-end simulation without a caller supplying its own.
//
// Grounded on original_source/BasicControllers.py (PushoverController),
// OptimizationControllers.py, and AgentControllers.py's marginal utility
// curve.
package collab

import (
	"sync"

	"agoria/internal/packet"
)

// Controller is the externally-pinned decision surface an Agent calls
// into for anything that isn't pure bookkeeping.
type Controller interface {
	// EvalTradeRequest decides whether to accept an incoming trade offer.
	EvalTradeRequest(req packet.TradeRequest) bool
	// EvalLandTradeRequest decides whether to accept an incoming land
	// trade offer.
	EvalLandTradeRequest(req packet.LandTradeRequest) bool
	// EvalJobApplication decides whether to hire a worker who applied to
	// one of the controller's own labor listings.
	EvalJobApplication(listing packet.LaborListing, workerID string, workerSkillLevel float64) bool
	// OnStep is called once per granted step, after the step's ticks are
	// credited, so the controller can drive production/consumption/
	// listing decisions for the agent it controls.
	OnStep(stepNum int)
}

// UtilityFunction computes the marginal and total utility an agent
// derives from holding a quantity of some item, grounded on
// original_source/EconAgent.py's UtilityFunction (diminishing marginal
// utility curve).
type UtilityFunction interface {
	MarginalUtility(quantity float64) float64
	TotalUtility(quantity float64) float64
}

// ProductionFunction converts time ticks, item holdings, land, and hired
// labor into output items for a given recipe. Grounded on spec
// §4.3.6/§4.6's production inputs ("a mapping itemId -> quantity plus
// hectares of a required allocation plus ticks of labor at given
// skills"); landAvailable/laborAvailable are keyed by allocation name and
// skill level respectively, the same way inputs is keyed by item id.
type ProductionFunction interface {
	// MaxProduction returns the largest quantity of itemID producible
	// given the ticks/inputs/land/labor available, without mutating
	// anything.
	MaxProduction(itemID string, ticksAvailable float64, inputs map[string]float64, landAvailable map[string]float64, laborAvailable map[float64]float64) float64
	// Produce consumes ticks/inputs/land/labor (reporting how much of
	// each was used) and returns the quantity of itemID actually
	// produced.
	Produce(itemID string, requestedQuantity, ticksAvailable float64, inputs map[string]float64, landAvailable map[string]float64, laborAvailable map[float64]float64) (produced, ticksUsed float64, inputsUsed map[string]float64, landUsed map[string]float64, laborUsed map[float64]float64)
}

// NutritionTracker tracks hunger/decay for an agent across steps.
type NutritionTracker interface {
	// OnConsume records that quantity units of itemID were just consumed.
	OnConsume(itemID string, quantity float64)
	// OnStepDecay applies one step's worth of hunger decay and reports
	// whether the agent is currently starved (a hunger streak has run
	// past the tracker's threshold).
	OnStepDecay() (starved bool)
}

// LinearUtility is a linearly diminishing marginal utility function,
// grounded on AgentControllers.py's marginal utility curve:
// marginalUtility(q) = max(0, base - slope*q).
type LinearUtility struct {
	Base  float64
	Slope float64
}

func (u LinearUtility) MarginalUtility(quantity float64) float64 {
	v := u.Base - u.Slope*quantity
	if v < 0 {
		return 0
	}
	return v
}

func (u LinearUtility) TotalUtility(quantity float64) float64 {
	if quantity <= 0 {
		return 0
	}
	// Integral of (Base - Slope*q) dq from 0 to quantity, clamped to the
	// point marginal utility hits zero.
	zeroAt := quantity
	if u.Slope > 0 {
		cap := u.Base / u.Slope
		if cap < zeroAt {
			zeroAt = cap
		}
	}
	return u.Base*zeroAt - (u.Slope*zeroAt*zeroAt)/2
}

// NullController accepts every valid trade and hire, and does nothing on
// OnStep. Grounded on original_source/BasicControllers.py's
// PushoverController, used for testing.
type NullController struct{}

func (NullController) EvalTradeRequest(packet.TradeRequest) bool             { return true }
func (NullController) EvalLandTradeRequest(packet.LandTradeRequest) bool    { return true }
func (NullController) EvalJobApplication(packet.LaborListing, string, float64) bool {
	return true
}
func (NullController) OnStep(int) {}

// ThresholdController accepts a trade only if it improves the
// controller's view of its own position: a buyer accepts if the offered
// price is at or below MaxBuyPrice, a seller accepts if at or above
// MinSellPrice. Grounded on original_source/BasicControllers.py's
// PushoverController balance/inventory checks, generalized with explicit
// thresholds instead of "any positive balance works".
type ThresholdController struct {
	AgentID      string
	MaxBuyPrice  packet.Cents
	MinSellPrice packet.Cents
	MinWage      packet.Cents
}

func (c ThresholdController) EvalTradeRequest(req packet.TradeRequest) bool {
	if req.BuyerID == c.AgentID {
		return req.CurrencyAmount <= c.MaxBuyPrice
	}
	if req.SellerID == c.AgentID {
		return req.CurrencyAmount >= c.MinSellPrice
	}
	return false
}

func (c ThresholdController) EvalLandTradeRequest(req packet.LandTradeRequest) bool {
	if req.BuyerID == c.AgentID {
		return req.CurrencyAmount <= c.MaxBuyPrice
	}
	if req.SellerID == c.AgentID {
		return req.CurrencyAmount >= c.MinSellPrice
	}
	return false
}

func (c ThresholdController) EvalJobApplication(listing packet.LaborListing, _ string, workerSkillLevel float64) bool {
	return listing.WagePerTick >= c.MinWage && workerSkillLevel >= 0
}

func (c ThresholdController) OnStep(int) {}

// ThresholdNutrition is a minimal NutritionTracker with a fixed decay
// rate and a hunger-streak counter, grounded on
// original_source/EconAgent.py's nutrition bookkeeping.
type ThresholdNutrition struct {
	DecayPerStep   float64
	StarveStreak   int // consecutive steps below zero before reporting starved
	level          float64
	streak         int
}

func NewThresholdNutrition(decayPerStep float64, starveStreak int) *ThresholdNutrition {
	return &ThresholdNutrition{DecayPerStep: decayPerStep, StarveStreak: starveStreak}
}

func (n *ThresholdNutrition) OnConsume(itemID string, quantity float64) {
	n.level += quantity
}

func (n *ThresholdNutrition) OnStepDecay() bool {
	n.level -= n.DecayPerStep
	if n.level < 0 {
		n.streak++
	} else {
		n.streak = 0
	}
	return n.streak >= n.StarveStreak
}

// Level reports the tracker's current nutrition level, used by
// INFO_REQ/statistics readers.
func (n *ThresholdNutrition) Level() float64 { return n.level }

// ActiveAgent is the slice of *agent.Agent an active controller needs to
// drive its own agent's behavior. Declared here rather than imported, the
// same way internal/agent's own Controller/ProductionFn/NutritionFn
// avoid an import cycle with this package: *agent.Agent already has the
// exact method set below, so it satisfies ActiveAgent without either
// package importing the other.
type ActiveAgent interface {
	ID() string
	TimeTicksAvailable() float64
	ProduceItem(itemID string, requestedQuantity float64) (float64, error)
	PostItemListing(listing packet.ItemListing)
	SampleItemListings(itemID string, sampleSize int) ([]packet.ItemListing, error)
}

// ItemProducerController drives one agent's single-item production
// business each step: produce up to ProductionBatch units, reprice
// against a sample of the market, and repost its listing. Grounded on
// original_source/AgentControllers.py's BasicItemProducer.runStep/
// produce/updateItemListing, simplified to one fixed output item instead
// of the original's multi-input deficit/surplus balancing across several
// goods — a caller wanting that fuller behavior supplies their own
// Controller via agent.Config.ControllerFactory instead.
type ItemProducerController struct {
	Agent           ActiveAgent
	ItemID          string
	ProductionBatch float64
	ListingQty      float64
	BasePrice       packet.Cents
	MinPrice        packet.Cents
	SampleSize      int

	mu           sync.Mutex
	currentPrice packet.Cents
}

// NewItemProducerController returns a Controller that sells ItemID,
// repricing off a sample of the item marketplace each step.
func NewItemProducerController(agent ActiveAgent, itemID string, productionBatch, listingQty float64, basePrice, minPrice packet.Cents, sampleSize int) *ItemProducerController {
	return &ItemProducerController{
		Agent: agent, ItemID: itemID, ProductionBatch: productionBatch, ListingQty: listingQty,
		BasePrice: basePrice, MinPrice: minPrice, SampleSize: sampleSize, currentPrice: basePrice,
	}
}

func (c *ItemProducerController) price() packet.Cents {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPrice
}

// EvalTradeRequest accepts only offers to buy this controller's own item
// at or above its currently posted price — it never buys.
func (c *ItemProducerController) EvalTradeRequest(req packet.TradeRequest) bool {
	if req.SellerID != c.Agent.ID() || req.Item.ItemID != c.ItemID {
		return false
	}
	minAcceptable := packet.Cents(float64(c.price()) * req.Item.Quantity)
	return req.CurrencyAmount >= minAcceptable
}

func (c *ItemProducerController) EvalLandTradeRequest(packet.LandTradeRequest) bool { return false }

func (c *ItemProducerController) EvalJobApplication(packet.LaborListing, string, float64) bool {
	return false
}

// OnStep produces a fresh batch, samples the market to find a
// competitive price (undercutting the cheapest listing seen, but never
// below MinPrice), and reposts the listing at that price.
func (c *ItemProducerController) OnStep(int) {
	if c.Agent.TimeTicksAvailable() > 0 {
		_, _ = c.Agent.ProduceItem(c.ItemID, c.ProductionBatch)
	}

	price := c.BasePrice
	if listings, err := c.Agent.SampleItemListings(c.ItemID, c.SampleSize); err == nil {
		seen := false
		for _, l := range listings {
			if l.SellerID == c.Agent.ID() {
				continue
			}
			undercut := l.UnitPrice - 1
			if !seen || undercut < price {
				price = undercut
				seen = true
			}
		}
	}
	if price < c.MinPrice {
		price = c.MinPrice
	}

	c.mu.Lock()
	c.currentPrice = price
	c.mu.Unlock()

	c.Agent.PostItemListing(packet.ItemListing{ItemID: c.ItemID, UnitPrice: price, MaxQuantity: c.ListingQty})
}
