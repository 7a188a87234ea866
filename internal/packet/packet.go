// Package packet defines the wire types that flow over the Connection
// Network: the packet envelope, every payload shape named in spec §6, and
// the value types of the economic data model (§3).
//
// Payload shapes follow original_source/ConnectionNetwork.py and
// original_source/TradeClasses.py where the distilled spec names a packet
// but not its fields.
package packet

import (
	"time"

	"github.com/google/uuid"
)

// Type is a packet's message type. Types ending in "_BROADCAST" are
// delivered to every registered agent except the sender.
type Type string

const (
	// Lifecycle.
	KillPipeAgent   Type = "KILL_PIPE_AGENT"
	KillPipeNetwork Type = "KILL_PIPE_NETWORK"
	KillAllBroadcast Type = "KILL_ALL_BROADCAST"
	SnoopStart      Type = "SNOOP_START"
	Snoop           Type = "SNOOP"
	Error           Type = "ERROR"

	// Trade.
	CurrencyTransfer     Type = "CURRENCY_TRANSFER"
	CurrencyTransferAck  Type = "CURRENCY_TRANSFER_ACK"
	ItemTransfer         Type = "ITEM_TRANSFER"
	ItemTransferAck      Type = "ITEM_TRANSFER_ACK"
	TradeReq             Type = "TRADE_REQ"
	TradeReqAck          Type = "TRADE_REQ_ACK"
	LandTransfer         Type = "LAND_TRANSFER"
	LandTransferAck      Type = "LAND_TRANSFER_ACK"
	LandTradeReq         Type = "LAND_TRADE_REQ"
	LandTradeReqAck      Type = "LAND_TRADE_REQ_ACK"

	// Labor.
	LaborApplication     Type = "LABOR_APPLICATION"
	LaborApplicationAck  Type = "LABOR_APPLICATION_ACK"
	LaborTimeSend        Type = "LABOR_TIME_SEND"
	LaborContractCancel  Type = "LABOR_CONTRACT_CANCEL"
	LaborContractCancelAck Type = "LABOR_CONTRACT_CANCEL_ACK"
	LaborContractFormedBroadcast Type = "LABOR_CONTRACT_FORMED_BROADCAST"

	// Market.
	ItemMarketUpdate    Type = "ITEM_MARKET_UPDATE"
	ItemMarketRemove    Type = "ITEM_MARKET_REMOVE"
	ItemMarketSample    Type = "ITEM_MARKET_SAMPLE"
	ItemMarketSampleAck Type = "ITEM_MARKET_SAMPLE_ACK"

	LaborMarketUpdate    Type = "LABOR_MARKET_UPDATE"
	LaborMarketRemove    Type = "LABOR_MARKET_REMOVE"
	LaborMarketSample    Type = "LABOR_MARKET_SAMPLE"
	LaborMarketSampleAck Type = "LABOR_MARKET_SAMPLE_ACK"

	LandMarketUpdate    Type = "LAND_MARKET_UPDATE"
	LandMarketRemove    Type = "LAND_MARKET_REMOVE"
	LandMarketSample    Type = "LAND_MARKET_SAMPLE"
	LandMarketSampleAck Type = "LAND_MARKET_SAMPLE_ACK"

	// Observation.
	ProductionNotificationBroadcast  Type = "PRODUCTION_NOTIFICATION_BROADCAST"
	ConsumptionNotificationBroadcast Type = "CONSUMPTION_NOTIFICATION_BROADCAST"
	AccountingNotificationBroadcast Type = "ACCOUNTING_NOTIFICATION_BROADCAST"
	InfoReq          Type = "INFO_REQ"
	InfoReqBroadcast Type = "INFO_REQ_BROADCAST"
	InfoResp         Type = "INFO_RESP"

	// Controller plumbing.
	ControllerStart          Type = "CONTROLLER_START"
	ControllerStartBroadcast Type = "CONTROLLER_START_BROADCAST"
	ControllerMsg            Type = "CONTROLLER_MSG"
	ControllerMsgBroadcast   Type = "CONTROLLER_MSG_BROADCAST"
	ErrorControllerStart     Type = "ERROR_CONTROLLER_START"

	// Sim management.
	TickBlockSubscribe     Type = "TICK_BLOCK_SUBSCRIBE"
	TickBlocked            Type = "TICK_BLOCKED"
	TickBlockedAck         Type = "TICK_BLOCKED_ACK"
	TickGrant              Type = "TICK_GRANT"
	TickGrantBroadcast     Type = "TICK_GRANT_BROADCAST"
	TerminateSimulation    Type = "TERMINATE_SIMULATION"
	ProcStop               Type = "PROC_STOP"
	SaveCheckpoint         Type = "SAVE_CHECKPOINT"
	SaveCheckpointBroadcast Type = "SAVE_CHECKPOINT_BROADCAST"
	SaveCheckpointAck      Type = "SAVE_CHECKPOINT_ACK"
	LoadCheckpoint         Type = "LOAD_CHECKPOINT"
	LoadCheckpointBroadcast Type = "LOAD_CHECKPOINT_BROADCAST"
	LoadCheckpointAck      Type = "LOAD_CHECKPOINT_ACK"
	AdvanceStep            Type = "ADVANCE_STEP"
)

// IsBroadcast reports whether a packet type is delivered to every
// registered agent except the sender (spec §4.2 rule 3).
func (t Type) IsBroadcast() bool {
	s := string(t)
	return len(s) > len("_BROADCAST") && s[len(s)-len("_BROADCAST"):] == "_BROADCAST"
}

// Packet is the envelope routed by the Connection Network.
type Packet struct {
	Type          Type
	SenderID      string
	DestinationID string // empty for broadcasts
	TransactionID string
	Payload       any

	// Incoming is true for normal agent->network traffic, and is cleared
	// on packets the Network forwards to a snoop observer, so observers
	// can never create a snoop loop on their own forwarded copy (§4.2 rule 1).
	Incoming bool
}

// NewID returns a fresh random id suitable for transactionId, paymentId,
// transferId, or contractId.
func NewID() string {
	return uuid.NewString()
}

// Clone returns a shallow copy of p with Incoming cleared, as required
// when the Network forwards a copy to a snoop observer.
func (p Packet) Clone() Packet {
	cp := p
	cp.Incoming = false
	return cp
}

// --- §3 Data model value types ---

// Cents is an exact integer monetary unit.
type Cents int64

// ItemContainer is a quantity of a single item type. Quantities are
// non-negative reals; containers of the same ItemID compose by addition.
type ItemContainer struct {
	ItemID   string
	Quantity float64
}

// ItemListing identity is (SellerID, ItemID): a seller has at most one
// active listing per item.
type ItemListing struct {
	SellerID    string
	ItemID      string
	UnitPrice   Cents
	MaxQuantity float64
	LastUpdated time.Time
}

func (l ItemListing) Key() ItemListingKey { return ItemListingKey{l.SellerID, l.ItemID} }

type ItemListingKey struct {
	SellerID string
	ItemID   string
}

// LaborListing identity is (EmployerID, ListingTag).
type LaborListing struct {
	EmployerID           string
	ListingTag           string
	SkillLevel           float64
	WagePerTick          Cents
	TicksPerStep         int
	ContractLength       int
	ApplicantsConsidered int
	LastUpdated          time.Time
}

func (l LaborListing) Key() LaborListingKey { return LaborListingKey{l.EmployerID, l.ListingTag} }

type LaborListingKey struct {
	EmployerID string
	ListingTag string
}

// LandListing identity is (SellerID, Allocation).
type LandListing struct {
	SellerID   string
	Allocation string
	Hectares   float64
	UnitPrice  Cents
}

func (l LandListing) Key() LandListingKey { return LandListingKey{l.SellerID, l.Allocation} }

type LandListingKey struct {
	SellerID   string
	Allocation string
}

// TradeRequest is a buyer's offer for a specific item quantity at a
// specific currency amount.
type TradeRequest struct {
	BuyerID        string
	SellerID       string
	Item           ItemContainer
	CurrencyAmount Cents
}

// LandTradeRequest is the land analogue of TradeRequest.
type LandTradeRequest struct {
	BuyerID        string
	SellerID       string
	Allocation     string
	Hectares       float64
	CurrencyAmount Cents
}

// LaborContract records an employment relationship.
type LaborContract struct {
	ContractID     string
	EmployerID     string
	WorkerID       string
	SkillLevel     float64
	WagePerTick    Cents
	TicksPerStep   int
	ContractLength int
	StartStep      int
	EndStep        int
}

// InfoRequest/InfoResp payload — pinned down from original_source/TradeClasses.py,
// not named explicitly in spec §3 but required by the INFO_REQ/INFO_RESP packets of §6.
type InfoRequest struct {
	RequestID    string
	TargetAgent  string
	Fields       []string
	Values       map[string]any // populated on the INFO_RESP leg
}

// AgentInfo is a small identity/type descriptor attached to every agent
// and marketplace, used in logs and in the Manager's process-ready
// bookkeeping (original_source/EconAgent.py's AgentInfo).
type AgentInfo struct {
	AgentID   string
	AgentType string
}

// --- Statistics notification payloads ---
//
// Production, consumption, and accounting are purely local bookkeeping
// inside an Agent with no wire representation of their own; these types
// give the statistics trackers (internal/stats) something to snoop on,
// broadcast fire-and-forget alongside the transactional packets above.

// AccountingSnapshot is one tracked flow's exponential-moving-average,
// cumulative total, and most recent per-step delta.
type AccountingSnapshot struct {
	EMA        float64
	Cumulative float64
	LastDelta  float64
}

// ProductionNotification reports a completed ProduceItem call.
type ProductionNotification struct {
	ItemID   string
	Quantity float64
	StepNum  int
}

// ConsumptionNotification reports a completed ConsumeItem call.
type ConsumptionNotification struct {
	ItemID   string
	Quantity float64
	StepNum  int
}

// AccountingNotification is an agent's full per-flow accounting snapshot
// as of a step boundary.
type AccountingNotification struct {
	AgentID string
	StepNum int
	Flows   map[string]AccountingSnapshot
}

// CheckpointRequest is the SAVE_CHECKPOINT/LOAD_CHECKPOINT payload,
// shared by every checkpoint-capable runtime (agent, marketplace) so the
// Simulation Manager can broadcast one value both understand.
type CheckpointRequest struct {
	Dir string
}

// CheckpointAck is the SAVE_CHECKPOINT_ACK/LOAD_CHECKPOINT_ACK payload.
type CheckpointAck struct {
	Success bool
	Error   string
}

// MarketSampleRequest is the *_MARKET_SAMPLE payload sent by an agent to
// a marketplace — shared across internal/agent and internal/market since
// both sides must agree on the same concrete wire type (an `any` payload
// carried over a Link is never re-decoded by LocalLink, so the sender's
// and receiver's type assertions must name the identical type).
type MarketSampleRequest struct {
	SampleSize int
	ItemID     string // item market only
	Allocation string // land market only
}

// ItemSampleResult is the ITEM_MARKET_SAMPLE_ACK payload.
type ItemSampleResult struct{ Listings []ItemListing }

// LaborSampleResult is the LABOR_MARKET_SAMPLE_ACK payload.
type LaborSampleResult struct{ Listings []LaborListing }

// LandSampleResult is the LAND_MARKET_SAMPLE_ACK payload.
type LandSampleResult struct{ Listings []LandListing }
