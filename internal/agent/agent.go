package agent

import (
	"fmt"
	"log"
	"sync"
	"time"

	"agoria/internal/link"
	"agoria/internal/packet"
)

const defaultLockTimeout = 5 * time.Second

// Agent is the runtime context for a single simulated economic actor. One
// Agent owns exactly one Link to the Connection Network and runs its own
// reader goroutine (monitorLink in original_source/EconAgent.py).
type Agent struct {
	cfg    Config
	logger *log.Logger
	l      link.Link

	mu             sync.Mutex
	balance        packet.Cents
	inventory      map[string]float64
	land           map[string]float64
	committedLand  map[string]float64
	laborInventory map[float64]float64
	timeTicks      float64
	stepNum        int
	tickBlocked    bool

	itemListings  map[packet.ItemListingKey]packet.ItemListing
	laborListings map[string]packet.LaborListing
	landListings  map[packet.LandListingKey]packet.LandListing

	contractsAsEmployer map[string]packet.LaborContract
	contractsAsWorker   map[string]packet.LaborContract

	accounting map[string]*accountingTracker

	tx *transactionTable

	tradeMu sync.Mutex

	killed   chan struct{}
	killOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs an Agent bound to l. The caller must call Run in its own
// goroutine to start processing inbound packets.
func New(cfg Config, l link.Link, logger *log.Logger) *Agent {
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	a := &Agent{
		cfg:                 cfg,
		logger:              logger,
		l:                   l,
		inventory:           make(map[string]float64),
		land:                make(map[string]float64),
		laborInventory:      make(map[float64]float64),
		itemListings:        make(map[packet.ItemListingKey]packet.ItemListing),
		laborListings:       make(map[string]packet.LaborListing),
		landListings:        make(map[packet.LandListingKey]packet.LandListing),
		contractsAsEmployer: make(map[string]packet.LaborContract),
		contractsAsWorker:   make(map[string]packet.LaborContract),
		accounting:          make(map[string]*accountingTracker),
		tx:                  newTransactionTable(),
		killed:              make(chan struct{}),
	}
	if a.cfg.Controller == nil && a.cfg.ControllerFactory != nil {
		// Mirrors original_source/EconAgent.py's getAgentController(self, ...):
		// a controller that needs to call back into its own agent (to
		// sample markets, produce, post listings) can only be built once
		// the agent it controls exists, so the factory receives the
		// already-allocated *Agent rather than being handed a ready
		// Controller value up front.
		a.cfg.Controller = a.cfg.ControllerFactory(a)
	}
	return a
}

// ID returns the agent's identity.
func (a *Agent) ID() string { return a.cfg.Info.AgentID }

// Mint grants an agent an initial balance, inventory, and land holdings
// outside conservation accounting — the original's AgentSeed startup
// grant. Callable only before Run is started.
func (a *Agent) Mint(balance packet.Cents, inventory map[string]float64, land map[string]float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance = balance
	for id, q := range inventory {
		a.inventory[id] = q
	}
	for alloc, h := range land {
		a.land[alloc] = h
	}
}

// Run is the agent's reader/dispatch loop. It blocks until the link
// closes or a KILL_PIPE_AGENT / KILL_ALL_BROADCAST packet arrives.
// Grounded on original_source/EconAgent.py's monitorNetworkLink: each
// incoming packet type either resolves a pending rendezvous (an "_ACK"
// packet), is handled inline, or is handled in its own goroutine so a
// slow controller callback never stalls the reader.
func (a *Agent) Run() error {
	defer close(a.killed)
	a.tx.startGC(a.cfg.LockTimeout)
	defer a.tx.stopGC()

	if a.cfg.ManagerID != "" {
		// Mirrors original_source/SimulationManager.py's expectation that
		// every stepping agent subscribes before the first TICK_GRANT and
		// starts out blocked, the same way each Python controller's
		// receiveMsg reports TICK_BLOCKED once it has nothing left to do.
		a.SubscribeTickBlock(a.cfg.ManagerID)
	}

	for {
		p, err := a.l.Recv()
		if err != nil {
			return err
		}

		switch {
		case p.Type == packet.KillPipeAgent || p.Type == packet.KillAllBroadcast:
			a.sendPacket(packet.Packet{Type: packet.KillPipeNetwork, SenderID: a.ID(), DestinationID: a.ID()})
			return nil

		case isAckType(p.Type):
			a.tx.resolve(p.TransactionID, p)

		case p.Type == packet.InfoResp:
			a.tx.resolve(p.TransactionID, p)

		case p.Type == packet.Error:
			a.logger.Printf("agent %s: received ERROR %v", a.ID(), p.Payload)

		case p.Type == packet.CurrencyTransfer:
			go a.handleReceiveCurrency(p)

		case p.Type == packet.ItemTransfer:
			go a.handleReceiveItem(p)

		case p.Type == packet.LandTransfer:
			go a.handleReceiveLand(p)

		case p.Type == packet.TradeReq:
			go a.handleReceiveTradeRequest(p)

		case p.Type == packet.LandTradeReq:
			go a.handleReceiveLandTradeRequest(p)

		case p.Type == packet.LaborApplication:
			go a.handleReceiveJobApplication(p)

		case p.Type == packet.LaborContractCancel:
			go a.handleReceiveContractCancel(p)

		case p.Type == packet.LaborTimeSend:
			go a.handleReceiveLaborTime(p)

		case p.Type == packet.InfoReq:
			go a.handleInfoRequest(p)

		case p.Type == packet.TickGrant || p.Type == packet.TickGrantBroadcast:
			go a.handleTickGrant(p)

		case p.Type == packet.SaveCheckpoint || p.Type == packet.SaveCheckpointBroadcast:
			go a.handleSaveCheckpoint(p)

		case p.Type == packet.LoadCheckpoint || p.Type == packet.LoadCheckpointBroadcast:
			go a.handleLoadCheckpoint(p)

		default:
			a.logger.Printf("agent %s: unhandled packet type %s", a.ID(), p.Type)
		}
	}
}

func isAckType(t packet.Type) bool {
	s := string(t)
	return len(s) > 4 && s[len(s)-4:] == "_ACK"
}

// sendPacket transmits p over the agent's link, logging failures rather
// than propagating them — a send failure means the link itself is
// already gone, which the reader loop will discover on its next Recv.
func (a *Agent) sendPacket(p packet.Packet) {
	p.SenderID = a.ID()
	if err := a.l.Send(p); err != nil {
		a.logger.Printf("agent %s: send %s failed: %v", a.ID(), p.Type, err)
	}
}

// await registers transactionID for a rendezvous, sends p, and blocks
// until either a matching ack arrives or cfg.LockTimeout elapses.
func (a *Agent) await(transactionID string, p packet.Packet) (packet.Packet, error) {
	ch := a.tx.register(transactionID, a.cfg.LockTimeout)
	a.sendPacket(p)
	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(a.cfg.LockTimeout):
		a.tx.expire(transactionID)
		return packet.Packet{}, fmt.Errorf("agent %s: transaction %s timed out", a.ID(), transactionID)
	}
}

// Close tears down the agent's link without waiting for a KILL packet.
func (a *Agent) Close() error {
	a.killOnce.Do(func() {})
	return a.l.Close()
}

// Snapshot returns the agent's current externally-visible state, used by
// checkpointing and INFO_RESP/statistics.
func (a *Agent) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	inv := make(map[string]float64, len(a.inventory))
	for k, v := range a.inventory {
		inv[k] = v
	}
	land := make(map[string]float64, len(a.land))
	for k, v := range a.land {
		land[k] = v
	}
	laborInv := make(map[float64]float64, len(a.laborInventory))
	for k, v := range a.laborInventory {
		laborInv[k] = v
	}
	itemListings := make(map[packet.ItemListingKey]packet.ItemListing, len(a.itemListings))
	for k, v := range a.itemListings {
		itemListings[k] = v
	}
	laborListings := make(map[string]packet.LaborListing, len(a.laborListings))
	for k, v := range a.laborListings {
		laborListings[k] = v
	}
	landListings := make(map[packet.LandListingKey]packet.LandListing, len(a.landListings))
	for k, v := range a.landListings {
		landListings[k] = v
	}
	employer := make(map[string]packet.LaborContract, len(a.contractsAsEmployer))
	for k, v := range a.contractsAsEmployer {
		employer[k] = v
	}
	worker := make(map[string]packet.LaborContract, len(a.contractsAsWorker))
	for k, v := range a.contractsAsWorker {
		worker[k] = v
	}
	acct := make(map[string]AccountingSnapshot, len(a.accounting))
	for k, v := range a.accounting {
		acct[k] = v.snapshot()
	}

	return State{
		Info:                a.cfg.Info,
		Balance:             a.balance,
		Inventory:           inv,
		LandHoldings:        land,
		TimeTicks:           a.timeTicks,
		StepNum:             a.stepNum,
		LaborInventory:      laborInv,
		ItemListings:        itemListings,
		LaborListings:       laborListings,
		LandListings:        landListings,
		ContractsAsEmployer: employer,
		ContractsAsWorker:   worker,
		Accounting:          acct,
	}
}

// Restore replaces the agent's state wholesale, used when loading a
// checkpoint. Must be called before Run, or while the agent is otherwise
// known to be quiescent.
func (a *Agent) Restore(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance = s.Balance
	a.inventory = cloneMap(s.Inventory)
	a.land = cloneMap(s.LandHoldings)
	a.timeTicks = s.TimeTicks
	a.stepNum = s.StepNum
	a.laborInventory = make(map[float64]float64, len(s.LaborInventory))
	for k, v := range s.LaborInventory {
		a.laborInventory[k] = v
	}
	a.itemListings = make(map[packet.ItemListingKey]packet.ItemListing, len(s.ItemListings))
	for k, v := range s.ItemListings {
		a.itemListings[k] = v
	}
	a.laborListings = make(map[string]packet.LaborListing, len(s.LaborListings))
	for k, v := range s.LaborListings {
		a.laborListings[k] = v
	}
	a.landListings = make(map[packet.LandListingKey]packet.LandListing, len(s.LandListings))
	for k, v := range s.LandListings {
		a.landListings[k] = v
	}
	a.contractsAsEmployer = make(map[string]packet.LaborContract, len(s.ContractsAsEmployer))
	for k, v := range s.ContractsAsEmployer {
		a.contractsAsEmployer[k] = v
	}
	a.contractsAsWorker = make(map[string]packet.LaborContract, len(s.ContractsAsWorker))
	for k, v := range s.ContractsAsWorker {
		a.contractsAsWorker[k] = v
	}
	for flow, snap := range s.Accounting {
		a.accounting[flow] = restoreAccountingTracker(snap, a.accountingAlpha())
	}
}

func (a *Agent) accountingAlpha() float64 {
	if a.cfg.AccountingAlpha <= 0 {
		return 0.2
	}
	return a.cfg.AccountingAlpha
}

func cloneMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneFloatKeyMap(m map[float64]float64) map[float64]float64 {
	out := make(map[float64]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
