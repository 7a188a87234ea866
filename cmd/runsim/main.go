// Command runsim launches one agent-economy simulation end to end: it
// loads a JSON configuration, wires the Connection Network, spawns the
// configured marketplaces and agents in-process, drives the Simulation
// Manager's step barrier, and tears everything down once the configured
// number of steps has run.
//
// Grounded on the teacher's cmd/server/main.go (flag-based wiring, a
// log.Logger passed down to every component instead of each package
// reaching for the global logger) and on
// original_source/SimulationRunner.py's runSimulation (load config, build
// every AgentSeed, wire the Connection Network, launch, wait, tear down).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"

	"agoria/internal/agent"
	"agoria/internal/collab"
	"agoria/internal/config"
	"agoria/internal/link"
	"agoria/internal/market"
	"agoria/internal/netindex"
	"agoria/internal/network"
	"agoria/internal/packet"
	"agoria/internal/recipes"
	"agoria/internal/simmanager"
	"agoria/internal/stats"
)

const (
	managerID    = "simManager"
	itemMarketID = "itemMarketplace"
	laborMktID   = "laborMarketplace"
	landMktID    = "landMarketplace"
	netindexID   = "netindex"
	localLinkBuf = 64
)

func main() {
	var (
		configPath  = flag.String("cfg", "./configs/simulation.json", "path to the simulation's JSON config")
		recipesPath = flag.String("recipes", "./configs/recipes.yaml", "path to the production recipe table")
		dataDir     = flag.String("data", "./data", "runtime data directory for checkpoints, the net index, and tracker CSVs")
		wsAddr      = flag.String("observer_addr", ":7070", "websocket listen address external observers (cmd/snoop) attach to; empty disables")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[runsim] ", log.LstdFlags|log.Lmicroseconds)

	doc, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	recipeTable, err := recipes.Load(*recipesPath)
	if err != nil {
		logger.Fatalf("load recipes: %v", err)
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("create data dir: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	net := network.New(logger)
	defer net.Shutdown()

	mgrHost, mgrLink := link.NewLocalPair(localLinkBuf)
	net.AddConnection(managerID, mgrHost)
	mgr := simmanager.New(managerID, mgrLink, net, logger, durationFromSeconds(doc.Settings.StallBudgetSeconds))

	var terminated atomic.Bool
	go func() {
		if err := mgr.Run(ctx, func() { terminated.Store(true) }); err != nil {
			logger.Printf("simmanager: run ended: %v", err)
		}
	}()

	runMarketplace := func(id string, m *market.Marketplace) {
		go func() {
			if err := m.Run(); err != nil {
				logger.Printf("%s: run ended: %v", id, err)
			}
		}()
		net.Send(packet.Packet{Type: packet.ProcReady, SenderID: id, DestinationID: managerID})
	}

	itemHost, itemLink := link.NewLocalPair(localLinkBuf)
	net.AddConnection(itemMarketID, itemHost)
	runMarketplace(itemMarketID, market.NewItemMarketplace(itemMarketID, itemLink, logger))

	laborHost, laborLink := link.NewLocalPair(localLinkBuf)
	net.AddConnection(laborMktID, laborHost)
	runMarketplace(laborMktID, market.NewLaborMarketplace(laborMktID, laborLink, logger))

	landHost, landLink := link.NewLocalPair(localLinkBuf)
	net.AddConnection(landMktID, landHost)
	runMarketplace(landMktID, market.NewLandMarketplace(landMktID, landLink, logger))

	var statTrackers []trackerHandle
	if doc.Statistics.OutputDir != "" {
		statTrackers = wireTrackers(net, logger, doc.Statistics)
	}

	idx, err := netindex.Open(filepath.Join(*dataDir, "netindex.sqlite"))
	if err != nil {
		logger.Fatalf("open netindex: %v", err)
	}
	defer idx.Close()
	ixHost, ixLink := link.NewLocalPair(localLinkBuf)
	net.AddConnection(netindexID, ixHost)
	watcher := netindex.NewWatcher(netindexID, ixLink, logger, idx)
	go func() {
		if err := watcher.Run(); err != nil {
			logger.Printf("netindex: watcher ended: %v", err)
		}
	}()

	agentIDs := spawnAgents(net, logger, doc, recipeTable)

	if *wsAddr != "" {
		srv := startObserverServer(*wsAddr, net, logger)
		defer srv.Close()
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, 30*time.Second)
	expected := append([]string{itemMarketID, laborMktID, landMktID}, agentIDs...)
	if err := mgr.WaitReady(waitCtx, expected); err != nil {
		waitCancel()
		logger.Fatalf("waiting for agents to come up: %v", err)
	}
	waitCancel()

	start := time.Now()
	mgr.StartControllers(1 * time.Second)

	if err := mgr.RunSteps(ctx, doc.Settings.SimulationSteps, doc.Settings.TicksPerStep, doc.Settings.CheckpointEvery, doc.Settings.CheckpointDir); err != nil {
		logger.Printf("simulation stopped early: %v", err)
	}

	mgr.StopTradingAndKill(500 * time.Millisecond)
	for _, t := range statTrackers {
		if err := t.Close(); err != nil {
			logger.Printf("tracker close: %v", err)
		}
	}

	var dbSize int64
	if fi, err := os.Stat(filepath.Join(*dataDir, "netindex.sqlite")); err == nil {
		dbSize = fi.Size()
	}
	if terminated.Load() {
		logger.Printf("simulation received an early TERMINATE_SIMULATION signal")
	}
	logger.Printf("simulation finished: %d steps in %s, net index %s", doc.Settings.SimulationSteps, time.Since(start).Round(time.Millisecond), humanize.Bytes(uint64(dbSize)))
}

func durationFromSeconds(s float64) time.Duration {
	if s <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s * float64(time.Second))
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// startObserverServer exposes a websocket endpoint external tools like
// cmd/snoop attach to, grounded on the teacher's
// internal/transport/ws/server.go upgrade-then-hand-off-to-Link shape.
func startObserverServer(addr string, net *network.Network, logger *log.Logger) *http.Server {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	var nextObserver uint64
	mux := http.NewServeMux()
	mux.HandleFunc("/observe", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Printf("observer: upgrade failed: %v", err)
			return
		}
		id := fmt.Sprintf("observer_%d", atomic.AddUint64(&nextObserver, 1))
		net.AddConnection(id, link.NewWSLink(conn))
		logger.Printf("observer: %s connected", id)
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("observer server: %v", err)
		}
	}()
	return srv
}

// trackerHandle is the common shape of every internal/stats tracker type:
// a Collector-driven run loop plus a CSV sink to flush and close on
// shutdown.
type trackerHandle interface {
	Run() error
	Close() error
}

// wireTrackers builds the five statistics trackers named in stCfg.Trackers
// and starts each one's run loop.
func wireTrackers(net *network.Network, logger *log.Logger, stCfg config.Statistics) []trackerHandle {
	var out []trackerHandle
	build := func(name string, newFn func(id string, l link.Link, logger *log.Logger, outputDir, path string) (trackerHandle, error)) {
		path, ok := stCfg.Trackers[name]
		if !ok {
			return
		}
		id := "tracker_" + name
		host, lk := link.NewLocalPair(localLinkBuf)
		net.AddConnection(id, host)
		tr, err := newFn(id, lk, logger, stCfg.OutputDir, path)
		if err != nil {
			logger.Fatalf("tracker %s: %v", name, err)
		}
		go func() {
			if err := tr.Run(); err != nil {
				logger.Printf("tracker %s: run ended: %v", name, err)
			}
		}()
		out = append(out, tr)
	}
	build("consumption", func(id string, l link.Link, logger *log.Logger, outputDir, path string) (trackerHandle, error) {
		return stats.NewConsumptionTracker(id, l, logger, outputDir, path)
	})
	build("production", func(id string, l link.Link, logger *log.Logger, outputDir, path string) (trackerHandle, error) {
		return stats.NewProductionTracker(id, l, logger, outputDir, path)
	})
	build("itemPrice", func(id string, l link.Link, logger *log.Logger, outputDir, path string) (trackerHandle, error) {
		return stats.NewItemPriceTracker(id, l, logger, outputDir, path)
	})
	build("laborContract", func(id string, l link.Link, logger *log.Logger, outputDir, path string) (trackerHandle, error) {
		return stats.NewLaborContractTracker(id, l, logger, outputDir, path)
	})
	build("accounting", func(id string, l link.Link, logger *log.Logger, outputDir, path string) (trackerHandle, error) {
		return stats.NewAccountingTracker(id, l, logger, outputDir, path)
	})
	return out
}

// spawnSettings is the per-agent-type JSON block inside
// settings.AgentSpawns[name][type].settings, grounded on
// original_source/SimulationRunner.py's spawnSettings dict (starting
// grants plus controller-specific knobs).
type spawnSettings struct {
	StartingBalanceCents int64              `json:"startingBalanceCents"`
	StartingInventory    map[string]float64 `json:"startingInventory"`
	StartingLand         map[string]float64 `json:"startingLand"`

	// Present for a selling/producing agent type.
	ItemID          string `json:"itemId"`
	ProductionBatch float64 `json:"productionBatch"`
	ListingQty      float64 `json:"listingQty"`
	BasePriceCents  int64   `json:"basePriceCents"`
	MinPriceCents   int64   `json:"minPriceCents"`
	SampleSize      int     `json:"sampleSize"`

	// Present for a buying/hiring agent type (ThresholdController).
	MaxBuyPriceCents  int64 `json:"maxBuyPriceCents"`
	MinSellPriceCents int64 `json:"minSellPriceCents"`
	MinWageCents      int64 `json:"minWageCents"`
}

// spawnAgents builds every agent named in doc.Settings.AgentSpawns,
// registers it with the Network, and reports PROC_READY on its behalf —
// the in-process stand-in for original_source/SimulationRunner.py's
// per-subprocess AgentSeed bootstrap, collapsed to one host process since
// spec's architecture runs the agent population inside a single Agent
// Runtime host.
func spawnAgents(net *network.Network, logger *log.Logger, doc config.Document, recipeTable *recipes.Table) []string {
	var ids []string
	for agentName, byType := range doc.Settings.AgentSpawns {
		for agentType, spawn := range byType {
			var st spawnSettings
			if len(spawn.Settings) > 0 {
				if err := json.Unmarshal(spawn.Settings, &st); err != nil {
					logger.Fatalf("agent spawn %s.%s: bad settings: %v", agentName, agentType, err)
				}
			}
			for i := 0; i < spawn.Count; i++ {
				id := fmt.Sprintf("%s.%s.%d", agentName, agentType, i)
				ids = append(ids, id)
				host, lk := link.NewLocalPair(localLinkBuf)
				net.AddConnection(id, host)

				cfg := agent.Config{
					Info:            packet.AgentInfo{AgentID: id, AgentType: agentType},
					TicksPerStep:    doc.Settings.TicksPerStep,
					ManagerID:       managerID,
					Production:      recipeTable,
					ItemMarketID:    itemMarketID,
					LaborMarketID:   laborMktID,
					LandMarketID:    landMktID,
					AccountingAlpha: 0.2,
				}

				if st.ItemID != "" {
					basePrice := packet.Cents(st.BasePriceCents)
					minPrice := packet.Cents(st.MinPriceCents)
					sampleSize := st.SampleSize
					if sampleSize <= 0 {
						sampleSize = 5
					}
					itemID, batch, qty := st.ItemID, st.ProductionBatch, st.ListingQty
					cfg.ControllerFactory = func(a *agent.Agent) agent.Controller {
						return collab.NewItemProducerController(a, itemID, batch, qty, basePrice, minPrice, sampleSize)
					}
				} else {
					cfg.Controller = collab.ThresholdController{
						AgentID:      id,
						MaxBuyPrice:  packet.Cents(st.MaxBuyPriceCents),
						MinSellPrice: packet.Cents(st.MinSellPriceCents),
						MinWage:      packet.Cents(st.MinWageCents),
					}
				}

				a := agent.New(cfg, lk, logger)
				a.Mint(packet.Cents(st.StartingBalanceCents), st.StartingInventory, st.StartingLand)

				go func(id string) {
					if err := a.Run(); err != nil {
						logger.Printf("agent %s: run ended: %v", id, err)
					}
				}(id)
				net.Send(packet.Packet{Type: packet.ProcReady, SenderID: id, DestinationID: managerID})
			}
		}
	}
	return ids
}
