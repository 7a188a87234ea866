// Package simmanager implements the Simulation Manager: the component
// that drives the simulation's lifecycle broadcast sequence (controller
// start, per-step tick grants, checkpoint triggers, trading stop,
// teardown) and steps the barrier that the Connection Network counts on
// its behalf.
//
// Grounded on original_source/SimulationManager.py's runSim/receiveMsg,
// and on the teacher's internal/sim/world/runtime_loop.go ticker select
// shape for the manager's own event loop. Where the original busy-polls a
// shared dict with no timeout, this implementation adds a bounded
// wall-clock stall budget around the Network's barrier wait: the Manager
// proceeds and logs a stall rather than blocking forever on an agent that
// never reports blocked.
package simmanager

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"agoria/internal/checkpoint"
	"agoria/internal/link"
	"agoria/internal/network"
	"agoria/internal/packet"
)

// Manager drives the lifecycle sequence. It is itself wired onto the
// Connection Network through an ordinary Link, exactly like any other
// agent, for the packets it sends and receives directly (PROC_READY,
// TICK_GRANT_BROADCAST, and the rest). The step barrier itself, though, is
// counted by net directly — the Network already watches every agent's
// link, so it rather than the Manager owns TICK_BLOCK_SUBSCRIBE/
// TICK_BLOCKED accounting and the ADVANCE_STEP it produces.
type Manager struct {
	id          string
	l           link.Link
	net         *network.Network
	logger      *log.Logger
	stallBudget time.Duration

	mu       sync.Mutex
	ready    map[string]bool
	readyErr map[string]string
}

// New constructs a Manager. net is the same Network the Manager's own link
// is registered with, used only to await the step barrier. stallBudget
// bounds how long RunSteps waits for that barrier before it proceeds
// anyway.
func New(id string, l link.Link, net *network.Network, logger *log.Logger, stallBudget time.Duration) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	if stallBudget <= 0 {
		stallBudget = 30 * time.Second
	}
	return &Manager{
		id:          id,
		l:           l,
		net:         net,
		logger:      logger,
		stallBudget: stallBudget,
		ready:       make(map[string]bool),
		readyErr:    make(map[string]string),
	}
}

// Run is the Manager's reader loop: it tracks PROC_READY/PROC_ERROR and
// TERMINATE_SIMULATION. TICK_BLOCK_SUBSCRIBE/TICK_BLOCKED never reach here
// any more — the Network consumes those itself — and ADVANCE_STEP arrives
// as the Network's own broadcast, which the Manager has no further use for
// since it's already waiting on net.AwaitStepBarrier for the same event.
// Run returns when the link fails or ctx is done; cancelling ctx closes
// the Manager's own link so a pending Recv unblocks.
func (m *Manager) Run(ctx context.Context, onTerminate func()) error {
	stop := context.AfterFunc(ctx, func() { m.l.Close() })
	defer stop()
	for {
		p, err := m.l.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		switch p.Type {
		case packet.ProcReady:
			m.mu.Lock()
			m.ready[p.SenderID] = true
			m.mu.Unlock()
		case packet.ProcError:
			msg, _ := p.Payload.(string)
			m.mu.Lock()
			m.ready[p.SenderID] = false
			m.readyErr[p.SenderID] = msg
			m.mu.Unlock()
		case packet.TerminateSimulation:
			if onTerminate != nil {
				onTerminate()
			}
		case packet.AdvanceStep:
		default:
			m.logger.Printf("simmanager: unhandled packet type %s", p.Type)
		}
	}
}

// WaitReady blocks until every id in expected has reported PROC_READY, an
// error is reported for any of them, or ctx is done.
func (m *Manager) WaitReady(ctx context.Context, expected []string) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.mu.Lock()
			allReady := true
			var firstErr string
			for _, id := range expected {
				ready, seen := m.ready[id]
				if !seen {
					allReady = false
					continue
				}
				if !ready {
					if firstErr == "" {
						firstErr = fmt.Sprintf("%s: %s", id, m.readyErr[id])
					}
				}
			}
			errCount := len(m.readyErr)
			m.mu.Unlock()
			if errCount > 0 {
				return fmt.Errorf("simmanager: agent instantiation failed: %s", firstErr)
			}
			if allReady {
				return nil
			}
		}
	}
}

func (m *Manager) sendPacket(p packet.Packet) {
	p.SenderID = m.id
	if err := m.l.Send(p); err != nil {
		m.logger.Printf("simmanager: send %s failed: %v", p.Type, err)
	}
}

// StartControllers broadcasts CONTROLLER_START_BROADCAST and gives
// controllers a warmup window to begin their blocking protocols, mirroring
// original_source/SimulationManager.py's post-broadcast sleep(3).
func (m *Manager) StartControllers(warmup time.Duration) {
	m.sendPacket(packet.Packet{Type: packet.ControllerStartBroadcast})
	if warmup > 0 {
		time.Sleep(warmup)
	}
}

// RunSteps runs the step loop: per step, resets the Network's barrier,
// broadcasts TICK_GRANT_BROADCAST, awaits (bounded by stallBudget) the
// Network's single report that every subscribed agent went blocked and
// ADVANCE_STEP has gone out, then optionally triggers a checkpoint.
func (m *Manager) RunSteps(ctx context.Context, steps int, ticksPerStep float64, checkpointEvery int, checkpointDir string) error {
	for step := 0; step < steps; step++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		m.net.ResetStepBarrier(step + 1)
		m.sendPacket(packet.Packet{Type: packet.TickGrantBroadcast, Payload: ticksPerStep})

		waitCtx, cancel := context.WithTimeout(ctx, m.stallBudget)
		err := m.net.AwaitStepBarrier(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Printf("simmanager: step %d stalled waiting on %v, proceeding anyway", step, m.net.StalledAgents())
		}

		if checkpointEvery > 0 && (step+1)%checkpointEvery == 0 {
			dir := checkpoint.Dir(checkpointDir, m.id, step+1)
			m.sendPacket(packet.Packet{Type: packet.SaveCheckpointBroadcast, Payload: packet.CheckpointRequest{Dir: dir}})
		}
	}
	return nil
}

// StopTradingAndKill broadcasts STOP_TRADING then KILL_ALL_BROADCAST,
// pausing between each to give agents time to react, mirroring
// original_source/SimulationManager.py's runSim teardown sequence.
func (m *Manager) StopTradingAndKill(settle time.Duration) {
	m.logger.Printf("simmanager: stopping all trading activity")
	m.sendPacket(packet.Packet{Type: packet.ControllerMsgBroadcast, Payload: packet.Packet{Type: packet.StopTrading, SenderID: m.id}})
	if settle > 0 {
		time.Sleep(settle)
	}

	m.logger.Printf("simmanager: killing all network connections")
	m.sendPacket(packet.Packet{Type: packet.KillAllBroadcast})
	if settle > 0 {
		time.Sleep(settle)
	}
}
