package packet

// Process lifecycle/control packets used between an agent process and the
// Simulation Manager. Split from packet.go's main const block because
// they're specific to Manager<->process bookkeeping rather than the
// agent-to-agent wire protocol, grounded on
// original_source/SimulationManager.py's receiveMsg dispatch.
const (
	ProcReady           Type = "PROC_READY"
	ProcError           Type = "PROC_ERROR"
	StopTrading         Type = "STOP_TRADING"
)
