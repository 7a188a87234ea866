package agent

// accountingTracker maintains an exponential moving average, a running
// cumulative total, and the most recent delta for one tracked flow (e.g.
// "currency_sent", "item_consumed:wood"). Grounded on
// original_source/StatisticsGatherer.py's AccountingTracker, with alpha
// (default 0.2) taken from spec's Design Notes.
type accountingTracker struct {
	alpha      float64
	ema        float64
	cumulative float64
	lastDelta  float64
	seen       bool
}

func newAccountingTracker(alpha float64) *accountingTracker {
	return &accountingTracker{alpha: alpha}
}

func restoreAccountingTracker(snap AccountingSnapshot, alpha float64) *accountingTracker {
	return &accountingTracker{
		alpha:      alpha,
		ema:        snap.EMA,
		cumulative: snap.Cumulative,
		lastDelta:  snap.LastDelta,
		seen:       true,
	}
}

func (t *accountingTracker) record(delta float64) {
	t.lastDelta = delta
	t.cumulative += delta
	if !t.seen {
		t.ema = delta
		t.seen = true
		return
	}
	t.ema = t.alpha*delta + (1-t.alpha)*t.ema
}

func (t *accountingTracker) snapshot() AccountingSnapshot {
	return AccountingSnapshot{EMA: t.ema, Cumulative: t.cumulative, LastDelta: t.lastDelta}
}

// recordFlowLocked updates the named flow's tracker by delta. Callers
// must hold a.mu.
func (a *Agent) recordFlowLocked(flow string, delta float64) {
	tr, ok := a.accounting[flow]
	if !ok {
		tr = newAccountingTracker(a.accountingAlpha())
		a.accounting[flow] = tr
	}
	tr.record(delta)
}
