// Package netindex implements a SQLite-backed read index of completed
// labor contracts, step-boundary economic flows, and checkpoint activity
// — a secondary, queryable store alongside the statistics CSVs, so a
// tool can ask "what did agent X do" without replaying snoop output.
//
// Grounded on the teacher's internal/persistence/indexdb/sqlite.go: a
// single writer goroutine draining a buffered request channel, batching
// writes into periodically-committed transactions, with every Record*
// call a non-blocking send that drops under backpressure ("the CSV
// trackers remain the source of truth" the way the teacher's JSONL logs
// do for its own indexer).
//
// Scope note: only events carried by a packet type shared across package
// boundaries (see DESIGN.md's "Cross-package wire payloads") can be
// snooped and decoded outside internal/agent, so this index covers
// LABOR_CONTRACT_FORMED_BROADCAST, the production/consumption/accounting
// notification broadcasts, and checkpoint requests/acks — not the
// pairwise currency/item/land transfer protocols, whose payload types are
// intentionally unexported and local to internal/agent.
package netindex

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"agoria/internal/packet"
)

// Index is the SQLite read index. The zero value is not usable; construct
// with Open.
type Index struct {
	db *sql.DB

	ch     chan req
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool
}

type reqKind int

const (
	reqContract reqKind = iota + 1
	reqFlow
	reqCheckpointRequest
	reqCheckpointAck
)

type req struct {
	kind reqKind

	contract   contractRow
	flow       flowRow
	ckptReq    checkpointRequestRow
	ckptAck    checkpointAckRow
}

type contractRow struct {
	ContractID     string
	EmployerID     string
	WorkerID       string
	SkillLevel     float64
	WagePerTick    int64
	TicksPerStep   int
	ContractLength int
	StartStep      int
	EndStep        int
}

type flowRow struct {
	StepNum  int
	AgentID  string
	Kind     string // "production" or "consumption"
	ItemID   string
	Quantity float64
}

type checkpointRequestRow struct {
	Dir       string
	Broadcast string // "save" or "load"
	SeenAt    string
}

type checkpointAckRow struct {
	Dir       string
	EntityID  string
	Broadcast string
	Success   bool
	Error     string
	SeenAt    string
}

// Open creates (if needed) the SQLite database at path, applies pragmas
// and schema, and starts the writer goroutine.
func Open(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("netindex: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("netindex: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("netindex: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("netindex: pragmas: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("netindex: schema: %w", err)
	}

	ix := &Index{db: db, ch: make(chan req, 65536)}
	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		ix.loop()
	}()
	return ix, nil
}

func initPragmas(db *sql.DB) error {
	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	} {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS contracts (
			contract_id TEXT PRIMARY KEY,
			employer_id TEXT NOT NULL,
			worker_id TEXT NOT NULL,
			skill_level REAL NOT NULL,
			wage_per_tick_cents INTEGER NOT NULL,
			ticks_per_step INTEGER NOT NULL,
			contract_length INTEGER NOT NULL,
			start_step INTEGER NOT NULL,
			end_step INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_contracts_employer ON contracts(employer_id);`,
		`CREATE INDEX IF NOT EXISTS idx_contracts_worker ON contracts(worker_id);`,
		`CREATE TABLE IF NOT EXISTS flows (
			step INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			item_id TEXT NOT NULL,
			quantity REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_flows_agent_step ON flows(agent_id, step);`,
		`CREATE TABLE IF NOT EXISTS checkpoint_requests (
			dir TEXT NOT NULL,
			broadcast TEXT NOT NULL,
			seen_at TEXT NOT NULL,
			PRIMARY KEY (dir, broadcast)
		);`,
		`CREATE TABLE IF NOT EXISTS checkpoint_acks (
			dir TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			broadcast TEXT NOT NULL,
			success INTEGER NOT NULL,
			error TEXT,
			seen_at TEXT NOT NULL,
			PRIMARY KEY (dir, entity_id, broadcast)
		);`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the writer goroutine and closes the database.
func (ix *Index) Close() error {
	var err error
	ix.once.Do(func() {
		ix.closed.Store(true)
		close(ix.ch)
		ix.wg.Wait()
		err = ix.db.Close()
	})
	return err
}

// RecordContract indexes a formed labor contract.
func (ix *Index) RecordContract(c packet.LaborContract) {
	if ix == nil || ix.closed.Load() {
		return
	}
	row := contractRow{
		ContractID: c.ContractID, EmployerID: c.EmployerID, WorkerID: c.WorkerID,
		SkillLevel: c.SkillLevel, WagePerTick: int64(c.WagePerTick),
		TicksPerStep: c.TicksPerStep, ContractLength: c.ContractLength,
		StartStep: c.StartStep, EndStep: c.EndStep,
	}
	select {
	case ix.ch <- req{kind: reqContract, contract: row}:
	default:
	}
}

// RecordProduction indexes a completed ProduceItem call.
func (ix *Index) RecordProduction(agentID string, n packet.ProductionNotification) {
	ix.recordFlow(agentID, "production", n.ItemID, n.Quantity, n.StepNum)
}

// RecordConsumption indexes a completed ConsumeItem call.
func (ix *Index) RecordConsumption(agentID string, n packet.ConsumptionNotification) {
	ix.recordFlow(agentID, "consumption", n.ItemID, n.Quantity, n.StepNum)
}

func (ix *Index) recordFlow(agentID, kind, itemID string, quantity float64, step int) {
	if ix == nil || ix.closed.Load() {
		return
	}
	select {
	case ix.ch <- req{kind: reqFlow, flow: flowRow{StepNum: step, AgentID: agentID, Kind: kind, ItemID: itemID, Quantity: quantity}}:
	default:
	}
}

// RecordCheckpointRequest indexes a SAVE_CHECKPOINT_BROADCAST or
// LOAD_CHECKPOINT_BROADCAST's target directory, so later acks can be
// read back against a known checkpoint round.
func (ix *Index) RecordCheckpointRequest(dir, broadcast string) {
	if ix == nil || ix.closed.Load() {
		return
	}
	row := checkpointRequestRow{Dir: dir, Broadcast: broadcast, SeenAt: time.Now().UTC().Format(time.RFC3339Nano)}
	select {
	case ix.ch <- req{kind: reqCheckpointRequest, ckptReq: row}:
	default:
	}
}

// RecordCheckpointAck indexes one entity's SAVE_CHECKPOINT_ACK or
// LOAD_CHECKPOINT_ACK, correlated against the most recently requested dir.
func (ix *Index) RecordCheckpointAck(dir, entityID, broadcast string, ack packet.CheckpointAck) {
	if ix == nil || ix.closed.Load() {
		return
	}
	row := checkpointAckRow{
		Dir: dir, EntityID: entityID, Broadcast: broadcast,
		Success: ack.Success, Error: ack.Error, SeenAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case ix.ch <- req{kind: reqCheckpointAck, ckptAck: row}:
	default:
	}
}

func (ix *Index) loop() {
	ctx := context.Background()

	insertContract, _ := ix.db.Prepare(`INSERT OR REPLACE INTO contracts(contract_id,employer_id,worker_id,skill_level,wage_per_tick_cents,ticks_per_step,contract_length,start_step,end_step) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertFlow, _ := ix.db.Prepare(`INSERT INTO flows(step,agent_id,kind,item_id,quantity) VALUES(?,?,?,?,?)`)
	insertCkptReq, _ := ix.db.Prepare(`INSERT OR REPLACE INTO checkpoint_requests(dir,broadcast,seen_at) VALUES(?,?,?)`)
	insertCkptAck, _ := ix.db.Prepare(`INSERT OR REPLACE INTO checkpoint_acks(dir,entity_id,broadcast,success,error,seen_at) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, stmt := range []*sql.Stmt{insertContract, insertFlow, insertCkptReq, insertCkptAck} {
			if stmt != nil {
				_ = stmt.Close()
			}
		}
	}()

	var (
		tx          *sql.Tx
		opCount     int
		lastCommit  = time.Now()
		commitEvery = 500
		commitWait  = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		t, err := ix.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = t
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
	}
	flushIfNeeded := func() {
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitWait) {
			commit()
		}
	}

	for r := range ix.ch {
		begin()
		if tx == nil {
			continue
		}

		var err error
		switch r.kind {
		case reqContract:
			c := r.contract
			_, err = tx.Stmt(insertContract).Exec(c.ContractID, c.EmployerID, c.WorkerID, c.SkillLevel, c.WagePerTick, c.TicksPerStep, c.ContractLength, c.StartStep, c.EndStep)
		case reqFlow:
			f := r.flow
			_, err = tx.Stmt(insertFlow).Exec(f.StepNum, f.AgentID, f.Kind, f.ItemID, f.Quantity)
		case reqCheckpointRequest:
			cr := r.ckptReq
			_, err = tx.Stmt(insertCkptReq).Exec(cr.Dir, cr.Broadcast, cr.SeenAt)
		case reqCheckpointAck:
			ca := r.ckptAck
			_, err = tx.Stmt(insertCkptAck).Exec(ca.Dir, ca.EntityID, ca.Broadcast, ca.Success, ca.Error, ca.SeenAt)
		}
		if err != nil {
			rollback()
			continue
		}
		opCount++
		flushIfNeeded()
	}
	commit()
}

// ContractRecord is a row read back from the contracts table.
type ContractRecord struct {
	ContractID     string
	EmployerID     string
	WorkerID       string
	SkillLevel     float64
	WagePerTick    packet.Cents
	TicksPerStep   int
	ContractLength int
	StartStep      int
	EndStep        int
}

// ContractsForAgent returns every indexed contract naming agentID as
// either employer or worker, most recently started first.
func (ix *Index) ContractsForAgent(ctx context.Context, agentID string) ([]ContractRecord, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT contract_id, employer_id, worker_id, skill_level, wage_per_tick_cents, ticks_per_step, contract_length, start_step, end_step
		FROM contracts WHERE employer_id = ? OR worker_id = ? ORDER BY start_step DESC`, agentID, agentID)
	if err != nil {
		return nil, fmt.Errorf("netindex: query contracts: %w", err)
	}
	defer rows.Close()

	var out []ContractRecord
	for rows.Next() {
		var c ContractRecord
		var wage int64
		if err := rows.Scan(&c.ContractID, &c.EmployerID, &c.WorkerID, &c.SkillLevel, &wage, &c.TicksPerStep, &c.ContractLength, &c.StartStep, &c.EndStep); err != nil {
			return nil, fmt.Errorf("netindex: scan contract: %w", err)
		}
		c.WagePerTick = packet.Cents(wage)
		out = append(out, c)
	}
	return out, rows.Err()
}

// FlowTotal sums every indexed production or consumption quantity for
// agentID/itemID/kind across all recorded steps.
func (ix *Index) FlowTotal(ctx context.Context, agentID, kind, itemID string) (float64, error) {
	var total sql.NullFloat64
	err := ix.db.QueryRowContext(ctx, `
		SELECT SUM(quantity) FROM flows WHERE agent_id = ? AND kind = ? AND item_id = ?`, agentID, kind, itemID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("netindex: query flow total: %w", err)
	}
	return total.Float64, nil
}

// LatestCheckpointDir returns the most recently requested checkpoint
// directory for broadcast ("save" or "load"), and whether one exists.
func (ix *Index) LatestCheckpointDir(ctx context.Context, broadcast string) (string, bool, error) {
	var dir string
	err := ix.db.QueryRowContext(ctx, `
		SELECT dir FROM checkpoint_requests WHERE broadcast = ? ORDER BY seen_at DESC LIMIT 1`, broadcast).Scan(&dir)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("netindex: query latest checkpoint dir: %w", err)
	}
	return dir, true, nil
}
