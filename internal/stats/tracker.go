// Package stats implements the statistics trackers: CSV writers fed by a
// snoop subscription on the Connection Network, one header row and then
// one row appended per event (or per step, for aggregating trackers),
// each file written at the configured output directory joined with the
// tracker's own path.
//
// Grounded on the teacher's internal/persistence/indexdb/sqlite.go
// single-writer-goroutine-plus-request-channel shape (see DESIGN.md for
// why encoding/csv rather than a third-party CSV library is used here —
// no repo in the retrieved pack imports one), and on
// original_source/StatisticsGatherer.py for the five tracker kinds and
// their columns.
package stats

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Tracker is a single CSV output fed by a buffered channel and drained by
// one dedicated writer goroutine, so file writes happen off the caller's
// goroutine; once the buffer is full, Record blocks its caller.
type Tracker struct {
	name string
	file *os.File
	w    *csv.Writer

	rows chan []string
	done chan struct{}
	wg   sync.WaitGroup
}

// NewTracker creates (or truncates) the CSV file at path, writes the
// header row, and starts the writer goroutine. bufSize bounds how many
// pending rows may queue before Record blocks its caller.
func NewTracker(name, path string, columns []string, bufSize int) (*Tracker, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("stats: mkdir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("stats: create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		f.Close()
		return nil, fmt.Errorf("stats: write header for %s: %w", path, err)
	}
	w.Flush()

	t := &Tracker{
		name: name,
		file: f,
		w:    w,
		rows: make(chan []string, bufSize),
		done: make(chan struct{}),
	}
	t.wg.Add(1)
	go t.run()
	return t, nil
}

func (t *Tracker) run() {
	defer t.wg.Done()
	for row := range t.rows {
		if err := t.w.Write(row); err != nil {
			fmt.Fprintf(os.Stderr, "stats: %s: write row: %v\n", t.name, err)
			continue
		}
		t.w.Flush()
	}
}

// Record enqueues row for writing. It blocks if the tracker's buffer is
// full, applying natural backpressure rather than dropping data.
func (t *Tracker) Record(row []string) {
	t.rows <- row
}

// Close drains pending rows and closes the underlying file.
func (t *Tracker) Close() error {
	close(t.rows)
	t.wg.Wait()
	return t.file.Close()
}
