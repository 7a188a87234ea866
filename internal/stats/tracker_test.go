package stats

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return rows
}

func TestTrackerWritesHeaderAndRecordedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	tr, err := NewTracker("test", path, []string{"A", "B"}, 4)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	tr.Record([]string{"1", "x"})
	tr.Record([]string{"2", "y"})
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rows := readCSV(t, path)
	want := [][]string{{"A", "B"}, {"1", "x"}, {"2", "y"}}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}
	for i := range want {
		if rows[i][0] != want[i][0] || rows[i][1] != want[i][1] {
			t.Fatalf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestTrackerCreatesOutputDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "out.csv")
	tr, err := NewTracker("test", path, []string{"A"}, 1)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Stat(%s): %v", path, err)
	}
}

func TestTrackerTruncatesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := os.WriteFile(path, []byte("stale content that should be gone\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	tr, err := NewTracker("test", path, []string{"A"}, 1)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	rows := readCSV(t, path)
	if len(rows) != 1 || rows[0][0] != "A" {
		t.Fatalf("rows = %v, want only the fresh header", rows)
	}
}
