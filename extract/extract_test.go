package extract

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testDataset(t *testing.T, rows int) *Dataset {
	t.Helper()
	ds := NewDataset([]Column{
		{Name: "name", Type: TypeText},
		{Name: "rating", Type: TypeFloat},
		{Name: "review_count", Type: TypeInteger},
		{Name: "open_now", Type: TypeBool},
		{Name: "fetched_at", Type: TypeTimestamp},
	})
	for i := 0; i < rows; i++ {
		err := ds.AppendRow("place", 4.5, int64(i), true, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("AppendRow failed: %v", err)
		}
	}
	return ds
}

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng := OpenEngine(Params{LogDir: t.TempDir()}, zap.NewNop())
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestAppendRowTypeMismatch(t *testing.T) {
	ds := NewDataset([]Column{{Name: "n", Type: TypeInteger}})

	tests := []struct {
		name  string
		value any
		ok    bool
	}{
		{"int64 accepted", int64(1), true},
		{"int rejected", 1, false},
		{"string rejected", "1", false},
		{"float rejected", 1.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ds.AppendRow(tt.value)
			if tt.ok && err != nil {
				t.Fatalf("AppendRow failed: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected type error")
			}
		})
	}
}

func TestAppendRowArityMismatch(t *testing.T) {
	ds := NewDataset([]Column{{Name: "a", Type: TypeText}, {Name: "b", Type: TypeText}})
	if err := ds.AppendRow("only one"); err == nil {
		t.Fatal("expected arity error")
	}
}

func TestOpenEngineReturnsSharedHandle(t *testing.T) {
	first := OpenEngine(Params{}, zap.NewNop())
	second := OpenEngine(Params{}, zap.NewNop())
	if first != second {
		t.Fatal("second OpenEngine must return the running backend handle")
	}
	// Two references: the first Close must leave the backend alive.
	if err := second.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	third := OpenEngine(Params{}, zap.NewNop())
	if third != first {
		t.Fatal("backend shut down while a reference was still held")
	}
	third.Close()
	first.Close()
}

func TestOpenConnectionReadOnlyMissingFile(t *testing.T) {
	eng := openTestEngine(t)
	_, err := eng.OpenConnection(filepath.Join(t.TempDir(), "missing.duckdb"), ModeReadOnly)
	if !errors.Is(err, ErrNoSuchFile) {
		t.Fatalf("expected ErrNoSuchFile, got %v", err)
	}
}

func TestCreateTableEmptyDataset(t *testing.T) {
	eng := openTestEngine(t)
	conn, err := eng.OpenConnection(filepath.Join(t.TempDir(), "out.duckdb"), ModeCreateIfMissing)
	if err != nil {
		t.Fatalf("OpenConnection failed: %v", err)
	}
	defer conn.Close()

	if err := conn.CreateTable(testDataset(t, 0), "places", ""); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("expected ErrEmptyDataset, got %v", err)
	}
}

func TestWriteRowsAppendGrowsByBatchSize(t *testing.T) {
	eng := openTestEngine(t)
	conn, err := eng.OpenConnection(filepath.Join(t.TempDir(), "out.duckdb"), ModeCreateIfMissing)
	if err != nil {
		t.Fatalf("OpenConnection failed: %v", err)
	}
	defer conn.Close()

	ds := testDataset(t, 7)
	for i := 1; i <= 3; i++ {
		if err := conn.WriteRows(ds, "places", WriteAppend); err != nil {
			t.Fatalf("WriteRows append %d failed: %v", i, err)
		}
		count, err := conn.RowCount("places")
		if err != nil {
			t.Fatalf("RowCount failed: %v", err)
		}
		if want := int64(7 * i); count != want {
			t.Errorf("after append %d: got %d rows, want %d", i, count, want)
		}
	}
}

func TestWriteRowsOverwriteLeavesLastBatch(t *testing.T) {
	eng := openTestEngine(t)
	conn, err := eng.OpenConnection(filepath.Join(t.TempDir(), "out.duckdb"), ModeCreateIfMissing)
	if err != nil {
		t.Fatalf("OpenConnection failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteRows(testDataset(t, 10), "places", WriteAppend); err != nil {
		t.Fatalf("initial write failed: %v", err)
	}
	if err := conn.WriteRows(testDataset(t, 4), "places", WriteOverwrite); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	count, err := conn.RowCount("places")
	if err != nil {
		t.Fatalf("RowCount failed: %v", err)
	}
	if count != 4 {
		t.Errorf("after overwrite: got %d rows, want 4", count)
	}
}

func TestWriteRowsEmptyDatasetLeavesTableUnchanged(t *testing.T) {
	eng := openTestEngine(t)
	conn, err := eng.OpenConnection(filepath.Join(t.TempDir(), "out.duckdb"), ModeCreateIfMissing)
	if err != nil {
		t.Fatalf("OpenConnection failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteRows(testDataset(t, 5), "places", WriteAppend); err != nil {
		t.Fatalf("initial write failed: %v", err)
	}
	if err := conn.WriteRows(testDataset(t, 0), "places", WriteOverwrite); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("expected ErrEmptyDataset, got %v", err)
	}

	count, err := conn.RowCount("places")
	if err != nil {
		t.Fatalf("RowCount failed: %v", err)
	}
	if count != 5 {
		t.Errorf("table changed by rejected write: got %d rows, want 5", count)
	}
}

func TestTableNamesCachedAtOpen(t *testing.T) {
	eng := openTestEngine(t)
	path := filepath.Join(t.TempDir(), "out.duckdb")

	conn, err := eng.OpenConnection(path, ModeCreateIfMissing)
	if err != nil {
		t.Fatalf("OpenConnection failed: %v", err)
	}
	if err := conn.WriteRows(testDataset(t, 1), "places", WriteAppend); err != nil {
		t.Fatalf("WriteRows failed: %v", err)
	}
	if !conn.TableExists("places") {
		t.Error("created table missing from cache")
	}
	conn.Close()

	reopened, err := eng.OpenConnection(path, ModeReadOnly)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	if !reopened.TableExists("places") {
		t.Error("existing table not enumerated at open")
	}
	if reopened.TableExists("nope") {
		t.Error("cache reports a table that does not exist")
	}
}
