package table

import (
	"path/filepath"
	"testing"

	"github.com/ridgedb/ridgedb/internal/storage/bufpool"
	"github.com/ridgedb/ridgedb/internal/storage/page"
	"github.com/ridgedb/ridgedb/internal/storage/wal"
	"github.com/ridgedb/ridgedb/internal/values"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	f, err := page.Open(filepath.Join(dir, "data.db"), page.DefaultSize)
	if err != nil {
		t.Fatalf("open page file: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	w, err := wal.Open(filepath.Join(dir, "wal.log"), false)
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	pool, err := bufpool.New(f, w, 4, 16)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	s, err := Open(f, pool, w, 1)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func usersSchema() []ColumnDef {
	return []ColumnDef{
		{Name: "id", Type: "INT", PK: true},
		{Name: "name", Type: "STRING"},
		{Name: "score", Type: "DOUBLE", Nullable: true},
	}
}

func TestCreateInsertGetRecord(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.CreateTable(1, 1, "users", usersSchema(), nil); err != nil {
		t.Fatalf("create table: %v", err)
	}
	row := values.Row{Values: []values.Value{values.Int(1), values.Str("ada"), values.Double(9.5)}}
	handle, err := s.InsertRecord(1, "users", row)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := s.GetRecord("users", handle)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Values[0].I != 1 || got.Values[1].S != "ada" || got.Values[2].D != 9.5 {
		t.Errorf("got %v, want %v", got, row)
	}
}

func TestUpdateRecordInPlace(t *testing.T) {
	s := newTestStore(t)
	s.CreateTable(1, 1, "users", usersSchema(), nil)
	row := values.Row{Values: []values.Value{values.Int(1), values.Str("ada"), values.Double(9.5)}}
	handle, err := s.InsertRecord(1, "users", row)
	if err != nil {
		t.Fatal(err)
	}
	updated := values.Row{Values: []values.Value{values.Int(1), values.Str("ada"), values.Double(1.0)}}
	newHandle, err := s.UpdateRecord(1, "users", handle, updated)
	if err != nil {
		t.Fatal(err)
	}
	if newHandle != handle {
		t.Errorf("expected in-place update to keep handle %v, got %v", handle, newHandle)
	}
	got, err := s.GetRecord("users", newHandle)
	if err != nil {
		t.Fatal(err)
	}
	if got.Values[2].D != 1.0 {
		t.Errorf("expected updated score 1.0, got %v", got.Values[2])
	}
}

func TestUpdateRecordMovesOnGrowth(t *testing.T) {
	s := newTestStore(t)
	s.CreateTable(1, 1, "users", usersSchema(), nil)
	row := values.Row{Values: []values.Value{values.Int(1), values.Str("a"), values.Null()}}
	handle, err := s.InsertRecord(1, "users", row)
	if err != nil {
		t.Fatal(err)
	}
	longer := values.Row{Values: []values.Value{values.Int(1), values.Str(
		"a much longer name than before that no longer fits the original slot footprint exactly"), values.Null()}}
	newHandle, err := s.UpdateRecord(1, "users", handle, longer)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.GetRecord("users", newHandle)
	if err != nil {
		t.Fatal(err)
	}
	if got.Values[1].S != longer.Values[1].S {
		t.Errorf("expected moved row to carry new value, got %v", got.Values[1])
	}
	if newHandle == handle {
		t.Errorf("expected handle to change on growth-induced move")
	}
}

func TestDeleteRecordRemovesFromScan(t *testing.T) {
	s := newTestStore(t)
	s.CreateTable(1, 1, "users", usersSchema(), nil)
	h1, _ := s.InsertRecord(1, "users", values.Row{Values: []values.Value{values.Int(1), values.Str("a"), values.Null()}})
	s.InsertRecord(1, "users", values.Row{Values: []values.Value{values.Int(2), values.Str("b"), values.Null()}})

	if err := s.DeleteRecord(1, "users", h1); err != nil {
		t.Fatal(err)
	}
	rows, err := s.ScanTable("users")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after delete, got %d", len(rows))
	}
	if rows[0].Row.Values[0].I != 2 {
		t.Errorf("expected remaining row id=2, got %v", rows[0].Row)
	}
}

func TestScanTableGrowsAcrossPages(t *testing.T) {
	s := newTestStore(t)
	s.CreateTable(1, 1, "users", usersSchema(), nil)
	const n = 500
	for i := 0; i < n; i++ {
		row := values.Row{Values: []values.Value{values.Int(int64(i)), values.Str("row-name-padding-xx"), values.Double(float64(i))}}
		if _, err := s.InsertRecord(1, "users", row); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	rows, err := s.ScanTable("users")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != n {
		t.Fatalf("expected %d rows, got %d", n, len(rows))
	}
}

func TestDropTableThenCreateSameNameSucceeds(t *testing.T) {
	s := newTestStore(t)
	s.CreateTable(1, 1, "users", usersSchema(), nil)
	if err := s.DropTable(1, "users"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.GetMetadata("users"); ok {
		t.Error("expected metadata to be gone after drop")
	}
	if _, err := s.CreateTable(1, 1, "users", usersSchema(), nil); err != nil {
		t.Fatalf("recreate after drop: %v", err)
	}
}

func TestSchemaAndRowsSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "data.db")
	walPath := filepath.Join(dir, "wal.log")

	f, err := page.Open(dbPath, page.DefaultSize)
	if err != nil {
		t.Fatal(err)
	}
	w, err := wal.Open(walPath, false)
	if err != nil {
		t.Fatal(err)
	}
	pool, err := bufpool.New(f, w, 4, 16)
	if err != nil {
		t.Fatal(err)
	}
	s, err := Open(f, pool, w, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateTable(1, 1, "users", usersSchema(), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertRecord(1, "users", values.Row{Values: []values.Value{values.Int(1), values.Str("ada"), values.Double(1.5)}}); err != nil {
		t.Fatal(err)
	}
	if err := pool.FlushAll(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	f2, err := page.Open(dbPath, page.DefaultSize)
	if err != nil {
		t.Fatal(err)
	}
	defer f2.Close()
	w2, err := wal.Open(walPath, false)
	if err != nil {
		t.Fatal(err)
	}
	defer w2.Close()
	pool2, err := bufpool.New(f2, w2, 4, 16)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := Open(f2, pool2, w2, 2)
	if err != nil {
		t.Fatal(err)
	}
	md, ok := s2.GetMetadata("users")
	if !ok {
		t.Fatal("expected users schema to survive restart")
	}
	if len(md.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(md.Columns))
	}
	rows, err := s2.ScanTable("users")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Row.Values[1].S != "ada" {
		t.Fatalf("expected 1 row surviving restart, got %v", rows)
	}
}
