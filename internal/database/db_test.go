package database

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/digitaldrywood/inventory/internal/inventory"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newWorkbook(t *testing.T, db *DB) string {
	t.Helper()
	id, err := db.CreateSpreadsheet(context.Background(), "Inventory Tracker")
	if err != nil {
		t.Fatalf("CreateSpreadsheet() error = %v", err)
	}
	return id
}

func TestDB_CreateSpreadsheetHasDefaultSheet(t *testing.T) {
	db := newTestDB(t)
	id := newWorkbook(t, db)

	tables, err := db.Tables(context.Background(), id)
	if err != nil {
		t.Fatalf("Tables() error = %v", err)
	}
	want := []inventory.Table{{ID: 0, Title: "Sheet1"}}
	if !reflect.DeepEqual(tables, want) {
		t.Errorf("Tables() = %+v, want %+v", tables, want)
	}
}

func TestDB_UnknownSpreadsheet(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.Tables(context.Background(), "missing"); !errors.Is(err, inventory.ErrStoreUnavailable) {
		t.Errorf("Tables() error = %v, want ErrStoreUnavailable", err)
	}
}

func TestDB_AddTable(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	id := newWorkbook(t, db)

	if err := db.BatchEdit(ctx, id, []inventory.Edit{inventory.AddTable("Back Room")}); err != nil {
		t.Fatalf("BatchEdit() error = %v", err)
	}

	tables, err := db.Tables(ctx, id)
	if err != nil {
		t.Fatalf("Tables() error = %v", err)
	}
	want := []inventory.Table{{ID: 0, Title: "Sheet1"}, {ID: 1, Title: "Back Room"}}
	if !reflect.DeepEqual(tables, want) {
		t.Errorf("Tables() = %+v, want %+v", tables, want)
	}

	err = db.BatchEdit(ctx, id, []inventory.Edit{inventory.AddTable("Back Room")})
	if !errors.Is(err, inventory.ErrValidation) {
		t.Errorf("duplicate AddTable error = %v, want ErrValidation", err)
	}
}

func TestDB_ValuesTrimLikeSheets(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	id := newWorkbook(t, db)

	writes := []struct {
		row    int
		values []string
	}{
		{1, []string{"bolt", "A1", "3", "t1"}},
		{3, []string{"nut", "", "", ""}},
		{4, []string{"", "", "", ""}},
	}
	for _, w := range writes {
		if err := db.Update(ctx, id, inventory.RowRange("Sheet1", w.row, 0, 3), [][]string{w.values}); err != nil {
			t.Fatalf("Update(row %d) error = %v", w.row, err)
		}
	}

	values, err := db.Values(ctx, id, inventory.ColumnsRange("Sheet1", 0, 3))
	if err != nil {
		t.Fatalf("Values() error = %v", err)
	}
	want := [][]string{
		{"bolt", "A1", "3", "t1"},
		{},
		{"nut"},
	}
	if !reflect.DeepEqual(values, want) {
		t.Errorf("Values() = %q, want %q", values, want)
	}

	column, err := db.Values(ctx, id, inventory.ColumnsRange("Sheet1", 1, 1))
	if err != nil {
		t.Fatalf("Values() error = %v", err)
	}
	if want := [][]string{{"A1"}}; !reflect.DeepEqual(column, want) {
		t.Errorf("Values(B:B) = %q, want %q", column, want)
	}
}

func TestDB_ValuesMissingTable(t *testing.T) {
	db := newTestDB(t)
	id := newWorkbook(t, db)

	_, err := db.Values(context.Background(), id, inventory.ColumnsRange("Nope", 0, 3))
	if !errors.Is(err, inventory.ErrTableNotFound) {
		t.Errorf("Values() error = %v, want ErrTableNotFound", err)
	}
}

func TestDB_DeleteRangeShiftsRowsUp(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	id := newWorkbook(t, db)

	rows := [][]string{
		{"a", "1", "", "", "keep-e1"},
		{"b", "2", "", "", "keep-e2"},
		{"c", "3", "", "", "keep-e3"},
		{"d", "4"},
	}
	r := inventory.Range{Table: "Sheet1", FirstColumn: 0, LastColumn: 4, FirstRow: 1, LastRow: 4}
	if err := db.Update(ctx, id, r, rows); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	edits := []inventory.Edit{
		inventory.DeleteRow(0, 3, 0, 4),
		inventory.DeleteRow(0, 1, 0, 4),
	}
	if err := db.BatchEdit(ctx, id, edits); err != nil {
		t.Fatalf("BatchEdit() error = %v", err)
	}

	values, err := db.Values(ctx, id, inventory.ColumnsRange("Sheet1", 0, 4))
	if err != nil {
		t.Fatalf("Values() error = %v", err)
	}
	// column E is outside the deleted span and stays where it was
	want := [][]string{
		{"b", "2", "", "", "keep-e1"},
		{"d", "4", "", "", "keep-e2"},
		{"", "", "", "", "keep-e3"},
	}
	if !reflect.DeepEqual(values, want) {
		t.Errorf("Values() = %q, want %q", values, want)
	}
}

func TestDB_DeleteRangeUnknownSheet(t *testing.T) {
	db := newTestDB(t)
	id := newWorkbook(t, db)

	err := db.BatchEdit(context.Background(), id, []inventory.Edit{inventory.DeleteRow(99, 1, 0, 4)})
	if !errors.Is(err, inventory.ErrTableNotFound) {
		t.Errorf("BatchEdit() error = %v, want ErrTableNotFound", err)
	}
}

func TestDB_BatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	id := newWorkbook(t, db)

	edits := []inventory.Edit{
		inventory.AddTable("Stock"),
		inventory.DeleteRow(42, 1, 0, 4),
	}
	if err := db.BatchEdit(ctx, id, edits); err == nil {
		t.Fatal("BatchEdit() with a bad edit should fail")
	}

	tables, err := db.Tables(ctx, id)
	if err != nil {
		t.Fatalf("Tables() error = %v", err)
	}
	if len(tables) != 1 {
		t.Errorf("failed batch left tables %+v", tables)
	}
}

func TestDB_InventoryStore(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	id := newWorkbook(t, db)

	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local)
	store := inventory.NewStore(db,
		inventory.WithClock(func() time.Time { return now }),
		inventory.WithLogger(zerolog.Nop()))
	sheet := store.Sheet(id, "Sheet1")

	for _, r := range [][3]string{{"x", "A1", "1"}, {"y", "B2", "2"}, {"z", "a1", "3"}} {
		if err := sheet.Append(ctx, r[0], r[1], r[2]); err != nil {
			t.Fatalf("Append(%v) error = %v", r, err)
		}
	}

	next, err := store.NextEmptyRow(ctx, id, "Sheet1")
	if err != nil || next != 4 {
		t.Fatalf("NextEmptyRow() = %d, %v; want 4", next, err)
	}

	found, err := sheet.FindByItem(ctx, " X ")
	if err != nil {
		t.Fatalf("FindByItem() error = %v", err)
	}
	want := []inventory.Row{{Item: "x", Location: "A1", Quantity: "1", Timestamp: "2024-05-06 07:08:09"}}
	if !reflect.DeepEqual(found, want) {
		t.Errorf("FindByItem() = %+v, want %+v", found, want)
	}

	cleared, err := sheet.ClearByLocation(ctx, "A1")
	if err != nil || cleared != 2 {
		t.Fatalf("ClearByLocation() = %d, %v; want 2", cleared, err)
	}

	rows, err := sheet.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Item != "y" || rows[0].Location != "B2" {
		t.Errorf("Rows() after clear = %+v", rows)
	}

	if err := sheet.Append(ctx, "w", "C3", "4"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	rows, err = sheet.Rows(ctx)
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(rows) != 2 || rows[1].Item != "w" {
		t.Errorf("Rows() after append = %+v", rows)
	}
}
