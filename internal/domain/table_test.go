package domain

import (
	"testing"
	"time"
)

func TestNumericColumnCoercesMixedCells(t *testing.T) {
	t.Parallel()

	table := Table{
		Columns: []string{"name", "sales"},
		Rows: [][]any{
			{"a", "5"},
			{"b", 12.5},
			{"c", int64(7)},
			{"d", "n/a"},
			{"e", nil},
		},
	}
	values, ok := table.NumericColumn("sales")
	if !ok {
		t.Fatalf("expected sales column present")
	}
	if len(values) != 3 || values[0] != 5 || values[1] != 12.5 || values[2] != 7 {
		t.Fatalf("expected [5 12.5 7], got %v", values)
	}
	if _, ok := table.NumericColumn("missing"); ok {
		t.Fatalf("expected missing column to report absent")
	}
}

func TestTableFromCSVUsesHeader(t *testing.T) {
	t.Parallel()

	table, err := TableFromCSV([][]string{{"x", "y"}, {"1", "2"}, {"3", "4"}})
	if err != nil {
		t.Fatalf("build table: %v", err)
	}
	if table.RowCount() != 2 || len(table.Columns) != 2 {
		t.Fatalf("unexpected shape %dx%d", table.RowCount(), len(table.Columns))
	}
	if _, err := TableFromCSV(nil); err == nil {
		t.Fatalf("expected error for empty document")
	}
}

func TestTableFromMapsProjectsColumns(t *testing.T) {
	t.Parallel()

	table := TableFromMaps([]string{"a", "b"}, []map[string]any{
		{"a": 1.0, "b": 2.0},
		{"a": 3.0},
	})
	if table.RowCount() != 2 {
		t.Fatalf("expected 2 rows, got %d", table.RowCount())
	}
	if table.Rows[1][1] != nil {
		t.Fatalf("expected missing field to stay nil, got %v", table.Rows[1][1])
	}
}

func TestPrependNotificationEnforcesCap(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var list []Notification
	for i := 0; i < 150; i++ {
		at := now.Add(time.Duration(i) * time.Second)
		list = PrependNotification(list, Notification{ID: NewNotificationID(at), CreatedAt: at})
	}
	if len(list) != NotificationCap {
		t.Fatalf("expected %d notifications, got %d", NotificationCap, len(list))
	}
	if !list[0].CreatedAt.After(list[1].CreatedAt) {
		t.Fatalf("expected newest first ordering")
	}
	wantOldest := now.Add(50 * time.Second)
	if !list[len(list)-1].CreatedAt.Equal(wantOldest) {
		t.Fatalf("expected oldest kept %v, got %v", wantOldest, list[len(list)-1].CreatedAt)
	}
}
