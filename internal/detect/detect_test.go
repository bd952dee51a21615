package detect

import (
	"strings"
	"testing"
	"time"

	"dashsync/internal/clock"
	"dashsync/internal/domain"
)

func testTable(cells ...any) domain.Table {
	rows := make([][]any, 0, len(cells))
	for _, cell := range cells {
		rows = append(rows, []any{cell})
	}
	return domain.Table{Columns: []string{"v"}, Rows: rows}
}

func TestFingerprintDeterministic(t *testing.T) {
	t.Parallel()

	detector := New(clock.RealClock{}, nil)
	table := testTable("1", "2", "3")
	if detector.Fingerprint(table) != detector.Fingerprint(table) {
		t.Fatalf("expected stable fingerprint for identical table")
	}
}

func TestFingerprintSensitiveToOrderAndCells(t *testing.T) {
	t.Parallel()

	detector := New(clock.RealClock{}, nil)
	base := detector.Fingerprint(testTable("1", "2"))
	if detector.Fingerprint(testTable("2", "1")) == base {
		t.Fatalf("expected row order to change fingerprint")
	}
	if detector.Fingerprint(testTable("1", "3")) == base {
		t.Fatalf("expected cell change to change fingerprint")
	}
	renamed := domain.Table{Columns: []string{"w"}, Rows: [][]any{{"1"}, {"2"}}}
	if detector.Fingerprint(renamed) == base {
		t.Fatalf("expected column rename to change fingerprint")
	}
	// Cell boundaries matter: ["ab","c"] must differ from ["a","bc"].
	if detector.Fingerprint(testTable("ab", "c")) == detector.Fingerprint(testTable("a", "bc")) {
		t.Fatalf("expected cell boundaries to affect fingerprint")
	}
}

func TestFingerprintFallbackOnUnrenderableCell(t *testing.T) {
	t.Parallel()

	manual := clock.NewManual(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	detector := New(manual, nil)
	table := domain.Table{Columns: []string{"v"}, Rows: [][]any{{make(chan int)}}}
	got := detector.Fingerprint(table)
	if !strings.HasPrefix(got, "fetch_") {
		t.Fatalf("expected timestamp fallback, got %q", got)
	}
	if !detector.HasChanged("previous", got) {
		t.Fatalf("expected fallback fingerprint to count as changed")
	}
}

func TestHasChanged(t *testing.T) {
	t.Parallel()

	detector := New(clock.RealClock{}, nil)
	print1 := detector.Fingerprint(testTable("1"))
	if !detector.HasChanged("", print1) {
		t.Fatalf("expected first sync to count as changed")
	}
	if detector.HasChanged(print1, print1) {
		t.Fatalf("expected identical fingerprints to count as unchanged")
	}
	if !detector.HasChanged(print1, detector.Fingerprint(testTable("2"))) {
		t.Fatalf("expected different fingerprints to count as changed")
	}
}
