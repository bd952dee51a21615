package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dashsync/internal/domain"
)

func TestFileStoreTargetRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	syncedAt := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	target := domain.SyncTarget{
		ID: "u1_rest_api_20250203_040506", Owner: "u1", Kind: domain.SourceRESTAPI,
		Connection:   domain.Connection{URL: "http://example.test/data", PollIntervalSeconds: 30},
		Active:       true,
		LastSyncedAt: &syncedAt,
		Fingerprint:  "abc",
	}
	if err := store.SaveTargets(map[string]domain.SyncTarget{target.ID: target}); err != nil {
		t.Fatalf("save targets: %v", err)
	}
	loaded, err := store.LoadTargets()
	if err != nil {
		t.Fatalf("load targets: %v", err)
	}
	got, ok := loaded[target.ID]
	if !ok {
		t.Fatalf("expected target %q after reload", target.ID)
	}
	if got.Fingerprint != "abc" || got.LastSyncedAt == nil || !got.LastSyncedAt.Equal(syncedAt) {
		t.Fatalf("expected cursor fields to survive reload, got %+v", got)
	}
}

func TestFileStoreRuleConditionSurvivesReload(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	rule := domain.AlertRule{
		ID: "u1_main_20250203_040506", Owner: "u1", Name: "high sales", Column: "sales",
		Condition: domain.ThresholdCondition{Operator: domain.OpGreaterThan, Value: 10},
		Active:    true, TriggerCount: 3,
	}
	if err := store.SaveRules(map[string]domain.AlertRule{rule.ID: rule}); err != nil {
		t.Fatalf("save rules: %v", err)
	}
	loaded, err := store.LoadRules()
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	got := loaded[rule.ID]
	if got.Condition != rule.Condition || got.TriggerCount != 3 {
		t.Fatalf("expected rule to survive reload, got %+v", got)
	}
}

func TestFileStoreMalformedFileLoadsEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sync_targets.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	targets, err := store.LoadTargets()
	if err != nil {
		t.Fatalf("expected corruption to recover, got %v", err)
	}
	if len(targets) != 0 {
		t.Fatalf("expected empty collection, got %d entries", len(targets))
	}
}

func TestFileStoreMissingFilesLoadEmpty(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	rules, err := store.LoadRules()
	if err != nil || len(rules) != 0 {
		t.Fatalf("expected empty rules, got %d entries err=%v", len(rules), err)
	}
	list, err := store.LoadNotifications("nobody")
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty notifications, got %d entries err=%v", len(list), err)
	}
}

func TestFileStoreNotificationsPerOwner(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	now := time.Now().UTC()
	list := []domain.Notification{{ID: "notif_1", Title: "t", CreatedAt: now}}
	if err := store.SaveNotifications("alice", list); err != nil {
		t.Fatalf("save notifications: %v", err)
	}
	got, err := store.LoadNotifications("alice")
	if err != nil || len(got) != 1 || got[0].ID != "notif_1" {
		t.Fatalf("expected one notification for alice, got %v err=%v", got, err)
	}
	other, err := store.LoadNotifications("bob")
	if err != nil || len(other) != 0 {
		t.Fatalf("expected isolated owner lists, got %v err=%v", other, err)
	}
}

func TestFileStoreAlertLogAppends(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	at := time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC)
	fired := domain.FiredAlert{RuleID: "r1", Owner: "u1", TriggeredAt: at, Samples: []float64{15}}
	if err := store.AppendAlertLog(fired); err != nil {
		t.Fatalf("append alert log: %v", err)
	}
	if err := store.AppendAlertLog(fired); err != nil {
		t.Fatalf("append alert log again: %v", err)
	}
	body, err := os.ReadFile(filepath.Join(dir, "alert_logs", "r1_20250607.jsonl"))
	if err != nil {
		t.Fatalf("read alert log: %v", err)
	}
	if lines := strings.Count(string(body), "\n"); lines != 2 {
		t.Fatalf("expected 2 log lines, got %d", lines)
	}
}

func TestFileStoreDatasetWrittenAsCSV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	table := domain.Table{Columns: []string{"sales"}, Rows: [][]any{{5.0}, {12.0}}}
	if err := store.SaveDataset("alice", table); err != nil {
		t.Fatalf("save dataset: %v", err)
	}
	body, err := os.ReadFile(filepath.Join(dir, "datasets", "alice.csv"))
	if err != nil {
		t.Fatalf("read dataset: %v", err)
	}
	want := "sales\n5\n12\n"
	if string(body) != want {
		t.Fatalf("expected %q, got %q", want, string(body))
	}
}
