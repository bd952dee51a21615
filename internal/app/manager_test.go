package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dashsync/internal/clock"
	"dashsync/internal/detect"
	"dashsync/internal/domain"
	"dashsync/internal/evaluate"
	"dashsync/internal/fetch"
	"dashsync/internal/notify"
	"dashsync/internal/state"
)

type scriptedFetcher struct {
	tables map[string]domain.Table
	errs   map[string]error
	calls  map[string]int
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		tables: make(map[string]domain.Table),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *scriptedFetcher) Fetch(_ context.Context, target domain.SyncTarget) (domain.Table, error) {
	f.calls[target.ID]++
	if err := f.errs[target.ID]; err != nil {
		return domain.Table{}, err
	}
	return f.tables[target.ID], nil
}

func newTestManager(t *testing.T, fetcher SourceFetcher) (*Manager, *state.MemoryStore, *clock.Manual) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manual := clock.NewManual(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	store := state.NewMemoryStore()
	manager, err := NewManager(ManagerDeps{
		Store:     store,
		Fetcher:   fetcher,
		Detector:  detect.New(manual, logger),
		Evaluator: evaluate.New(logger),
		Clock:     manual,
		Logger:    logger,
		Tick:      10 * time.Second,
		Backoff:   30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	manager.SetDispatcher(notify.NewDispatcher(manager, notify.NewSMTPSender(notify.SMTPConfig{}, logger), logger))
	return manager, store, manual
}

func salesTable(values ...any) domain.Table {
	rows := make([][]any, 0, len(values))
	for _, value := range values {
		rows = append(rows, []any{value})
	}
	return domain.Table{Columns: []string{"sales"}, Rows: rows}
}

func registerRestTarget(t *testing.T, manager *Manager, owner string) string {
	t.Helper()
	id, err := manager.RegisterSyncTarget(owner, domain.SourceRESTAPI, domain.Connection{
		URL:                 "http://example.test/data",
		PollIntervalSeconds: 30,
	})
	if err != nil {
		t.Fatalf("register target: %v", err)
	}
	return id
}

func registerThresholdRule(t *testing.T, manager *Manager, owner string, value float64) string {
	t.Helper()
	id, err := manager.RegisterAlertRule(owner, "dash1", domain.RuleSpec{
		Name:      "high sales",
		Column:    "sales",
		Condition: domain.ThresholdCondition{Operator: domain.OpGreaterThan, Value: value},
	})
	if err != nil {
		t.Fatalf("register rule: %v", err)
	}
	return id
}

func TestRegisterSyncTargetValidation(t *testing.T) {
	t.Parallel()
	manager, _, _ := newTestManager(t, newScriptedFetcher())

	if _, err := manager.RegisterSyncTarget("", domain.SourceRESTAPI, domain.Connection{PollIntervalSeconds: 30}); err == nil {
		t.Fatal("expected error for empty owner")
	}
	if _, err := manager.RegisterSyncTarget("ops", domain.SourceRESTAPI, domain.Connection{PollIntervalSeconds: 0}); err == nil {
		t.Fatal("expected error for zero poll interval")
	}
}

func TestRegisterAlertRuleRejectsInvalidAddress(t *testing.T) {
	t.Parallel()
	manager, _, _ := newTestManager(t, newScriptedFetcher())

	_, err := manager.RegisterAlertRule("ops", "dash1", domain.RuleSpec{
		Name:          "high sales",
		Column:        "sales",
		Condition:     domain.ThresholdCondition{Operator: domain.OpGreaterThan, Value: 10},
		NotifyAddress: "not-an-address",
	})
	if err == nil {
		t.Fatal("expected error for invalid notify address")
	}
}

func TestTickFiresThresholdRuleAndWritesNotification(t *testing.T) {
	t.Parallel()
	fetcher := newScriptedFetcher()
	manager, store, _ := newTestManager(t, fetcher)

	targetID := registerRestTarget(t, manager, "ops")
	ruleID := registerThresholdRule(t, manager, "ops", 10)
	fetcher.tables[targetID] = salesTable(5, 12)

	manager.RunTick(context.Background())

	logs := store.AlertLogs()
	if len(logs) != 1 {
		t.Fatalf("expected 1 fired alert, got %d", len(logs))
	}
	if logs[0].RuleID != ruleID || logs[0].ConditionKind != domain.ConditionThreshold {
		t.Fatalf("unexpected fired alert %+v", logs[0])
	}
	if _, ok := store.Dataset("ops"); !ok {
		t.Fatal("expected dataset persisted for owner")
	}

	rules := manager.ListAlertRules("ops")
	if len(rules) != 1 || rules[0].TriggerCount != 1 {
		t.Fatalf("expected trigger count 1, got %+v", rules)
	}
	notifications, err := manager.ListNotifications("ops", false)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifications))
	}
	if notifications[0].Read {
		t.Fatal("expected new notification unread")
	}
}

func TestUnchangedDatasetSkipsEvaluation(t *testing.T) {
	t.Parallel()
	fetcher := newScriptedFetcher()
	manager, store, manual := newTestManager(t, fetcher)

	targetID := registerRestTarget(t, manager, "ops")
	registerThresholdRule(t, manager, "ops", 10)
	fetcher.tables[targetID] = salesTable(12)

	manager.RunTick(context.Background())
	manual.Advance(31 * time.Second)
	manager.RunTick(context.Background())

	if got := fetcher.calls[targetID]; got != 2 {
		t.Fatalf("expected 2 fetches, got %d", got)
	}
	if logs := store.AlertLogs(); len(logs) != 1 {
		t.Fatalf("expected 1 fired alert after identical refetch, got %d", len(logs))
	}
	rules := manager.ListAlertRules("ops")
	if rules[0].TriggerCount != 1 {
		t.Fatalf("expected trigger count 1, got %d", rules[0].TriggerCount)
	}
}

func TestTargetNotDueIsSkipped(t *testing.T) {
	t.Parallel()
	fetcher := newScriptedFetcher()
	manager, _, manual := newTestManager(t, fetcher)

	targetID := registerRestTarget(t, manager, "ops")
	fetcher.tables[targetID] = salesTable(1)

	manager.RunTick(context.Background())
	manual.Advance(10 * time.Second)
	manager.RunTick(context.Background())

	if got := fetcher.calls[targetID]; got != 1 {
		t.Fatalf("expected 1 fetch before interval elapses, got %d", got)
	}
}

func TestFailedFetchKeepsCursorAndIsolatesTargets(t *testing.T) {
	t.Parallel()
	fetcher := newScriptedFetcher()
	manager, store, _ := newTestManager(t, fetcher)

	badID, err := manager.RegisterSyncTarget("ops", domain.SourceRESTAPI, domain.Connection{
		URL:                 "http://bad.test/data",
		PollIntervalSeconds: 30,
	})
	if err != nil {
		t.Fatalf("register target: %v", err)
	}
	goodID := registerRestTarget(t, manager, "ops")
	registerThresholdRule(t, manager, "ops", 10)
	fetcher.errs[badID] = fmt.Errorf("connection refused")
	fetcher.tables[goodID] = salesTable(42)

	manager.RunTick(context.Background())

	targets, err := store.LoadTargets()
	if err != nil {
		t.Fatalf("load targets: %v", err)
	}
	if targets[badID].LastSyncedAt != nil {
		t.Fatal("expected failed target cursor untouched")
	}
	if targets[goodID].LastSyncedAt == nil {
		t.Fatal("expected successful target cursor advanced")
	}
	if targets[goodID].Fingerprint == "" {
		t.Fatal("expected fingerprint stored after change")
	}
	if logs := store.AlertLogs(); len(logs) != 1 {
		t.Fatalf("expected healthy target to fire, got %d alerts", len(logs))
	}
}

func TestInactiveTargetSkipped(t *testing.T) {
	t.Parallel()
	fetcher := newScriptedFetcher()
	manager, _, _ := newTestManager(t, fetcher)

	targetID := registerRestTarget(t, manager, "ops")
	fetcher.tables[targetID] = salesTable(1)
	if !manager.ToggleSyncTarget(targetID, false) {
		t.Fatal("expected toggle to succeed")
	}

	manager.RunTick(context.Background())
	if fetcher.calls[targetID] != 0 {
		t.Fatal("expected paused target to be skipped")
	}
}

func TestToggleUnknownIDs(t *testing.T) {
	t.Parallel()
	manager, _, _ := newTestManager(t, newScriptedFetcher())

	if manager.ToggleSyncTarget("missing", true) {
		t.Fatal("expected unknown target toggle to fail")
	}
	if manager.ToggleAlertRule("missing", true) {
		t.Fatal("expected unknown rule toggle to fail")
	}
	if manager.DeleteAlertRule("missing") {
		t.Fatal("expected unknown rule delete to fail")
	}
}

func TestInactiveRuleDoesNotFire(t *testing.T) {
	t.Parallel()
	fetcher := newScriptedFetcher()
	manager, store, _ := newTestManager(t, fetcher)

	targetID := registerRestTarget(t, manager, "ops")
	ruleID := registerThresholdRule(t, manager, "ops", 10)
	fetcher.tables[targetID] = salesTable(99)
	if !manager.ToggleAlertRule(ruleID, false) {
		t.Fatal("expected toggle to succeed")
	}

	manager.RunTick(context.Background())
	if logs := store.AlertLogs(); len(logs) != 0 {
		t.Fatalf("expected no alerts from paused rule, got %d", len(logs))
	}
}

func TestSyncStatusAggregates(t *testing.T) {
	t.Parallel()
	fetcher := newScriptedFetcher()
	manager, _, manual := newTestManager(t, fetcher)

	first := registerRestTarget(t, manager, "ops")
	manual.Advance(time.Second)
	second := registerRestTarget(t, manager, "ops")
	registerRestTarget(t, manager, "other")
	fetcher.tables[first] = salesTable(1)
	fetcher.tables[second] = salesTable(2)

	manager.RunTick(context.Background())

	status := manager.SyncStatus("ops")
	if status.ActiveTargets != 2 {
		t.Fatalf("expected 2 active targets, got %d", status.ActiveTargets)
	}
	if status.LastSync == nil || status.NextSync == nil {
		t.Fatalf("expected sync cursors set, got %+v", status)
	}
	if !status.NextSync.Equal(status.LastSync.Add(30 * time.Second)) {
		t.Fatalf("expected next sync one interval after last, got %+v", status)
	}
}

func TestNotificationWriteFailureDoesNotStopAlertLog(t *testing.T) {
	t.Parallel()
	fetcher := newScriptedFetcher()
	manager, store, _ := newTestManager(t, fetcher)

	targetID := registerRestTarget(t, manager, "ops")
	registerThresholdRule(t, manager, "ops", 10)
	fetcher.tables[targetID] = salesTable(50)
	store.FailNotifications = fmt.Errorf("disk full")

	manager.RunTick(context.Background())

	if logs := store.AlertLogs(); len(logs) != 1 {
		t.Fatalf("expected alert log despite notification failure, got %d", len(logs))
	}
}

func TestMarkNotificationRead(t *testing.T) {
	t.Parallel()
	fetcher := newScriptedFetcher()
	manager, _, _ := newTestManager(t, fetcher)

	targetID := registerRestTarget(t, manager, "ops")
	registerThresholdRule(t, manager, "ops", 10)
	fetcher.tables[targetID] = salesTable(50)
	manager.RunTick(context.Background())

	notifications, err := manager.ListNotifications("ops", true)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("expected 1 unread notification, got %d", len(notifications))
	}
	updated, err := manager.MarkNotificationRead("ops", notifications[0].ID)
	if err != nil || !updated {
		t.Fatalf("expected read update, got %v %v", updated, err)
	}
	remaining, err := manager.ListNotifications("ops", true)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no unread notifications, got %d", len(remaining))
	}
	if updated, _ := manager.MarkNotificationRead("ops", "notif_unknown"); updated {
		t.Fatal("expected unknown notification id to report false")
	}
}

func TestSchedulerStartStopIdempotent(t *testing.T) {
	t.Parallel()
	manager, _, _ := newTestManager(t, newScriptedFetcher())

	manager.StartScheduler()
	manager.StartScheduler()
	manager.StopScheduler()
	manager.StopScheduler()
}

func TestRealFetcherThroughManager(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`[{"sales": 5}, {"sales": 42}]`))
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager, store, _ := newTestManager(t, fetch.New(5*time.Second, logger))

	_, err := manager.RegisterSyncTarget("ops", domain.SourceRESTAPI, domain.Connection{
		URL:                 server.URL,
		PollIntervalSeconds: 30,
	})
	if err != nil {
		t.Fatalf("register target: %v", err)
	}
	registerThresholdRule(t, manager, "ops", 10)

	manager.RunTick(context.Background())

	logs := store.AlertLogs()
	if len(logs) != 1 {
		t.Fatalf("expected 1 fired alert from live fetch, got %d", len(logs))
	}
	if logs[0].RowCount != 2 {
		t.Fatalf("expected 2 rows in fired alert, got %d", logs[0].RowCount)
	}
}
