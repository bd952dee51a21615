package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"dashsync/internal/alertstream"
	"dashsync/internal/clock"
	"dashsync/internal/detect"
	"dashsync/internal/domain"
	"dashsync/internal/evaluate"
	"dashsync/internal/msgfmt"
	"dashsync/internal/notify"
	"dashsync/internal/state"
)

// SourceFetcher retrieves one tabular snapshot from a sync target source.
// Params: context and target descriptor.
// Returns: fetched table or classified fetch error.
type SourceFetcher interface {
	Fetch(ctx context.Context, target domain.SyncTarget) (domain.Table, error)
}

// Manager coordinates target polling, change detection, rule evaluation,
// and notification delivery over the persistent store.
// Params: runtime components built by the service layer.
// Returns: operations API and scheduler entrypoint.
type Manager struct {
	mu      sync.RWMutex
	targets map[string]domain.SyncTarget
	rules   map[string]domain.AlertRule

	notifMu sync.Mutex

	store      state.Store
	fetcher    SourceFetcher
	detector   *detect.Detector
	evaluator  *evaluate.Evaluator
	dispatcher *notify.Dispatcher
	events     alertstream.Publisher
	clock      clock.Clock
	logger     *slog.Logger

	tick    time.Duration
	backoff time.Duration

	loopMu     sync.Mutex
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// ManagerDeps bundles manager construction dependencies.
// Params: store, fetcher, detector, evaluator, dispatcher, event publisher,
// clock, logger, and loop timing.
// Returns: construction input for NewManager.
type ManagerDeps struct {
	Store      state.Store
	Fetcher    SourceFetcher
	Detector   *detect.Detector
	Evaluator  *evaluate.Evaluator
	Dispatcher *notify.Dispatcher
	Events     alertstream.Publisher
	Clock      clock.Clock
	Logger     *slog.Logger
	Tick       time.Duration
	Backoff    time.Duration
}

// NewManager creates a manager and restores persisted targets and rules.
// Params: dependency bundle.
// Returns: initialized manager or load error.
func NewManager(deps ManagerDeps) (*Manager, error) {
	targets, err := deps.Store.LoadTargets()
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}
	rules, err := deps.Store.LoadRules()
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	events := deps.Events
	if events == nil {
		events = alertstream.Noop{}
	}
	return &Manager{
		targets:    targets,
		rules:      rules,
		store:      deps.Store,
		fetcher:    deps.Fetcher,
		detector:   deps.Detector,
		evaluator:  deps.Evaluator,
		dispatcher: deps.Dispatcher,
		events:     events,
		clock:      deps.Clock,
		logger:     deps.Logger,
		tick:       deps.Tick,
		backoff:    deps.Backoff,
	}, nil
}

// RegisterSyncTarget creates and persists one sync target.
// Params: owner, source kind, and connection settings.
// Returns: new target id or validation/persistence error.
func (m *Manager) RegisterSyncTarget(owner string, kind domain.SourceKind, conn domain.Connection) (string, error) {
	if strings.TrimSpace(owner) == "" {
		return "", fmt.Errorf("target owner is required")
	}
	if conn.PollIntervalSeconds < 1 {
		return "", fmt.Errorf("poll_interval_seconds must be at least 1")
	}
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	id := domain.NewTargetID(owner, kind, now)
	target := domain.SyncTarget{
		ID:         id,
		Owner:      owner,
		Kind:       kind,
		Connection: conn,
		Active:     true,
	}
	m.targets[id] = target
	if err := m.store.SaveTargets(m.targets); err != nil {
		delete(m.targets, id)
		return "", fmt.Errorf("save targets: %w", err)
	}
	m.logger.Info("sync target registered", "target", id, "kind", string(kind), "owner", owner)
	return id, nil
}

// ToggleSyncTarget switches one target's active flag.
// Params: target id and desired active state.
// Returns: false when the target does not exist.
func (m *Manager) ToggleSyncTarget(id string, active bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.targets[id]
	if !ok {
		return false
	}
	target.Active = active
	m.targets[id] = target
	if err := m.store.SaveTargets(m.targets); err != nil {
		m.logger.Error("save targets failed", "target", id, "error", err.Error())
	}
	m.logger.Info("sync target toggled", "target", id, "active", active)
	return true
}

// RegisterAlertRule creates and persists one alert rule.
// Params: owner, dashboard id, and validated rule spec.
// Returns: new rule id or validation/persistence error.
func (m *Manager) RegisterAlertRule(owner, dashboardID string, spec domain.RuleSpec) (string, error) {
	if strings.TrimSpace(owner) == "" {
		return "", fmt.Errorf("rule owner is required")
	}
	if strings.TrimSpace(dashboardID) == "" {
		return "", fmt.Errorf("rule dashboard id is required")
	}
	if err := spec.Validate(); err != nil {
		return "", err
	}
	if spec.NotifyAddress != "" && !notify.ValidAddress(spec.NotifyAddress) {
		return "", fmt.Errorf("notify address %q is not a valid email address", spec.NotifyAddress)
	}
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	id := domain.NewRuleID(owner, dashboardID, now)
	rule := domain.AlertRule{
		ID:            id,
		Owner:         owner,
		DashboardID:   dashboardID,
		Name:          spec.Name,
		Column:        spec.Column,
		Condition:     spec.Condition,
		NotifyAddress: spec.NotifyAddress,
		Active:        true,
	}
	m.rules[id] = rule
	if err := m.store.SaveRules(m.rules); err != nil {
		delete(m.rules, id)
		return "", fmt.Errorf("save rules: %w", err)
	}
	m.logger.Info("alert rule registered", "rule", id, "name", spec.Name, "column", spec.Column)
	return id, nil
}

// ToggleAlertRule switches one rule's active flag.
// Params: rule id and desired active state.
// Returns: false when the rule does not exist.
func (m *Manager) ToggleAlertRule(id string, active bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	if !ok {
		return false
	}
	rule.Active = active
	m.rules[id] = rule
	if err := m.store.SaveRules(m.rules); err != nil {
		m.logger.Error("save rules failed", "rule", id, "error", err.Error())
	}
	m.logger.Info("alert rule toggled", "rule", id, "active", active)
	return true
}

// DeleteAlertRule removes one rule permanently.
// Params: rule id.
// Returns: false when the rule does not exist.
func (m *Manager) DeleteAlertRule(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	if !ok {
		return false
	}
	delete(m.rules, id)
	if err := m.store.SaveRules(m.rules); err != nil {
		m.rules[id] = rule
		m.logger.Error("save rules failed", "rule", id, "error", err.Error())
		return false
	}
	m.logger.Info("alert rule deleted", "rule", id)
	return true
}

// ListAlertRules returns one owner's rules sorted by id.
// Params: owner.
// Returns: rule copies in deterministic order.
func (m *Manager) ListAlertRules(owner string) []domain.AlertRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]domain.AlertRule, 0, len(m.rules))
	for _, rule := range m.rules {
		if rule.Owner == owner {
			list = append(list, rule)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// SyncStatus summarizes one owner's active targets.
// Params: owner.
// Returns: active count, newest completed sync, and earliest upcoming sync.
func (m *Manager) SyncStatus(owner string) domain.SyncStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var status domain.SyncStatus
	for _, target := range m.targets {
		if target.Owner != owner || !target.Active {
			continue
		}
		status.ActiveTargets++
		if target.LastSyncedAt != nil {
			if status.LastSync == nil || target.LastSyncedAt.After(*status.LastSync) {
				last := *target.LastSyncedAt
				status.LastSync = &last
			}
			next := target.NextDue()
			if status.NextSync == nil || next.Before(*status.NextSync) {
				status.NextSync = &next
			}
		}
	}
	return status
}

// ListNotifications returns one owner's notifications newest first.
// Params: owner and unread-only filter.
// Returns: notification list or store error.
func (m *Manager) ListNotifications(owner string, unreadOnly bool) ([]domain.Notification, error) {
	m.notifMu.Lock()
	defer m.notifMu.Unlock()
	list, err := m.store.LoadNotifications(owner)
	if err != nil {
		return nil, err
	}
	if !unreadOnly {
		return list, nil
	}
	unread := make([]domain.Notification, 0, len(list))
	for _, item := range list {
		if !item.Read {
			unread = append(unread, item)
		}
	}
	return unread, nil
}

// MarkNotificationRead marks one notification as read for an owner.
// Params: owner and notification id.
// Returns: false when the id is unknown, error on store failure.
func (m *Manager) MarkNotificationRead(owner, id string) (bool, error) {
	m.notifMu.Lock()
	defer m.notifMu.Unlock()
	list, err := m.store.LoadNotifications(owner)
	if err != nil {
		return false, err
	}
	for i := range list {
		if list[i].ID != id {
			continue
		}
		if list[i].Read {
			return true, nil
		}
		list[i].Read = true
		if err := m.store.SaveNotifications(owner, list); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// SetDispatcher installs the notification dispatcher after construction.
// The dispatcher writes notifications through the manager itself, so it is
// built second and attached here.
// Params: dispatcher built from runtime notify components.
// Returns: dispatcher reference swapped under lock.
func (m *Manager) SetDispatcher(dispatcher *notify.Dispatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatcher = dispatcher
}

// StartScheduler launches the polling loop. Idempotent.
// Params: none.
// Returns: loop goroutine running until StopScheduler.
func (m *Manager) StartScheduler() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.loopCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.loopCancel = cancel
	m.loopDone = done
	go m.run(ctx, done)
	m.logger.Info("scheduler started", "tick", m.tick.String())
}

// StopScheduler stops the polling loop and waits for it to exit. Idempotent.
// Params: none.
// Returns: after the loop goroutine has finished.
func (m *Manager) StopScheduler() {
	m.loopMu.Lock()
	cancel := m.loopCancel
	done := m.loopDone
	m.loopCancel = nil
	m.loopDone = nil
	m.loopMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Info("scheduler stopped")
}

// run drives periodic ticks until the context is cancelled.
// Params: loop context and completion channel.
// Returns: closes done on exit.
func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.safeTick(ctx); err != nil {
				m.logger.Error("sync tick failed", "error", err.Error(), "backoff", m.backoff.String())
				select {
				case <-ctx.Done():
					return
				case <-time.After(m.backoff):
				}
			}
		}
	}
}

// safeTick runs one tick and converts loop panics into errors.
// Params: loop context.
// Returns: tick panic as error, nil otherwise.
func (m *Manager) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	m.RunTick(ctx)
	return nil
}

// RunTick synchronizes every due active target once.
// Params: context for fetch and store operations.
// Returns: per-target failures are logged, never propagated.
func (m *Manager) RunTick(ctx context.Context) {
	now := m.clock.Now()

	m.mu.RLock()
	due := make([]string, 0, len(m.targets))
	for id, target := range m.targets {
		if target.Active && target.Due(now) {
			due = append(due, id)
		}
	}
	m.mu.RUnlock()
	sort.Strings(due)

	for _, id := range due {
		m.syncTarget(ctx, id)
	}
}

// syncTarget fetches one target, detects changes, and evaluates rules.
// Params: context and target id.
// Returns: failures logged; cursor advances only after a successful fetch.
func (m *Manager) syncTarget(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("target sync panicked", "target", id, "panic", fmt.Sprint(r))
		}
	}()

	m.mu.RLock()
	target, ok := m.targets[id]
	m.mu.RUnlock()
	if !ok || !target.Active {
		return
	}

	table, err := m.fetcher.Fetch(ctx, target)
	if err != nil {
		m.logger.Error("target fetch failed", "target", id, "kind", string(target.Kind), "error", err.Error())
		return
	}

	now := m.clock.Now()
	fingerprint := m.detector.Fingerprint(table)
	changed := m.detector.HasChanged(target.Fingerprint, fingerprint)

	m.mu.Lock()
	current, ok := m.targets[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	syncedAt := now
	current.LastSyncedAt = &syncedAt
	if changed {
		current.Fingerprint = fingerprint
	}
	m.targets[id] = current
	if err := m.store.SaveTargets(m.targets); err != nil {
		m.logger.Error("save targets failed", "target", id, "error", err.Error())
	}
	m.mu.Unlock()

	if !changed {
		m.logger.Debug("target unchanged", "target", id)
		return
	}
	m.logger.Info("target dataset changed", "target", id, "rows", table.RowCount())

	if err := m.store.SaveDataset(current.Owner, table); err != nil {
		m.logger.Error("save dataset failed", "target", id, "error", err.Error())
	}
	m.evaluateOwnerRules(ctx, current.Owner, table, now)
}

// evaluateOwnerRules runs the owner's active rules over a changed dataset.
// Params: context, dataset owner, fetched table, and evaluation instant.
// Returns: fired alerts dispatched, trigger bookkeeping persisted.
func (m *Manager) evaluateOwnerRules(ctx context.Context, owner string, table domain.Table, now time.Time) {
	m.mu.Lock()
	candidates := make([]*domain.AlertRule, 0, len(m.rules))
	for id := range m.rules {
		rule := m.rules[id]
		if rule.Owner != owner {
			continue
		}
		copied := rule
		candidates = append(candidates, &copied)
	}
	m.mu.Unlock()
	if len(candidates) == 0 {
		return
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	fired := m.evaluator.Evaluate(candidates, table, now)
	if len(fired) == 0 {
		return
	}

	m.mu.Lock()
	for _, rule := range candidates {
		stored, ok := m.rules[rule.ID]
		if !ok {
			continue
		}
		stored.TriggerCount = rule.TriggerCount
		stored.LastTriggeredAt = rule.LastTriggeredAt
		m.rules[rule.ID] = stored
	}
	if err := m.store.SaveRules(m.rules); err != nil {
		m.logger.Error("save rules failed", "owner", owner, "error", err.Error())
	}
	ruleByID := make(map[string]domain.AlertRule, len(fired))
	for _, alert := range fired {
		if rule, ok := m.rules[alert.RuleID]; ok {
			ruleByID[alert.RuleID] = rule
		}
	}
	dispatcher := m.dispatcher
	m.mu.Unlock()

	for _, alert := range fired {
		rule, ok := ruleByID[alert.RuleID]
		if !ok {
			continue
		}
		dispatcher.Dispatch(ctx, alert, rule)
		if err := m.store.AppendAlertLog(alert); err != nil {
			m.logger.Error("append alert log failed", "rule", alert.RuleID, "error", err.Error())
		}
		if err := m.events.Publish(ctx, alert); err != nil {
			m.logger.Error("alert event publish failed", "rule", alert.RuleID, "error", err.Error())
		}
	}
}

// WriteNotification records one in-app notification for the alert's owner.
// Params: fired alert.
// Returns: store error when the notification cannot be persisted.
func (m *Manager) WriteNotification(fired domain.FiredAlert) error {
	m.notifMu.Lock()
	defer m.notifMu.Unlock()
	list, err := m.store.LoadNotifications(fired.Owner)
	if err != nil {
		return err
	}
	now := m.clock.Now()
	item := domain.Notification{
		ID:        domain.NewNotificationID(now),
		Title:     msgfmt.NotificationTitle(fired),
		Message:   msgfmt.NotificationBody(fired),
		Type:      "alert",
		CreatedAt: now,
	}
	return m.store.SaveNotifications(fired.Owner, domain.PrependNotification(list, item))
}
