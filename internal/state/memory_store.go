package state

import (
	"sync"

	"dashsync/internal/domain"
)

// MemoryStore keeps all collections in process memory.
// Params: none.
// Returns: store used by tests and throwaway setups.
type MemoryStore struct {
	mu            sync.Mutex
	targets       map[string]domain.SyncTarget
	rules         map[string]domain.AlertRule
	notifications map[string][]domain.Notification
	alertLogs     []domain.FiredAlert
	datasets      map[string]domain.Table

	// FailNotifications forces SaveNotifications errors for dispatch isolation tests.
	FailNotifications error
}

// NewMemoryStore creates an empty in-memory store.
// Params: none.
// Returns: store instance.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		targets:       make(map[string]domain.SyncTarget),
		rules:         make(map[string]domain.AlertRule),
		notifications: make(map[string][]domain.Notification),
		datasets:      make(map[string]domain.Table),
	}
}

// LoadTargets returns a copy of the target collection.
// Params: none.
// Returns: targets keyed by id.
func (s *MemoryStore) LoadTargets() (map[string]domain.SyncTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTargets(s.targets), nil
}

// SaveTargets replaces the target collection.
// Params: complete target map.
// Returns: nil.
func (s *MemoryStore) SaveTargets(targets map[string]domain.SyncTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = copyTargets(targets)
	return nil
}

// LoadRules returns a copy of the rule collection.
// Params: none.
// Returns: rules keyed by id.
func (s *MemoryStore) LoadRules() (map[string]domain.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]domain.AlertRule, len(s.rules))
	for id, rule := range s.rules {
		copied[id] = rule
	}
	return copied, nil
}

// SaveRules replaces the rule collection.
// Params: complete rule map.
// Returns: nil.
func (s *MemoryStore) SaveRules(rules map[string]domain.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = make(map[string]domain.AlertRule, len(rules))
	for id, rule := range rules {
		s.rules[id] = rule
	}
	return nil
}

// LoadNotifications returns one owner's notification list.
// Params: owner identifier.
// Returns: stored list, newest first.
func (s *MemoryStore) LoadNotifications(owner string) ([]domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Notification(nil), s.notifications[owner]...), nil
}

// SaveNotifications replaces one owner's notification list.
// Params: owner identifier and complete list.
// Returns: FailNotifications when set.
func (s *MemoryStore) SaveNotifications(owner string, list []domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNotifications != nil {
		return s.FailNotifications
	}
	s.notifications[owner] = append([]domain.Notification(nil), list...)
	return nil
}

// AppendAlertLog records one fired alert.
// Params: fired alert record.
// Returns: nil.
func (s *MemoryStore) AppendAlertLog(fired domain.FiredAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertLogs = append(s.alertLogs, fired)
	return nil
}

// AlertLogs returns all recorded fired alerts.
// Params: none.
// Returns: copies in append order.
func (s *MemoryStore) AlertLogs() []domain.FiredAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.FiredAlert(nil), s.alertLogs...)
}

// SaveDataset stores one owner's working dataset.
// Params: owner identifier and snapshot.
// Returns: nil.
func (s *MemoryStore) SaveDataset(owner string, table domain.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[owner] = table
	return nil
}

// Dataset returns one owner's stored dataset.
// Params: owner identifier.
// Returns: snapshot and presence flag.
func (s *MemoryStore) Dataset(owner string) (domain.Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, ok := s.datasets[owner]
	return table, ok
}

// copyTargets clones a target map.
// Params: source map.
// Returns: independent copy.
func copyTargets(src map[string]domain.SyncTarget) map[string]domain.SyncTarget {
	copied := make(map[string]domain.SyncTarget, len(src))
	for id, target := range src {
		copied[id] = target
	}
	return copied
}
