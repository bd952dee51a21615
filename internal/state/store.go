package state

import (
	"dashsync/internal/domain"
)

// Store persists sync targets, alert rules, notifications, and audit artifacts.
// Params: none.
// Returns: durable persistence contract used by the manager.
//
// Collection saves follow a whole-collection rewrite contract: the caller
// passes the complete map after every mutation. The store does not lock;
// the manager serializes read-modify-write cycles.
type Store interface {
	LoadTargets() (map[string]domain.SyncTarget, error)
	SaveTargets(targets map[string]domain.SyncTarget) error
	LoadRules() (map[string]domain.AlertRule, error)
	SaveRules(rules map[string]domain.AlertRule) error
	LoadNotifications(owner string) ([]domain.Notification, error)
	SaveNotifications(owner string, list []domain.Notification) error
	AppendAlertLog(fired domain.FiredAlert) error
	SaveDataset(owner string, table domain.Table) error
}
