package domain

import (
	"fmt"
	"time"
)

// FiredAlert is the event record produced when a rule condition holds.
// Params: rule identity, trigger instant, bounded samples, and a human detail line.
// Returns: ephemeral fired-alert record, logged but not stored as an entity.
type FiredAlert struct {
	RuleID        string        `json:"rule_id"`
	RuleName      string        `json:"rule_name"`
	Owner         string        `json:"owner"`
	ConditionKind ConditionKind `json:"condition_kind"`
	Column        string        `json:"column"`
	TriggeredAt   time.Time     `json:"triggered_at"`
	Samples       []float64     `json:"samples"`
	RowCount      int           `json:"row_count"`
	Detail        string        `json:"detail"`
}

// NotificationCap bounds the per-owner in-app notification list.
const NotificationCap = 100

// Notification is one in-app message shown to a single owner.
// Params: identity, display fields, creation time, and read marker.
// Returns: durable per-owner notification record.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

// NewNotificationID builds a notification identifier from its creation time.
// Params: creation instant.
// Returns: identifier with second and microsecond components.
func NewNotificationID(now time.Time) string {
	return fmt.Sprintf("notif_%s_%06d", now.Format("20060102_150405"), now.Nanosecond()/1000)
}

// PrependNotification inserts the newest notification first and enforces the cap.
// Params: existing list (newest first) and the new record.
// Returns: updated list truncated to NotificationCap entries.
func PrependNotification(list []Notification, item Notification) []Notification {
	updated := make([]Notification, 0, len(list)+1)
	updated = append(updated, item)
	updated = append(updated, list...)
	if len(updated) > NotificationCap {
		updated = updated[:NotificationCap]
	}
	return updated
}
