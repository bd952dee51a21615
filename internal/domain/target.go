package domain

import (
	"fmt"
	"strings"
	"time"
)

// SourceKind identifies one supported external data source family.
// Params: none.
// Returns: closed set of sync source kinds.
type SourceKind string

const (
	// SourceSpreadsheet polls a shared spreadsheet export endpoint.
	SourceSpreadsheet SourceKind = "spreadsheet"
	// SourceRESTAPI polls a JSON REST endpoint.
	SourceRESTAPI SourceKind = "rest_api"
	// SourceSQL polls a SQL query result.
	SourceSQL SourceKind = "sql"
)

// ParseSourceKind validates a raw source kind string.
// Params: raw kind value from API or storage.
// Returns: normalized kind or error for unknown values.
func ParseSourceKind(raw string) (SourceKind, error) {
	switch SourceKind(strings.TrimSpace(raw)) {
	case SourceSpreadsheet:
		return SourceSpreadsheet, nil
	case SourceRESTAPI:
		return SourceRESTAPI, nil
	case SourceSQL:
		return SourceSQL, nil
	default:
		return "", fmt.Errorf("unknown source kind %q", raw)
	}
}

// SQLDialect selects the SQL driver used for a sql source.
// Params: none.
// Returns: closed set of supported dialects.
type SQLDialect string

const (
	// DialectMySQL selects the MySQL driver.
	DialectMySQL SQLDialect = "mysql"
	// DialectPostgres selects the PostgreSQL driver.
	DialectPostgres SQLDialect = "postgres"
	// DialectSQLite selects the embedded SQLite driver.
	DialectSQLite SQLDialect = "sqlite"
)

// Connection holds kind-specific source settings for one sync target.
// Params: URL for spreadsheet/REST kinds, dialect plus DSN fields and query for sql kind.
// Returns: connection descriptor persisted with the target.
type Connection struct {
	URL                 string     `json:"url,omitempty"`
	Query               string     `json:"query,omitempty"`
	Dialect             SQLDialect `json:"dialect,omitempty"`
	Host                string     `json:"host,omitempty"`
	Port                int        `json:"port,omitempty"`
	User                string     `json:"user,omitempty"`
	Password            string     `json:"password,omitempty"`
	Database            string     `json:"database,omitempty"`
	PollIntervalSeconds int        `json:"poll_interval_seconds"`
}

// SyncTarget is one configured external source polled on an interval.
// Params: identity, owner, source settings, and scheduler cursor fields.
// Returns: durable sync target record.
type SyncTarget struct {
	ID           string     `json:"id"`
	Owner        string     `json:"owner"`
	Kind         SourceKind `json:"kind"`
	Connection   Connection `json:"connection"`
	Active       bool       `json:"active"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	Fingerprint  string     `json:"fingerprint,omitempty"`
}

// PollInterval returns the effective poll interval, never below one second.
// Params: none.
// Returns: poll interval duration.
func (t SyncTarget) PollInterval() time.Duration {
	seconds := t.Connection.PollIntervalSeconds
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

// Due reports whether the target should be fetched at the given instant.
// Params: current time.
// Returns: true when never synced or the poll interval has elapsed.
func (t SyncTarget) Due(now time.Time) bool {
	if t.LastSyncedAt == nil {
		return true
	}
	return now.Sub(*t.LastSyncedAt) >= t.PollInterval()
}

// NextDue returns the earliest instant the target becomes due again.
// Params: none.
// Returns: next due time, zero when never synced.
func (t SyncTarget) NextDue() time.Time {
	if t.LastSyncedAt == nil {
		return time.Time{}
	}
	return t.LastSyncedAt.Add(t.PollInterval())
}

// SyncStatus summarizes one owner's active targets for the status endpoint.
// Params: none.
// Returns: active count plus newest sync and earliest upcoming sync instants.
type SyncStatus struct {
	ActiveTargets int        `json:"active_targets"`
	LastSync      *time.Time `json:"last_sync,omitempty"`
	NextSync      *time.Time `json:"next_sync,omitempty"`
}

// NewTargetID builds a sync target identifier from owner, kind, and creation time.
// Params: owner, source kind, and creation instant.
// Returns: identifier in owner_kind_timestamp form.
func NewTargetID(owner string, kind SourceKind, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s", owner, kind, now.Format("20060102_150405"))
}
