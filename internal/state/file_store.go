package state

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dashsync/internal/domain"
)

const (
	targetsFile      = "sync_targets.json"
	rulesFile        = "alert_rules.json"
	notificationsDir = "notifications"
	alertLogsDir     = "alert_logs"
	datasetsDir      = "datasets"
)

// FileStore persists collections as JSON documents under one data directory.
// Params: root directory and logger for corruption recovery records.
// Returns: durable store with atomic whole-collection rewrites.
type FileStore struct {
	root   string
	logger *slog.Logger
}

// NewFileStore creates a file-backed store rooted at dir.
// Params: data directory path and logger.
// Returns: store handle or directory creation error.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	for _, sub := range []string{"", notificationsDir, alertLogsDir, datasetsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir %q: %w", filepath.Join(dir, sub), err)
		}
	}
	return &FileStore{root: dir, logger: logger}, nil
}

// LoadTargets reads the sync target collection.
// Params: none.
// Returns: targets keyed by id; missing or malformed file loads as empty.
func (s *FileStore) LoadTargets() (map[string]domain.SyncTarget, error) {
	targets := make(map[string]domain.SyncTarget)
	s.loadCollection(targetsFile, &targets)
	return targets, nil
}

// SaveTargets rewrites the sync target collection.
// Params: complete target map.
// Returns: serialization or write error.
func (s *FileStore) SaveTargets(targets map[string]domain.SyncTarget) error {
	return s.saveCollection(targetsFile, targets)
}

// LoadRules reads the alert rule collection.
// Params: none.
// Returns: rules keyed by id; missing or malformed file loads as empty.
func (s *FileStore) LoadRules() (map[string]domain.AlertRule, error) {
	rules := make(map[string]domain.AlertRule)
	s.loadCollection(rulesFile, &rules)
	return rules, nil
}

// SaveRules rewrites the alert rule collection.
// Params: complete rule map.
// Returns: serialization or write error.
func (s *FileStore) SaveRules(rules map[string]domain.AlertRule) error {
	return s.saveCollection(rulesFile, rules)
}

// LoadNotifications reads one owner's notification list.
// Params: owner identifier.
// Returns: notifications newest first; missing or malformed file loads as empty.
func (s *FileStore) LoadNotifications(owner string) ([]domain.Notification, error) {
	var list []domain.Notification
	s.loadCollection(filepath.Join(notificationsDir, sanitizeName(owner)+".json"), &list)
	return list, nil
}

// SaveNotifications rewrites one owner's notification list.
// Params: owner identifier and complete list.
// Returns: serialization or write error.
func (s *FileStore) SaveNotifications(owner string, list []domain.Notification) error {
	return s.saveCollection(filepath.Join(notificationsDir, sanitizeName(owner)+".json"), list)
}

// AppendAlertLog appends one fired alert to the rule's daily audit log.
// Params: fired alert record.
// Returns: append error. The log is JSON lines, one file per rule per day.
func (s *FileStore) AppendAlertLog(fired domain.FiredAlert) error {
	name := fmt.Sprintf("%s_%s.jsonl", sanitizeName(fired.RuleID), fired.TriggeredAt.Format("20060102"))
	path := filepath.Join(s.root, alertLogsDir, name)
	body, err := json.Marshal(fired)
	if err != nil {
		return fmt.Errorf("marshal alert log entry: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open alert log %q: %w", path, err)
	}
	defer file.Close()
	if _, err := file.Write(append(body, '\n')); err != nil {
		return fmt.Errorf("append alert log %q: %w", path, err)
	}
	return nil
}

// SaveDataset writes one owner's current working dataset as CSV.
// Params: owner identifier and dataset snapshot.
// Returns: write error. The write is atomic so UI readers never see a partial file.
func (s *FileStore) SaveDataset(owner string, table domain.Table) error {
	var builder strings.Builder
	writer := csv.NewWriter(&builder)
	if err := writer.Write(table.Columns); err != nil {
		return fmt.Errorf("encode dataset header: %w", err)
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				rendered, err := domain.RenderCell(row[i])
				if err != nil {
					rendered = fmt.Sprint(row[i])
				}
				record[i] = rendered
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("encode dataset row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	path := filepath.Join(s.root, datasetsDir, sanitizeName(owner)+".csv")
	return atomicWrite(path, []byte(builder.String()))
}

// loadCollection decodes one JSON document, recovering from corruption.
// Params: relative path and destination pointer.
// Returns: destination left untouched on missing or malformed file.
func (s *FileStore) loadCollection(relative string, dst any) {
	path := filepath.Join(s.root, relative)
	body, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) && s.logger != nil {
			s.logger.Warn("store file unreadable, starting empty", "path", path, "error", err.Error())
		}
		return
	}
	if err := json.Unmarshal(body, dst); err != nil {
		if s.logger != nil {
			s.logger.Warn("store file malformed, starting empty", "path", path, "error", err.Error())
		}
	}
}

// saveCollection rewrites one JSON document atomically.
// Params: relative path and collection value.
// Returns: serialization or write error.
func (s *FileStore) saveCollection(relative string, value any) error {
	body, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %q: %w", relative, err)
	}
	return atomicWrite(filepath.Join(s.root, relative), body)
}

// atomicWrite writes bytes to a temp file and renames it over the target.
// Params: destination path and body.
// Returns: write or rename error.
func atomicWrite(path string, body []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %q: %w", path, err)
	}
	return nil
}

// sanitizeName strips path-hostile characters from identifiers used in filenames.
// Params: raw identifier.
// Returns: safe filename fragment.
func sanitizeName(raw string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_")
	cleaned := replacer.Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}
