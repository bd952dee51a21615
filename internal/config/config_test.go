package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config %s: %v", name, err)
	}
	return path
}

func TestFromCLIRequiresExactlyOneSource(t *testing.T) {
	t.Parallel()

	if _, err := FromCLI("", ""); err == nil {
		t.Fatalf("expected error for no source")
	}
	if _, err := FromCLI("a.toml", "dir"); err == nil {
		t.Fatalf("expected error for both sources")
	}
	src, err := FromCLI(" a.toml ", "")
	if err != nil || src.File != "a.toml" {
		t.Fatalf("expected trimmed file source, got %+v err=%v", src, err)
	}
}

func TestLoadSnapshotAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), "service.toml", `
[service]
data_dir = "/tmp/dashsync-test"
`)
	cfg, err := LoadSnapshot(ConfigSource{File: path})
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if cfg.Service.Name != "dashsync" || cfg.Service.TickSec != 10 || cfg.Service.BackoffSec != 30 {
		t.Fatalf("unexpected service defaults %+v", cfg.Service)
	}
	if !cfg.Log.Console.Enabled || cfg.Log.Console.Level != "info" {
		t.Fatalf("expected console sink enabled by default, got %+v", cfg.Log)
	}
	if cfg.Mail.Port != 587 || cfg.Mail.DialTimeoutSec != 10 {
		t.Fatalf("unexpected mail defaults %+v", cfg.Mail)
	}
	if cfg.Events.Subject != "dashsync.alerts" {
		t.Fatalf("unexpected events defaults %+v", cfg.Events)
	}
}

func TestLoadSnapshotValidation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, "bad.toml", `
[service]
tick_sec = 20
backoff_sec = 5
`)
	if _, err := LoadSnapshot(ConfigSource{File: path}); err == nil {
		t.Fatalf("expected backoff validation error")
	}

	path = writeConfig(t, dir, "mail.toml", `
[mail]
host = "smtp.example.test"
`)
	if _, err := LoadSnapshot(ConfigSource{File: path}); err == nil {
		t.Fatalf("expected mail.from validation error")
	}

	path = writeConfig(t, dir, "log.toml", `
[log.console]
enabled = true
level = "verbose"
`)
	if _, err := LoadSnapshot(ConfigSource{File: path}); err == nil {
		t.Fatalf("expected log level validation error")
	}
}

func TestLoadSnapshotMergesDirectoryFragments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, "10-service.toml", `
[service]
name = "dashsync-test"
tick_sec = 5
backoff_sec = 15
`)
	writeConfig(t, dir, "20-mail.toml", `
[mail]
host = "smtp.example.test"
from = "alerts@example.test"
`)
	cfg, err := LoadSnapshot(ConfigSource{Dir: dir})
	if err != nil {
		t.Fatalf("load dir snapshot: %v", err)
	}
	if cfg.Service.Name != "dashsync-test" || cfg.Service.TickSec != 5 {
		t.Fatalf("expected service fragment applied, got %+v", cfg.Service)
	}
	if cfg.Mail.Host != "smtp.example.test" {
		t.Fatalf("expected mail fragment applied, got %+v", cfg.Mail)
	}
}

func TestMailPasswordEnvOverride(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "mail.toml", `
[mail]
host = "smtp.example.test"
from = "alerts@example.test"
password = "from-file"
`)
	t.Setenv(MailPasswordEnv, "from-env")
	cfg, err := LoadSnapshot(ConfigSource{File: path})
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if cfg.Mail.Password != "from-env" {
		t.Fatalf("expected env password override, got %q", cfg.Mail.Password)
	}
}
