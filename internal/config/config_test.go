package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

const validYAML = `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./contestalert.db
mail:
  domain: mg.example.com
  from: alerts@example.com
scheduler:
  tick_interval: 60s
  refresh_spec: "@hourly"
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", validYAML)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Scheduler.TickInterval != "60s" {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestLoadJSONStrict(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json",
		`{"logging":{"console":true},"storage":{"driver":"memory"},"mail":{"domain":"d","from":"f"},"scheduler":{},"unknown_section":{}}`)
	if _, err := m.Load(); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestValidateDefaults(t *testing.T) {
	t.Parallel()
	cfg := &Config{Mail: MailConfig{Domain: "mg.example.com", From: "alerts@example.com"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate with defaults: %v", err)
	}
}

func TestValidateRejectsWideTick(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Mail:      MailConfig{Domain: "d", From: "f"},
		Scheduler: SchedulerConfig{TickInterval: "5m", Tolerance: "60s"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected wide tick interval to be rejected")
	}
	if !strings.Contains(err.Error(), "band width") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsMissingMail(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing mail identity to be rejected")
	}
}

func TestSchedulerCadence(t *testing.T) {
	t.Parallel()
	tick, lead, tol, err := SchedulerConfig{TickInterval: " 90s ", Lead: "30m"}.Cadence()
	if err != nil {
		t.Fatalf("Cadence: %v", err)
	}
	if tick != 90*time.Second || lead != 30*time.Minute || tol != time.Minute {
		t.Fatalf("cadence = %v, %v, %v", tick, lead, tol)
	}
	if _, _, _, err := (SchedulerConfig{TickInterval: "ninety"}).Cadence(); err == nil {
		t.Fatal("expected parse error")
	}
	if _, _, _, err := (SchedulerConfig{Lead: "-5s"}).Cadence(); err == nil {
		t.Fatal("expected negative duration to be rejected")
	}
}

func TestSchedulerSpec(t *testing.T) {
	t.Parallel()
	if got := (SchedulerConfig{}).Spec(); got != DefaultRefreshSpec {
		t.Fatalf("empty spec = %q", got)
	}
	if got := (SchedulerConfig{RefreshSpec: "off"}).Spec(); got != "" {
		t.Fatalf("off spec = %q", got)
	}
	if got := (SchedulerConfig{RefreshSpec: "*/30 * * * *"}).Spec(); got != "*/30 * * * *" {
		t.Fatalf("explicit spec = %q", got)
	}
}

func TestDispatchPaceDefault(t *testing.T) {
	t.Parallel()
	if d, err := (DispatchConfig{}).Pace(); err != nil || d != time.Second {
		t.Fatalf("default pace: got %v, %v", d, err)
	}
	if d, err := (DispatchConfig{SendInterval: "250ms"}).Pace(); err != nil || d != 250*time.Millisecond {
		t.Fatalf("explicit pace: got %v, %v", d, err)
	}
}

func TestValidateRejectsBadRefreshSpec(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Mail:      MailConfig{Domain: "d", From: "f"},
		Scheduler: SchedulerConfig{RefreshSpec: "not a cron spec"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected invalid refresh spec to be rejected")
	}
}
