package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"contestalert/internal/reminder"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Mail      MailConfig      `json:"mail"`
	Fetch     FetchConfig     `json:"fetch,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Dispatch  DispatchConfig  `json:"dispatch,omitempty"`
	HTTP      HTTPConfig      `json:"http,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./contestalert.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// MailConfig holds the outbound mail identity. The Mailgun API key is
// NOT configured here; it comes from the MAILGUN_API_KEY environment
// variable so the config file stays secret-free.
type MailConfig struct {
	Domain string `json:"domain"`
	From   string `json:"from"`
}

type FetchConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	Timeout string `json:"timeout,omitempty"` // Go duration string, default "10s"
}

// SchedulerConfig controls the two scheduler drivers.
//
// All durations are Go duration strings (e.g. "60s", "20m").
//
// Defaults (when fields are omitted/zero):
//   - tick_interval: "60s"
//   - lead: "20m"
//   - tolerance: "60s"
//   - refresh_spec: "@hourly" (set to "off" to disable)
type SchedulerConfig struct {
	TickInterval string `json:"tick_interval,omitempty"`
	Lead         string `json:"lead,omitempty"`
	Tolerance    string `json:"tolerance,omitempty"`
	RefreshSpec  string `json:"refresh_spec,omitempty"`
}

type DispatchConfig struct {
	// SendInterval paces consecutive emails. Default "1s".
	SendInterval string `json:"send_interval,omitempty"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default ":8080"
}

const DefaultRefreshSpec = "@hourly"

// parseDuration resolves one duration field. Empty or zero means "use
// the default"; negative durations are rejected.
func parseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// Cadence resolves the tick interval and the reminder window durations,
// applying defaults for omitted fields.
func (s SchedulerConfig) Cadence() (tick, lead, tol time.Duration, err error) {
	if tick, err = parseDuration("scheduler.tick_interval", s.TickInterval, time.Minute); err != nil {
		return
	}
	if lead, err = parseDuration("scheduler.lead", s.Lead, reminder.DefaultLead); err != nil {
		return
	}
	tol, err = parseDuration("scheduler.tolerance", s.Tolerance, reminder.DefaultTolerance)
	return
}

// Spec returns the effective cron spec for scheduled refreshes, or ""
// when the trigger is disabled.
func (s SchedulerConfig) Spec() string {
	spec := strings.TrimSpace(s.RefreshSpec)
	switch spec {
	case "":
		return DefaultRefreshSpec
	case "off", "none":
		return ""
	}
	return spec
}

// Pace resolves the delay between consecutive reminder emails.
func (d DispatchConfig) Pace() (time.Duration, error) {
	return parseDuration("dispatch.send_interval", d.SendInterval, time.Second)
}

// RequestTimeout resolves the contest API timeout; zero defers to the
// client's default.
func (f FetchConfig) RequestTimeout() (time.Duration, error) {
	return parseDuration("fetch.timeout", f.Timeout, 0)
}

// BusyWait resolves the sqlite busy timeout; zero defers to the
// driver's default.
func (s StorageConfig) BusyWait() (time.Duration, error) {
	return parseDuration("storage.busy_timeout", s.BusyTimeout, 0)
}

// Validate rejects configs whose cadence would break the reminder
// window contract: with no notified-ledger, a tick interval wider than
// the full tolerance band means contests can pass through the window
// between ticks unseen. It also parses every duration field and the
// refresh cron spec, so a hot-reloaded config is rejected before it
// reaches a running service.
func (c *Config) Validate() error {
	tick, lead, tol, err := c.Scheduler.Cadence()
	if err != nil {
		return err
	}
	if tol >= lead {
		return fmt.Errorf("scheduler.tolerance (%v) must be smaller than scheduler.lead (%v)", tol, lead)
	}
	if tick > 2*tol {
		return fmt.Errorf("scheduler.tick_interval (%v) exceeds the reminder band width (%v); due contests would be skipped", tick, 2*tol)
	}
	if spec := c.Scheduler.Spec(); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("scheduler.refresh_spec: %w", err)
		}
	}
	if _, err := c.Dispatch.Pace(); err != nil {
		return err
	}
	if _, err := c.Fetch.RequestTimeout(); err != nil {
		return err
	}
	if _, err := c.Storage.BusyWait(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Mail.Domain) == "" || strings.TrimSpace(c.Mail.From) == "" {
		return fmt.Errorf("mail.domain and mail.from are required")
	}
	return nil
}
