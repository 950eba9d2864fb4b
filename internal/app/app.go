// Package app wires the contestalert components together from config.
package app

import (
	"context"
	"os"
	"strings"
	"sync"

	"contestalert/internal/aggregator"
	"contestalert/internal/codeforces"
	"contestalert/internal/config"
	"contestalert/internal/dispatch"
	"contestalert/internal/httpapi"
	"contestalert/internal/mailer"
	"contestalert/internal/reminder"
	"contestalert/internal/scheduler"
	"contestalert/internal/storage"
	logx "contestalert/pkg/logx"
)

type App struct {
	cm     *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store storage.Store
	agg   *aggregator.Service
	mail  *mailer.Mailgun // nil in dry-run mode
	disp  *dispatch.Service
	sched *scheduler.Service
	http  *httpapi.Server

	mu        sync.Mutex
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cm := config.NewManager(cfgPath)
	cfg, err := cm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cm.SetValidator(func(_ context.Context, c *config.Config) error { return c.Validate() })

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	cm.SetLogger(log.With(logx.String("component", "config")))

	busy, _ := cfg.Storage.BusyWait()
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("component", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	fetchTimeout, _ := cfg.Fetch.RequestTimeout()
	fetcher := codeforces.New(codeforces.Config{BaseURL: cfg.Fetch.BaseURL, Timeout: fetchTimeout})

	agg := aggregator.New(fetcher, store, log.With(logx.String("component", "aggregator")))

	var (
		sender mailer.Sender
		mail   *mailer.Mailgun
	)
	if key := strings.TrimSpace(os.Getenv("MAILGUN_API_KEY")); key != "" {
		mail = mailer.NewMailgun(cfg.Mail.Domain, key)
		sender = mail
	} else {
		log.Warn("MAILGUN_API_KEY not set; reminders will be logged, not delivered")
		sender = &mailer.DryRun{Log: log.With(logx.String("component", "mailer"))}
	}

	disp := dispatch.New(dispatchConfig(cfg), sender, log.With(logx.String("component", "dispatch")))

	matcher, err := matcherFrom(cfg)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	sched := scheduler.New(schedulerConfig(cfg), store, matcher, disp, agg,
		scheduler.RealClock(), log.With(logx.String("component", "scheduler")))

	a := &App{
		cm:     cm,
		logSvc: logSvc,
		log:    log,
		store:  store,
		agg:    agg,
		mail:   mail,
		disp:   disp,
		sched:  sched,
	}

	if cfg.HTTP.Enabled {
		a.http = httpapi.New(httpapi.Config{Addr: cfg.HTTP.Addr}, store, agg,
			log.With(logx.String("component", "http")))
	}
	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.runCancel = cancel
	a.mu.Unlock()

	if err := a.sched.Start(runCtx); err != nil {
		cancel()
		return err
	}
	if a.http != nil {
		a.http.Start()
	}

	// Populate the repository right away instead of waiting for the
	// first scheduled refresh.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if _, err := a.agg.Refresh(runCtx); err != nil {
			a.log.Error("initial refresh failed", logx.Err(err))
		}
	}()

	// Config hot reload.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cm.Watch(runCtx)
	}()
	sub := a.cm.Subscribe(1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				a.cm.Unsubscribe(sub)
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.apply(cfg)
			}
		}
	}()

	a.log.Info("contestalert started")
	return nil
}

// apply pushes a reloaded config into the live services. The reload
// path already validated it.
func (a *App) apply(cfg *config.Config) {
	a.logSvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	if a.mail != nil {
		a.mail.Apply(cfg.Mail.Domain)
	}
	a.disp.Apply(dispatchConfig(cfg))
	a.sched.Apply(schedulerConfig(cfg))
	a.log.Info("configuration re-applied")
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	a.sched.Stop(ctx)
	if a.http != nil {
		a.http.Stop(ctx)
	}
	a.wg.Wait()

	err := a.store.Close()
	a.log.Info("contestalert stopped")
	_ = a.logSvc.Close()
	return err
}

func dispatchConfig(cfg *config.Config) dispatch.Config {
	interval, _ := cfg.Dispatch.Pace()
	return dispatch.Config{From: cfg.Mail.From, SendInterval: interval}
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	tick, _, _, _ := cfg.Scheduler.Cadence()
	return scheduler.Config{TickInterval: tick, RefreshSpec: cfg.Scheduler.Spec()}
}

func matcherFrom(cfg *config.Config) (*reminder.Matcher, error) {
	_, lead, tol, err := cfg.Scheduler.Cadence()
	if err != nil {
		return nil, err
	}
	return reminder.New(lead, tol)
}
