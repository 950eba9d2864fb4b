// Package scheduler drives the two independent reminder-side loops:
// the fixed-interval tick that checks for due contests, and the cron
// trigger that refreshes the aggregated contest set.
package scheduler

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"contestalert/internal/aggregator"
	"contestalert/internal/dispatch"
	"contestalert/internal/reminder"
	"contestalert/internal/storage"
	logx "contestalert/pkg/logx"
)

// Config controls both drivers.
//
// TickInterval must not exceed the matcher's full band width
// (2×tolerance) or due contests can fall between ticks; an interval
// much smaller than the band produces duplicate reminders within one
// window, since there is no notified-ledger. Config validation checks
// the upper bound.
type Config struct {
	TickInterval time.Duration // default 60s
	RefreshSpec  string        // cron spec for scheduled refreshes; empty disables
}

const defaultTickInterval = 60 * time.Second

// Dispatcher hands matched reminders to the outbound channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, matches []reminder.Match) dispatch.Report
}

// Refresher runs one merge cycle.
type Refresher interface {
	Refresh(ctx context.Context) (aggregator.Report, error)
}

type Service struct {
	mu  sync.Mutex
	cfg Config

	store      storage.Store
	matcher    *reminder.Matcher
	dispatcher Dispatcher
	refresher  Refresher

	clock Clock
	log   logx.Logger

	c        *cron.Cron
	stopCh   chan struct{}
	loopDone chan struct{}
	wg       sync.WaitGroup

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, store storage.Store, matcher *reminder.Matcher, dispatcher Dispatcher, refresher Refresher, clock Clock, log logx.Logger) *Service {
	if clock == nil {
		clock = RealClock()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	return &Service{
		cfg:        cfg,
		store:      store,
		matcher:    matcher,
		dispatcher: dispatcher,
		refresher:  refresher,
		clock:      clock,
		log:        log,
	}
}

// Apply swaps the tick cadence and refresh schedule. When the service
// is running, the current drivers are torn down and relaunched with the
// new config; the in-flight tick finishes first.
func (s *Service) Apply(cfg Config) {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg == s.cfg {
		return
	}
	s.cfg = cfg
	if s.stopCh == nil {
		return
	}
	s.restartLocked()
}

// Start launches the tick loop and, when configured, the cron refresh
// trigger. It is a no-op if the service is already running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return nil
	}

	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	if err := s.startLocked(); err != nil {
		s.runCancel()
		s.runCancel = nil
		s.stopCh = nil
		return err
	}

	s.log.Info("scheduler started",
		logx.Duration("tick_interval", s.cfg.TickInterval),
		logx.String("refresh_spec", s.cfg.RefreshSpec))
	return nil
}

// startLocked registers the cron trigger and launches the tick loop for
// the current config. Call with mu held and stopCh fresh.
func (s *Service) startLocked() error {
	runCtx := s.runCtx
	stopCh := s.stopCh

	if spec := strings.TrimSpace(s.cfg.RefreshSpec); spec != "" {
		c := cron.New()
		if _, err := c.AddFunc(spec, func() { s.runRefresh(runCtx) }); err != nil {
			return err
		}
		c.Start()
		s.c = c
	}

	// The ticker is created here, not in the goroutine, so callers of
	// Apply observe the new cadence as soon as it returns.
	t := s.clock.NewTicker(s.cfg.TickInterval)
	done := make(chan struct{})
	s.loopDone = done
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in tick loop",
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		s.tickLoop(runCtx, stopCh, t)
	}()
	return nil
}

// restartLocked tears down the running drivers, waits for the in-flight
// tick, and relaunches with the current config. Call with mu held.
func (s *Service) restartLocked() {
	close(s.stopCh)
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
	if s.loopDone != nil {
		<-s.loopDone
	}

	s.stopCh = make(chan struct{})
	if err := s.startLocked(); err != nil {
		// Validation upstream parses the spec, so this path means a
		// caller bypassed it. Keep ticking without the cron trigger.
		s.log.Error("refresh trigger rejected on restart",
			logx.Err(err), logx.String("refresh_spec", s.cfg.RefreshSpec))
		s.cfg.RefreshSpec = ""
		_ = s.startLocked()
		return
	}
	s.log.Info("scheduler restarted",
		logx.Duration("tick_interval", s.cfg.TickInterval),
		logx.String("refresh_spec", s.cfg.RefreshSpec))
}

// Stop halts both drivers and waits for the in-flight tick to finish.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	cancel := s.runCancel
	c := s.c
	s.stopCh = nil
	s.runCancel = nil
	s.c = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		// tick finishes in background
	}
}

// tickLoop runs each tick to completion before the next fire is
// eligible; ticks never overlap.
func (s *Service) tickLoop(ctx context.Context, stopCh <-chan struct{}, t Ticker) {
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-t.C():
			s.runTick(ctx)
		}
	}
}

// runTick checks the repository for due contests and dispatches the
// matches. Every failure is absorbed; the next tick retries naturally.
func (s *Service) runTick(ctx context.Context) {
	now := s.clock.Now()

	contests, err := s.store.ListContests(ctx)
	if err != nil {
		s.log.Error("tick: listing contests failed", logx.Err(err))
		return
	}
	if len(contests) == 0 {
		// Nothing aggregated yet; perfectly normal right after boot.
		return
	}

	matches, err := s.matcher.Matches(ctx, now, contests, s.store)
	if err != nil {
		s.log.Warn("tick: subscriber lookup failed", logx.Err(err))
	}
	if len(matches) == 0 {
		return
	}

	s.log.Info("tick: dispatching reminders", logx.Int("matches", len(matches)), logx.Time("now", now))
	s.dispatcher.Dispatch(ctx, matches)
}

func (s *Service) runRefresh(ctx context.Context) {
	if _, err := s.refresher.Refresh(ctx); err != nil {
		s.log.Error("scheduled refresh failed", logx.Err(err))
	}
}
