package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"contestalert/internal/aggregator"
	"contestalert/internal/contest"
	"contestalert/internal/dispatch"
	"contestalert/internal/reminder"
	"contestalert/internal/storage"
	logx "contestalert/pkg/logx"
)

type fakeClock struct {
	mu        sync.Mutex
	now       time.Time
	tick      chan time.Time
	intervals []time.Duration
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, tick: make(chan time.Time)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	c.intervals = append(c.intervals, d)
	c.mu.Unlock()
	return fakeTicker{ch: c.tick}
}

func (c *fakeClock) tickerIntervals() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.intervals...)
}

// Fire delivers one tick and blocks until the loop has picked it up.
func (c *fakeClock) Fire() { c.tick <- c.Now() }

type fakeTicker struct{ ch chan time.Time }

func (f fakeTicker) C() <-chan time.Time { return f.ch }
func (f fakeTicker) Stop()               {}

type recordingDispatcher struct {
	mu      sync.Mutex
	batches [][]reminder.Match
	done    chan struct{}
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{done: make(chan struct{}, 16)}
}

func (d *recordingDispatcher) Dispatch(_ context.Context, matches []reminder.Match) dispatch.Report {
	d.mu.Lock()
	d.batches = append(d.batches, matches)
	d.mu.Unlock()
	d.done <- struct{}{}
	return dispatch.Report{Sent: len(matches)}
}

func (d *recordingDispatcher) batchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRefresher) Refresh(context.Context) (aggregator.Report, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return aggregator.Report{}, nil
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestService(t *testing.T, st storage.Store, clock Clock, d Dispatcher) *Service {
	t.Helper()
	m, err := reminder.New(reminder.DefaultLead, reminder.DefaultTolerance)
	if err != nil {
		t.Fatalf("reminder.New: %v", err)
	}
	return New(Config{TickInterval: time.Minute}, st, m, d, &countingRefresher{}, clock, logx.Nop())
}

func TestTickDispatchesDueContests(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)

	st := storage.NewMemory()
	if err := st.UpsertUser(ctx, contest.User{ID: "u1", Email: "u1@example.com",
		Preferences: contest.Preferences{Codeforces: contest.CodeforcesPrefs{Div3: true}}}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	due := contest.Contest{
		Platform:  contest.PlatformCodeforces,
		Name:      "Round",
		StartTime: now.Add(20 * time.Minute).Unix(),
		Duration:  7200,
	}
	farOff := contest.Contest{
		Platform:  contest.PlatformCodeforces,
		Name:      "Later Round",
		StartTime: now.Add(48 * time.Hour).Unix(),
		Duration:  7200,
	}
	if err := st.ReplaceContests(ctx, []contest.Contest{due, farOff}); err != nil {
		t.Fatalf("ReplaceContests: %v", err)
	}

	clock := newFakeClock(now)
	d := newRecordingDispatcher()
	svc := newTestService(t, st, clock, d)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop(ctx)

	clock.Fire()
	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher not invoked within 2s of tick")
	}

	if n := d.batchCount(); n != 1 {
		t.Fatalf("dispatched %d batches, want 1", n)
	}
	d.mu.Lock()
	batch := d.batches[0]
	d.mu.Unlock()
	if len(batch) != 1 || batch[0].Contest.Name != "Round" || batch[0].User.ID != "u1" {
		t.Fatalf("unexpected batch: %+v", batch)
	}
}

func TestTickToleratesEmptyRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock(time.Now())
	d := newRecordingDispatcher()
	svc := newTestService(t, storage.NewMemory(), clock, d)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	clock.Fire()
	clock.Fire() // second fire proves the first completed without dying

	svc.Stop(ctx)
	if n := d.batchCount(); n != 0 {
		t.Fatalf("dispatched %d batches on an empty repository", n)
	}
}

func TestTickNoMatchesNoDispatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)

	st := storage.NewMemory()
	// Contest due, but no subscribers at all.
	c := contest.Contest{
		Platform:  contest.PlatformCodeforces,
		Name:      "Round",
		StartTime: now.Add(20 * time.Minute).Unix(),
		Duration:  7200,
	}
	if err := st.ReplaceContests(ctx, []contest.Contest{c}); err != nil {
		t.Fatalf("ReplaceContests: %v", err)
	}

	clock := newFakeClock(now)
	d := newRecordingDispatcher()
	svc := newTestService(t, st, clock, d)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	clock.Fire()
	clock.Fire()

	svc.Stop(ctx)
	if n := d.batchCount(); n != 0 {
		t.Fatalf("dispatched %d batches with no subscribers", n)
	}
}

func TestStartIsIdempotentAndStops(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock(time.Now())
	svc := newTestService(t, storage.NewMemory(), clock, newRecordingDispatcher())

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	svc.Stop(ctx)
	// A second Stop is a no-op.
	svc.Stop(ctx)
}

func TestStartRejectsBadRefreshSpec(t *testing.T) {
	t.Parallel()
	m, err := reminder.New(reminder.DefaultLead, reminder.DefaultTolerance)
	if err != nil {
		t.Fatalf("reminder.New: %v", err)
	}
	svc := New(Config{TickInterval: time.Minute, RefreshSpec: "not a cron spec"},
		storage.NewMemory(), m, newRecordingDispatcher(), &countingRefresher{}, newFakeClock(time.Now()), logx.Nop())
	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid refresh spec")
	}
}

func TestApplyRestartsTickLoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock(time.Now())
	d := newRecordingDispatcher()
	svc := newTestService(t, storage.NewMemory(), clock, d)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop(ctx)

	// Unchanged config must not bounce the loop.
	svc.Apply(Config{TickInterval: time.Minute})
	if got := clock.tickerIntervals(); len(got) != 1 {
		t.Fatalf("tickers after no-op Apply = %v, want one", got)
	}

	svc.Apply(Config{TickInterval: 90 * time.Second})
	got := clock.tickerIntervals()
	if len(got) != 2 || got[1] != 90*time.Second {
		t.Fatalf("tickers after Apply = %v, want [1m0s 1m30s]", got)
	}

	// The relaunched loop still serves ticks.
	clock.Fire()
	clock.Fire()
}

func TestApplyRegistersRefreshSpec(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, err := reminder.New(reminder.DefaultLead, reminder.DefaultTolerance)
	if err != nil {
		t.Fatalf("reminder.New: %v", err)
	}
	r := &countingRefresher{}
	svc := New(Config{TickInterval: time.Minute},
		storage.NewMemory(), m, newRecordingDispatcher(), r, newFakeClock(time.Now()), logx.Nop())
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop(ctx)

	svc.Apply(Config{TickInterval: time.Minute, RefreshSpec: "@every 10ms"})

	deadline := time.Now().Add(2 * time.Second)
	for r.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("refresh trigger not registered by Apply")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
