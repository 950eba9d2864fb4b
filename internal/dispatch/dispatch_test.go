package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"contestalert/internal/contest"
	"contestalert/internal/mailer"
	"contestalert/internal/reminder"
	logx "contestalert/pkg/logx"
)

type recordingSender struct {
	mu     sync.Mutex
	sent   []mailer.Message
	failTo map[string]error
}

func (s *recordingSender) Send(_ context.Context, msg mailer.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failTo[msg.To]; err != nil {
		return err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func matchesFor(emails ...string) []reminder.Match {
	c := contest.Contest{
		Platform:  contest.PlatformCodeforces,
		Name:      "Codeforces Round 1000 (Div. 3)",
		StartTime: time.Now().Add(20 * time.Minute).Unix(),
		Duration:  7200,
	}
	out := make([]reminder.Match, 0, len(emails))
	for _, e := range emails {
		out = append(out, reminder.Match{Contest: c, User: contest.User{Name: "U", Email: e}})
	}
	return out
}

func TestDispatchFailureIsolation(t *testing.T) {
	t.Parallel()
	sender := &recordingSender{failTo: map[string]error{"b@example.com": errors.New("mailbox unavailable")}}
	svc := New(Config{From: "alerts@example.com", SendInterval: time.Millisecond}, sender, logx.Nop())

	rep := svc.Dispatch(context.Background(), matchesFor("a@example.com", "b@example.com", "c@example.com"))
	if rep.Sent != 2 || rep.Failed != 1 {
		t.Fatalf("report = %+v, want 2 sent / 1 failed", rep)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("sender got %d messages, want 2", len(sender.sent))
	}
	if sender.sent[0].To != "a@example.com" || sender.sent[1].To != "c@example.com" {
		t.Fatalf("wrong recipients: %+v", sender.sent)
	}
}

func TestDispatchMessageContent(t *testing.T) {
	t.Parallel()
	sender := &recordingSender{}
	svc := New(Config{From: "alerts@example.com", SendInterval: time.Millisecond}, sender, logx.Nop())

	rep := svc.Dispatch(context.Background(), matchesFor("a@example.com"))
	if rep.Sent != 1 {
		t.Fatalf("report = %+v", rep)
	}
	msg := sender.sent[0]
	if msg.From != "alerts@example.com" {
		t.Fatalf("from = %q", msg.From)
	}
	if msg.Subject != "Reminder: Codeforces Round 1000 (Div. 3) is starting soon!" {
		t.Fatalf("subject = %q", msg.Subject)
	}
	for _, want := range []string{"Hi U,", "Codeforces Round 1000 (Div. 3) starts at", "Good luck!", "Contest Alert Team"} {
		if !strings.Contains(msg.Body, want) {
			t.Fatalf("body missing %q:\n%s", want, msg.Body)
		}
	}
}

func TestDispatchPacing(t *testing.T) {
	t.Parallel()
	sender := &recordingSender{}
	interval := 40 * time.Millisecond
	svc := New(Config{From: "alerts@example.com", SendInterval: interval}, sender, logx.Nop())

	start := time.Now()
	rep := svc.Dispatch(context.Background(), matchesFor("a@example.com", "b@example.com", "c@example.com"))
	if rep.Sent != 3 {
		t.Fatalf("report = %+v", rep)
	}
	// First send may pass immediately (burst 1); the other two must
	// each have waited out the interval.
	if elapsed := time.Since(start); elapsed < 2*interval {
		t.Fatalf("batch took %v, want at least %v of pacing", elapsed, 2*interval)
	}
}

func TestDispatchEmptyBatch(t *testing.T) {
	t.Parallel()
	svc := New(Config{From: "alerts@example.com"}, &recordingSender{}, logx.Nop())
	if rep := svc.Dispatch(context.Background(), nil); rep != (Report{}) {
		t.Fatalf("report = %+v, want zero", rep)
	}
}

func TestDispatchCanceledContext(t *testing.T) {
	t.Parallel()
	sender := &recordingSender{}
	svc := New(Config{From: "alerts@example.com", SendInterval: time.Minute}, sender, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := svc.Dispatch(ctx, matchesFor("a@example.com", "b@example.com"))
	if rep.Sent != 0 {
		t.Fatalf("sent %d with canceled context", rep.Sent)
	}
	if rep.Failed != 2 {
		t.Fatalf("failed = %d, want 2", rep.Failed)
	}
}
