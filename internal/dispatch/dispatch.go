// Package dispatch turns reminder matches into outbound emails.
//
// Sends are sequential with a fixed inter-send delay. The pacing is a
// backpressure contract with the mail provider, not an optimization;
// do not parallelize it without re-deriving the provider's rate limit.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"contestalert/internal/mailer"
	"contestalert/internal/reminder"
	logx "contestalert/pkg/logx"
)

type Config struct {
	// From is the sender address on every reminder.
	From string
	// SendInterval is the fixed delay between consecutive sends.
	SendInterval time.Duration
}

const defaultSendInterval = time.Second

// Report summarizes one dispatch batch.
type Report struct {
	Sent   int
	Failed int
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sender mailer.Sender
	log    logx.Logger
}

func New(cfg Config, sender mailer.Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log}
	s.Apply(cfg)
	return s
}

// Apply swaps pacing and sender address at runtime.
func (s *Service) Apply(cfg Config) {
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = defaultSendInterval
	}
	s.mu.Lock()
	s.cfg = cfg
	// Burst 1: every send waits out the full interval from the
	// previous one.
	s.limiter = rate.NewLimiter(rate.Every(cfg.SendInterval), 1)
	s.mu.Unlock()
}

// Dispatch sends one email per match, in order. A failed send is
// logged and counted but never aborts the remaining sends.
func (s *Service) Dispatch(ctx context.Context, matches []reminder.Match) Report {
	var rep Report
	if len(matches) == 0 {
		return rep
	}

	s.mu.Lock()
	lim := s.limiter
	from := s.cfg.From
	s.mu.Unlock()

	start := time.Now()
	for _, m := range matches {
		if err := lim.Wait(ctx); err != nil {
			// Context gone; the rest of the batch is unsendable.
			rep.Failed += len(matches) - rep.Sent - rep.Failed
			break
		}

		msg := mailer.Message{
			From:    from,
			To:      m.User.Email,
			Subject: subject(m),
			Body:    body(m),
		}
		if err := s.sender.Send(ctx, msg); err != nil {
			rep.Failed++
			s.log.Warn("reminder send failed",
				logx.String("to", m.User.Email),
				logx.String("contest", m.Contest.Name),
				logx.Err(err))
			continue
		}
		rep.Sent++
		s.log.Info("reminder sent",
			logx.String("to", m.User.Email),
			logx.String("contest", m.Contest.Name))
	}

	s.log.Info("dispatch batch finished",
		logx.Int("total", len(matches)),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Duration("took", time.Since(start)))
	return rep
}

func subject(m reminder.Match) string {
	return fmt.Sprintf("Reminder: %s is starting soon!", m.Contest.Name)
}

func body(m reminder.Match) string {
	start := m.Contest.Start().Local().Format("Mon, 02 Jan 2006 15:04 MST")
	return fmt.Sprintf("Hi %s,\n\nReminder: %s starts at %s.\n\nGood luck!\n\nBest,\nContest Alert Team",
		m.User.Name, m.Contest.Name, start)
}
