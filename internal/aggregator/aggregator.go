// Package aggregator runs merge cycles: it pulls live contests from
// the external source, computes the recurring series, and replaces the
// stored contest set with the merged result.
package aggregator

import (
	"context"
	"fmt"
	"time"

	"contestalert/internal/contest"
	"contestalert/internal/recurring"
	"contestalert/internal/storage"
	logx "contestalert/pkg/logx"
)

// Fetcher pulls upcoming contests from the external source.
type Fetcher interface {
	FetchUpcoming(ctx context.Context) ([]contest.Contest, error)
}

// Report summarizes one merge cycle.
type Report struct {
	External  int  `json:"external"`
	Recurring int  `json:"recurring"`
	Stored    int  `json:"stored"`
	Dropped   int  `json:"dropped"`
	// FetchFailed distinguishes "the source listed zero contests" from
	// "the source could not be reached"; in both cases the cycle
	// proceeds with an empty external set.
	FetchFailed bool `json:"fetchFailed"`
}

type Service struct {
	fetcher Fetcher
	store   storage.Store
	log     logx.Logger

	now func() time.Time
}

func New(fetcher Fetcher, store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{fetcher: fetcher, store: store, log: log, now: time.Now}
}

// SetNow overrides the clock. Tests only.
func (s *Service) SetNow(now func() time.Time) { s.now = now }

// Refresh runs one merge cycle. A fetch failure degrades to an empty
// external set and is reported; a store failure aborts the cycle and
// leaves the previous set intact.
func (s *Service) Refresh(ctx context.Context) (Report, error) {
	start := time.Now()
	now := s.now()

	var rep Report

	external, err := s.fetcher.FetchUpcoming(ctx)
	if err != nil {
		s.log.Warn("external fetch failed, proceeding with empty set", logx.Err(err))
		external = nil
		rep.FetchFailed = true
	}
	generated := recurring.Upcoming(now)

	rep.External = len(external)
	rep.Recurring = len(generated)

	merged := make([]contest.Contest, 0, len(external)+len(generated))
	seen := make(map[contest.Key]struct{}, len(external)+len(generated))
	for _, c := range append(external, generated...) {
		if !c.Valid() {
			rep.Dropped++
			s.log.Debug("dropping invalid contest",
				logx.String("platform", string(c.Platform)),
				logx.String("name", c.Name),
				logx.Int64("start", c.StartTime),
				logx.Int64("duration", c.Duration))
			continue
		}
		k := c.Key()
		if _, dup := seen[k]; dup {
			rep.Dropped++
			continue
		}
		seen[k] = struct{}{}
		merged = append(merged, c)
	}

	if err := s.store.ReplaceContests(ctx, merged); err != nil {
		s.log.Error("contest replace failed, keeping previous set", logx.Err(err))
		return rep, fmt.Errorf("replace contests: %w", err)
	}
	rep.Stored = len(merged)

	s.log.Info("merge cycle complete",
		logx.Int("external", rep.External),
		logx.Int("recurring", rep.Recurring),
		logx.Int("stored", rep.Stored),
		logx.Int("dropped", rep.Dropped),
		logx.Bool("fetch_failed", rep.FetchFailed),
		logx.Duration("took", time.Since(start)))
	return rep, nil
}
