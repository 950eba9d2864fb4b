// Package reminder selects contests entering their notification window
// and resolves the users subscribed to them.
package reminder

import (
	"context"
	"fmt"
	"time"

	"contestalert/internal/contest"
)

const (
	// DefaultLead is how far before the start instant reminders go out.
	DefaultLead = 20 * time.Minute
	// DefaultTolerance is the half-width of the window around
	// now + lead. A contest is due when its start instant falls inside
	// the band, boundaries included.
	DefaultTolerance = 60 * time.Second
)

// Matcher holds the window parameters. The zero value is unusable;
// use New.
//
// There is no "already notified" ledger: a contest is reported due on
// every tick whose window contains it, so the tick interval has to sit
// inside the band width for exactly-once matching (enforced at config
// validation).
type Matcher struct {
	lead      time.Duration
	tolerance time.Duration
}

func New(lead, tolerance time.Duration) (*Matcher, error) {
	if lead <= 0 {
		lead = DefaultLead
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if tolerance >= lead {
		return nil, fmt.Errorf("tolerance %v must be smaller than lead %v", tolerance, lead)
	}
	return &Matcher{lead: lead, tolerance: tolerance}, nil
}

// UserSource is the slice of the store the matcher needs.
type UserSource interface {
	UsersForCategory(ctx context.Context, platform contest.Platform) ([]contest.User, error)
}

// Match pairs a due contest with one subscriber.
type Match struct {
	Contest contest.Contest
	User    contest.User
}

// Due returns the contests whose start instant lies within the
// tolerance band centered on now + lead.
func (m *Matcher) Due(now time.Time, contests []contest.Contest) []contest.Contest {
	center := now.Add(m.lead).Unix()
	lo := center - int64(m.tolerance/time.Second)
	hi := center + int64(m.tolerance/time.Second)

	var due []contest.Contest
	for _, c := range contests {
		if c.StartTime >= lo && c.StartTime <= hi {
			due = append(due, c)
		}
	}
	return due
}

// Matches resolves the subscriber set for every due contest. Subscriber
// lookups are per platform; a lookup failure skips that contest but
// does not abort the rest.
func (m *Matcher) Matches(ctx context.Context, now time.Time, contests []contest.Contest, users UserSource) ([]Match, error) {
	due := m.Due(now, contests)
	if len(due) == 0 {
		return nil, nil
	}

	// One lookup per platform per call.
	subscribers := map[contest.Platform][]contest.User{}

	var out []Match
	var firstErr error
	for _, c := range due {
		subs, ok := subscribers[c.Platform]
		if !ok {
			var err error
			subs, err = users.UsersForCategory(ctx, c.Platform)
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("subscribers for %s: %w", c.Platform, err)
				}
				continue
			}
			subscribers[c.Platform] = subs
		}
		for _, u := range subs {
			out = append(out, Match{Contest: c, User: u})
		}
	}
	return out, firstErr
}
