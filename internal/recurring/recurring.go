// Package recurring computes upcoming occurrences of the two LeetCode
// contest series from their fixed calendar rules. Everything here is a
// pure function of the reference instant.
package recurring

import (
	"time"

	"contestalert/internal/contest"
)

const (
	// Both series start at 14:30 UTC.
	slotHour   = 14
	slotMinute = 30

	weeklyPeriod   = 7 * 24 * time.Hour
	biweeklyPeriod = 14 * 24 * time.Hour

	// Contests run 90 minutes.
	contestDuration = 5400

	weeklyName   = "LeetCode Weekly Contest"
	biweeklyName = "LeetCode Biweekly Contest"

	maxUpcoming = 3
)

// biweeklyAnchor is a known past occurrence of the biweekly series:
// 2022-01-08 14:30:00 UTC.
var biweeklyAnchor = time.Date(2022, time.January, 8, slotHour, slotMinute, 0, 0, time.UTC)

// NextWeekly returns the first weekly occurrence at or after now:
// the upcoming Sunday 14:30 UTC. If now falls on a Sunday at or before
// the slot, today's slot is returned; after the slot the occurrence
// rolls to next week.
func NextWeekly(now time.Time) time.Time {
	now = now.UTC()
	days := int((7 - now.Weekday()) % 7)
	if now.Weekday() == time.Sunday {
		if today := atSlot(now); now.After(today) {
			days = 7
		} else {
			days = 0
		}
	}
	return atSlot(now.AddDate(0, 0, days))
}

// NextBiweekly returns the first biweekly occurrence strictly after
// now: the anchor plus the smallest non-negative whole number of
// periods that lands after now. The result is always congruent to the
// anchor modulo the period.
func NextBiweekly(now time.Time) time.Time {
	now = now.UTC()
	periods := now.Sub(biweeklyAnchor) / biweeklyPeriod
	if periods < 0 {
		periods = 0
	}
	candidate := biweeklyAnchor.Add(periods * biweeklyPeriod)
	if !candidate.After(now) {
		candidate = candidate.Add(biweeklyPeriod)
	}
	return candidate
}

// Upcoming returns up to three future occurrences across both series:
// the next two weekly and next two biweekly contests, merged and
// sorted ascending, keeping only starts strictly after now.
func Upcoming(now time.Time) []contest.Contest {
	w1 := NextWeekly(now)
	b1 := NextBiweekly(now)

	occurrences := []contest.Contest{
		occurrence(weeklyName, w1),
		occurrence(weeklyName, w1.Add(weeklyPeriod)),
		occurrence(biweeklyName, b1),
		occurrence(biweeklyName, b1.Add(biweeklyPeriod)),
	}

	nowSec := now.Unix()
	out := make([]contest.Contest, 0, len(occurrences))
	for _, c := range occurrences {
		if c.StartTime > nowSec {
			out = append(out, c)
		}
	}
	sortByStart(out)
	if len(out) > maxUpcoming {
		out = out[:maxUpcoming]
	}
	return out
}

func occurrence(name string, start time.Time) contest.Contest {
	return contest.Contest{
		Platform:  contest.PlatformLeetCode,
		Name:      name,
		StartTime: start.Unix(),
		Duration:  contestDuration,
	}
}

func atSlot(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), slotHour, slotMinute, 0, 0, time.UTC)
}

func sortByStart(cs []contest.Contest) {
	// Four elements at most; insertion sort keeps it allocation-free.
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j].StartTime < cs[j-1].StartTime; j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}
