// Package contest holds the normalized contest and user model shared by
// the aggregation and reminder pipelines.
package contest

import "time"

// Platform identifies the origin of a contest.
type Platform string

const (
	PlatformCodeforces Platform = "Codeforces"
	PlatformLeetCode   Platform = "LeetCode"
)

// Contest is a single upcoming contest in normalized form.
//
// Identity for dedup purposes is (Platform, StartTime); the repository
// never stores two contests with the same pair.
type Contest struct {
	Platform  Platform `json:"platform"`
	Name      string   `json:"name"`
	StartTime int64    `json:"startTime"` // unix seconds
	Duration  int64    `json:"duration"`  // seconds
}

// Start returns the start instant as a time.Time (UTC).
func (c Contest) Start() time.Time { return time.Unix(c.StartTime, 0).UTC() }

// maxStartTime bounds stored start instants to a sane range
// (year ~2200); anything beyond it is treated as corrupt source data.
const maxStartTime = 7258118400

// Valid reports whether the contest may enter the repository.
func (c Contest) Valid() bool {
	if c.Platform != PlatformCodeforces && c.Platform != PlatformLeetCode {
		return false
	}
	return c.Duration >= 0 && c.StartTime > 0 && c.StartTime < maxStartTime
}

// Key is the dedup identity of a contest.
type Key struct {
	Platform  Platform
	StartTime int64
}

func (c Contest) Key() Key { return Key{Platform: c.Platform, StartTime: c.StartTime} }

// CodeforcesPrefs are the per-division reminder flags.
type CodeforcesPrefs struct {
	Div1 bool `json:"div1"`
	Div3 bool `json:"div3"`
	Div4 bool `json:"div4"`
}

// Preferences is a user's reminder preference set.
//
// The category set is small and closed, so it is a fixed struct rather
// than a dynamic flag map. The zero value means "no notifications" and
// is the default for newly created users.
type Preferences struct {
	LeetCode   bool            `json:"leetcode"`
	Codeforces CodeforcesPrefs `json:"codeforces"`
}

// Wants reports whether these preferences subscribe the user to
// contests on the given platform. Codeforces matches on an OR across
// the division flags.
func (p Preferences) Wants(platform Platform) bool {
	switch platform {
	case PlatformLeetCode:
		return p.LeetCode
	case PlatformCodeforces:
		return p.Codeforces.Div1 || p.Codeforces.Div3 || p.Codeforces.Div4
	default:
		return false
	}
}

// User is a registered account. Identity lifecycle (creation at first
// login, deletion) is owned by the auth layer; this core only reads
// users and updates their preference set.
type User struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Preferences Preferences `json:"reminderPreferences"`
}
