package storage

import (
	"context"
	"sort"
	"sync"

	"contestalert/internal/contest"
)

// Memory is a volatile Store. It backs tests and storage-less runs.
type Memory struct {
	mu       sync.RWMutex
	contests []contest.Contest
	users    map[string]contest.User
}

func NewMemory() *Memory {
	return &Memory{users: map[string]contest.User{}}
}

func (m *Memory) ReplaceContests(_ context.Context, cs []contest.Contest) error {
	next := dedupSorted(cs)
	m.mu.Lock()
	m.contests = next
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListContests(_ context.Context) ([]contest.Contest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]contest.Contest, len(m.contests))
	copy(out, m.contests)
	return out, nil
}

func (m *Memory) UpsertUser(_ context.Context, u contest.User) error {
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (contest.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *Memory) UpdatePreferences(_ context.Context, id string, p contest.Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Preferences = p
	m.users[id] = u
	return nil
}

func (m *Memory) UsersForCategory(_ context.Context, platform contest.Platform) ([]contest.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []contest.User
	for _, u := range m.users {
		if u.Preferences.Wants(platform) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Close() error { return nil }

// dedupSorted collapses duplicate (platform, start) pairs (first wins)
// and returns the survivors ascending by start instant.
func dedupSorted(cs []contest.Contest) []contest.Contest {
	seen := make(map[contest.Key]struct{}, len(cs))
	out := make([]contest.Contest, 0, len(cs))
	for _, c := range cs {
		k := c.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}
