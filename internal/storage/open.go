package storage

import (
	"context"
	"errors"
	"strings"

	"contestalert/internal/contest"
	logx "contestalert/pkg/logx"
)

// Store is the persistence API used by the aggregation and reminder
// drivers.
type Store interface {
	// ReplaceContests atomically discards all stored contests and
	// stores the given set. Duplicate (platform, start) pairs in the
	// input are collapsed; a concurrent ListContests sees either the
	// old set or the new set in full.
	ReplaceContests(ctx context.Context, cs []contest.Contest) error

	// ListContests returns all stored contests ascending by start
	// instant.
	ListContests(ctx context.Context) ([]contest.Contest, error)

	UpsertUser(ctx context.Context, u contest.User) error
	GetUser(ctx context.Context, id string) (contest.User, bool, error)
	UpdatePreferences(ctx context.Context, id string, p contest.Preferences) error

	// UsersForCategory returns every user whose preference flags
	// subscribe them to contests on the given platform.
	UsersForCategory(ctx context.Context, platform contest.Platform) ([]contest.User, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		if strings.TrimSpace(cfg.Path) != "" {
			driver = "sqlite"
		} else {
			driver = "memory"
		}
	}

	switch driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
