package storage

import (
	"errors"
	"time"
)

// ErrUserNotFound is returned by preference updates for unknown ids.
var ErrUserNotFound = errors.New("user not found")

// Config configures storage.
//
// Driver values:
//   - "memory": volatile in-process store (tests, throwaway runs)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
