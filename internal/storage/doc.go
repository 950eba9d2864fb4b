// Package storage persists the merged contest set and the registered
// users with their reminder preferences.
//
// Contests are replace-only: a merge cycle swaps the whole set in one
// atomic operation, and readers always observe either the previous or
// the new set in full.
package storage
