// Package codeforces pulls the public contest listing and normalizes
// upcoming contests.
package codeforces

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"contestalert/internal/contest"
)

const (
	DefaultBaseURL = "https://codeforces.com/api"

	// phaseBefore marks contests that have not started yet.
	phaseBefore = "BEFORE"

	defaultTimeout = 10 * time.Second
)

// FetchError wraps any transport, status or decode failure so callers
// can tell "fetch failed" apart from "genuinely zero contests".
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return "codeforces: " + e.Op + ": " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client fetches the contest listing. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	// The client timeout is a hard bound so a hung listing endpoint can
	// never stall the caller's cycle.
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}
}

// listResponse mirrors the contest.list payload.
type listResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Result  []struct {
		Name             string `json:"name"`
		Phase            string `json:"phase"`
		StartTimeSeconds int64  `json:"startTimeSeconds"`
		DurationSeconds  int64  `json:"durationSeconds"`
	} `json:"result"`
}

// FetchUpcoming returns all not-yet-started contests, normalized.
// Any failure is returned as a *FetchError; no retry happens here.
func (c *Client) FetchUpcoming(ctx context.Context) ([]contest.Contest, error) {
	url := c.baseURL + "/contest.list"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Op: "build request", Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Op: "get contest.list", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Op: "get contest.list", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &FetchError{Op: "decode contest.list", Err: err}
	}
	if body.Status != "OK" {
		return nil, &FetchError{Op: "contest.list", Err: fmt.Errorf("api status %q: %s", body.Status, body.Comment)}
	}

	out := make([]contest.Contest, 0, len(body.Result))
	for _, r := range body.Result {
		if r.Phase != phaseBefore {
			continue
		}
		out = append(out, contest.Contest{
			Platform:  contest.PlatformCodeforces,
			Name:      r.Name,
			StartTime: r.StartTimeSeconds,
			Duration:  r.DurationSeconds,
		})
	}
	return out, nil
}
