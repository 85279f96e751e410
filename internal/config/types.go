package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that reads and writes JSON as a Go duration
// string ("5s", "1m30s").
type Duration struct {
	time.Duration
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler. Bare numbers are read as seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var sec float64
		if numErr := json.Unmarshal(data, &sec); numErr != nil {
			return fmt.Errorf("duration must be a string like \"5s\": %w", err)
		}
		d.Duration = time.Duration(sec * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// APIConfig locates the task API.
type APIConfig struct {
	BaseURL string   `json:"base_url"`        // Scheme, host and optional path prefix
	Token   string   `json:"token,omitempty"` // Bearer token; prefer TASKCONSOLE_API_TOKEN
	Timeout Duration `json:"timeout"`         // Per-request timeout
}

// PollConfig controls the monitor loop.
type PollConfig struct {
	Interval     Duration `json:"interval"`       // Time between polls
	Concurrency  int      `json:"concurrency"`    // Tasks fetched in parallel
	StopWhenDone bool     `json:"stop_when_done"` // Stop polling tasks that reached a terminal status
}

// DisplayConfig controls how durations and log times render.
type DisplayConfig struct {
	Locale   string `json:"locale"`              // "zh-CN" or "en-US"; selects duration units
	TimeZone string `json:"time_zone,omitempty"` // IANA zone for log marker clocks; empty keeps each marker's offset
}

// CacheConfig controls the local snapshot cache.
type CacheConfig struct {
	Enabled bool     `json:"enabled"`
	Path    string   `json:"path,omitempty"` // Empty means the XDG data dir
	MaxAge  Duration `json:"max_age"`        // Entries older than this are pruned on startup; zero keeps all
}

// ConsoleConfig is the top-level configuration.
type ConsoleConfig struct {
	API     APIConfig     `json:"api"`
	Poll    PollConfig    `json:"poll"`
	Display DisplayConfig `json:"display"`
	Cache   CacheConfig   `json:"cache"`
}

// Location resolves Display.TimeZone. An empty zone returns nil.
func (c *ConsoleConfig) Location() (*time.Location, error) {
	if c.Display.TimeZone == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(c.Display.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("time zone %q: %w", c.Display.TimeZone, err)
	}
	return loc, nil
}

// Validate reports settings the console cannot run with.
func (c *ConsoleConfig) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Poll.Interval.Duration < time.Second {
		return fmt.Errorf("poll.interval must be at least 1s, got %s", c.Poll.Interval)
	}
	if c.Poll.Concurrency < 1 {
		return fmt.Errorf("poll.concurrency must be positive, got %d", c.Poll.Concurrency)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
