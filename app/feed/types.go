package feed

import (
	"fmt"
	"time"
)

// Content types understood by the sanitizer.
const (
	TypeHTML  = "text/html"
	TypePlain = "text/plain"
)

// StatusIMUsed marks a delta response; caches reporting it never expire items.
const StatusIMUsed = 226

// Fetch-side types

type Text struct {
	Value    string
	Type     string
	Language string
}

type Person struct {
	Name  string
	Email string
}

type Source struct {
	Name string
	Link string
}

// Fields holds the named values of a feed or an entry, grouped by kind.
type Fields struct {
	Text   map[string]Text
	Dates  map[string]time.Time
	People map[string]Person
}

type Entry struct {
	Fields
	Content []Text
	Source  *Source
}

type FetchRequest struct {
	URL       string
	ETag      string
	Modified  string
	Timeout   time.Duration
	UserAgent string
}

type FetchResult struct {
	Status   int
	ETag     string
	Modified string
	URL      string // resolved URL after a permanent redirect
	Info     Fields
	Entries  []Entry
	Err      error
}

// Result summarises one refresh.
type Result struct {
	Status  int
	New     int
	Expired int
	Seen    int
}

// Configuration types

type Config struct {
	File    string            `yaml:"-"` // Derived from filename (without .yml extension)
	URL     string            `yaml:"url"`
	Enabled *bool             `yaml:"enabled"`
	Name    string            `yaml:"name"`
	Filter  string            `yaml:"filter"`
	Exclude string            `yaml:"exclude"`
	Hidden  bool              `yaml:"hidden"`
	Options map[string]string `yaml:"options"`
}

func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Options are the planet-wide settings every feed refresh uses.
type Options struct {
	NewFeedItems int
	Timeout      time.Duration
	UserAgent    string
	Sanitizer    Sanitizer
	Now          func() time.Time
}

// Errors

// StoreError reports a flush that could not be persisted. In-memory state is kept.
type StoreError struct {
	URL string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.URL, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ConfigError reports a subscription that cannot be used.
type ConfigError struct {
	Feed string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %v", e.Feed, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
