package cfg

import "time"

type Cfg struct {
	// Locations
	FeedsDir  string
	CacheDir  string
	OutputDir string
	Templates []string
	RSSFile   string

	// Planet metadata
	Name       string
	Link       string
	OwnerName  string
	OwnerEmail string

	// Refresh
	Threads      int
	NewFeedItems int
	Filter       string
	Exclude      string
	FeedTimeout  time.Duration
	UserAgent    string
	FlushRetries int

	// Rendering
	ItemsPerPage      int
	DaysPerPage       int
	DateFormat        string
	NewDateFormat     string
	ActivityThreshold int
	Encoding          string

	// Runtime
	Offline         bool
	Serve           bool
	Port            string
	APIAccessKey    string
	RefreshInterval time.Duration
	Timezone        string
	Debug           bool
	Version         string
}
