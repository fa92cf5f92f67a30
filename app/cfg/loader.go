package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Locations
	FeedsDir  string   `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing feed subscription files"`
	CacheDir  string   `long:"cache-dir" env:"CACHE_DIR" default:"./cache" description:"Directory holding one cache database per feed"`
	OutputDir string   `long:"output-dir" env:"OUTPUT_DIR" default:"./output" description:"Directory rendered files are written to"`
	Templates []string `long:"template" env:"TEMPLATES" env-delim:"," description:"Template file to render (repeatable)"`
	RSSFile   string   `long:"rss-file" env:"RSS_FILE" default:"rss20.xml" description:"File name of the generated RSS 2.0 feed, empty to disable"`

	// Planet metadata
	Name       string `long:"name" env:"PLANET_NAME" default:"Unconfigured Planet" description:"Planet name"`
	Link       string `long:"link" env:"PLANET_LINK" description:"Public URL of the planet (required)" required:"true"`
	OwnerName  string `long:"owner-name" env:"OWNER_NAME" description:"Planet owner name"`
	OwnerEmail string `long:"owner-email" env:"OWNER_EMAIL" description:"Planet owner email"`

	// Refresh
	Threads      int           `long:"threads" env:"THREADS" default:"1" description:"Number of feeds refreshed concurrently"`
	NewFeedItems int           `long:"new-feed-items" env:"NEW_FEED_ITEMS" default:"10" description:"Items shown from a newly subscribed feed, 0 shows all"`
	Filter       string        `long:"filter" env:"FILTER" description:"Only include items matching this pattern"`
	Exclude      string        `long:"exclude" env:"EXCLUDE" description:"Exclude items matching this pattern"`
	FeedTimeout  time.Duration `long:"feed-timeout" env:"FEED_TIMEOUT" default:"20s" description:"Timeout of a single feed fetch"`
	UserAgent    string        `long:"user-agent" env:"USER_AGENT" default:"RSS Planet/1.0" description:"User agent string for HTTP requests"`
	FlushRetries int           `long:"flush-retries" env:"FLUSH_RETRIES" default:"3" description:"Retries of a failed cache write"`

	// Rendering
	ItemsPerPage      int    `long:"items-per-page" env:"ITEMS_PER_PAGE" default:"60" description:"Maximum number of items rendered"`
	DaysPerPage       int    `long:"days-per-page" env:"DAYS_PER_PAGE" default:"0" description:"Maximum age in days of rendered items, relative to the newest"`
	DateFormat        string `long:"date-format" env:"DATE_FORMAT" default:"%B %d, %Y %I:%M %p" description:"strftime format of rendered dates"`
	NewDateFormat     string `long:"new-date-format" env:"NEW_DATE_FORMAT" default:"%B %d, %Y" description:"strftime format of day headings"`
	ActivityThreshold int    `long:"activity-threshold" env:"ACTIVITY_THRESHOLD" default:"0" description:"Days without items before a feed is flagged inactive, 0 disables"`
	Encoding          string `long:"encoding" env:"ENCODING" default:"utf-8" description:"Output encoding (utf-8, xml, or any WHATWG label)"`

	// Runtime
	Offline         bool          `long:"offline" env:"OFFLINE" description:"Render from the cache without fetching"`
	Serve           bool          `long:"serve" env:"SERVE" description:"Keep running, refresh periodically and serve over HTTP"`
	Port            string        `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey    string        `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	RefreshInterval time.Duration `long:"refresh-interval" env:"REFRESH_INTERVAL" default:"30m" description:"Interval between refreshes in serve mode"`
	Timezone        string        `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug           bool          `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load reads the configuration from command-line flags and the environment. An optional
// .env file in the working directory seeds the environment first. A nil config with a nil
// error means help was shown.
func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		FeedsDir:          raw.FeedsDir,
		CacheDir:          raw.CacheDir,
		OutputDir:         raw.OutputDir,
		Templates:         raw.Templates,
		RSSFile:           raw.RSSFile,
		Name:              raw.Name,
		Link:              raw.Link,
		OwnerName:         raw.OwnerName,
		OwnerEmail:        raw.OwnerEmail,
		Threads:           raw.Threads,
		NewFeedItems:      raw.NewFeedItems,
		Filter:            raw.Filter,
		Exclude:           raw.Exclude,
		FeedTimeout:       raw.FeedTimeout,
		UserAgent:         raw.UserAgent,
		FlushRetries:      raw.FlushRetries,
		ItemsPerPage:      raw.ItemsPerPage,
		DaysPerPage:       raw.DaysPerPage,
		DateFormat:        raw.DateFormat,
		NewDateFormat:     raw.NewDateFormat,
		ActivityThreshold: raw.ActivityThreshold,
		Encoding:          raw.Encoding,
		Offline:           raw.Offline,
		Serve:             raw.Serve,
		Port:              raw.Port,
		APIAccessKey:      raw.APIAccessKey,
		RefreshInterval:   raw.RefreshInterval,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	globalCfg = cfg

	return cfg, nil
}

// Validate rejects configurations no feed work can start from.
func (c *Cfg) Validate() error {
	required := map[string]string{
		"feeds-dir":  c.FeedsDir,
		"cache-dir":  c.CacheDir,
		"output-dir": c.OutputDir,
		"link":       c.Link,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("option --%s is required", name)
		}
	}

	nonNegative := map[string]int{
		"threads":            c.Threads,
		"new-feed-items":     c.NewFeedItems,
		"flush-retries":      c.FlushRetries,
		"items-per-page":     c.ItemsPerPage,
		"days-per-page":      c.DaysPerPage,
		"activity-threshold": c.ActivityThreshold,
	}
	for name, value := range nonNegative {
		if value < 0 {
			return fmt.Errorf("option --%s must be non-negative, got %d", name, value)
		}
	}

	if c.FeedTimeout <= 0 {
		return fmt.Errorf("option --feed-timeout must be positive, got %s", c.FeedTimeout)
	}
	if c.Serve && c.RefreshInterval <= 0 {
		return fmt.Errorf("option --refresh-interval must be positive, got %s", c.RefreshInterval)
	}

	patterns := map[string]string{"filter": c.Filter, "exclude": c.Exclude}
	for name, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if _, err := regexp.Compile("(?i)" + pattern); err != nil {
			return fmt.Errorf("option --%s is not a valid pattern: %w", name, err)
		}
	}

	return nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
