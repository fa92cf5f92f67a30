// Package planet aggregates many feeds into a single, deduplicated, newest-first view.
package planet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/rss-planet/app/feed"
	"github.com/lysyi3m/rss-planet/app/record"
)

const defaultRetryInterval = 500 * time.Millisecond

type Options struct {
	Threads       int
	Filter        string
	Exclude       string
	Offline       bool
	FlushRetries  int
	RetryInterval time.Duration
}

type CollectOptions struct {
	MaxItems int
	MaxDays  int
	Hidden   bool
	// Feeds restricts collection to these feeds. All subscribed feeds are used when empty.
	Feeds []*feed.Feed
}

// Summary describes one RefreshAll run.
type Summary struct {
	RunID     string
	Feeds     int
	Refreshed int
	Skipped   int
	Failed    int
	New       int
	Expired   int
	Duration  time.Duration
}

// Opener opens the backing store of the feed configured at url.
type Opener func(url string) (record.Store, error)

type Planet struct {
	options  Options
	fetcher  feed.Fetcher
	filterer *feed.Filterer

	mu    sync.RWMutex
	feeds []*feed.Feed
}

func New(options Options, fetcher feed.Fetcher) (*Planet, error) {
	filterer, err := feed.NewFilterer(options.Filter, options.Exclude)
	if err != nil {
		return nil, &feed.ConfigError{Feed: "planet", Err: err}
	}
	if options.Threads < 1 {
		options.Threads = 1
	}
	if options.RetryInterval <= 0 {
		options.RetryInterval = defaultRetryInterval
	}

	return &Planet{
		options:  options,
		fetcher:  fetcher,
		filterer: filterer,
	}, nil
}

func (p *Planet) Subscribe(f *feed.Feed) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feeds = append(p.feeds, f)
	subscribedFeeds.Set(float64(len(p.feeds)))
}

// SubscribeConfigs opens and subscribes every configured feed. A feed whose store cannot
// be opened is logged and left out; an invalid configuration aborts.
func (p *Planet) SubscribeConfigs(configs []*feed.Config, open Opener, options feed.Options) error {
	for _, config := range configs {
		store, err := open(config.URL)
		if err != nil {
			slog.Error("Failed to open feed cache", "feed", config.File, "url", config.URL, "error", err)
			continue
		}

		f, err := feed.New(store, *config, options)
		if err != nil {
			store.Close()
			var configErr *feed.ConfigError
			if errors.As(err, &configErr) {
				return err
			}
			slog.Error("Failed to load feed cache", "feed", config.File, "url", config.URL, "error", err)
			continue
		}

		p.Subscribe(f)
	}
	return nil
}

// Feeds returns the subscribed feeds ordered by name, then URL. Hidden feeds are
// included when hidden is true.
func (p *Planet) Feeds(hidden bool) []*feed.Feed {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.feedsLocked(hidden)
}

func (p *Planet) feedsLocked(hidden bool) []*feed.Feed {
	feeds := lo.Filter(p.feeds, func(f *feed.Feed, _ int) bool {
		return hidden || !f.Hidden()
	})
	sort.SliceStable(feeds, func(i, j int) bool {
		if feeds[i].Name() != feeds[j].Name() {
			return feeds[i].Name() < feeds[j].Name()
		}
		return feeds[i].URL() < feeds[j].URL()
	})
	return feeds
}

// RefreshAll refreshes every subscribed feed on a pool of Options.Threads workers. A
// failing feed is logged and never stops the others.
func (p *Planet) RefreshAll(ctx context.Context) Summary {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	summary := Summary{RunID: uuid.New().String(), Feeds: len(p.feeds)}
	log := slog.With("run", summary.RunID)

	if p.options.Offline {
		log.Info("Offline mode, using cached data only", "feeds", len(p.feeds))
		summary.Skipped = len(p.feeds)
		return summary
	}

	log.Info("Refreshing feeds", "feeds", len(p.feeds), "threads", p.options.Threads)

	outcomes := make([]outcome, len(p.feeds))
	var g errgroup.Group
	g.SetLimit(p.options.Threads)
	for i, f := range p.feeds {
		g.Go(func() error {
			outcomes[i] = p.refreshFeed(ctx, f)
			return nil
		})
	}
	g.Wait()

	for _, o := range outcomes {
		switch {
		case o.skipped:
			summary.Skipped++
		case o.failed:
			summary.Failed++
		default:
			summary.Refreshed++
		}
		summary.New += o.result.New
		summary.Expired += o.result.Expired
	}
	summary.Duration = time.Since(start)

	log.Info("Feeds refreshed",
		"refreshed", summary.Refreshed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"new", summary.New,
		"expired", summary.Expired,
		"duration", summary.Duration)
	return summary
}

type outcome struct {
	result  feed.Result
	skipped bool
	failed  bool
}

func (p *Planet) refreshFeed(ctx context.Context, f *feed.Feed) (o outcome) {
	log := slog.With("feed", f.Describe())

	defer func() {
		if r := recover(); r != nil {
			log.Error("Update of feed failed", "status", f.Status(), "error", fmt.Sprint(r))
			feedRefreshFailures.Inc()
			o.failed = true
		}
	}()

	if f.Status() == http.StatusGone {
		log.Debug("Feed is gone, not fetching")
		return outcome{skipped: true}
	}

	start := time.Now()
	result, err := f.Refresh(ctx, p.fetcher)
	feedRefreshDuration.Observe(time.Since(start).Seconds())
	feedRefreshes.WithLabelValues(strconv.Itoa(result.Status)).Inc()
	itemsCreated.Add(float64(result.New))
	itemsExpired.Add(float64(result.Expired))

	o.result = result
	if err == nil {
		return o
	}

	log.Warn("Failed to persist feed, retrying", "status", result.Status, "error", err)
	if err := p.retryFlush(f); err != nil {
		log.Error("Giving up persisting feed", "status", result.Status, "error", err)
		feedRefreshFailures.Inc()
		o.failed = true
	}
	return o
}

func (p *Planet) retryFlush(f *feed.Feed) error {
	if p.options.FlushRetries <= 0 {
		return errors.New("flush retries disabled")
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.options.RetryInterval
	return backoff.Retry(f.Flush, backoff.WithMaxRetries(b, uint64(p.options.FlushRetries)))
}

// Snapshot reads the planet while a View holds its read lock.
type Snapshot struct {
	planet *Planet
}

// Feeds is Planet.Feeds without taking the lock again.
func (s Snapshot) Feeds(hidden bool) []*feed.Feed {
	return s.planet.feedsLocked(hidden)
}

// Collect is Planet.Collect without taking the lock again.
func (s Snapshot) Collect(opts CollectOptions) []*feed.Item {
	return s.planet.collectLocked(opts)
}

// View calls fn with the read lock held. RefreshAll writes feed and item records in
// place, so anything read from them must be read inside fn.
func (p *Planet) View(fn func(Snapshot)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fn(Snapshot{planet: p})
}

// Collect filters, deduplicates, sorts and windows the items of the subscribed feeds.
func (p *Planet) Collect(opts CollectOptions) []*feed.Item {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.collectLocked(opts)
}

func (p *Planet) collectLocked(opts CollectOptions) []*feed.Item {
	feeds := opts.Feeds
	if len(feeds) == 0 {
		feeds = p.feedsLocked(opts.Hidden)
	}

	var candidates []*feed.Item
	for _, f := range feeds {
		items := p.filterer.Run(f.Items(opts.Hidden))
		candidates = append(candidates, f.Filterer().Run(items)...)
	}

	items := lo.UniqBy(candidates, func(item *feed.Item) string {
		return item.ID()
	})
	sort.SliceStable(items, func(i, j int) bool {
		return feed.Newer(items[i], items[j])
	})

	if opts.MaxItems > 0 && len(items) > opts.MaxItems {
		items = items[:opts.MaxItems]
	}

	if opts.MaxDays > 0 && len(items) > 0 {
		cutoff := items[0].Date().Add(-time.Duration(opts.MaxDays) * 24 * time.Hour)
		for i, item := range items {
			if item.Date().Before(cutoff) {
				items = items[:i]
				break
			}
		}
	}

	return items
}

// Close releases the stores of every subscribed feed.
func (p *Planet) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, f := range p.feeds {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", f.Describe(), err))
		}
	}
	return errors.Join(errs...)
}
