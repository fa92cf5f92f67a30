// Package feed keeps the cached state of one subscribed feed and reconciles it with
// freshly fetched entries.
package feed

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/lysyi3m/rss-planet/app/record"
)

const feedRecordID = "feed"

var feedReservedKeys = map[string]bool{
	"url":          true,
	"url_etag":     true,
	"url_modified": true,
	"url_status":   true,
	"name":         true,
	"updated":      true,
	"last_updated": true,
	"next_order":   true,
	"filter":       true,
	"exclude":      true,
	"hidden":       true,
	"keys":         true,
}

// Fetcher retrieves and parses a remote feed. Transport problems are reported through
// FetchResult.Status, never as a panic or error return.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) FetchResult
}

// linker is implemented by stores that can expose their data under another feed URL.
type linker interface {
	Link(url string) error
}

// Feed is the root record of a feed's store and owns the feed's items.
type Feed struct {
	*record.Record

	store      record.Store
	configured string
	options    Options
	filterer   *Filterer

	items   map[string]*Item
	expired []*Item
}

// New builds a feed from its configuration and whatever its store already holds.
func New(store record.Store, config Config, options Options) (*Feed, error) {
	filterer, err := NewFilterer(config.Filter, config.Exclude)
	if err != nil {
		return nil, &ConfigError{Feed: config.URL, Err: err}
	}

	if options.Sanitizer == nil {
		options.Sanitizer = NewSanitizer()
	}
	if options.Now == nil {
		options.Now = time.Now
	}

	f := &Feed{
		Record:     record.New(store, feedRecordID),
		store:      store,
		configured: config.URL,
		options:    options,
		filterer:   filterer,
		items:      make(map[string]*Item),
	}

	if config.Name != "" {
		f.Override("name", config.Name)
	}
	if config.Filter != "" {
		f.Override("filter", config.Filter)
	}
	if config.Exclude != "" {
		f.Override("exclude", config.Exclude)
	}
	if config.Hidden {
		f.Override("hidden", "yes")
	}
	for name, value := range config.Options {
		f.Override(name, value)
	}

	if err := f.Load(); err != nil {
		return nil, &StoreError{URL: config.URL, Err: err}
	}
	if !f.Has("url") {
		f.Set("url", config.URL)
	}
	if !f.Has("next_order") {
		f.Set("next_order", "0")
	}

	ids, err := record.IDs(store, itemPrefix)
	if err != nil {
		return nil, &StoreError{URL: config.URL, Err: err}
	}
	for _, id := range ids {
		item, err := loadItem(f, id)
		if err != nil {
			return nil, &StoreError{URL: config.URL, Err: err}
		}
		f.items[id] = item
	}

	slog.Debug("Feed loaded", "feed", f.Describe(), "items", len(f.items))
	return f, nil
}

// Refresh fetches the feed and folds the result into the cache. The returned error is
// always a *StoreError; fetch failures are reported through Result.Status.
func (f *Feed) Refresh(ctx context.Context, fetcher Fetcher) (Result, error) {
	etag, _ := f.Get("url_etag")
	modified, _ := f.Get("url_modified")

	res := fetcher.Fetch(ctx, FetchRequest{
		URL:       f.URL(),
		ETag:      etag,
		Modified:  modified,
		Timeout:   f.options.Timeout,
		UserAgent: f.options.UserAgent,
	})
	result := Result{Status: res.Status}
	log := slog.With("feed", f.Describe(), "status", res.Status)

	switch {
	case res.Status == http.StatusNotModified:
		log.Debug("Feed unchanged")
		return result, nil

	case res.Status == http.StatusMovedPermanently && len(res.Entries) > 0 && res.URL != "":
		f.move(res.URL)

	case res.Status == http.StatusGone:
		log.Warn("Feed gone")
		f.setStatus(res.Status)
		return result, f.Flush()

	case res.Status == http.StatusRequestTimeout:
		log.Warn("Feed timed out")
		f.setStatus(res.Status)
		return result, nil

	case res.Status >= http.StatusBadRequest:
		log.Error("Error updating feed", "error", res.Err)
		f.setStatus(res.Status)
		return result, nil

	default:
		log.Info("Updating feed", "entries", len(res.Entries))
	}

	f.setStatus(res.Status)
	if res.ETag != "" {
		f.Set("url_etag", res.ETag)
	}
	if res.Modified != "" {
		f.Set("url_modified", res.Modified)
	}

	f.fixEntryDates(res.Entries, res.Info)
	f.updateInfo(res.Info)
	if len(res.Entries) > 0 {
		result.New, result.Expired, result.Seen = f.reconcile(res.Entries)
	}

	return result, f.Flush()
}

func (f *Feed) move(url string) {
	if url == f.URL() {
		return
	}
	slog.Warn("Feed has moved", "feed", f.Describe(), "url", url)

	if l, ok := f.store.(linker); ok {
		if err := l.Link(url); err != nil {
			slog.Debug("Failed to link cache to new URL", "feed", f.Describe(), "error", err)
		}
	}
	f.Set("url", url)
}

func (f *Feed) setStatus(status int) {
	f.Set("url_status", strconv.Itoa(status))
}

// fixEntryDates copies feed-level dates into the entries when the first entry carries
// no date of its own.
func (f *Feed) fixEntryDates(entries []Entry, info Fields) {
	if len(entries) == 0 || hasDate(entries[0]) {
		return
	}

	slog.Warn("Entries have no dates, using dates from the feed itself", "feed", f.Describe())
	for i := range entries {
		dates := make(map[string]time.Time, len(entries[i].Dates)+len(dateKeys))
		for key, date := range entries[i].Dates {
			dates[key] = date
		}
		for _, key := range dateKeys {
			if date, ok := info.Dates[key]; ok {
				if _, present := dates[key]; !present {
					dates[key] = date
				}
			}
		}
		entries[i].Dates = dates
	}
}

func hasDate(entry Entry) bool {
	for _, key := range dateKeys {
		if _, ok := entry.Dates[key]; ok {
			return true
		}
	}
	return false
}

func (f *Feed) updateInfo(info Fields) {
	for key, text := range info.Text {
		if f.acceptsKey(key) {
			f.Set(key, sanitize(f.options.Sanitizer, text))
		}
	}
	for key, date := range info.Dates {
		if f.acceptsKey(key) {
			f.SetDate(key, date)
		}
	}
	for key, person := range info.People {
		if !usableKey(key) {
			continue
		}
		if person.Name != "" && f.acceptsKey(key+"_name") {
			f.Set(key+"_name", person.Name)
		}
		if person.Email != "" && f.acceptsKey(key+"_email") {
			f.Set(key+"_email", person.Email)
		}
	}
}

func (f *Feed) acceptsKey(key string) bool {
	return usableKey(key) && !feedReservedKeys[key] && !f.Pinned(key)
}

func (f *Feed) reconcile(entries []Entry) (created, expired, seen int) {
	if updated, ok := f.Record.Date("updated"); ok {
		f.SetDate("last_updated", updated)
	}
	f.SetDate("updated", f.now())
	firstRun := !f.Has("last_updated")

	current := make(map[string]bool, len(entries))
	var fresh []*Item
	position := 0

	for _, entry := range entries {
		id, ok := f.identify(entry)
		if !ok {
			slog.Error("Unable to find or generate id, entry ignored", "feed", f.Describe())
			continue
		}

		item, exists := f.items[id]
		if !exists {
			if item, exists = f.restore(id); !exists {
				item = newItem(f, id)
				fresh = append(fresh, item)
			}
			f.items[id] = item
		}
		item.Merge(entry, f.options.Sanitizer)
		current[id] = true

		if firstRun && f.options.NewFeedItems > 0 && position >= f.options.NewFeedItems {
			item.Set("hidden", "yes")
			slog.Debug("Marked item as hidden (new feed)", "feed", f.Describe(), "item", id)
		}
		position++
	}

	next := f.nextOrder()
	for i := len(fresh) - 1; i >= 0; i-- {
		next++
		fresh[i].Set("order", strconv.Itoa(next))
	}
	f.Set("next_order", strconv.Itoa(next))

	return len(fresh), f.expire(current), len(current)
}

// expire walks the items newest first. Once every item of the current fetch has been
// passed, the remaining items have fallen off the feed and are queued as tombstones.
func (f *Feed) expire(current map[string]bool) int {
	if len(current) == 0 || f.Status() == StatusIMUsed {
		return 0
	}

	remaining := len(current)
	expired := 0
	for _, item := range f.Items(true) {
		if remaining > 0 {
			if current[item.ID()] {
				remaining--
			}
			continue
		}

		delete(f.items, item.ID())
		item.MarkDeleted()
		f.expired = append(f.expired, item)
		expired++
		slog.Debug("Removed expired or replaced item", "feed", f.Describe(), "item", item.ID())
	}
	return expired
}

// restore takes back an item whose tombstone has not been flushed yet, keeping its order.
func (f *Feed) restore(id string) (*Item, bool) {
	for i, item := range f.expired {
		if item.ID() != id {
			continue
		}
		f.expired = append(f.expired[:i:i], f.expired[i+1:]...)
		item.Restore()
		slog.Debug("Restored expired item", "feed", f.Describe(), "item", id)
		return item, true
	}
	return nil, false
}

func (f *Feed) identify(entry Entry) (string, bool) {
	if id := entry.Text["id"].Value; id != "" {
		return id, true
	}
	if link := entry.Text["link"].Value; link != "" {
		return link, true
	}
	if title := entry.Text["title"].Value; title != "" {
		return f.URL() + "/" + hash(title), true
	}
	if summary := entry.Text["summary"].Value; summary != "" {
		return f.URL() + "/" + hash(summary), true
	}
	return "", false
}

// Flush persists the feed, all of its items and pending tombstones in one batch.
func (f *Feed) Flush() error {
	changes := f.Record.Changes()
	items := f.Items(true)
	for _, item := range items {
		changes = append(changes, item.Changes()...)
	}
	for _, item := range f.expired {
		changes = append(changes, item.Changes()...)
	}
	if len(changes) == 0 {
		return nil
	}

	if err := f.store.Apply(changes); err != nil {
		return &StoreError{URL: f.URL(), Err: err}
	}

	f.Record.Commit()
	for _, item := range items {
		item.Commit()
	}
	for _, item := range f.expired {
		item.Commit()
	}
	f.expired = nil
	return nil
}

// Close releases the feed's store.
func (f *Feed) Close() error {
	return f.store.Close()
}

func (f *Feed) now() time.Time {
	return f.options.Now().UTC()
}

func (f *Feed) nextOrder() int {
	raw, _ := f.Get("next_order")
	next, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return next
}

// URL is the address the feed is fetched from, which may differ from the configured one
// after a permanent redirect.
func (f *Feed) URL() string {
	url, _ := f.Get("url")
	if url == "" {
		return f.configured
	}
	return url
}

func (f *Feed) ConfiguredURL() string {
	return f.configured
}

func (f *Feed) Describe() string {
	url := f.URL()
	if url != f.configured {
		return url + " (formerly " + f.configured + ")"
	}
	return url
}

// Status returns the last fetch status, 0 before the first fetch.
func (f *Feed) Status() int {
	raw, _ := f.Get("url_status")
	status, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return status
}

func (f *Feed) Name() string {
	if name, ok := f.Get("name"); ok {
		return name
	}
	title, _ := f.Get("title")
	return title
}

func (f *Feed) Hidden() bool {
	return f.Has("hidden")
}

func (f *Feed) Updated() (time.Time, bool) {
	return f.Record.Date("updated")
}

func (f *Feed) LastUpdated() (time.Time, bool) {
	return f.Record.Date("last_updated")
}

func (f *Feed) Filterer() *Filterer {
	return f.filterer
}

// Items returns the feed's items newest first. Hidden items are included when hidden is true.
func (f *Feed) Items(hidden bool) []*Item {
	items := make([]*Item, 0, len(f.items))
	for _, item := range f.items {
		if hidden || !item.Hidden() {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(a, b int) bool {
		return Newer(items[a], items[b])
	})
	return items
}

func (f *Feed) Item(id string) (*Item, bool) {
	item, ok := f.items[id]
	return item, ok
}

func (f *Feed) HasItem(id string) bool {
	_, ok := f.items[id]
	return ok
}
