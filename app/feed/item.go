package feed

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/lysyi3m/rss-planet/app/record"
)

const itemPrefix = "item:"

// dateKeys lists the entry dates that can provide a sort date, in priority order.
var dateKeys = []string{"updated", "modified", "published", "issued", "created"}

var ignoredKeys = map[string]bool{
	"categories":   true,
	"contributors": true,
	"enclosures":   true,
	"links":        true,
	"guidislink":   true,
	"date":         true,
	"tags":         true,
	"id":           true,
	"id_hash":      true,
	"order":        true,
	"hidden":       true,
	"keys":         true,
}

// Item is one entry of a Feed, stored in the feed's store.
type Item struct {
	*record.Record
	feed *Feed
}

func newItem(f *Feed, id string) *Item {
	item := &Item{Record: record.New(f.store, itemPrefix+id), feed: f}
	item.Set("id", id)
	item.Set("id_hash", hash(id))
	return item
}

func loadItem(f *Feed, id string) (*Item, error) {
	item := &Item{Record: record.New(f.store, itemPrefix+id), feed: f}
	if err := item.Load(); err != nil {
		return nil, err
	}
	if !item.Has("id") {
		item.Set("id", id)
		item.Set("id_hash", hash(id))
	}
	return item, nil
}

// Feed returns the feed the item belongs to.
func (i *Item) Feed() *Feed {
	return i.feed
}

// Merge folds a fetched entry into the item and recomputes its sort date, which is
// returned.
func (i *Item) Merge(entry Entry, sanitizer Sanitizer) time.Time {
	language, _ := i.feed.Get("language")

	for key, text := range entry.Text {
		if !usableKey(key) {
			continue
		}
		i.Set(key, sanitize(sanitizer, text))
		i.setLanguage(key, text.Language, language)
	}

	for key, date := range entry.Dates {
		if !usableKey(key) {
			continue
		}
		i.SetDate(key, date)
	}

	for key, person := range entry.People {
		if !usableKey(key) {
			continue
		}
		i.setOptional(key+"_name", person.Name)
		i.setOptional(key+"_email", person.Email)
	}

	if entry.Source != nil {
		i.setOptional("source_name", entry.Source.Name)
		i.setOptional("source_link", entry.Source.Link)
	}

	if len(entry.Content) > 0 {
		var content strings.Builder
		for _, variant := range entry.Content {
			content.WriteString(sanitize(sanitizer, variant))
		}
		i.Set("content", content.String())
		i.setLanguage("content", entry.Content[0].Language, language)
	}

	return i.updateDate(entry)
}

// updateDate is the only writer of the sort date.
func (i *Item) updateDate(entry Entry) time.Time {
	updated, ok := i.feed.Date("updated")
	if !ok {
		updated = i.feed.now()
	}

	date := updated
	for _, key := range dateKeys {
		if claimed, found := entry.Dates[key]; found {
			if claimed.Before(updated) {
				date = claimed
			}
			break
		}
	}

	i.SetDate("date", date)
	stored, _ := i.Record.Date("date")
	return stored
}

func (i *Item) setLanguage(key, itemLanguage, feedLanguage string) {
	name := key + "_language"
	if itemLanguage != "" && itemLanguage != feedLanguage {
		i.Set(name, itemLanguage)
		return
	}
	if i.Has(name) {
		i.Unset(name)
	}
}

func (i *Item) setOptional(name, value string) {
	if value == "" {
		return
	}
	i.Set(name, value)
}

func (i *Item) ID() string {
	id, _ := i.Get("id")
	return id
}

func (i *Item) IDHash() string {
	h, _ := i.Get("id_hash")
	return h
}

// Date returns the sort date.
func (i *Item) Date() time.Time {
	date, _ := i.Record.Date("date")
	return date
}

func (i *Item) Order() int {
	raw, _ := i.Get("order")
	order, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return order
}

func (i *Item) Hidden() bool {
	return i.Has("hidden")
}

func (i *Item) Title() string {
	title, _ := i.Get("title")
	return title
}

func (i *Item) Link() string {
	link, _ := i.Get("link")
	return link
}

// Content returns the richest body available.
func (i *Item) Content() string {
	for _, key := range []string{"content", "tagline", "summary"} {
		if value, ok := i.Get(key); ok {
			return value
		}
	}
	return ""
}

// Newer orders items by (sort date, order) descending.
func Newer(a, b *Item) bool {
	da, db := a.Date(), b.Date()
	if !da.Equal(db) {
		return da.After(db)
	}
	return a.Order() > b.Order()
}

func usableKey(key string) bool {
	return key != "" && !ignoredKeys[key] && !strings.ContainsAny(key, " \t\n")
}

func sanitize(sanitizer Sanitizer, text Text) string {
	if sanitizer == nil {
		return text.Value
	}
	return sanitizer.Sanitize(text.Value, text.Type)
}

func hash(value string) string {
	sum := md5.Sum([]byte(value))
	return hex.EncodeToString(sum[:])
}
