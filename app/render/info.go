// Package render turns the aggregated feeds and items into output documents.
package render

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ncruces/go-strftime"

	"github.com/lysyi3m/rss-planet/app/feed"
	"github.com/lysyi3m/rss-planet/app/record"
)

// Common date formats, always rendered in UTC.
const (
	TimeFormatISO = "%Y-%m-%dT%H:%M:%S+00:00"
	TimeFormat822 = "%a, %d %b %Y %H:%M:%S +0000"
)

const (
	DefaultDateFormat    = "%B %d, %Y %I:%M %p"
	DefaultNewDateFormat = "%B %d, %Y"
)

// Info is the flat set of values a template sees for one feed or item.
type Info map[string]string

type Options struct {
	DateFormat        string
	NewDateFormat     string
	ActivityThreshold int // days; 0 disables inactivity messages
	Now               func() time.Time
}

func (o Options) withDefaults() Options {
	if o.DateFormat == "" {
		o.DateFormat = DefaultDateFormat
	}
	if o.NewDateFormat == "" {
		o.NewDateFormat = DefaultNewDateFormat
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type attributes interface {
	Names() []string
	Type(name string) record.Type
	Get(name string) (string, bool)
	Date(name string) (time.Time, bool)
}

func templateInfo(r attributes, dateFormat string) Info {
	info := make(Info)
	for _, name := range r.Names() {
		switch r.Type(name) {
		case record.Date:
			date, _ := r.Date(name)
			date = date.UTC()
			info[name] = strftime.Format(dateFormat, date)
			info[name+"_iso"] = strftime.Format(TimeFormatISO, date)
			info[name+"_822"] = strftime.Format(TimeFormat822, date)
		case record.String:
			info[name], _ = r.Get(name)
		}
	}
	if title, ok := info["title"]; ok {
		info["title_plain"] = plainText(title)
	}
	return info
}

func plainText(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		slog.Debug("Failed to strip markup", "error", err)
		return markup
	}
	return doc.Text()
}

// Channels builds the template info of every feed, keyed by feed and in the given order.
func Channels(feeds []*feed.Feed, opts Options) (map[*feed.Feed]Info, []Info) {
	opts = opts.withDefaults()

	var horizon time.Time
	if opts.ActivityThreshold > 0 {
		horizon = opts.Now().Add(-time.Duration(opts.ActivityThreshold) * 24 * time.Hour)
	}

	byFeed := make(map[*feed.Feed]Info, len(feeds))
	list := make([]Info, 0, len(feeds))
	for _, f := range feeds {
		info := templateInfo(f.Record, opts.DateFormat)
		info["url"] = f.URL()
		info["name"] = f.Name()

		if !horizon.IsZero() {
			latest := f.Items(false)
			if len(latest) == 0 || latest[0].Date().Before(horizon) {
				info["message"] = fmt.Sprintf("no activity in %d days", opts.ActivityThreshold)
			}
		}
		if message := statusMessage(f.Status()); message != "" {
			info["message"] = message
		}

		byFeed[f] = info
		list = append(list, info)
	}
	return byFeed, list
}

func statusMessage(status int) string {
	switch {
	case status == http.StatusForbidden:
		return "403: forbidden"
	case status == http.StatusNotFound:
		return "404: not found"
	case status == http.StatusRequestTimeout:
		return "408: request timeout"
	case status == http.StatusGone:
		return "410: gone"
	case status == http.StatusInternalServerError:
		return "internal server error"
	case status >= http.StatusBadRequest:
		return fmt.Sprintf("http status %d", status)
	default:
		return ""
	}
}

// Items builds the template info of the aggregated items. Each item also carries its
// feed's info under channel_ keys, new_date on the first item of a day and new_channel
// whenever the day or the feed changes.
func Items(items []*feed.Item, channels map[*feed.Feed]Info, opts Options) []Info {
	opts = opts.withDefaults()

	list := make([]Info, 0, len(items))
	var prevDay string
	var prevFeed *feed.Feed
	for _, item := range items {
		info := templateInfo(item.Record, opts.DateFormat)
		for k, v := range channels[item.Feed()] {
			info["channel_"+k] = v
		}

		date := item.Date().UTC()
		if day := date.Format(time.DateOnly); day != prevDay {
			prevDay = day
			info["new_date"] = strftime.Format(opts.NewDateFormat, date)
		}
		if _, ok := info["new_date"]; ok || prevFeed != item.Feed() {
			prevFeed = item.Feed()
			info["new_channel"] = item.Feed().URL()
		}

		list = append(list, info)
	}
	return list
}
