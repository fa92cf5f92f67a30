package api

import (
	"github.com/lysyi3m/rss-planet/app/feed"
	"github.com/lysyi3m/rss-planet/app/planet"
	"github.com/lysyi3m/rss-planet/app/render"
	"github.com/lysyi3m/rss-planet/app/tasks"
)

type SiteInterface interface {
	RSS() (string, error)
	tasks.Publisher
}

var _ SiteInterface = (*render.Site)(nil)

type Handler struct {
	planet      *planet.Planet
	site        SiteInterface
	configCache *feed.ConfigCache
	scheduler   tasks.TaskSchedulerInterface
	options     Options
}

type Options struct {
	ItemsPerPage int
	DaysPerPage  int
	Info         render.Options
	Version      string
}

type feedResponse struct {
	Name          string `json:"name"`
	URL           string `json:"url"`
	ConfiguredURL string `json:"configured_url"`
	Status        int    `json:"status"`
	Message       string `json:"message,omitempty"`
	Hidden        bool   `json:"hidden"`
	Items         int    `json:"items"`
	Updated       string `json:"updated,omitempty"`
	LastUpdated   string `json:"last_updated,omitempty"`
}

type itemResponse struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Link    string `json:"link"`
	Date    string `json:"date"`
	Feed    string `json:"feed"`
	FeedURL string `json:"feed_url"`
}
