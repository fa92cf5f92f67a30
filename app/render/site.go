package render

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lysyi3m/rss-planet/app/planet"
)

type SiteOptions struct {
	Name       string
	Link       string
	OwnerName  string
	OwnerEmail string
	Templates  []string
	RSSFile    string // empty disables the generated RSS document

	ItemsPerPage int
	DaysPerPage  int
	Info         Options
}

// Site renders the planet's current aggregate to every configured target.
type Site struct {
	planet    *planet.Planet
	renderer  *Renderer
	generator *Generator
	options   SiteOptions
}

func NewSite(p *planet.Planet, renderer *Renderer, generator *Generator, options SiteOptions) *Site {
	return &Site{
		planet:    p,
		renderer:  renderer,
		generator: generator,
		options:   options,
	}
}

// Build snapshots the aggregate into the page every template receives and the RSS
// document of the same items.
func (s *Site) Build() (page Page, rss string, err error) {
	info := s.options.Info.withDefaults()

	s.planet.View(func(v planet.Snapshot) {
		items := v.Collect(planet.CollectOptions{
			MaxItems: s.options.ItemsPerPage,
			MaxDays:  s.options.DaysPerPage,
		})

		byFeed, channels := Channels(v.Feeds(false), info)
		page = Page{
			Name:       s.options.Name,
			Link:       s.options.Link,
			OwnerName:  s.options.OwnerName,
			OwnerEmail: s.options.OwnerEmail,
			Feed:       s.feedURL(),
			Generator:  "RSS-Planet/" + s.generator.version,
			Date:       info.Now().UTC().Truncate(time.Second),
			Channels:   channels,
			Items:      Items(items, byFeed, info),
		}
		rss, err = s.generator.Run(page, items)
	})

	return page, rss, err
}

// RSS returns the generated RSS 2.0 document of the current aggregate.
func (s *Site) RSS() (string, error) {
	_, rss, err := s.Build()
	return rss, err
}

// Publish writes every template and the RSS document. Each target fails on its own.
func (s *Site) Publish() error {
	page, rss, rssErr := s.Build()

	var errs []error
	if err := s.renderer.RenderAll(page, s.options.Templates); err != nil {
		errs = append(errs, err)
	}

	if s.options.RSSFile != "" {
		err := rssErr
		if err == nil {
			err = s.renderer.WriteFile(s.options.RSSFile, rss)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to write %s: %w", s.options.RSSFile, err))
		}
	}

	return errors.Join(errs...)
}

func (s *Site) feedURL() string {
	if s.options.RSSFile == "" {
		return ""
	}
	return strings.TrimSuffix(s.options.Link, "/") + "/" + s.options.RSSFile
}
