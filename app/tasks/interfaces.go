package tasks

import (
	"context"

	"github.com/lysyi3m/rss-planet/app/planet"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to keep the planet fresh in serve mode.
// Example usage:
//
//	scheduler := NewScheduler(p, site, interval)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewPublishSiteTask(site))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// Refresher refreshes every subscribed feed. Implemented by *planet.Planet.
type Refresher interface {
	RefreshAll(ctx context.Context) planet.Summary
}

// Publisher writes the rendered output. Implemented by *render.Site.
type Publisher interface {
	Publish() error
}
