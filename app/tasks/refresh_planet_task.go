package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

// PublishError reports that the output could not be written. The cache behind it is
// already up to date, so only the publish needs another attempt.
type PublishError struct {
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish: %v", e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// RefreshPlanetTask refreshes every feed and then publishes the result.
type RefreshPlanetTask struct {
	Task
	refresher Refresher
	publisher Publisher
}

func NewRefreshPlanetTask(refresher Refresher, publisher Publisher) *RefreshPlanetTask {
	return &RefreshPlanetTask{
		Task:      NewTask(TaskTypeRefreshPlanet),
		refresher: refresher,
		publisher: publisher,
	}
}

func (t *RefreshPlanetTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	summary := t.refresher.RefreshAll(ctx)

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := t.publisher.Publish(); err != nil {
		return &PublishError{Err: err}
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"run", summary.RunID,
		"duration", t.GetDuration(),
		"feeds", summary.Feeds,
		"failed", summary.Failed,
		"new", summary.New)

	return nil
}

// PublishSiteTask re-renders the output from the cache without fetching.
type PublishSiteTask struct {
	Task
	publisher Publisher
}

func NewPublishSiteTask(publisher Publisher) *PublishSiteTask {
	return &PublishSiteTask{
		Task:      NewTask(TaskTypePublishSite),
		publisher: publisher,
	}
}

func (t *PublishSiteTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.publisher.Publish(); err != nil {
		return &PublishError{Err: err}
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"duration", t.GetDuration())

	return nil
}
