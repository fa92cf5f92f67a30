package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	taskTimeout   = 30 * time.Minute
	maxRetryDelay = 30 * time.Second
)

// Scheduler refreshes the planet every interval. Tasks run one at a time, so a refresh
// never overlaps another refresh or a publish.
type Scheduler struct {
	refresher Refresher
	publisher Publisher
	interval  time.Duration
	retryBase time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface
}

func NewScheduler(refresher Refresher, publisher Publisher, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		refresher: refresher,
		publisher: publisher,
		interval:  interval,
		retryBase: time.Second,
		ctx:       ctx,
		cancel:    cancel,
		taskQueue: make(chan TaskInterface, 8),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.worker()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueRefresh()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueRefresh()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueRefresh() {
	task := NewRefreshPlanetTask(s.refresher, s.publisher)
	if err := s.EnqueueTask(task); err != nil {
		slog.Warn("Failed to enqueue RefreshPlanetTask", "id", task.GetID(), "error", err)
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Task execution failed", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	var publishErr *PublishError
	if errors.As(err, &publishErr) && task.GetType() != TaskTypePublishSite {
		task = NewPublishSiteTask(s.publisher)
	}

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	s.scheduleRetry(task)
}

func (s *Scheduler) scheduleRetry(task TaskInterface) {
	task.IncrementRetryCount()
	retryDelay := s.retryBase << uint(task.GetRetryCount()-1)
	if retryDelay > maxRetryDelay {
		retryDelay = maxRetryDelay
	}

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-time.After(retryDelay):
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}
