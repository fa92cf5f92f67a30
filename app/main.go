package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/rss-planet/app/api"
	"github.com/lysyi3m/rss-planet/app/cfg"
	"github.com/lysyi3m/rss-planet/app/database"
	"github.com/lysyi3m/rss-planet/app/feed"
	"github.com/lysyi3m/rss-planet/app/planet"
	"github.com/lysyi3m/rss-planet/app/record"
	"github.com/lysyi3m/rss-planet/app/render"
	"github.com/lysyi3m/rss-planet/app/tasks"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	config, err := cfg.Load()
	if err != nil {
		return err
	}
	if config == nil {
		// Help was shown
		return nil
	}

	setupLogging(config.Debug)
	slog.Info("Starting RSS Planet", "version", config.Version, "feeds_dir", config.FeedsDir, "cache_dir", config.CacheDir)

	configCache := feed.NewConfigCache(config.FeedsDir)
	if err := configCache.Run(); err != nil {
		return fmt.Errorf("failed to load feed configurations: %w", err)
	}
	slog.Info("Feed configurations loaded", "count", configCache.GetConfigCount())

	fetcher := feed.NewHTTPFetcher(&http.Client{Timeout: config.FeedTimeout}, feed.NewParser())
	p, err := planet.New(planet.Options{
		Threads:      config.Threads,
		Filter:       config.Filter,
		Exclude:      config.Exclude,
		Offline:      config.Offline,
		FlushRetries: config.FlushRetries,
	}, fetcher)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			slog.Error("Failed to close feed caches", "error", err)
		}
	}()

	open := func(url string) (record.Store, error) {
		return database.Open(config.CacheDir, url)
	}
	feedOptions := feed.Options{
		NewFeedItems: config.NewFeedItems,
		Timeout:      config.FeedTimeout,
		UserAgent:    config.UserAgent,
	}
	if err := p.SubscribeConfigs(configCache.GetEnabledConfigs(), open, feedOptions); err != nil {
		return err
	}

	info := render.Options{
		DateFormat:        config.DateFormat,
		NewDateFormat:     config.NewDateFormat,
		ActivityThreshold: config.ActivityThreshold,
	}
	site := render.NewSite(p,
		render.NewRenderer(config.OutputDir, config.DateFormat, config.Encoding),
		render.NewGenerator(config.Version),
		render.SiteOptions{
			Name:         config.Name,
			Link:         config.Link,
			OwnerName:    config.OwnerName,
			OwnerEmail:   config.OwnerEmail,
			Templates:    config.Templates,
			RSSFile:      config.RSSFile,
			ItemsPerPage: config.ItemsPerPage,
			DaysPerPage:  config.DaysPerPage,
			Info:         info,
		})

	if !config.Serve {
		task := tasks.NewRefreshPlanetTask(p, site)
		task.Start()
		err := task.Execute(context.Background())
		var publishErr *tasks.PublishError
		if errors.As(err, &publishErr) {
			slog.Error("Failed to publish site", "error", publishErr.Err)
			return nil
		}
		return err
	}

	return serve(config, p, site, configCache, info)
}

func serve(config *cfg.Cfg, p *planet.Planet, site *render.Site, configCache *feed.ConfigCache, info render.Options) error {
	slog.Info("Starting background scheduler", "interval", config.RefreshInterval)
	scheduler := tasks.NewScheduler(p, site, config.RefreshInterval)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(p, site, configCache, scheduler, api.Options{
		ItemsPerPage: config.ItemsPerPage,
		DaysPerPage:  config.DaysPerPage,
		Info:         info,
		Version:      config.Version,
	})

	httpServer := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      api.NewServer(handler, config.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", config.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case serveErr = <-serverErrChan:
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	return serveErr
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
