package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rss-planet/app/feed"
	"github.com/lysyi3m/rss-planet/app/planet"
	"github.com/lysyi3m/rss-planet/app/render"
	"github.com/lysyi3m/rss-planet/app/tasks"
)

func NewHandler(p *planet.Planet, site SiteInterface, configCache *feed.ConfigCache,
	scheduler tasks.TaskSchedulerInterface, options Options) *Handler {
	return &Handler{
		planet:      p,
		site:        site,
		configCache: configCache,
		scheduler:   scheduler,
		options:     options,
	}
}

func (h *Handler) GetRSS(c *gin.Context) {
	rss, err := h.site.RSS()
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/rss+xml; charset=utf-8")
	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"feeds":     len(h.planet.Feeds(true)),
	}

	if h.configCache != nil {
		health["loaded_configurations"] = h.configCache.GetConfigCount()
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListFeeds(c *gin.Context) {
	var response []feedResponse
	h.planet.View(func(v planet.Snapshot) {
		feeds := v.Feeds(true)
		infos, _ := render.Channels(feeds, h.options.Info)

		response = make([]feedResponse, 0, len(feeds))
		for _, f := range feeds {
			entry := feedResponse{
				Name:          f.Name(),
				URL:           f.URL(),
				ConfiguredURL: f.ConfiguredURL(),
				Status:        f.Status(),
				Message:       infos[f]["message"],
				Hidden:        f.Hidden(),
				Items:         len(f.Items(true)),
			}
			if updated, ok := f.Updated(); ok {
				entry.Updated = updated.Format(time.RFC3339)
			}
			if lastUpdated, ok := f.LastUpdated(); ok {
				entry.LastUpdated = lastUpdated.Format(time.RFC3339)
			}
			response = append(response, entry)
		}
	})

	c.JSON(http.StatusOK, map[string]interface{}{
		"feeds": response,
		"total": len(response),
	})
}

func (h *Handler) ListItems(c *gin.Context) {
	maxItems, ok := queryInt(c, "max", h.options.ItemsPerPage)
	if !ok {
		return
	}
	maxDays, ok := queryInt(c, "days", h.options.DaysPerPage)
	if !ok {
		return
	}

	var response []itemResponse
	h.planet.View(func(v planet.Snapshot) {
		items := v.Collect(planet.CollectOptions{MaxItems: maxItems, MaxDays: maxDays})

		response = make([]itemResponse, 0, len(items))
		for _, item := range items {
			response = append(response, itemResponse{
				ID:      item.ID(),
				Title:   item.Title(),
				Link:    item.Link(),
				Date:    item.Date().Format(time.RFC3339),
				Feed:    item.Feed().Name(),
				FeedURL: item.Feed().URL(),
			})
		}
	})

	c.JSON(http.StatusOK, map[string]interface{}{
		"items": response,
		"total": len(response),
	})
}

func (h *Handler) APIRefresh(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler not running"})
		return
	}

	task := tasks.NewRefreshPlanetTask(h.planet, h.site)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing refresh task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue refresh task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task": gin.H{
			"id":   task.ID,
			"type": task.Type,
		},
	})
}

func queryInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name + " parameter"})
		return 0, false
	}
	return value, true
}
