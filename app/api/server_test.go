package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-planet/app/feed"
	"github.com/lysyi3m/rss-planet/app/planet"
	"github.com/lysyi3m/rss-planet/app/record"
	"github.com/lysyi3m/rss-planet/app/tasks"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeSite struct {
	rss       string
	err       error
	published int
}

func (s *fakeSite) RSS() (string, error) {
	return s.rss, s.err
}

func (s *fakeSite) Publish() error {
	s.published++
	return nil
}

type fakeScheduler struct {
	queued []tasks.TaskInterface
	err    error
}

func (s *fakeScheduler) Start() {}
func (s *fakeScheduler) Stop()  {}

func (s *fakeScheduler) EnqueueTask(task tasks.TaskInterface) error {
	if s.err != nil {
		return s.err
	}
	s.queued = append(s.queued, task)
	return nil
}

type fixedFetcher map[string]feed.FetchResult

func (f fixedFetcher) Fetch(_ context.Context, req feed.FetchRequest) feed.FetchResult {
	if res, ok := f[req.URL]; ok {
		return res
	}
	return feed.FetchResult{Status: http.StatusNotFound}
}

func entry(id, title string, published time.Time) feed.Entry {
	return feed.Entry{Fields: feed.Fields{
		Text:  map[string]feed.Text{"id": {Value: id}, "title": {Value: title}, "link": {Value: id}},
		Dates: map[string]time.Time{"published": published},
	}}
}

func newTestPlanet(t *testing.T) *planet.Planet {
	t.Helper()
	fetcher := fixedFetcher{
		"https://alpha.example/feed": {Status: http.StatusOK, Entries: []feed.Entry{
			entry("https://alpha.example/1", "Alpha one", testNow.Add(-time.Hour)),
			entry("https://alpha.example/2", "Alpha two", testNow.Add(-50*time.Hour)),
		}},
		"https://beta.example/feed": {Status: http.StatusOK, Entries: []feed.Entry{
			entry("https://beta.example/1", "Beta one", testNow.Add(-2*time.Hour)),
		}},
	}

	p, err := planet.New(planet.Options{}, fetcher)
	require.NoError(t, err)

	configs := []feed.Config{
		{URL: "https://alpha.example/feed", Name: "Alpha"},
		{URL: "https://beta.example/feed", Name: "Beta"},
		{URL: "https://gone.example/feed", Name: "Gone"},
	}
	for _, config := range configs {
		f, err := feed.New(record.NewMemoryStore(), config, feed.Options{Now: func() time.Time { return testNow }})
		require.NoError(t, err)
		p.Subscribe(f)
	}
	p.RefreshAll(context.Background())
	return p
}

func newTestServer(t *testing.T, site *fakeSite, scheduler tasks.TaskSchedulerInterface, apiKey string) http.Handler {
	t.Helper()
	handler := NewHandler(newTestPlanet(t), site, nil, scheduler, Options{ItemsPerPage: 60, Version: "test"})
	return NewServer(handler, apiKey)
}

func get(t *testing.T, server http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestServer_Root(t *testing.T) {
	w := get(t, newTestServer(t, &fakeSite{}, nil, ""), "/")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Service   string            `json:"service"`
		Version   string            `json:"version"`
		Endpoints map[string]string `json:"endpoints"`
	}
	decode(t, w, &body)
	assert.Equal(t, "RSS Planet", body.Service)
	assert.Equal(t, "test", body.Version)
	assert.Contains(t, body.Endpoints, "items")
	assert.NotContains(t, body.Endpoints, "refresh")
}

func TestServer_Health(t *testing.T) {
	w := get(t, newTestServer(t, &fakeSite{}, nil, ""), "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	decode(t, w, &body)
	assert.EqualValues(t, 3, body["feeds"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestServer_Feeds(t *testing.T) {
	w := get(t, newTestServer(t, &fakeSite{}, nil, ""), "/feeds")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Feeds []feedResponse `json:"feeds"`
		Total int            `json:"total"`
	}
	decode(t, w, &body)
	require.Equal(t, 3, body.Total)

	assert.Equal(t, "Alpha", body.Feeds[0].Name)
	assert.Equal(t, http.StatusOK, body.Feeds[0].Status)
	assert.Equal(t, 2, body.Feeds[0].Items)
	assert.Equal(t, "2024-06-01T12:00:00Z", body.Feeds[0].Updated)

	assert.Equal(t, "Gone", body.Feeds[2].Name)
	assert.Equal(t, http.StatusNotFound, body.Feeds[2].Status)
	assert.Equal(t, "404: not found", body.Feeds[2].Message)
}

func TestServer_Items(t *testing.T) {
	server := newTestServer(t, &fakeSite{}, nil, "")

	tests := []struct {
		target   string
		expected []string
	}{
		{"/items", []string{"https://alpha.example/1", "https://beta.example/1", "https://alpha.example/2"}},
		{"/items?max=2", []string{"https://alpha.example/1", "https://beta.example/1"}},
		{"/items?days=1", []string{"https://alpha.example/1", "https://beta.example/1"}},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := get(t, server, tt.target)
			require.Equal(t, http.StatusOK, w.Code)

			var body struct {
				Items []itemResponse `json:"items"`
			}
			decode(t, w, &body)

			ids := make([]string, 0, len(body.Items))
			for _, item := range body.Items {
				ids = append(ids, item.ID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}

	assert.Equal(t, http.StatusBadRequest, get(t, server, "/items?max=lots").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, server, "/items?days=-1").Code)
}

func TestServer_RSS(t *testing.T) {
	w := get(t, newTestServer(t, &fakeSite{rss: "<rss/>"}, nil, ""), "/rss")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<rss/>", w.Body.String())
	assert.Equal(t, "application/rss+xml; charset=utf-8", w.Header().Get("Content-Type"))

	w = get(t, newTestServer(t, &fakeSite{err: errors.New("boom")}, nil, ""), "/rss")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestServer_Metrics(t *testing.T) {
	w := get(t, newTestServer(t, &fakeSite{}, nil, ""), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "planet_feed_refreshes_total")
}

func TestServer_Refresh(t *testing.T) {
	scheduler := &fakeScheduler{}
	server := newTestServer(t, &fakeSite{}, scheduler, "secret")

	post := func(header, value string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/refresh", nil)
		if header != "" {
			req.Header.Set(header, value)
		}
		server.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, post("", "").Code)
	assert.Equal(t, http.StatusUnauthorized, post("X-API-Key", "wrong").Code)
	assert.Empty(t, scheduler.queued)

	assert.Equal(t, http.StatusAccepted, post("X-API-Key", "secret").Code)
	assert.Equal(t, http.StatusAccepted, post("Authorization", "Bearer secret").Code)
	require.Len(t, scheduler.queued, 2)
	assert.Equal(t, tasks.TaskTypeRefreshPlanet, scheduler.queued[0].GetType())

	scheduler.err = errors.New("task queue is full")
	assert.Equal(t, http.StatusInternalServerError, post("X-API-Key", "secret").Code)
}

func TestServer_RefreshDisabledWithoutKey(t *testing.T) {
	server := newTestServer(t, &fakeSite{}, &fakeScheduler{}, "")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
