package render

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-planet/app/planet"
)

func newTestSite(t *testing.T, output string, templates []string, options SiteOptions) *Site {
	t.Helper()
	p, err := planet.New(planet.Options{}, nil)
	require.NoError(t, err)

	p.Subscribe(newFeed(t, "Beta", "https://beta.example/feed", okResult(
		entry("https://beta.example/1", "Beta one", testNow.Add(-2*time.Hour)),
	)))
	p.Subscribe(newFeed(t, "Alpha", "https://alpha.example/feed", okResult(
		entry("https://alpha.example/1", "Alpha one", testNow.Add(-time.Hour)),
		entry("https://alpha.example/2", "Alpha two", testNow.Add(-3*time.Hour)),
	)))

	options.Name = "Planet"
	options.Link = "https://planet.example/"
	options.Templates = templates
	options.Info.Now = func() time.Time { return testNow }
	return NewSite(p, NewRenderer(output, "", "utf-8"), NewGenerator("1.0.0"), options)
}

func TestSite_Build(t *testing.T) {
	site := newTestSite(t, t.TempDir(), nil, SiteOptions{ItemsPerPage: 2, RSSFile: "rss20.xml"})

	page, rss, err := site.Build()
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "https://alpha.example/1", page.Items[0]["id"])
	assert.Equal(t, "https://beta.example/1", page.Items[1]["id"])
	assert.Contains(t, rss, "<title>Beta: Beta one</title>")
	assert.NotContains(t, rss, "Alpha two")

	assert.Equal(t, "Planet", page.Name)
	assert.Equal(t, "https://planet.example/rss20.xml", page.Feed)
	assert.Equal(t, "RSS-Planet/1.0.0", page.Generator)
	assert.True(t, testNow.Equal(page.Date))

	require.Len(t, page.Channels, 2)
	assert.Equal(t, "Alpha", page.Channels[0]["name"], "channels sorted by name")
	assert.Equal(t, "Beta", page.Items[1]["channel_name"])
}

func TestSite_Publish(t *testing.T) {
	templates := t.TempDir()
	output := t.TempDir()
	index := writeTemplate(t, templates, "index.html.tmpl",
		`{{range .Channels}}[{{.name}}]{{end}}{{range .Items}}<{{.title}}>{{end}}`)

	site := newTestSite(t, output, []string{index}, SiteOptions{RSSFile: "rss20.xml"})
	require.NoError(t, site.Publish())

	html, err := os.ReadFile(filepath.Join(output, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "[Alpha][Beta]<Alpha one><Beta one><Alpha two>", string(html))

	rss, err := os.ReadFile(filepath.Join(output, "rss20.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(rss), "<title>Alpha: Alpha one</title>")

	fromSite, err := site.RSS()
	require.NoError(t, err)
	assert.Equal(t, string(rss), fromSite)
}

func TestSite_PublishWithoutRSS(t *testing.T) {
	output := t.TempDir()
	site := newTestSite(t, output, nil, SiteOptions{})
	require.NoError(t, site.Publish())

	entries, err := os.ReadDir(output)
	require.NoError(t, err)
	assert.Empty(t, entries)

	page, _, err := site.Build()
	require.NoError(t, err)
	assert.Empty(t, page.Feed)
}

func TestSite_BuildDuringRefresh(t *testing.T) {
	fetcher := stubFetcher{result: okResult(
		entry("https://alpha.example/1", "Alpha one", testNow.Add(-time.Hour)),
		entry("https://alpha.example/2", "Alpha two", testNow.Add(-2*time.Hour)),
	)}
	p, err := planet.New(planet.Options{Threads: 2}, fetcher)
	require.NoError(t, err)
	p.Subscribe(newFeed(t, "Alpha", "https://alpha.example/feed", fetcher.result))
	p.Subscribe(newFeed(t, "Beta", "https://beta.example/feed", okResult(
		entry("https://beta.example/1", "Beta one", testNow.Add(-3*time.Hour)),
	)))
	site := NewSite(p, NewRenderer(t.TempDir(), "", "utf-8"), NewGenerator("1.0.0"), SiteOptions{
		Name: "Planet",
		Link: "https://planet.example/",
		Info: Options{Now: func() time.Time { return testNow }},
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 50 {
			p.RefreshAll(context.Background())
		}
	}()

	for {
		select {
		case <-done:
			page, rss, err := site.Build()
			require.NoError(t, err)
			assert.Len(t, page.Channels, 2)
			assert.Contains(t, rss, "Alpha two")
			return
		default:
			_, _, err := site.Build()
			require.NoError(t, err)
		}
	}
}
