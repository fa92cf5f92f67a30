package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-planet/app/record"
)

func newMergeFeed(t *testing.T) (*Feed, time.Time) {
	t.Helper()
	clock := newTestClock()
	f := newTestFeed(t, record.NewMemoryStore(), clock, 0)
	f.SetDate("updated", clock.now)
	f.Set("language", "en")
	return f, clock.now
}

func TestItem_MergeFlattensEntry(t *testing.T) {
	f, _ := newMergeFeed(t)
	item := newItem(f, "post-1")

	item.Merge(Entry{
		Fields: Fields{
			Text: map[string]Text{
				"title":      {Value: "Hello <b>world</b>", Type: TypeHTML},
				"summary":    {Value: "1 < 2", Type: TypePlain},
				"link":       {Value: "https://example.com/1"},
				"comments":   {Value: "https://example.com/1#c", Language: "de"},
				"categories": {Value: "ignored"},
				"order":      {Value: "999"},
			},
			People: map[string]Person{
				"author": {Name: "Jane", Email: "jane@example.com"},
			},
		},
		Content: []Text{
			{Value: "<p>one</p>", Type: TypeHTML, Language: "fr"},
			{Value: "<script>x()</script><p>two</p>", Type: TypeHTML},
		},
		Source: &Source{Name: "Origin", Link: "https://origin.example.com/"},
	}, f.options.Sanitizer)

	assert.Equal(t, "post-1", item.ID())
	assert.Equal(t, hash("post-1"), item.IDHash())
	assert.Equal(t, "Hello <b>world</b>", item.Title())
	summary, _ := item.Get("summary")
	assert.Equal(t, "1 &lt; 2", summary)
	assert.Equal(t, "https://example.com/1", item.Link())

	lang, _ := item.Get("comments_language")
	assert.Equal(t, "de", lang)
	assert.False(t, item.Has("title_language"), "same language as the feed is not repeated")

	name, _ := item.Get("author_name")
	email, _ := item.Get("author_email")
	assert.Equal(t, "Jane", name)
	assert.Equal(t, "jane@example.com", email)

	sourceName, _ := item.Get("source_name")
	sourceLink, _ := item.Get("source_link")
	assert.Equal(t, "Origin", sourceName)
	assert.Equal(t, "https://origin.example.com/", sourceLink)

	assert.Equal(t, "<p>one</p><p>two</p>", item.Content())
	contentLang, _ := item.Get("content_language")
	assert.Equal(t, "fr", contentLang)

	assert.False(t, item.Has("categories"))
	assert.False(t, item.Has("order"), "reserved names are never taken from entries")
}

func TestItem_MergeSetsSortDate(t *testing.T) {
	tests := []struct {
		name     string
		dates    map[string]time.Time
		expected func(updated time.Time) time.Time
	}{
		{
			name:     "no dates uses feed clock",
			dates:    nil,
			expected: func(updated time.Time) time.Time { return updated },
		},
		{
			name:     "future date is clamped",
			dates:    map[string]time.Time{"published": time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)},
			expected: func(updated time.Time) time.Time { return updated },
		},
		{
			name:     "past date is kept",
			dates:    map[string]time.Time{"published": time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
			expected: func(time.Time) time.Time { return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC) },
		},
		{
			name: "updated outranks published",
			dates: map[string]time.Time{
				"published": time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
				"updated":   time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			expected: func(time.Time) time.Time { return time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC) },
		},
		{
			name:     "unknown date keys are not sort dates",
			dates:    map[string]time.Time{"expires": time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
			expected: func(updated time.Time) time.Time { return updated },
		},
		{
			name: "low side is not clamped",
			dates: map[string]time.Time{
				"created": time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC),
			},
			expected: func(time.Time) time.Time { return time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, updated := newMergeFeed(t)
			item := newItem(f, "x")

			got := item.Merge(Entry{Fields: Fields{Dates: tt.dates}}, nil)

			want := tt.expected(updated)
			assert.True(t, want.Equal(got), "returned %v, want %v", got, want)
			assert.True(t, want.Equal(item.Date()), "stored %v, want %v", item.Date(), want)
			assert.Equal(t, record.Date, item.Type("date"))
		})
	}
}

func TestItem_LanguageIsClearedWhenItMatchesAgain(t *testing.T) {
	f, _ := newMergeFeed(t)
	item := newItem(f, "x")

	item.Merge(Entry{Fields: Fields{Text: map[string]Text{"title": {Value: "Hallo", Language: "de"}}}}, nil)
	require.True(t, item.Has("title_language"))

	item.Merge(Entry{Fields: Fields{Text: map[string]Text{"title": {Value: "Hello", Language: "en"}}}}, nil)
	assert.False(t, item.Has("title_language"))
}

func TestNewer(t *testing.T) {
	f, now := newMergeFeed(t)
	a := newItem(f, "a")
	a.SetDate("date", now)
	a.Set("order", "1")
	b := newItem(f, "b")
	b.SetDate("date", now)
	b.Set("order", "2")
	c := newItem(f, "c")
	c.SetDate("date", now.Add(-time.Minute))
	c.Set("order", "9")

	assert.True(t, Newer(b, a), "higher order wins on equal dates")
	assert.False(t, Newer(a, b))
	assert.True(t, Newer(a, c), "date decides first")
}
