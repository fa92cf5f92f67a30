package record

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_TypesAreTrackedPerAttribute(t *testing.T) {
	r := New(NewMemoryStore(), "feed")

	assert.Equal(t, Absent, r.Type("title"))
	_, ok := r.Get("title")
	assert.False(t, ok, "absent attribute must not read as a string")

	r.Set("title", "")
	assert.Equal(t, String, r.Type("title"))
	title, ok := r.Get("title")
	assert.True(t, ok)
	assert.Equal(t, "", title, "empty string is distinct from absent")

	when := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	r.SetDate("title", when)
	assert.Equal(t, Date, r.Type("title"), "last setter decides the type")
	_, ok = r.Get("title")
	assert.False(t, ok)
	got, ok := r.Date("title")
	assert.True(t, ok)
	assert.True(t, when.Equal(got))

	r.Unset("title")
	assert.Equal(t, Absent, r.Type("title"))
	assert.False(t, r.Has("title"))
}

func TestRecord_FlushWritesOnlyDirtyAttributes(t *testing.T) {
	store := NewMemoryStore()
	r := New(store, "feed")
	r.Set("name", "Planet")
	r.SetDate("updated", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, r.Flush())
	assert.False(t, r.Dirty())

	assert.Empty(t, r.Changes(), "nothing to write after a flush")

	r.Set("name", "Renamed")
	changes := r.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, "feed name", changes[0].Key)
	assert.Equal(t, "s|Renamed", changes[0].Value)
	assert.Equal(t, "feed keys", changes[1].Key)
	assert.Equal(t, "name updated", changes[1].Value)
}

func TestRecord_LoadRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	when := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	w := New(store, "item:abc")
	w.Set("title", "Hello world")
	w.SetDate("date", when)
	require.NoError(t, w.Flush())

	r := New(store, "item:abc")
	require.NoError(t, r.Load())
	title, _ := r.Get("title")
	assert.Equal(t, "Hello world", title)
	date, ok := r.Date("date")
	require.True(t, ok)
	assert.True(t, when.Equal(date))
	assert.False(t, r.Dirty(), "loaded values are not dirty")
}

func TestRecord_LoadKeepsValuesSetInThisRun(t *testing.T) {
	store := NewMemoryStore()
	w := New(store, "feed")
	w.Set("url", "https://old.example.com/feed")
	w.Set("name", "Stored")
	require.NoError(t, w.Flush())

	r := New(store, "feed")
	r.Set("url", "https://new.example.com/feed")
	r.Override("name", "Configured")
	require.NoError(t, r.Load())

	url, _ := r.Get("url")
	assert.Equal(t, "https://new.example.com/feed", url)
	name, _ := r.Get("name")
	assert.Equal(t, "Configured", name)
}

func TestRecord_OverrideIsNeverPersisted(t *testing.T) {
	store := NewMemoryStore()
	r := New(store, "feed")
	r.Override("face", "jdoe.png")
	require.NoError(t, r.Flush())
	assert.Equal(t, 0, store.Len())
}

func TestRecord_UnsetRemovesPersistedForm(t *testing.T) {
	store := NewMemoryStore()
	r := New(store, "feed")
	r.Set("url_etag", "abc")
	r.Set("name", "n")
	require.NoError(t, r.Flush())

	r.Unset("url_etag")
	require.NoError(t, r.Flush())

	_, ok, _ := store.Get("feed url_etag")
	assert.False(t, ok)
	index, _, _ := store.Get("feed keys")
	assert.Equal(t, "name", index)
}

func TestRecord_DeletedRecordIsCleared(t *testing.T) {
	store := NewMemoryStore()
	keep := New(store, "feed")
	keep.Set("name", "n")
	require.NoError(t, keep.Flush())

	r := New(store, "item:x")
	r.Set("title", "t")
	r.Set("link", "l")
	require.NoError(t, r.Flush())

	loaded := New(store, "item:x")
	require.NoError(t, loaded.Load())
	loaded.MarkDeleted()
	require.NoError(t, loaded.Flush())

	keys, _ := store.Keys()
	assert.Equal(t, []string{"feed keys", "feed name"}, keys)
}

func TestRecord_FailedFlushKeepsState(t *testing.T) {
	store := NewMemoryStore()
	r := New(store, "feed")
	r.Set("name", "n")

	store.FailApply = errors.New("disk full")
	err := r.Flush()
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
	assert.True(t, r.Dirty(), "dirty markers survive a failed flush")
	name, _ := r.Get("name")
	assert.Equal(t, "n", name)

	store.FailApply = nil
	require.NoError(t, r.Flush())
	stored, ok, _ := store.Get("feed name")
	assert.True(t, ok)
	assert.Equal(t, "s|n", stored)
}

func TestIDs(t *testing.T) {
	store := NewMemoryStore()
	for _, id := range []string{"item:https://example.com/a", "item:tag:example.com,2024:b c"} {
		r := New(store, id)
		r.Set("title", id)
		require.NoError(t, r.Flush())
	}
	root := New(store, "feed")
	root.Set("name", "n")
	require.NoError(t, root.Flush())

	ids, err := IDs(store, "item:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"https://example.com/a", "tag:example.com,2024:b c"}, ids)
}
