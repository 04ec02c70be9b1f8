package sqlite

import (
	"context"
	"net/http"
	"testing"

	"github.com/rpggio/biodata/internal/offline"
	"github.com/rpggio/biodata/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestCacheStorage_PutAllAndMatch(t *testing.T) {
	db := NewTestDB(t)
	caches := NewCacheStorage(db)
	ctx := context.Background()

	err := caches.PutAll(ctx, "biodata-cache-v1", map[string]*offline.StoredResponse{
		"http://app/":        {URL: "http://app/", Status: 200, Header: http.Header{"Content-Type": {"text/html"}}, Body: []byte("<html>")},
		"http://app/app.css": {URL: "http://app/app.css", Status: 200, Body: []byte("body{}")},
	})
	require.NoError(t, err)

	ok, err := caches.Has(ctx, "biodata-cache-v1")
	require.NoError(t, err)
	require.True(t, ok)

	entry, err := caches.Match(ctx, "biodata-cache-v1", "http://app/")
	require.NoError(t, err)
	require.Equal(t, 200, entry.Status)
	require.Equal(t, "text/html", entry.Header.Get("Content-Type"))
	require.Equal(t, []byte("<html>"), entry.Body)
	require.False(t, entry.StoredAt.IsZero())

	_, err = caches.Match(ctx, "biodata-cache-v1", "http://app/missing.js")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCacheStorage_DeleteCascades(t *testing.T) {
	db := NewTestDB(t)
	caches := NewCacheStorage(db)
	ctx := context.Background()

	require.NoError(t, caches.Put(ctx, "biodata-cache-v1", "http://app/", &offline.StoredResponse{Status: 200, Body: []byte("v1")}))
	require.NoError(t, caches.Put(ctx, "biodata-cache-v2", "http://app/", &offline.StoredResponse{Status: 200, Body: []byte("v2")}))

	names, err := caches.Keys(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"biodata-cache-v1", "biodata-cache-v2"}, names)

	deleted, err := caches.Delete(ctx, "biodata-cache-v1")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = caches.Delete(ctx, "biodata-cache-v1")
	require.NoError(t, err)
	require.False(t, deleted)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM cache_entries WHERE bucket = ?`, "biodata-cache-v1").Scan(&count))
	require.Equal(t, 0, count)

	entry, err := caches.Match(ctx, "biodata-cache-v2", "http://app/")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), entry.Body)
}

func TestCacheStorage_PutOverwrites(t *testing.T) {
	db := NewTestDB(t)
	caches := NewCacheStorage(db)
	ctx := context.Background()

	require.NoError(t, caches.Put(ctx, "b", "http://app/x", &offline.StoredResponse{Status: 200, Body: []byte("old")}))
	require.NoError(t, caches.Put(ctx, "b", "http://app/x", &offline.StoredResponse{Status: 200, Body: []byte("new")}))

	entry, err := caches.Match(ctx, "b", "http://app/x")
	require.NoError(t, err)
	require.Equal(t, []byte("new"), entry.Body)
}
