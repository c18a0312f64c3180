package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pyprovision/internal/fault"
)

func TestFetch_WritesBodyAndCreatesParents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/releases/download/20241219/archive.tar.gz", r.URL.Path)
		w.Write([]byte("archive-bytes"))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "nested", "cache", "archive.tar.gz")
	c := NewClientWith(srv.Client())

	err := c.Fetch(context.Background(), srv.URL+"/releases/download/20241219/archive.tar.gz", dst)
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))
	assertNoPartials(t, filepath.Dir(dst))
}

func TestFetch_RemovesStalePartialDownloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("archive-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dst := filepath.Join(dir, "archive.tar.gz")
	stale := filepath.Join(dir, ".archive.tar.gz.part-0f8fad5b-d9cb-469f-a165-70867728950e")
	other := filepath.Join(dir, ".other.tar.gz.part-7c9e6679-7425-40de-944b-e07fc1f90ae7")
	require.NoError(t, os.WriteFile(stale, []byte("half"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("half"), 0o644))

	require.NoError(t, NewClientWith(srv.Client()).Fetch(context.Background(), srv.URL, dst))

	assert.NoFileExists(t, stale)
	assert.FileExists(t, other, "partials of other archives are left alone")
	assert.FileExists(t, dst)
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "archive.tar.gz")
	err := NewClientWith(srv.Client()).Fetch(context.Background(), srv.URL+"/missing", dst)

	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrNetwork)
	assert.ErrorContains(t, err, "404")
	assert.NoFileExists(t, dst)
}

func TestFetch_TruncatedBodyLeavesNoDestination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Promise more bytes than are sent so the client sees an unexpected EOF.
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("short"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dst := filepath.Join(dir, "archive.tar.gz")
	err := NewClientWith(srv.Client()).Fetch(context.Background(), srv.URL, dst)

	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrNetwork)
	assert.NoFileExists(t, dst)
	assertNoPartials(t, dir)
}

func TestFetch_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewClient(0).Fetch(context.Background(), url+"/a.tar.gz", filepath.Join(t.TempDir(), "a.tar.gz"))
	assert.ErrorIs(t, err, fault.ErrNetwork)
}

func TestFetch_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewClientWith(srv.Client()).Fetch(ctx, srv.URL, filepath.Join(t.TempDir(), "a"))
	assert.ErrorIs(t, err, context.Canceled)
}

func assertNoPartials(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".*.part-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
