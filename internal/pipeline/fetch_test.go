package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pixelcut-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{UserAgent: "pixelcut-test"})
	data, err := f.Fetch(context.Background(), srv.URL+"/cat.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), data)
}

func TestHTTPFetcher_Non2xxIsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewHTTPFetcher(HTTPFetcherConfig{}).Fetch(context.Background(), srv.URL+"/missing.png")
	require.ErrorIs(t, err, ErrUpstreamFetch)
	assert.Contains(t, err.Error(), "status=404")
	assert.Equal(t, KindUpstreamFetch, KindOf(err))
}

func TestHTTPFetcher_UnreachableIsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewHTTPFetcher(HTTPFetcherConfig{}).Fetch(context.Background(), addr+"/gone.png")
	assert.ErrorIs(t, err, ErrUpstreamFetch)
}

func TestHTTPFetcher_SizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(HTTPFetcherConfig{MaxBytes: 32}).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrSourceTooLarge)

	data, err := NewHTTPFetcher(HTTPFetcherConfig{MaxBytes: 64}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, data, 64)
}

func TestLocalFileFetcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.png")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	data, err := LocalFileFetcher{}.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	_, err = LocalFileFetcher{}.Fetch(context.Background(), path+".missing")
	assert.Error(t, err)
}
