package crawler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msneto/crawler-to-md/internal/config"
	"github.com/msneto/crawler-to-md/internal/fetcher"
	"github.com/msneto/crawler-to-md/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(t *testing.T) *fetcher.Client {
	t.Helper()
	client, err := fetcher.New(fetcher.Options{
		Timeout:      2 * time.Second,
		MaxRetries:   0,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func newCrawler(t *testing.T, store storage.Store, fetch Fetcher, opts *config.Options) *Crawler {
	t.Helper()
	c, err := New(store, fetch, opts, testLogger())
	require.NoError(t, err)
	return c
}

// stubFetcher lets tests script fetch outcomes per URL and run.
type stubFetcher struct {
	fn func(url string) (*fetcher.Response, error)
}

func (s stubFetcher) Get(_ context.Context, url string) (*fetcher.Response, error) {
	return s.fn(url)
}

func htmlResponse(body string) *fetcher.Response {
	return &fetcher.Response{
		StatusCode:  http.StatusOK,
		Status:      "200 OK",
		ContentType: "text/html",
		Body:        []byte(body),
	}
}

func TestSinglePageCrawl(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Test</title></head><body><p>Hello</p></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := storage.NewMemStore()
	opts := config.Default()
	opts.BaseURL = srv.URL + "/page"

	c := newCrawler(t, store, testClient(t), opts)
	require.NoError(t, c.Start(context.Background()))

	link, err := store.GetLink(srv.URL + "/page")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.True(t, link.Visited)
	assert.Equal(t, 0, link.RetryCount)

	page, err := store.GetPage(srv.URL + "/page")
	require.NoError(t, err)
	require.NotNil(t, page)
	require.NotNil(t, page.Content)
	assert.Contains(t, *page.Content, "Hello")
	assert.Contains(t, page.Metadata, `"title":"Test"`)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Succeeded)
}

func TestDiscoveryWithExclude(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>
			<a href="/page1">one</a>
			<a href="/exclude/page">hidden</a>
			<a href="/page2">two</a>
			<p>index</p></body></html>`))
	})
	mux.HandleFunc("/page1", servePlainPage)
	mux.HandleFunc("/page2", servePlainPage)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := storage.NewMemStore()
	opts := config.Default()
	opts.BaseURL = srv.URL
	opts.ExcludePatterns = []string{"/exclude"}

	c := newCrawler(t, store, testClient(t), opts)
	require.NoError(t, c.Start(context.Background()))

	links, err := store.Links()
	require.NoError(t, err)

	var urls []string
	for _, link := range links {
		urls = append(urls, link.URL)
		assert.True(t, link.Visited, "frontier must be drained")
	}
	assert.ElementsMatch(t, []string{
		srv.URL,
		srv.URL + "/page1",
		srv.URL + "/page2",
	}, urls, "the excluded URL must never enter the frontier")
}

func servePlainPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(`<html><head><title>P</title></head><body><p>content</p></body></html>`))
}

func TestRetryOnTransientFailure(t *testing.T) {
	store := storage.NewMemStore()
	target := "http://example.com/x"

	opts := config.Default()
	opts.BaseURL = target

	// First run: the fetch fails with a network error.
	failing := stubFetcher{fn: func(string) (*fetcher.Response, error) {
		return nil, errors.New("connection reset by peer")
	}}
	c := newCrawler(t, store, failing, opts)
	require.NoError(t, c.Start(context.Background()))

	link, err := store.GetLink(target)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.True(t, link.Visited)
	assert.Equal(t, 1, link.RetryCount)

	page, err := store.GetPage(target)
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Nil(t, page.Content)
	assert.Contains(t, page.Metadata, `"scrape_status":"failed"`)
	assert.Contains(t, page.Metadata, `"error_type":"NetworkError"`)

	// Second run: the server recovered. The failed URL is requeued
	// and scraped; its retry count resets.
	working := stubFetcher{fn: func(string) (*fetcher.Response, error) {
		return htmlResponse(`<html><head><title>X</title></head><body><p>back up</p></body></html>`), nil
	}}
	c = newCrawler(t, store, working, opts)
	require.NoError(t, c.Start(context.Background()))

	link, err = store.GetLink(target)
	require.NoError(t, err)
	assert.True(t, link.Visited)
	assert.Equal(t, 0, link.RetryCount)

	page, err = store.GetPage(target)
	require.NoError(t, err)
	require.NotNil(t, page.Content)
	assert.Contains(t, *page.Content, "back up")
}

func TestExhaustedRetriesAreNotRequeued(t *testing.T) {
	store := storage.NewMemStore()
	target := "http://example.com/x"

	opts := config.Default()
	opts.BaseURL = target
	opts.MaxRetries = 2

	failing := stubFetcher{fn: func(string) (*fetcher.Response, error) {
		return nil, errors.New("connection refused")
	}}

	for i := 1; i <= 3; i++ {
		c := newCrawler(t, store, failing, opts)
		require.NoError(t, c.Start(context.Background()))
	}

	link, err := store.GetLink(target)
	require.NoError(t, err)
	assert.Equal(t, 2, link.RetryCount, "retries stop at the ceiling")
}

func TestRetriableStatusRecorded(t *testing.T) {
	store := storage.NewMemStore()
	target := "http://example.com/flaky"

	opts := config.Default()
	opts.BaseURL = target

	c := newCrawler(t, store, stubFetcher{fn: func(string) (*fetcher.Response, error) {
		return &fetcher.Response{
			StatusCode: http.StatusBadGateway,
			Status:     "502 Bad Gateway",
		}, nil
	}}, opts)
	require.NoError(t, c.Start(context.Background()))

	link, err := store.GetLink(target)
	require.NoError(t, err)
	assert.Equal(t, 1, link.RetryCount)

	page, err := store.GetPage(target)
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Nil(t, page.Content)
	assert.Contains(t, page.Metadata, `"error_type":"RetriableStatus"`)
}

func TestNonRetriableStatusSkips(t *testing.T) {
	store := storage.NewMemStore()
	target := "http://example.com/gone"

	opts := config.Default()
	opts.BaseURL = target

	c := newCrawler(t, store, stubFetcher{fn: func(string) (*fetcher.Response, error) {
		return &fetcher.Response{StatusCode: http.StatusNotFound, Status: "404 Not Found"}, nil
	}}, opts)
	require.NoError(t, c.Start(context.Background()))

	link, err := store.GetLink(target)
	require.NoError(t, err)
	assert.True(t, link.Visited)
	assert.Equal(t, 0, link.RetryCount)

	page, err := store.GetPage(target)
	require.NoError(t, err)
	assert.Nil(t, page, "permanent skips write no page row")
}

func TestNonHTMLContentSkips(t *testing.T) {
	store := storage.NewMemStore()
	target := "http://example.com/file.pdf"

	opts := config.Default()
	opts.BaseURL = target

	c := newCrawler(t, store, stubFetcher{fn: func(string) (*fetcher.Response, error) {
		return &fetcher.Response{
			StatusCode:  http.StatusOK,
			Status:      "200 OK",
			ContentType: "application/pdf",
			Body:        []byte("%PDF-1.4"),
		}, nil
	}}, opts)
	require.NoError(t, c.Start(context.Background()))

	link, err := store.GetLink(target)
	require.NoError(t, err)
	assert.True(t, link.Visited)
	assert.Equal(t, 0, link.RetryCount)

	page, err := store.GetPage(target)
	require.NoError(t, err)
	assert.Nil(t, page)
}

func TestEmptyContentIsRetriable(t *testing.T) {
	store := storage.NewMemStore()
	target := "http://example.com/empty"

	opts := config.Default()
	opts.BaseURL = target

	c := newCrawler(t, store, stubFetcher{fn: func(string) (*fetcher.Response, error) {
		return htmlResponse(`<html><body><script>nothing()</script></body></html>`), nil
	}}, opts)
	require.NoError(t, c.Start(context.Background()))

	link, err := store.GetLink(target)
	require.NoError(t, err)
	assert.Equal(t, 1, link.RetryCount)

	page, err := store.GetPage(target)
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Nil(t, page.Content)
	assert.Contains(t, page.Metadata, `"error_type":"NoContentError"`)
}

func TestOutOfScopeFrontierEntryIsPermanentSkip(t *testing.T) {
	store := storage.NewMemStore()

	opts := config.Default()
	opts.BaseURL = "http://example.com/docs"

	// A stale frontier entry outside the current scope must be
	// visited without a fetch and without a page row.
	_, err := store.InsertLinks([]string{"http://other.example.org/x"}, false)
	require.NoError(t, err)

	fetched := false
	c := newCrawler(t, store, stubFetcher{fn: func(url string) (*fetcher.Response, error) {
		if url == "http://other.example.org/x" {
			fetched = true
		}
		return htmlResponse(`<html><body><p>doc</p></body></html>`), nil
	}}, opts)
	require.NoError(t, c.Start(context.Background()))

	assert.False(t, fetched)
	link, err := store.GetLink("http://other.example.org/x")
	require.NoError(t, err)
	assert.True(t, link.Visited)

	page, err := store.GetPage("http://other.example.org/x")
	require.NoError(t, err)
	assert.Nil(t, page)
}

func TestURLsListDisablesDiscovery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><a href="/c">c</a><p>a</p></body></html>`))
	})
	mux.HandleFunc("/b", servePlainPage)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	seedsFile := filepath.Join(t.TempDir(), "seeds.txt")
	require.NoError(t, os.WriteFile(seedsFile,
		[]byte(srv.URL+"/a\n"+srv.URL+"/b\n"), 0644))

	store := storage.NewMemStore()
	opts := config.Default()
	opts.URLsFile = seedsFile

	c := newCrawler(t, store, testClient(t), opts)
	require.NoError(t, c.Start(context.Background()))

	links, err := store.Links()
	require.NoError(t, err)
	assert.Len(t, links, 2, "explicit seed lists crawl exactly what they name")

	page, err := store.GetPage(srv.URL + "/c")
	require.NoError(t, err)
	assert.Nil(t, page)
}

func TestInvalidSeedsAreDropped(t *testing.T) {
	seedsFile := filepath.Join(t.TempDir(), "seeds.txt")
	require.NoError(t, os.WriteFile(seedsFile, []byte(
		"not a url\n"+
			"mailto:nobody@example.com\n"+
			"# comment line\n"+
			"http://example.com/ok\n"), 0644))

	store := storage.NewMemStore()
	opts := config.Default()
	opts.URLsFile = seedsFile

	c := newCrawler(t, store, stubFetcher{fn: func(string) (*fetcher.Response, error) {
		return htmlResponse(`<html><body><p>seeded</p></body></html>`), nil
	}}, opts)
	require.NoError(t, c.Start(context.Background()))

	links, err := store.Links()
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "http://example.com/ok", links[0].URL)
}
