package storage

import "errors"

var (
	// ErrClosed is returned by any operation on a closed store.
	ErrClosed = errors.New("store is closed")

	// ErrInvalidLimit is returned when a negative limit is passed to
	// UnvisitedLinks.
	ErrInvalidLimit = errors.New("limit must be non-negative")
)

// Store is the persistence contract shared by the crawl engine and
// the exporters. The SQLite-backed Database is the production
// implementation; MemStore mirrors its semantics in memory for tests.
type Store interface {
	// InsertLinks adds URLs to the frontier with the given visited
	// state, skipping URLs already present. It returns the number of
	// rows actually inserted.
	InsertLinks(urls []string, visited bool) (int, error)

	// UnvisitedLinks returns up to limit frontier URLs with
	// visited=false, in insertion order. A limit of 0 yields an empty
	// result; a negative limit fails with ErrInvalidLimit.
	UnvisitedLinks(limit int) ([]string, error)

	// MarkLinksVisited sets visited=true for each URL; absent URLs
	// are ignored.
	MarkLinksVisited(urls []string) error

	// MarkLinksUnvisited sets visited=false for each URL; absent URLs
	// are ignored.
	MarkLinksUnvisited(urls []string) error

	// UpsertPages inserts or replaces page rows by URL.
	UpsertPages(pages []*Page) error

	// RetriableFailedURLs returns the URLs of failed pages (NULL
	// content) whose links have retry_count below maxRetries.
	RetriableFailedURLs(maxRetries int) ([]string, error)

	// FailedPageURLs returns the URLs of all pages with NULL content.
	FailedPageURLs() ([]string, error)

	// CommitCrawlBatch applies a batch's page upserts, visited flips,
	// retry increments, and retry resets in one transaction.
	CommitCrawlBatch(batch *CrawlBatch) error

	// Pages returns a cursor over all pages in insertion order,
	// fetching rows in chunks to cap peak memory.
	Pages() PageCursor

	// Links returns every frontier entry in insertion order.
	Links() ([]*Link, error)

	// Stats reports frontier and page counts.
	Stats() (*Stats, error)

	// Close releases the store. Close is idempotent; operations after
	// Close fail with ErrClosed.
	Close() error
}

// PageCursor walks page rows lazily. Typical use:
//
//	cur := store.Pages()
//	for cur.Next() {
//		p := cur.Page()
//		...
//	}
//	if err := cur.Err(); err != nil { ... }
type PageCursor interface {
	Next() bool
	Page() *Page
	Err() error
}
