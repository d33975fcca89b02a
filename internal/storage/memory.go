package storage

import (
	"fmt"
	"sync"
)

// MemStore is an in-memory Store with the same observable semantics
// as Database. It backs tests that do not need a database file.
type MemStore struct {
	mu     sync.RWMutex
	closed bool

	order []string         // link insertion order
	links map[string]*Link // keyed by URL

	pageOrder []string
	pages     map[string]*Page
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		links: make(map[string]*Link),
		pages: make(map[string]*Page),
	}
}

// InsertLinks adds URLs not already present and returns the count
// actually inserted.
func (m *MemStore) InsertLinks(urls []string, visited bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	inserted := 0
	for _, u := range urls {
		if _, ok := m.links[u]; ok {
			continue
		}
		m.links[u] = &Link{URL: u, Visited: visited}
		m.order = append(m.order, u)
		inserted++
	}
	return inserted, nil
}

// UnvisitedLinks returns up to limit unvisited URLs in insertion
// order.
func (m *MemStore) UnvisitedLinks(limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	var urls []string
	for _, u := range m.order {
		if len(urls) == limit {
			break
		}
		if !m.links[u].Visited {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

// MarkLinksVisited sets visited=true for each URL present.
func (m *MemStore) MarkLinksVisited(urls []string) error {
	return m.setVisited(urls, true)
}

// MarkLinksUnvisited sets visited=false for each URL present.
func (m *MemStore) MarkLinksUnvisited(urls []string) error {
	return m.setVisited(urls, false)
}

func (m *MemStore) setVisited(urls []string, visited bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for _, u := range urls {
		if link, ok := m.links[u]; ok {
			link.Visited = visited
		}
	}
	return nil
}

// UpsertPages inserts or replaces page rows by URL.
func (m *MemStore) UpsertPages(pages []*Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.upsertPagesLocked(pages)
	return nil
}

func (m *MemStore) upsertPagesLocked(pages []*Page) {
	for _, p := range pages {
		cp := *p
		if _, ok := m.pages[p.URL]; !ok {
			m.pageOrder = append(m.pageOrder, p.URL)
		}
		m.pages[p.URL] = &cp
	}
}

// RetriableFailedURLs returns failed-page URLs with retries left.
func (m *MemStore) RetriableFailedURLs(maxRetries int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	var urls []string
	for _, u := range m.order {
		page, ok := m.pages[u]
		if !ok || page.Content != nil {
			continue
		}
		if m.links[u].RetryCount < maxRetries {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

// FailedPageURLs returns the URLs of all pages with nil content.
func (m *MemStore) FailedPageURLs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	var urls []string
	for _, u := range m.pageOrder {
		if m.pages[u].Content == nil {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

// CommitCrawlBatch applies all batch changes at once.
func (m *MemStore) CommitCrawlBatch(batch *CrawlBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if batch == nil || batch.Empty() {
		return nil
	}

	m.upsertPagesLocked(batch.Pages)
	for _, u := range batch.Visited {
		if link, ok := m.links[u]; ok {
			link.Visited = true
		}
	}
	for _, u := range batch.RetryIncrements {
		if link, ok := m.links[u]; ok {
			link.RetryCount++
		}
	}
	for _, u := range batch.RetryResets {
		if link, ok := m.links[u]; ok {
			link.RetryCount = 0
		}
	}
	return nil
}

// Pages returns a cursor over a snapshot of the stored pages.
func (m *MemStore) Pages() PageCursor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return &memCursor{err: ErrClosed}
	}

	snapshot := make([]*Page, 0, len(m.pageOrder))
	for _, u := range m.pageOrder {
		cp := *m.pages[u]
		snapshot = append(snapshot, &cp)
	}
	return &memCursor{pages: snapshot}
}

// Links returns every frontier entry in insertion order.
func (m *MemStore) Links() ([]*Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	links := make([]*Link, 0, len(m.order))
	for _, u := range m.order {
		cp := *m.links[u]
		links = append(links, &cp)
	}
	return links, nil
}

// GetLink retrieves a frontier entry, or nil when absent.
func (m *MemStore) GetLink(url string) (*Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	link, ok := m.links[url]
	if !ok {
		return nil, nil
	}
	cp := *link
	return &cp, nil
}

// GetPage retrieves a page row, or nil when absent.
func (m *MemStore) GetPage(url string) (*Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	page, ok := m.pages[url]
	if !ok {
		return nil, nil
	}
	cp := *page
	return &cp, nil
}

// Stats reports frontier and page counts.
func (m *MemStore) Stats() (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	stats := &Stats{
		TotalLinks: len(m.links),
		TotalPages: len(m.pages),
	}
	for _, link := range m.links {
		if link.Visited {
			stats.VisitedLinks++
		} else {
			stats.PendingLinks++
		}
	}
	for _, page := range m.pages {
		if page.Content == nil {
			stats.FailedPages++
		}
	}
	return stats, nil
}

// Close marks the store closed. Close is idempotent.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

type memCursor struct {
	pages []*Page
	pos   int
	err   error
}

func (c *memCursor) Next() bool {
	if c.err != nil || c.pos >= len(c.pages) {
		return false
	}
	c.pos++
	return true
}

func (c *memCursor) Page() *Page {
	if c.pos == 0 || c.pos > len(c.pages) {
		return nil
	}
	return c.pages[c.pos-1]
}

func (c *memCursor) Err() error {
	return c.err
}
