// Package storage persists the crawl frontier and scraped pages in an
// embedded SQLite database so interrupted crawls can resume.
package storage

// Link represents an entry in the crawl frontier.
type Link struct {
	URL        string `json:"url"`
	Visited    bool   `json:"visited"`
	RetryCount int    `json:"retry_count"`
}

// Page represents the scrape outcome for a URL. Content is nil when
// the scrape failed; Metadata holds a serialized JSON object with at
// least a title on success or the failure details otherwise.
type Page struct {
	URL      string  `json:"url"`
	Content  *string `json:"content"`
	Metadata string  `json:"metadata"`
}

// CrawlBatch collects the state changes of one frontier batch. All
// four groups are applied in a single transaction: either every
// change persists or none do.
type CrawlBatch struct {
	Pages           []*Page  // upserts, successes and failures alike
	Visited         []string // URLs to flip to visited
	RetryIncrements []string // URLs whose fetch failed retriably
	RetryResets     []string // URLs scraped successfully
}

// Empty reports whether the batch carries no changes.
func (b *CrawlBatch) Empty() bool {
	return len(b.Pages) == 0 && len(b.Visited) == 0 &&
		len(b.RetryIncrements) == 0 && len(b.RetryResets) == 0
}

// Stats holds frontier and page counts for progress reporting.
type Stats struct {
	TotalLinks   int `json:"total_links"`
	VisitedLinks int `json:"visited_links"`
	PendingLinks int `json:"pending_links"`
	TotalPages   int `json:"total_pages"`
	FailedPages  int `json:"failed_pages"`
}
