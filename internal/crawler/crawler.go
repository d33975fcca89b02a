// Package crawler drives the frontier loop: seeding, retry requeue,
// batched fetching, link discovery, and atomic persistence of each
// batch's outcome.
package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/msneto/crawler-to-md/internal/config"
	"github.com/msneto/crawler-to-md/internal/fetcher"
	"github.com/msneto/crawler-to-md/internal/scraper"
	"github.com/msneto/crawler-to-md/internal/storage"
	"github.com/msneto/crawler-to-md/internal/urlutil"
)

// batchSize is the number of frontier URLs processed between commits.
const batchSize = 200

// Fetcher is the HTTP capability the engine consumes. fetcher.Client
// is the production implementation.
type Fetcher interface {
	Get(ctx context.Context, url string) (*fetcher.Response, error)
}

// Stats accumulates counters over one Start run.
type Stats struct {
	Processed  int // frontier URLs taken from batches
	Succeeded  int // pages scraped and stored
	Failed     int // retriable failures recorded
	Skipped    int // permanent skips (bad URL, 4xx, non-HTML)
	Discovered int // new links inserted into the frontier
}

// Crawler is the single-threaded crawl engine. The only blocking
// points are the HTTP fetch, the rate-limit and delay sleeps, and the
// batch commit.
type Crawler struct {
	store   storage.Store
	fetch   Fetcher
	scraper *scraper.Scraper
	opts    *config.Options
	limiter *limiter
	logger  *slog.Logger

	baseURL string // normalized scope anchor; empty in urls-list mode
	stats   Stats
}

// New creates a Crawler over an open store and a ready fetcher.
func New(store storage.Store, fetch Fetcher, opts *config.Options, logger *slog.Logger) (*Crawler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := ""
	if opts.BaseURL != "" {
		normalized, err := urlutil.Normalize(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		baseURL = normalized
	}

	return &Crawler{
		store:   store,
		fetch:   fetch,
		scraper: scraper.New(opts.IncludeFilters, opts.ExcludeFilters),
		opts:    opts,
		limiter: newLimiter(opts.RateLimit, opts.DelayDuration()),
		logger:  logger,
		baseURL: baseURL,
	}, nil
}

// Stats returns the counters of the last Start run.
func (c *Crawler) Stats() Stats {
	return c.stats
}

// Start runs the crawl to completion: seeds the frontier, requeues
// retriable failures from earlier runs, then drains the frontier in
// batches. Cancellation is observed between URLs; the batch in
// progress is committed before Start returns.
func (c *Crawler) Start(ctx context.Context) error {
	c.stats = Stats{}

	if err := c.seed(); err != nil {
		return err
	}
	if err := c.requeueFailures(); err != nil {
		return err
	}

	c.logger.Info("starting crawl")

	for {
		urls, err := c.store.UnvisitedLinks(batchSize)
		if err != nil {
			return fmt.Errorf("failed to read frontier: %w", err)
		}
		if len(urls) == 0 {
			c.logger.Info("frontier drained",
				"processed", c.stats.Processed,
				"succeeded", c.stats.Succeeded,
				"failed", c.stats.Failed,
				"skipped", c.stats.Skipped,
				"discovered", c.stats.Discovered)
			return nil
		}

		if err := c.processBatch(ctx, urls); err != nil {
			return err
		}
	}
}

// seed validates the configured seed URLs and inserts the survivors
// into the frontier.
func (c *Crawler) seed() error {
	seeds, err := c.opts.Seeds()
	if err != nil {
		return err
	}

	var validated []string
	for _, seed := range seeds {
		normalized, err := urlutil.Normalize(seed)
		if err != nil {
			c.logger.Warn("skipping invalid seed URL", "url", seed, "error", err)
			continue
		}
		if !c.validURL(normalized) {
			c.logger.Warn("skipping out-of-scope seed URL", "url", seed)
			continue
		}
		validated = append(validated, normalized)
	}

	inserted, err := c.store.InsertLinks(validated, false)
	if err != nil {
		return fmt.Errorf("failed to seed frontier: %w", err)
	}
	c.logger.Debug("seeded frontier", "seeds", len(validated), "inserted", inserted)
	return nil
}

// requeueFailures puts previously failed URLs that still have retry
// attempts left back into the frontier. URLs that exhausted their
// retries stay visited.
func (c *Crawler) requeueFailures() error {
	urls, err := c.store.RetriableFailedURLs(c.opts.MaxRetries)
	if err != nil {
		return fmt.Errorf("failed to query retriable failures: %w", err)
	}

	var requeue []string
	for _, u := range urls {
		normalized, err := urlutil.Normalize(u)
		if err != nil || !c.validURL(normalized) {
			continue
		}
		requeue = append(requeue, normalized)
	}
	if len(requeue) == 0 {
		return nil
	}

	if _, err := c.store.InsertLinks(requeue, false); err != nil {
		return fmt.Errorf("failed to requeue failed URLs: %w", err)
	}
	if err := c.store.MarkLinksUnvisited(requeue); err != nil {
		return fmt.Errorf("failed to requeue failed URLs: %w", err)
	}
	c.logger.Info("requeued failed URLs for retry", "count", len(requeue))
	return nil
}

// processBatch walks one frontier batch and commits its deltas
// atomically. A context cancellation stops the walk early; whatever
// was collected is still committed.
func (c *Crawler) processBatch(ctx context.Context, urls []string) error {
	batch := &storage.CrawlBatch{}
	var discovered []string
	discoveredSet := make(map[string]bool)

	var ctxErr error
	for _, raw := range urls {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break
		}

		u, err := urlutil.Normalize(raw)
		if err != nil || !c.validURL(u) {
			// Permanent skip: visited, no retry, no page row.
			c.stats.Processed++
			c.stats.Skipped++
			batch.Visited = append(batch.Visited, raw)
			continue
		}

		if err := c.limiter.wait(ctx); err != nil {
			// The URL was not attempted; leave it unvisited for the
			// next run.
			ctxErr = err
			break
		}

		c.stats.Processed++
		batch.Visited = append(batch.Visited, raw)

		links := c.processURL(ctx, u, batch)
		for _, link := range links {
			if !discoveredSet[link] {
				discoveredSet[link] = true
				discovered = append(discovered, link)
			}
		}
	}

	// Discoveries go in before the state commit so every page URL has
	// a frontier row even if the commit fails.
	if len(discovered) > 0 {
		inserted, err := c.store.InsertLinks(discovered, false)
		if err != nil {
			return fmt.Errorf("failed to insert discovered links: %w", err)
		}
		c.stats.Discovered += inserted
	}

	if err := c.store.CommitCrawlBatch(batch); err != nil {
		return fmt.Errorf("failed to commit crawl batch: %w", err)
	}
	c.logger.Debug("committed batch",
		"urls", len(batch.Visited), "discovered", len(discovered))

	return ctxErr
}

// processURL fetches one URL, classifies the outcome into the batch,
// and returns any links discovered on the page.
func (c *Crawler) processURL(ctx context.Context, u string, batch *storage.CrawlBatch) []string {
	resp, err := c.fetch.Get(ctx, u)
	c.limiter.record()

	if err != nil {
		c.logger.Error("fetch failed", "url", u, "error", err)
		c.recordFailure(batch, u, fetcher.Categorize(err), err.Error())
		return nil
	}

	switch {
	case resp.IsServerError():
		c.logger.Warn("server error", "url", u, "status", resp.Status)
		c.recordFailure(batch, u, "RetriableStatus", resp.Status)
		return nil
	case !resp.IsSuccess():
		// 4xx and surfaced redirects are permanent: no page row, no
		// retry.
		c.logger.Info("skipping link", "url", u, "status", resp.Status)
		c.stats.Skipped++
		return nil
	case !resp.IsHTML():
		c.logger.Info("skipping non-HTML link", "url", u, "type", resp.ContentType)
		c.stats.Skipped++
		return nil
	}

	doc, err := scraper.Parse(resp.Body)
	if err != nil {
		c.logger.Error("parse failed", "url", u, "error", err)
		c.recordFailure(batch, u, "NoContentError", err.Error())
		return nil
	}

	var links []string
	if c.opts.DiscoveryEnabled() {
		links = scraper.ExtractLinks(doc, u, scraper.LinkOptions{
			Base:        c.baseURL,
			ShouldCrawl: c.opts.ShouldCrawl,
		})
	}

	markdown, meta, err := c.scraper.Scrape(doc)
	if err != nil {
		c.logger.Warn("no content scraped", "url", u)
		c.recordFailure(batch, u, "NoContentError", "No content extracted")
		return links
	}

	metadata, err := json.Marshal(meta)
	if err != nil {
		c.recordFailure(batch, u, "NoContentError", err.Error())
		return links
	}

	batch.Pages = append(batch.Pages, &storage.Page{
		URL:      u,
		Content:  &markdown,
		Metadata: string(metadata),
	})
	batch.RetryResets = append(batch.RetryResets, u)
	c.stats.Succeeded++
	c.logger.Debug("scraped page", "url", u, "title", meta["title"])
	return links
}

// recordFailure stores a NULL-content page carrying the failure
// details and schedules a retry-count increment.
func (c *Crawler) recordFailure(batch *storage.CrawlBatch, u, errorType, errorMessage string) {
	batch.Pages = append(batch.Pages, &storage.Page{
		URL:      u,
		Metadata: failureMetadata(errorType, errorMessage),
	})
	batch.RetryIncrements = append(batch.RetryIncrements, u)
	c.stats.Failed++
}

// validURL applies the scheme, scope, and URL pattern predicates.
func (c *Crawler) validURL(u string) bool {
	if !urlutil.IsSupportedScheme(u) {
		return false
	}
	if c.baseURL != "" && !urlutil.IsInScope(u, c.baseURL) {
		return false
	}
	return c.opts.ShouldCrawl(u)
}

// failureMetadata serializes the metadata object persisted with every
// failed page row.
func failureMetadata(errorType, errorMessage string) string {
	meta := struct {
		ScrapeStatus string `json:"scrape_status"`
		ErrorType    string `json:"error_type,omitempty"`
		ErrorMessage string `json:"error_message,omitempty"`
	}{
		ScrapeStatus: "failed",
		ErrorType:    errorType,
		ErrorMessage: errorMessage,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return `{"scrape_status":"failed"}`
	}
	return string(data)
}

// IsCancellation reports whether a crawl error only reflects context
// cancellation, in which case the committed state is still sound and
// export can proceed.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
