package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Database is the SQLite-backed Store implementation.
type Database struct {
	db        *sql.DB
	mu        sync.RWMutex
	closed    bool
	batchSize int
}

var _ Store = (*Database)(nil)

// NewDatabase opens (or creates) the database file at path.
func NewDatabase(path string) (*Database, error) {
	// SQLite connection with optimizations
	dsn := fmt.Sprintf("%s?_journal=WAL&_synchronous=NORMAL&_cache_size=10000&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	return &Database{
		db:        db,
		batchSize: 100,
	}, nil
}

// Initialize creates tables and applies schema migrations. Opening an
// older database file adds missing columns with their defaults, so
// crawls started by previous versions can resume.
func (d *Database) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	if _, err := d.db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := d.migrate(); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	return nil
}

// migrate brings pre-retry_count database files forward. The check is
// idempotent; re-running it against a current schema is a no-op.
func (d *Database) migrate() error {
	rows, err := d.db.Query(`PRAGMA table_info(links)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	hasRetryCount := false
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == "retry_count" {
			hasRetryCount = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if !hasRetryCount {
		if _, err := d.db.Exec(`ALTER TABLE links ADD COLUMN retry_count INTEGER NOT NULL DEFAULT 0`); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection. It is safe to call more than
// once.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}

// InsertLinks adds URLs to the frontier, ignoring duplicates, and
// returns the number of rows actually inserted.
func (d *Database) InsertLinks(urls []string, visited bool) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}
	if len(urls) == 0 {
		return 0, nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (url, visited) VALUES (?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, u := range urls {
		result, err := stmt.Exec(u, visited)
		if err != nil {
			return 0, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// UnvisitedLinks returns up to limit frontier URLs with visited=false
// in insertion order.
func (d *Database) UnvisitedLinks(limit int) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, ErrClosed
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	if limit == 0 {
		return nil, nil
	}

	rows, err := d.db.Query(`
		SELECT url FROM links
		WHERE visited = 0
		ORDER BY rowid ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanURLs(rows)
}

// MarkLinksVisited sets visited=true for each URL.
func (d *Database) MarkLinksVisited(urls []string) error {
	return d.setVisited(urls, true)
}

// MarkLinksUnvisited sets visited=false for each URL.
func (d *Database) MarkLinksUnvisited(urls []string) error {
	return d.setVisited(urls, false)
}

func (d *Database) setVisited(urls []string, visited bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if len(urls) == 0 {
		return nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE links SET visited = ? WHERE url = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range urls {
		if _, err := stmt.Exec(visited, u); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// UpsertPages inserts or replaces page rows by URL.
func (d *Database) UpsertPages(pages []*Page) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if len(pages) == 0 {
		return nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertPagesTx(tx, pages); err != nil {
		return err
	}

	return tx.Commit()
}

func upsertPagesTx(tx *sql.Tx, pages []*Page) error {
	stmt, err := tx.Prepare(`
		INSERT INTO pages (url, content, metadata)
		VALUES (?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range pages {
		if _, err := stmt.Exec(p.URL, p.Content, p.Metadata); err != nil {
			return err
		}
	}
	return nil
}

// RetriableFailedURLs returns URLs of failed pages whose links still
// have retry attempts left.
func (d *Database) RetriableFailedURLs(maxRetries int) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, ErrClosed
	}

	rows, err := d.db.Query(`
		SELECT p.url
		FROM pages p
		JOIN links l ON l.url = p.url
		WHERE p.content IS NULL AND l.retry_count < ?
		ORDER BY l.rowid ASC
	`, maxRetries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanURLs(rows)
}

// FailedPageURLs returns the URLs of all pages with NULL content.
func (d *Database) FailedPageURLs() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, ErrClosed
	}

	rows, err := d.db.Query(`SELECT url FROM pages WHERE content IS NULL ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanURLs(rows)
}

// CommitCrawlBatch applies all of a batch's changes in a single
// transaction: page upserts, visited flips, retry increments, and
// retry resets. On failure nothing persists.
func (d *Database) CommitCrawlBatch(batch *CrawlBatch) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if batch == nil || batch.Empty() {
		return nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if len(batch.Pages) > 0 {
		if err := upsertPagesTx(tx, batch.Pages); err != nil {
			return err
		}
	}

	if len(batch.Visited) > 0 {
		stmt, err := tx.Prepare(`UPDATE links SET visited = 1 WHERE url = ?`)
		if err != nil {
			return err
		}
		for _, u := range batch.Visited {
			if _, err := stmt.Exec(u); err != nil {
				stmt.Close()
				return err
			}
		}
		stmt.Close()
	}

	if len(batch.RetryIncrements) > 0 {
		stmt, err := tx.Prepare(`UPDATE links SET retry_count = retry_count + 1 WHERE url = ?`)
		if err != nil {
			return err
		}
		for _, u := range batch.RetryIncrements {
			if _, err := stmt.Exec(u); err != nil {
				stmt.Close()
				return err
			}
		}
		stmt.Close()
	}

	if len(batch.RetryResets) > 0 {
		stmt, err := tx.Prepare(`UPDATE links SET retry_count = 0 WHERE url = ?`)
		if err != nil {
			return err
		}
		for _, u := range batch.RetryResets {
			if _, err := stmt.Exec(u); err != nil {
				stmt.Close()
				return err
			}
		}
		stmt.Close()
	}

	return tx.Commit()
}

// Pages returns a cursor over all stored pages in insertion order.
func (d *Database) Pages() PageCursor {
	return &pageIterator{db: d}
}

// Links returns every frontier entry in insertion order.
func (d *Database) Links() ([]*Link, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, ErrClosed
	}

	rows, err := d.db.Query(`SELECT url, visited, retry_count FROM links ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*Link
	for rows.Next() {
		var link Link
		if err := rows.Scan(&link.URL, &link.Visited, &link.RetryCount); err != nil {
			return nil, err
		}
		links = append(links, &link)
	}
	return links, rows.Err()
}

// GetLink retrieves a single frontier entry, or nil when absent.
func (d *Database) GetLink(url string) (*Link, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, ErrClosed
	}

	var link Link
	err := d.db.QueryRow(`
		SELECT url, visited, retry_count FROM links WHERE url = ?
	`, url).Scan(&link.URL, &link.Visited, &link.RetryCount)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// GetPage retrieves a single page row, or nil when absent.
func (d *Database) GetPage(url string) (*Page, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, ErrClosed
	}

	var page Page
	err := d.db.QueryRow(`
		SELECT url, content, metadata FROM pages WHERE url = ?
	`, url).Scan(&page.URL, &page.Content, &page.Metadata)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// Stats retrieves frontier and page counts.
func (d *Database) Stats() (*Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, ErrClosed
	}

	stats := &Stats{}
	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM links`, &stats.TotalLinks},
		{`SELECT COUNT(*) FROM links WHERE visited = 1`, &stats.VisitedLinks},
		{`SELECT COUNT(*) FROM links WHERE visited = 0`, &stats.PendingLinks},
		{`SELECT COUNT(*) FROM pages`, &stats.TotalPages},
		{`SELECT COUNT(*) FROM pages WHERE content IS NULL`, &stats.FailedPages},
	}
	for _, c := range counts {
		if err := d.db.QueryRow(c.query).Scan(c.dst); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func scanURLs(rows *sql.Rows) ([]string, error) {
	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// pageIterator pages through the pages table by rowid, fetching
// batchSize rows at a time.
type pageIterator struct {
	db        *Database
	buf       []*Page
	pos       int
	lastRowID int64
	err       error
	done      bool
}

// Next advances the cursor. It returns false when the rows are
// exhausted or an error occurred; check Err afterwards.
func (it *pageIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.pos < len(it.buf) {
		it.pos++
		return true
	}
	if it.done {
		return false
	}
	it.fill()
	if it.err != nil || len(it.buf) == 0 {
		return false
	}
	it.pos = 1
	return true
}

// Page returns the row the last call to Next advanced to.
func (it *pageIterator) Page() *Page {
	if it.pos == 0 || it.pos > len(it.buf) {
		return nil
	}
	return it.buf[it.pos-1]
}

// Err returns the first error encountered while iterating.
func (it *pageIterator) Err() error {
	return it.err
}

func (it *pageIterator) fill() {
	it.db.mu.RLock()
	defer it.db.mu.RUnlock()

	if it.db.closed {
		it.err = ErrClosed
		return
	}

	rows, err := it.db.db.Query(`
		SELECT rowid, url, content, metadata
		FROM pages
		WHERE rowid > ?
		ORDER BY rowid ASC
		LIMIT ?
	`, it.lastRowID, it.db.batchSize)
	if err != nil {
		it.err = err
		return
	}
	defer rows.Close()

	it.buf = it.buf[:0]
	it.pos = 0
	for rows.Next() {
		var (
			rowID int64
			page  Page
		)
		if err := rows.Scan(&rowID, &page.URL, &page.Content, &page.Metadata); err != nil {
			it.err = err
			return
		}
		it.lastRowID = rowID
		it.buf = append(it.buf, &page)
	}
	if err := rows.Err(); err != nil {
		it.err = err
		return
	}
	if len(it.buf) < it.db.batchSize {
		it.done = true
	}
}
