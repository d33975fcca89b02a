package storage

// Schema contains SQL statements to create database tables.
const Schema = `
-- Links table: the crawl frontier, keyed by canonical URL
CREATE TABLE IF NOT EXISTS links (
    url TEXT PRIMARY KEY,
    visited BOOLEAN NOT NULL DEFAULT 0,
    retry_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_links_visited ON links(visited);

-- Pages table: scrape outcomes, content is NULL for failed scrapes
CREATE TABLE IF NOT EXISTS pages (
    url TEXT PRIMARY KEY,
    content TEXT,
    metadata TEXT
);
`
