// Package exporter writes the scraped corpus out as one concatenated
// Markdown document, a JSON array, or a tree of per-URL Markdown
// files. Pages stream from the store; export never mutates them.
package exporter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/msneto/crawler-to-md/internal/markdown"
	"github.com/msneto/crawler-to-md/internal/storage"
)

// Options configures an Exporter.
type Options struct {
	// Title of the concatenated document's level-1 header
	Title string

	// Apply the Markdown minifier to every export
	Minify bool

	// Base URL stripped from page URLs in the per-file export
	BaseURL string
}

// Exporter streams pages from a store into the export sinks.
type Exporter struct {
	store  storage.Store
	opts   Options
	logger *slog.Logger
}

// New creates an Exporter over an open store.
func New(store storage.Store, opts Options, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{store: store, opts: opts, logger: logger}
}

// WriteMarkdown concatenates every scraped page into a single
// Markdown file. Each page's headings are demoted one level under the
// document title; in non-minified mode pages are prefixed with an
// HTML comment carrying the URL and metadata and separated by
// horizontal rules.
func (e *Exporter) WriteMarkdown(path string) error {
	var b strings.Builder
	b.WriteString("# " + e.opts.Title + "\n")

	cur := e.store.Pages()
	for cur.Next() {
		page := cur.Page()
		if page.Content == nil {
			continue
		}

		adjusted := markdown.DemoteHeadings(*page.Content)

		if e.opts.Minify {
			b.WriteString("\n" + adjusted)
			continue
		}

		b.WriteString("\n<!--\n")
		b.WriteString("URL: " + page.URL + "\n")
		for _, kv := range metadataPairs(page.Metadata) {
			b.WriteString(kv[0] + ": " + kv[1] + "\n")
		}
		b.WriteString("-->\n\n")
		b.WriteString(adjusted)
		b.WriteString("\n---")
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("failed to read pages: %w", err)
	}

	content := markdown.CollapseBlankLines(b.String())
	if e.opts.Minify {
		content = markdown.Minify(content)
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write markdown export: %w", err)
	}
	e.logger.Info("exported markdown", "path", path)
	return nil
}

// WriteJSON writes every scraped page as a JSON array of
// {url, content, metadata} objects. Failed pages are skipped and
// null metadata values are dropped.
func (e *Exporter) WriteJSON(path string) error {
	type pageJSON struct {
		URL      string         `json:"url"`
		Content  string         `json:"content"`
		Metadata map[string]any `json:"metadata"`
	}

	pages := make([]pageJSON, 0)
	cur := e.store.Pages()
	for cur.Next() {
		page := cur.Page()
		if page.Content == nil {
			continue
		}
		pages = append(pages, pageJSON{
			URL:      page.URL,
			Content:  markdown.CollapseBlankLines(*page.Content),
			Metadata: safeMetadata(page.Metadata),
		})
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("failed to read pages: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create JSON export: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "    ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(pages); err != nil {
		return fmt.Errorf("failed to write JSON export: %w", err)
	}
	e.logger.Info("exported JSON", "path", path)
	return nil
}

// WriteFiles writes each scraped page to its own Markdown file under
// outputFolder/files/, mirroring the URL structure: host/path.md, or
// host/path/index.md when the URL path ends in a slash.
func (e *Exporter) WriteFiles(outputFolder string) error {
	root := filepath.Join(outputFolder, "files")
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("failed to create files folder: %w", err)
	}

	cur := e.store.Pages()
	for cur.Next() {
		page := cur.Page()
		if page.Content == nil {
			continue
		}

		path, err := filePathForURL(root, page.URL, e.opts.BaseURL)
		if err != nil {
			e.logger.Warn("skipping page with unsafe path", "url", page.URL, "error", err)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create folder for %s: %w", page.URL, err)
		}

		content := *page.Content
		if e.opts.Minify {
			content = markdown.Minify(content)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		e.logger.Debug("exported file", "url", page.URL, "path", path)
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("failed to read pages: %w", err)
	}

	e.logger.Info("exported per-URL files", "folder", root)
	return nil
}

// filePathForURL derives the on-disk path of a page and confirms it
// stays inside root.
func filePathForURL(root, pageURL, baseURL string) (string, error) {
	u := pageURL
	if baseURL != "" {
		u = strings.ReplaceAll(u, baseURL, "")
	}
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")

	var path string
	if u == "" || strings.HasSuffix(u, "/") {
		path = filepath.Join(root, filepath.FromSlash(u), "index.md")
	} else {
		path = filepath.Join(root, filepath.FromSlash(u)+".md")
	}

	cleaned := filepath.Clean(path)
	if cleaned != root && !strings.HasPrefix(cleaned, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the output folder", cleaned)
	}
	return cleaned, nil
}

// safeMetadata parses a stored metadata string and drops null values.
// Anything unparsable yields an empty object.
func safeMetadata(raw string) map[string]any {
	parsed := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return map[string]any{}
	}
	for k, v := range parsed {
		if v == nil {
			delete(parsed, k)
		}
	}
	return parsed
}

// metadataPairs returns the non-null metadata entries sorted by key,
// ready for the HTML comment block.
func metadataPairs(raw string) [][2]string {
	parsed := safeMetadata(raw)
	keys := make([]string, 0, len(parsed))
	for k := range parsed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, fmt.Sprintf("%v", parsed[k])})
	}
	return pairs
}
