// Package config defines the crawl and export options.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Options holds all configuration for one invocation.
type Options struct {
	// === Seeds & Scope ===

	// Base URL: single seed and scope anchor
	BaseURL string `json:"base_url,omitempty"`

	// Path to a file with one seed URL per line; link discovery is
	// disabled when set
	URLsFile string `json:"urls_file,omitempty"`

	// === Output ===

	// Folder receiving the exports
	OutputFolder string `json:"output_folder"`

	// Folder holding the persistence file
	CacheFolder string `json:"cache_folder"`

	// === URL Filters ===

	// Substrings that exclude a URL when matched
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`

	// Substrings of which at least one must match, when non-empty
	IncludeURLPatterns []string `json:"include_url_patterns,omitempty"`

	// === Content Filters ===

	// Selectors (#id, .class, tag) of elements to keep
	IncludeFilters []string `json:"include_filters,omitempty"`

	// Selectors of elements to drop
	ExcludeFilters []string `json:"exclude_filters,omitempty"`

	// === Politeness ===

	// Maximum requests per 60-second window (0 = unlimited)
	RateLimit int `json:"rate_limit"`

	// Seconds slept before each request (0 = none)
	Delay float64 `json:"delay"`

	// Per-request timeout in seconds
	Timeout float64 `json:"timeout"`

	// HTTP/HTTPS/SOCKS proxy URL, probed at startup
	Proxy string `json:"proxy,omitempty"`

	// Retry ceiling for retriable failures
	MaxRetries int `json:"max_retries"`

	// === Export ===

	// Apply the Markdown minifier on export
	Minify bool `json:"minify"`

	// Title of the concatenated Markdown document
	Title string `json:"title,omitempty"`

	// Delete the persistence file before opening
	OverwriteCache bool `json:"overwrite_cache"`

	// Skip the concatenated Markdown export
	NoMarkdown bool `json:"no_markdown"`

	// Skip the JSON export
	NoJSON bool `json:"no_json"`

	// Write one Markdown file per URL under <output>/files/
	ExportFiles bool `json:"export_files"`

	// Crawl inventory report destination (.csv or .xlsx); empty = off
	ReportPath string `json:"report_path,omitempty"`

	// === Logging ===

	// Debug logging
	Verbose bool `json:"verbose"`
}

// Default returns Options with the documented defaults.
func Default() *Options {
	return &Options{
		OutputFolder: "output",
		CacheFolder:  "cache",
		Timeout:      10,
		MaxRetries:   3,
	}
}

// Validate checks the configuration and clamps out-of-range numerics.
func (o *Options) Validate() error {
	if o.BaseURL == "" && o.URLsFile == "" {
		return errors.New("either a base URL or a URLs file is required")
	}
	if o.BaseURL != "" && o.URLsFile != "" {
		return errors.New("a base URL and a URLs file are mutually exclusive")
	}
	if o.RateLimit < 0 {
		o.RateLimit = 0
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = 10
	}
	return nil
}

// RequestTimeout returns the per-request timeout as a duration.
func (o *Options) RequestTimeout() time.Duration {
	return time.Duration(o.Timeout * float64(time.Second))
}

// DelayDuration returns the pre-request delay as a duration.
func (o *Options) DelayDuration() time.Duration {
	return time.Duration(o.Delay * float64(time.Second))
}

// Seeds returns the crawl seed list: the lines of URLsFile when set
// (blank lines and #-comments skipped), otherwise the base URL.
func (o *Options) Seeds() ([]string, error) {
	if o.URLsFile == "" {
		return []string{o.BaseURL}, nil
	}

	data, err := os.ReadFile(o.URLsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read URLs file: %w", err)
	}

	var seeds []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	return seeds, nil
}

// DiscoveryEnabled reports whether link extraction feeds the frontier.
// Explicit seed lists crawl exactly what they name.
func (o *Options) DiscoveryEnabled() bool {
	return o.URLsFile == ""
}

// ShouldCrawl checks a URL against the include/exclude URL patterns.
// Exclude patterns win; when include patterns are set, at least one
// must match.
func (o *Options) ShouldCrawl(urlStr string) bool {
	for _, pattern := range o.ExcludePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	if len(o.IncludeURLPatterns) == 0 {
		return true
	}

	for _, pattern := range o.IncludeURLPatterns {
		if strings.Contains(urlStr, pattern) {
			return true
		}
	}

	return false
}

// Save writes the configuration to a JSON file.
func (o *Options) Save(filePath string) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load reads a configuration JSON file on top of the defaults.
func Load(filePath string) (*Options, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	opts := Default()
	if err := json.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return opts, nil
}
