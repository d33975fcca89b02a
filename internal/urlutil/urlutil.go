// Package urlutil provides URL normalization, scope checking, and
// filename derivation for crawl targets.
package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidURL indicates a URL that cannot serve as a crawl target,
// typically because it lacks an absolute scheme or a host.
var ErrInvalidURL = errors.New("invalid url")

var filenameRe = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Normalize produces the canonical form of a URL: scheme and host are
// lowercased, the fragment is removed, and the path and query are kept
// verbatim. Two URLs that normalize to the same string identify the
// same page. Normalize is idempotent.
func Normalize(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidURL, rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w %q: missing scheme or host", ErrInvalidURL, rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), nil
}

// IsSupportedScheme reports whether the URL uses a scheme the fetcher
// can retrieve. Only http and https qualify; mailto, javascript, tel,
// data and friends are rejected.
func IsSupportedScheme(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return true
	}
	return false
}

// IsInScope reports whether a URL belongs to the crawl rooted at base.
// The host must match exactly (subdomains are out of scope) and the
// URL path must be the base path or extend it at a segment boundary:
// a base path of /docs covers /docs and /docs/page but not /docset.
// An empty or / base path covers the whole host.
func IsInScope(rawURL, baseURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	b, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return false
	}
	if !strings.EqualFold(u.Host, b.Host) || u.Host == "" {
		return false
	}

	basePath := strings.TrimSuffix(b.Path, "/")
	if basePath == "" {
		return true
	}
	return u.Path == basePath || strings.HasPrefix(u.Path, basePath+"/")
}

// Filename derives a filesystem-safe name from a URL by replacing
// every run of non-alphanumeric characters with a single underscore
// and trimming underscores from both ends.
func Filename(rawURL string) string {
	return strings.Trim(filenameRe.ReplaceAllString(rawURL, "_"), "_")
}

// Resolve interprets ref relative to base and returns the absolute
// result. An absolute ref is returned as is.
func Resolve(baseURL, ref string) (string, error) {
	b, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", baseURL, err)
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse ref %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}
