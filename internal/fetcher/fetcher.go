// Package fetcher implements the HTTP client used by the crawl
// engine: pooled connections, per-request timeout, optional proxy,
// and transparent retries on transient failures.
package fetcher

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrProxyUnreachable indicates the configured proxy failed the
// startup probe.
var ErrProxyUnreachable = errors.New("proxy unreachable")

const (
	defaultUserAgent   = "crawler-to-md/1.0"
	defaultMaxBodySize = 10 * 1024 * 1024
	defaultMaxRetries  = 3
	defaultBackoff     = time.Second
	maxBackoff         = 30 * time.Second
)

// transientStatus lists the status codes retried at the transport
// level before the outcome reaches the engine.
var transientStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Options configures a Client.
type Options struct {
	// Per-request timeout
	Timeout time.Duration

	// Optional http, https, or socks5 proxy URL
	Proxy string

	// User-Agent header; empty selects the default
	UserAgent string

	// Response body cap in bytes; 0 selects the default 10 MiB
	MaxBodySize int64

	// Transient-failure retries per request
	MaxRetries int

	// Base backoff between retries, doubled per attempt
	RetryBackoff time.Duration
}

// Client fetches URLs over a pooled HTTP transport.
type Client struct {
	client    *http.Client
	transport *http.Transport
	opts      Options
}

// New creates a Client. The transport pools up to 10 connections per
// host and keeps idle connections for reuse across requests.
func New(opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = defaultMaxBodySize
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultBackoff
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", opts.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		transport: transport,
		opts:      opts,
	}, nil
}

// Get fetches a URL. Transient statuses (429, 500, 502, 503, 504) and
// transient network errors are retried with exponential backoff up to
// MaxRetries before the final outcome is returned. Redirects are
// followed by the underlying client up to its default of 10 hops.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		c.setRequestHeaders(req)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if isRetryableError(err) && attempt < c.opts.MaxRetries {
				continue
			}
			return nil, categorizeError(err)
		}

		if transientStatus[resp.StatusCode] && attempt < c.opts.MaxRetries {
			resp.Body.Close()
			lastErr = fmt.Errorf("transient status %s", resp.Status)
			continue
		}

		body, err := c.readBody(resp)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read body: %w", err)
			if attempt < c.opts.MaxRetries {
				continue
			}
			return nil, lastErr
		}

		finalURL := rawURL
		if resp.Request != nil && resp.Request.URL != nil {
			finalURL = resp.Request.URL.String()
		}

		return &Response{
			StatusCode:  resp.StatusCode,
			Status:      resp.Status,
			ContentType: extractContentType(resp.Header.Get("Content-Type")),
			Body:        body,
			FinalURL:    finalURL,
		}, nil
	}

	return nil, categorizeError(lastErr)
}

// ValidateProxy probes the configured proxy with a HEAD request to
// probeURL. It fails fast with ErrProxyUnreachable so a broken proxy
// is caught before the crawl starts.
func (c *Client) ValidateProxy(ctx context.Context, probeURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProxyUnreachable, err)
	}
	c.setRequestHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProxyUnreachable, err)
	}
	resp.Body.Close()
	return nil
}

// Close releases the transport's idle connections.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.RetryBackoff << (attempt - 1)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

func (c *Client) setRequestHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip")
}

// readBody reads the response body up to MaxBodySize, decoding gzip
// when the server honored our Accept-Encoding.
func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body

	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode error: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	return io.ReadAll(io.LimitReader(reader, c.opts.MaxBodySize))
}

// Categorize maps a fetch error to a short kind suitable for failure
// metadata: Timeout, DNSError, ConnectionError, TLSError, or
// NetworkError.
func Categorize(err error) string {
	if err == nil {
		return ""
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Timeout"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "DNSError"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "ConnectionError"
	}
	msg := err.Error()
	if strings.Contains(msg, "tls:") || strings.Contains(msg, "certificate") {
		return "TLSError"
	}
	return "NetworkError"
}

func categorizeError(err error) error {
	if err == nil {
		return nil
	}
	switch kind := Categorize(err); kind {
	case "NetworkError":
		return err
	default:
		return fmt.Errorf("%s: %w", kind, err)
	}
}

// isRetryableError reports whether a transport error is worth another
// attempt within the same Get call.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection reset",
		"connection refused",
		"no such host",
		"eof",
		"broken pipe",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func extractContentType(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(contentType)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
