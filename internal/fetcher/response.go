package fetcher

import "strings"

// Response is the outcome of a successful HTTP exchange. Transport
// failures are reported as errors from Get, not as Responses.
type Response struct {
	// HTTP status code
	StatusCode int

	// Status text, e.g. "200 OK"
	Status string

	// Content-Type header value without parameters
	ContentType string

	// Response body, capped at the configured maximum size
	Body []byte

	// Final URL after any redirects
	FinalURL string
}

// IsSuccess reports whether the response status is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsServerError reports whether the response status is 5xx. Server
// errors are retriable from the engine's point of view: the URL gets
// another chance on a later run.
func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500 && r.StatusCode < 600
}

// IsHTML reports whether the response carries an HTML document.
func (r *Response) IsHTML() bool {
	return strings.HasPrefix(r.ContentType, "text/html")
}
