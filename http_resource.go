package pollster

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jpalmerr/pollster/internal/httpfetch"
)

const defaultHTTPTimeout = 10 * time.Second

// sharedClient pools connections across all HTTP resources.
var sharedClient = httpfetch.NewClient()

// HTTPResponse is the result of a successful [HTTPResource] fetch.
type HTTPResponse struct {
	// StatusCode is the HTTP status code, always 2xx.
	StatusCode int

	// Body is the response body, limited to 1MB.
	Body []byte

	// Latency is the time taken by the request.
	Latency time.Duration

	// CheckedAt is when the response was received.
	CheckedAt time.Time
}

// StatusError is the fetch error for a response outside the 2xx range.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTPResource is a [Resource] that polls a URL.
//
// Every fetch sends one request; the poller's passthrough data is added to
// the query string. Responses outside the 2xx range are failed attempts
// reported as [*StatusError].
//
// HTTPResource implements [DestroyNotifier]: [HTTPResource.Close] stops every
// poller bound to it.
type HTTPResource struct {
	name    string
	url     string
	method  string
	headers map[string]string
	timeout time.Duration
	client  *httpfetch.Client

	mu        sync.Mutex
	last      *HTTPResponse
	onDestroy map[int]func()
	nextSub   int
	closed    bool
}

// httpConfig holds mutable state during resource construction.
type httpConfig struct {
	name    string
	method  string
	headers map[string]string
	timeout time.Duration
}

// HTTPOption configures an [HTTPResource] during construction.
type HTTPOption func(*httpConfig) error

// WithName sets a display name used by the CLI and logs. Defaults to the URL.
func WithName(name string) HTTPOption {
	return func(cfg *httpConfig) error {
		if name == "" {
			return errors.New("name cannot be empty")
		}
		cfg.name = name
		return nil
	}
}

// WithMethod sets the HTTP method. Supported methods are GET (default),
// HEAD and POST.
func WithMethod(method string) HTTPOption {
	return func(cfg *httpConfig) error {
		switch method {
		case http.MethodGet, http.MethodHead, http.MethodPost:
			cfg.method = method
			return nil
		default:
			return errors.New("method must be GET, HEAD, or POST")
		}
	}
}

// WithHeaders adds request headers as key-value pairs.
//
// Returns an error if an odd number of arguments is provided.
func WithHeaders(keyValues ...string) HTTPOption {
	return func(cfg *httpConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout sets the per-request timeout. Defaults to 10 seconds.
func WithTimeout(d time.Duration) HTTPOption {
	return func(cfg *httpConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// NewHTTPResource creates an [HTTPResource] for rawURL.
//
// Returns an error if the URL has no http or https scheme or an option is
// invalid.
//
// Example:
//
//	res, err := pollster.NewHTTPResource("https://api.example.com/jobs/42",
//	    pollster.WithHeaders("Authorization", "Bearer token"),
//	    pollster.WithTimeout(5*time.Second),
//	)
func NewHTTPResource(rawURL string, opts ...HTTPOption) (*HTTPResource, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New("URL must have an http:// or https:// scheme")
	}

	cfg := &httpConfig{
		name:    rawURL,
		headers: make(map[string]string),
		timeout: defaultHTTPTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	return &HTTPResource{
		name:      cfg.name,
		url:       rawURL,
		method:    cfg.method,
		headers:   cfg.headers,
		timeout:   cfg.timeout,
		client:    sharedClient,
		onDestroy: make(map[int]func()),
	}, nil
}

// Name returns the resource's display name.
func (h *HTTPResource) Name() string {
	return h.name
}

// URL returns the polled URL.
func (h *HTTPResource) URL() string {
	return h.url
}

// Fetch sends one request. The result of a successful fetch is an
// [*HTTPResponse].
func (h *HTTPResource) Fetch(ctx context.Context, data map[string]any) (any, error) {
	resp, err := h.client.Fetch(ctx, httpfetch.Request{
		Method:  h.method,
		URL:     h.url,
		Headers: h.headers,
		Query:   toQuery(data),
		Timeout: h.timeout,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	result := &HTTPResponse{
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		Latency:    resp.Latency,
		CheckedAt:  time.Now(),
	}
	h.mu.Lock()
	h.last = result
	h.mu.Unlock()
	return result, nil
}

// LastResponse returns the most recent successful response, or nil.
func (h *HTTPResource) LastResponse() *HTTPResponse {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// OnDestroy implements [DestroyNotifier].
func (h *HTTPResource) OnDestroy(fn func()) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		go fn()
		return func() {}
	}
	h.nextSub++
	id := h.nextSub
	h.onDestroy[id] = fn
	return func() {
		h.mu.Lock()
		delete(h.onDestroy, id)
		h.mu.Unlock()
	}
}

// Close marks the resource destroyed and stops every poller bound to it.
// Safe to call multiple times.
func (h *HTTPResource) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	fns := make([]func(), 0, len(h.onDestroy))
	for _, fn := range h.onDestroy {
		fns = append(fns, fn)
	}
	h.onDestroy = make(map[int]func())
	h.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// toQuery converts passthrough data to query parameters.
func toQuery(data map[string]any) url.Values {
	if len(data) == 0 {
		return nil
	}
	q := make(url.Values, len(data))
	for k, v := range data {
		switch vs := v.(type) {
		case []string:
			q[k] = append([]string(nil), vs...)
		default:
			q.Set(k, fmt.Sprint(v))
		}
	}
	return q
}
