package http

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"metadata-enricher/internal/common/errors"
)

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes int64 = 10 << 20

// ClientConfig holds HTTP client configuration
type ClientConfig struct {
	// Timeout is the whole-client timeout. It is zero by default because
	// per-attempt deadlines are carried by the request context.
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	DisableKeepAlives   bool
	Transport           http.RoundTripper
}

// DefaultClientConfig returns default HTTP client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// ClientOption is a function that modifies ClientConfig
type ClientOption func(*ClientConfig)

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.Timeout = timeout
	}
}

// WithMaxIdleConnsPerHost sets the maximum number of idle connections per host
func WithMaxIdleConnsPerHost(max int) ClientOption {
	return func(c *ClientConfig) {
		c.MaxIdleConnsPerHost = max
	}
}

// WithoutKeepAlives disables keep-alives
func WithoutKeepAlives() ClientOption {
	return func(c *ClientConfig) {
		c.DisableKeepAlives = true
	}
}

// WithTransport sets a custom transport
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *ClientConfig) {
		c.Transport = transport
	}
}

// NewHTTPClient creates a new HTTP client with the given options
func NewHTTPClient(opts ...ClientOption) *http.Client {
	cfg := DefaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.IdleConnTimeout,
			DisableKeepAlives:   cfg.DisableKeepAlives,
		}
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// ContentType returns the response Content-Type header
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Do sends req once and reads at most maxBody bytes of the response.
// parent is the invocation context (not the per-attempt one) and is used
// to tell caller cancellation apart from an attempt timeout. Transport
// failures come back classified; non-2xx statuses are not errors here, and
// their bodies are truncated to maxBody rather than rejected.
func Do(parent context.Context, client *http.Client, req *http.Request, operation string, maxBody int64) (*Response, error) {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	start := time.Now()

	resp, err := client.Do(req)
	if err != nil {
		return nil, ClassifyError(parent, operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, ClassifyError(parent, operation, err)
	}
	if int64(len(body)) > maxBody {
		// An oversized error page still carries a status worth classifying.
		if !IsSuccess(resp.StatusCode) {
			body = body[:maxBody]
		} else {
			return nil, errors.ValidationError(fmt.Sprintf("%s response exceeds %d bytes", operation, maxBody)).
				WithStatus(resp.StatusCode)
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}

// ClassifyError maps a client error onto the error taxonomy: a done parent
// context is a cancellation (never retried), a deadline or network timeout
// is a timeout, and anything else is a transport failure.
func ClassifyError(parent context.Context, operation string, err error) error {
	if parent != nil && parent.Err() != nil {
		return errors.CancelledError(operation, parent.Err())
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.TimeoutError(operation, err)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.TimeoutError(operation, err)
	}

	return errors.TransportError(fmt.Sprintf("%s request failed", operation), err)
}

// AttemptContext derives a per-attempt context. A non-positive timeout
// leaves only the parent's deadline in force.
func AttemptContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

// IsSuccess reports whether status is 2xx
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// Snippet returns at most n bytes of body for error context
func Snippet(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
