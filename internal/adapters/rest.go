package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"metadata-enricher/internal/canonical"
	"metadata-enricher/internal/common/errors"
	httpx "metadata-enricher/internal/common/http"
	"metadata-enricher/internal/common/logging"
	"metadata-enricher/internal/common/utils"
)

// GenericRestName is the registry name of the REST adapter.
const GenericRestName = "generic_rest"

const correlationPlaceholder = "{correlation_id}"

// GenericRestAdapter fetches JSON or XML metadata over HTTP.
//
// The correlation id is sent as a query parameter, a JSON body field or a
// path segment substituted for {correlation_id} in the endpoint. The
// response format is fixed by response_format or, for "auto", taken from
// the Content-Type header and failing that from the first byte of the
// body. 404 responses and empty results are MetadataNotFound; other
// statuses are classified by errors.HTTPStatusError.
type GenericRestAdapter struct {
	client   *http.Client
	limiters *RateLimiters
	logger   logging.Logger
}

// NewGenericRestAdapter creates the adapter. A nil client uses a default
// pooled client; nil limiters disable rate limiting.
func NewGenericRestAdapter(client *http.Client, limiters *RateLimiters, logger logging.Logger) *GenericRestAdapter {
	if client == nil {
		client = httpx.NewHTTPClient()
	}
	return &GenericRestAdapter{
		client:   client,
		limiters: limiters,
		logger:   logging.OrGlobal(logger),
	}
}

// Name returns the registry name.
func (a *GenericRestAdapter) Name() string { return GenericRestName }

// Fetch performs one request and returns the metadata record.
func (a *GenericRestAdapter) Fetch(ctx context.Context, req Request) (*canonical.Map, error) {
	cfg := req.Config
	cfg.SetDefaults()
	logger := a.logger.WithContext(ctx)

	if limiter := a.limiters.For(limiterKey(req.Endpoint), cfg.RateLimitPerSecond, cfg.RateLimitBurst); limiter != nil {
		// Wait fails when ctx is done or its deadline is too close for the
		// next token; a retry would hit the same deadline.
		if err := limiter.Wait(ctx); err != nil {
			return nil, errors.CancelledError("rate limit wait", err)
		}
	}

	attemptCtx, cancel := httpx.AttemptContext(ctx, cfg.Timeout())
	defer cancel()

	httpReq, err := a.buildRequest(attemptCtx, req, cfg)
	if err != nil {
		return nil, err
	}

	resp, err := httpx.Do(ctx, a.client, httpReq, "metadata fetch", httpx.DefaultMaxBodyBytes)
	if err != nil {
		return nil, err
	}

	logger.Debug("Metadata response received",
		logging.Int("status", resp.StatusCode),
		logging.Int("bytes", len(resp.Body)),
		logging.Duration("duration", resp.Duration),
		logging.String("request_id", httpReq.Header.Get("X-Request-ID")))

	if !httpx.IsSuccess(resp.StatusCode) {
		return nil, errors.HTTPStatusError(resp.StatusCode, req.CorrelationID, httpx.Snippet(resp.Body, 256))
	}

	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil, errors.MetadataNotFoundError(req.CorrelationID)
	}

	tree, err := parseBody(resp, cfg.ResponseFormat)
	if err != nil {
		return nil, err
	}

	selected, err := canonical.Traverse(tree, cfg.ResponseMetadataPath)
	if err != nil {
		return nil, err
	}

	return selectRecord(selected, req.CorrelationID)
}

func (a *GenericRestAdapter) buildRequest(ctx context.Context, req Request, cfg Config) (*http.Request, error) {
	endpoint := req.Endpoint
	if cfg.CorrelationIDLocation == "path" {
		if !strings.Contains(endpoint, correlationPlaceholder) {
			return nil, errors.ConfigError("metadata_endpoint must contain " + correlationPlaceholder + " when correlation_id_location is path")
		}
		endpoint = strings.ReplaceAll(endpoint, correlationPlaceholder, url.PathEscape(req.CorrelationID))
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid metadata_endpoint: %v", err))
	}

	var body io.Reader
	method := strings.ToUpper(cfg.HTTPMethod)

	if cfg.CorrelationIDLocation == "body" {
		payload := make(map[string]string, len(cfg.ExtraParams)+1)
		for k, v := range cfg.ExtraParams {
			payload[k] = v
		}
		payload[cfg.CorrelationIDParam] = req.CorrelationID
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.InternalError("failed to encode request body", err)
		}
		body = bytes.NewReader(data)
	} else {
		q := u.Query()
		for k, v := range cfg.ExtraParams {
			q.Set(k, v)
		}
		if cfg.CorrelationIDLocation == "query" {
			q.Set(cfg.CorrelationIDParam, req.CorrelationID)
		}
		u.RawQuery = q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("failed to build metadata request: %v", err))
	}

	httpReq.Header.Set("Accept", acceptHeader(cfg.ResponseFormat))
	httpReq.Header.Set("X-Request-ID", utils.NewRequestID())
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range cfg.ExtraHeaders {
		httpReq.Header.Set(k, v)
	}

	if req.Strategy != nil {
		if err := req.Strategy.Decorate(httpReq, req.AuthContext); err != nil {
			return nil, err
		}
	}
	return httpReq, nil
}

func acceptHeader(format string) string {
	switch format {
	case "json":
		return "application/json"
	case "xml":
		return "application/xml, text/xml"
	default:
		return "application/json, application/xml;q=0.9, text/xml;q=0.9, */*;q=0.1"
	}
}

// DetectFormat resolves "auto" to json or xml.
func DetectFormat(format, contentType string, body []byte) string {
	if format == "json" || format == "xml" {
		return format
	}

	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "xml"):
		return "xml"
	case strings.Contains(ct, "json"):
		return "json"
	}

	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '<' {
		return "xml"
	}
	return "json"
}

func parseBody(resp *httpx.Response, format string) (any, error) {
	switch DetectFormat(format, resp.ContentType(), resp.Body) {
	case "xml":
		tree, err := canonical.ParseXML(resp.Body)
		if err != nil {
			return nil, errors.ValidationError("malformed XML response").WithContext("cause", err.Error())
		}
		return tree, nil
	default:
		tree, err := canonical.ParseJSON(resp.Body)
		if err != nil {
			return nil, errors.ValidationError("malformed JSON response").WithContext("cause", err.Error())
		}
		return tree, nil
	}
}

// selectRecord turns the selected subtree into one record: an empty result
// is no match, a list yields its first element.
func selectRecord(v any, correlationID string) (*canonical.Map, error) {
	switch t := v.(type) {
	case *canonical.Map:
		if t.Len() == 0 {
			return nil, errors.MetadataNotFoundError(correlationID)
		}
		return t, nil
	case canonical.List:
		if len(t) == 0 {
			return nil, errors.MetadataNotFoundError(correlationID)
		}
		return selectRecord(t[0], correlationID)
	case nil:
		return nil, errors.MetadataNotFoundError(correlationID)
	default:
		if s, ok := t.(string); ok && strings.TrimSpace(s) == "" {
			return nil, errors.MetadataNotFoundError(correlationID)
		}
		return nil, errors.ValidationError(fmt.Sprintf("metadata must be an object, got %s", canonical.Kind(v)))
	}
}

func limiterKey(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return endpoint
}
