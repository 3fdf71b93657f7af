package adapters

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metadata-enricher/internal/auth"
	"metadata-enricher/internal/canonical"
	"metadata-enricher/internal/common/errors"
	httpx "metadata-enricher/internal/common/http"
	"metadata-enricher/internal/common/logging"
	"metadata-enricher/internal/credentials"
)

// mamServer is a fake asset management system.
type mamServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
}

func newMAMServer(t *testing.T, routes func(r *mux.Router)) *mamServer {
	t.Helper()
	s := &mamServer{}
	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			s.mu.Lock()
			s.requests = append(s.requests, r.Clone(context.Background()))
			s.bodies = append(s.bodies, string(body))
			s.mu.Unlock()
			next.ServeHTTP(w, r)
		})
	})
	routes(router)
	s.Server = httptest.NewServer(router)
	t.Cleanup(s.Close)
	return s
}

func (s *mamServer) last() (*http.Request, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1], s.bodies[len(s.bodies)-1]
}

func (s *mamServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func respond(contentType string, status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func newAdapter() *GenericRestAdapter {
	return NewGenericRestAdapter(nil, NewRateLimiters(), logging.NopLogger{})
}

func fetch(t *testing.T, a *GenericRestAdapter, endpoint string, cfg Config) (*canonical.Map, error) {
	t.Helper()
	return a.Fetch(context.Background(), Request{Endpoint: endpoint, CorrelationID: "X123", Config: cfg})
}

func TestFetch_JSONQuery(t *testing.T) {
	srv := newMAMServer(t, func(r *mux.Router) {
		r.HandleFunc("/assets", respond("application/json", http.StatusOK,
			`{"data":{"items":[{"title":"Bridge","id":"X123"}]}}`)).Methods(http.MethodGet)
	})

	cfg := Config{
		ExtraParams:          map[string]string{"fields": "all"},
		ExtraHeaders:         map[string]string{"X-Tenant": "acme"},
		ResponseMetadataPath: "data.items",
	}
	record, err := fetch(t, newAdapter(), srv.URL+"/assets", cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "id"}, record.Keys())

	req, _ := srv.last()
	assert.Equal(t, "X123", req.URL.Query().Get("id"))
	assert.Equal(t, "all", req.URL.Query().Get("fields"))
	assert.Equal(t, "acme", req.Header.Get("X-Tenant"))
	assert.Len(t, req.Header.Get("X-Request-ID"), 36)
	assert.Contains(t, req.Header.Get("Accept"), "application/json")
}

func TestFetch_PathLocation(t *testing.T) {
	srv := newMAMServer(t, func(r *mux.Router) {
		r.HandleFunc("/assets/{id}", func(w http.ResponseWriter, r *http.Request) {
			respond("application/json", http.StatusOK, `{"id":"`+mux.Vars(r)["id"]+`"}`)(w, r)
		})
	})

	record, err := fetch(t, newAdapter(), srv.URL+"/assets/{correlation_id}", Config{CorrelationIDLocation: "path"})
	require.NoError(t, err)
	id, _ := record.Get("id")
	assert.Equal(t, "X123", id)

	_, err = fetch(t, newAdapter(), srv.URL+"/assets", Config{CorrelationIDLocation: "path"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestFetch_BodyLocation(t *testing.T) {
	srv := newMAMServer(t, func(r *mux.Router) {
		r.HandleFunc("/search", respond("application/json", http.StatusOK, `[{"asset":"X123"}]`)).Methods(http.MethodPost)
	})

	cfg := Config{
		HTTPMethod:            "post",
		CorrelationIDLocation: "body",
		CorrelationIDParam:    "assetId",
		ExtraParams:           map[string]string{"depth": "full"},
	}
	record, err := fetch(t, newAdapter(), srv.URL+"/search", cfg)
	require.NoError(t, err)
	assert.True(t, record.Has("asset"))

	req, body := srv.last()
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Empty(t, req.URL.RawQuery)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.Equal(t, map[string]string{"assetId": "X123", "depth": "full"}, payload)
}

func TestFetch_XML(t *testing.T) {
	const doc = `<?xml version="1.0"?><response><asset id="X123"><title>Bridge</title></asset></response>`

	tests := []struct {
		name        string
		contentType string
		format      string
	}{
		{"content type", "application/xml; charset=utf-8", "auto"},
		{"sniffed", "text/plain", "auto"},
		{"forced", "application/json", "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newMAMServer(t, func(r *mux.Router) {
				r.HandleFunc("/assets", respond(tt.contentType, http.StatusOK, doc))
			})
			record, err := fetch(t, newAdapter(), srv.URL+"/assets",
				Config{ResponseFormat: tt.format, ResponseMetadataPath: "response.asset"})
			require.NoError(t, err)
			id, _ := record.Get("@id")
			assert.Equal(t, "X123", id)
		})
	}
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "json", DetectFormat("json", "application/xml", []byte("<a/>")))
	assert.Equal(t, "xml", DetectFormat("auto", "text/xml", nil))
	assert.Equal(t, "json", DetectFormat("auto", "application/vnd.api+json", nil))
	assert.Equal(t, "xml", DetectFormat("auto", "", []byte("  <a/>")))
	assert.Equal(t, "json", DetectFormat("auto", "", []byte(`{"a":1}`)))
}

func TestFetch_StatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		cfg       Config
		wantType  errors.ErrorType
		retryable bool
	}{
		{"404", respond("application/json", http.StatusNotFound, `{}`), Config{}, errors.ErrTypeNotFound, false},
		{"oversized 404", respond("text/html", http.StatusNotFound, strings.Repeat("x", int(httpx.DefaultMaxBodyBytes)+1)), Config{}, errors.ErrTypeNotFound, false},
		{"401", respond("", http.StatusUnauthorized, ""), Config{}, errors.ErrTypeAuth, false},
		{"403", respond("", http.StatusForbidden, ""), Config{}, errors.ErrTypeAuth, false},
		{"400", respond("", http.StatusBadRequest, "bad"), Config{}, errors.ErrTypeValidation, false},
		{"503", respond("", http.StatusServiceUnavailable, ""), Config{}, errors.ErrTypeTransport, true},
		{"empty body", respond("application/json", http.StatusOK, "  "), Config{}, errors.ErrTypeNotFound, false},
		{"no content", respond("", http.StatusNoContent, ""), Config{}, errors.ErrTypeNotFound, false},
		{"empty list", respond("application/json", http.StatusOK, `{"items":[]}`), Config{ResponseMetadataPath: "items"}, errors.ErrTypeNotFound, false},
		{"empty object", respond("application/json", http.StatusOK, `{}`), Config{}, errors.ErrTypeNotFound, false},
		{"missing path", respond("application/json", http.StatusOK, `{"data":{}}`), Config{ResponseMetadataPath: "data.items"}, errors.ErrTypePathNotFound, false},
		{"scalar record", respond("application/json", http.StatusOK, `{"data":42}`), Config{ResponseMetadataPath: "data"}, errors.ErrTypeValidation, false},
		{"malformed json", respond("application/json", http.StatusOK, `{"data":`), Config{}, errors.ErrTypeValidation, false},
		{"malformed xml", respond("application/xml", http.StatusOK, `<a><b></a>`), Config{}, errors.ErrTypeValidation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newMAMServer(t, func(r *mux.Router) { r.HandleFunc("/assets", tt.handler) })
			_, err := fetch(t, newAdapter(), srv.URL+"/assets", tt.cfg)
			require.Error(t, err)
			assert.Equal(t, tt.wantType, errors.GetType(err), err.Error())
			assert.Equal(t, tt.retryable, errors.IsRetryable(err))
		})
	}
}

func TestFetch_Timeout(t *testing.T) {
	srv := newMAMServer(t, func(r *mux.Router) {
		r.HandleFunc("/assets", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		})
	})

	_, err := fetch(t, newAdapter(), srv.URL+"/assets", Config{TimeoutSeconds: 0.05})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeTimeout))
	assert.True(t, errors.IsRetryable(err))
}

func TestFetch_Cancelled(t *testing.T) {
	srv := newMAMServer(t, func(r *mux.Router) {
		r.HandleFunc("/assets", respond("application/json", http.StatusOK, `{"a":1}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newAdapter().Fetch(ctx, Request{Endpoint: srv.URL + "/assets", CorrelationID: "X123"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeCancelled))
	assert.False(t, errors.IsRetryable(err))
}

func TestFetch_DecoratesWithStrategy(t *testing.T) {
	srv := newMAMServer(t, func(r *mux.Router) {
		r.HandleFunc("/assets", respond("application/json", http.StatusOK, `{"a":1}`))
	})

	strategy := auth.NewAPIKey()
	cfg := auth.Config{}
	cfg.SetDefaults()
	authCtx, err := strategy.Authenticate(context.Background(), &credentials.Bundle{APIKey: "k-1"}, auth.Endpoint{Config: cfg})
	require.NoError(t, err)

	_, err = newAdapter().Fetch(context.Background(), Request{
		Endpoint:      srv.URL + "/assets",
		CorrelationID: "X123",
		Strategy:      strategy,
		AuthContext:   authCtx,
	})
	require.NoError(t, err)

	req, _ := srv.last()
	assert.Equal(t, "k-1", req.Header.Get("X-API-Key"))
}

func TestFetch_RateLimited(t *testing.T) {
	srv := newMAMServer(t, func(r *mux.Router) {
		r.HandleFunc("/assets", respond("application/json", http.StatusOK, `{"a":1}`))
	})

	a := newAdapter()
	cfg := Config{RateLimitPerSecond: 20, RateLimitBurst: 1}

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := fetch(t, a, srv.URL+"/assets", cfg)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, 3, srv.count())
}

func TestFetch_RateLimitWaitPastDeadline(t *testing.T) {
	srv := newMAMServer(t, func(r *mux.Router) {
		r.HandleFunc("/assets", respond("application/json", http.StatusOK, `{"a":1}`))
	})

	a := newAdapter()
	cfg := Config{RateLimitPerSecond: 0.5, RateLimitBurst: 1}
	_, err := fetch(t, a, srv.URL+"/assets", cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = a.Fetch(ctx, Request{Endpoint: srv.URL + "/assets", CorrelationID: "X123", Config: cfg})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeCancelled), err.Error())
	assert.False(t, errors.IsRetryable(err))
	assert.Less(t, time.Since(start), 150*time.Millisecond, "gives up without sleeping to the deadline")
	assert.Equal(t, 1, srv.count())
}

func TestRateLimiters(t *testing.T) {
	var nilSet *RateLimiters
	assert.Nil(t, nilSet.For("host", 5, 1))

	set := NewRateLimiters()
	assert.Nil(t, set.For("host", 0, 1))
	first := set.For("host", 5, 0)
	require.NotNil(t, first)
	assert.Equal(t, 1, first.Burst())
	assert.Same(t, first, set.For("host", 10, 3))
	assert.NotSame(t, first, set.For("other", 5, 1))
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, http.MethodGet, cfg.HTTPMethod)
	assert.Equal(t, "id", cfg.CorrelationIDParam)
	assert.Equal(t, "query", cfg.CorrelationIDLocation)
	assert.Equal(t, "auto", cfg.ResponseFormat)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"generic_rest", "rest", "generic"} {
		factory, err := r.Get(name)
		require.NoError(t, err)
		assert.Equal(t, GenericRestName, factory(Dependencies{}).Name())
	}

	_, err := r.Get("graphql")
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}
