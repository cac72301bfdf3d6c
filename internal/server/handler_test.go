package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/reigate/internal/config"
	"github.com/howard-nolan/reigate/internal/metrics"
	"github.com/howard-nolan/reigate/internal/units"
	"github.com/howard-nolan/reigate/internal/upstream"
)

// newTestServer wires a full Server against a fake upstream. environ seeds
// the unit registry; clientTimeout (zero = none) stands in for the 50-minute
// production timeout.
func newTestServer(t *testing.T, environ []string, upstreamHandler http.HandlerFunc, clientTimeout time.Duration) *Server {
	t.Helper()

	fakeUpstream := httptest.NewServer(upstreamHandler)
	t.Cleanup(fakeUpstream.Close)

	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			BaseURL: fakeUpstream.URL,
			Timeout: clientTimeout,
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	rei := upstream.NewClient(cfg.Upstream.BaseURL, &http.Client{Timeout: clientTimeout}, logger, m)

	return New(cfg, units.FromEnviron(environ), rei, m, logger)
}

func doChat(srv *Server, unit, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat/"+unit, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decodeDetail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Detail
}

func okUpstream(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func TestChatSuccess(t *testing.T) {
	var gotAuth string
	upstreamBody := `{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`

	srv := newTestServer(t,
		[]string{"REI_AGENT_SECRET_ALPHA=tok-alpha-secret"},
		func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte(upstreamBody))
		},
		0,
	)

	w := doChat(srv, "alpha", `{"text":"What is the capital of France?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	// Full credential on the wire.
	assert.Equal(t, "Bearer tok-alpha-secret", gotAuth)

	var resp struct {
		Content        string          `json:"content"`
		Unit           string          `json:"unit"`
		RawInputLength int             `json:"raw_input_length"`
		RawResponse    json.RawMessage `json:"raw_response"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "alpha", resp.Unit)
	assert.Equal(t, len("What is the capital of France?"), resp.RawInputLength)
	assert.JSONEq(t, upstreamBody, string(resp.RawResponse))
}

func TestChatUnitCaseInsensitive(t *testing.T) {
	srv := newTestServer(t,
		[]string{"REI_AGENT_SECRET_ALPHA=tok"},
		okUpstream(`{"choices":[{"message":{"content":"hi"}}]}`),
		0,
	)

	w := doChat(srv, "ALPHA", `{"text":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Unit string `json:"unit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alpha", resp.Unit)
}

func TestChatUnknownUnit(t *testing.T) {
	upstreamCalls := 0

	srv := newTestServer(t,
		[]string{
			"REI_AGENT_SECRET_ALPHA=secret-one",
			"REI_AGENT_SECRET_BETA=secret-two",
		},
		func(w http.ResponseWriter, r *http.Request) { upstreamCalls++ },
		0,
	)

	w := doChat(srv, "ghost", `{"text":"hi"}`)
	require.Equal(t, http.StatusNotFound, w.Code)

	// No outbound call for a unit miss.
	assert.Equal(t, 0, upstreamCalls)

	// The detail lists exactly the configured identifiers and no secrets.
	detail := decodeDetail(t, w)
	assert.Contains(t, detail, `"ghost"`)
	assert.Contains(t, detail, "alpha")
	assert.Contains(t, detail, "beta")
	assert.NotContains(t, detail, "secret-one")
	assert.NotContains(t, detail, "secret-two")
}

func TestChatUpstreamUnauthorized(t *testing.T) {
	srv := newTestServer(t,
		[]string{"REI_AGENT_SECRET_ALPHA=super-secret"},
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
		0,
	)

	w := doChat(srv, "alpha", `{"text":"hi"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, "Unauthorized", decodeDetail(t, w))
	assert.NotContains(t, w.Body.String(), "super-secret")
}

func TestChatUpstreamAgentNotFound(t *testing.T) {
	srv := newTestServer(t,
		[]string{"REI_AGENT_SECRET_ALPHA=tok"},
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
		0,
	)

	w := doChat(srv, "alpha", `{"text":"hi"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Agent not found", decodeDetail(t, w))
}

func TestChatUpstreamStatusPassthrough(t *testing.T) {
	srv := newTestServer(t,
		[]string{"REI_AGENT_SECRET_ALPHA=tok"},
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limited"}`))
		},
		0,
	)

	w := doChat(srv, "alpha", `{"text":"hi"}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, decodeDetail(t, w), "rate limited")
}

func TestChatUpstreamTimeout(t *testing.T) {
	srv := newTestServer(t,
		[]string{"REI_AGENT_SECRET_ALPHA=tok"},
		func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(500 * time.Millisecond)
		},
		30*time.Millisecond,
	)

	w := doChat(srv, "alpha", `{"text":"hi"}`)
	require.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, decodeDetail(t, w), "may still be running")
}

func TestChatUpstreamNoChoices(t *testing.T) {
	srv := newTestServer(t,
		[]string{"REI_AGENT_SECRET_ALPHA=tok"},
		okUpstream(`{"object":"completion"}`),
		0,
	)

	w := doChat(srv, "alpha", `{"text":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Content string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "", resp.Content)
}

func TestChatMalformedUpstreamBody(t *testing.T) {
	srv := newTestServer(t,
		[]string{"REI_AGENT_SECRET_ALPHA=tok"},
		okUpstream(`not json at all`),
		0,
	)

	w := doChat(srv, "alpha", `{"text":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestChatInvalidRequestBody(t *testing.T) {
	srv := newTestServer(t,
		[]string{"REI_AGENT_SECRET_ALPHA=tok"},
		okUpstream(`{}`),
		0,
	)

	w := doChat(srv, "alpha", `{"text": not-json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatTokenWatchlistAccepted(t *testing.T) {
	srv := newTestServer(t,
		[]string{"REI_AGENT_SECRET_ALPHA=tok"},
		okUpstream(`{"choices":[{"message":{"content":"ok"}}]}`),
		0,
	)

	// token_watchlist is opaque to the gateway; any record shape passes.
	w := doChat(srv, "alpha", `{"text":"hi","token_watchlist":[{"symbol":"REI","chain":1}]}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnitsEmpty(t *testing.T) {
	srv := newTestServer(t, nil, okUpstream(`{}`), 0)

	req := httptest.NewRequest(http.MethodGet, "/units", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"units":[],"count":0}`, w.Body.String())
}

func TestUnitsPopulated(t *testing.T) {
	srv := newTestServer(t,
		[]string{
			"REI_AGENT_SECRET_ZULU=tok-z",
			"REI_AGENT_SECRET_ALPHA=tok-a",
		},
		okUpstream(`{}`),
		0,
	)

	req := httptest.NewRequest(http.MethodGet, "/units", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"units":["alpha","zulu"],"count":2}`, w.Body.String())
}

func TestHealthAlwaysHealthy(t *testing.T) {
	// Healthy even with an empty registry.
	srv := newTestServer(t, nil, okUpstream(`{}`), 0)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","units_configured":0}`, w.Body.String())

	srv = newTestServer(t,
		[]string{"REI_AGENT_SECRET_ALPHA=tok"},
		okUpstream(`{}`),
		0,
	)

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"healthy","units_configured":1}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil, okUpstream(`{}`), 0)

	// Generate one sample so the counter appears in the exposition.
	srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "reigate_requests_total")
}
