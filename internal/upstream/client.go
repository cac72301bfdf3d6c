// Package upstream implements the client for the REI chat-completion API.
//
// The REI API is opaque beyond its documented shape: POST a JSON body of
// messages with a Bearer credential, get back a JSON payload that usually
// (but not always) carries choices[0].message.content. Everything else in
// the gateway works against the typed errors defined in errors.go.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/howard-nolan/reigate/internal/metrics"
	"github.com/howard-nolan/reigate/internal/units"
)

// chatCompletionPath is the fixed endpoint path on the REI API host.
const chatCompletionPath = "/rei/agents/chat-completion"

// Client makes chat-completion calls against one REI API host.
//
// The *http.Client is injected rather than constructed here so main.go
// owns the (very long) call timeout and tests can swap in fakes or a VCR
// transport.
type Client struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a Client ready to make API calls.
func NewClient(baseURL string, client *http.Client, log *slog.Logger, m *metrics.Metrics) *Client {
	return &Client{
		baseURL: baseURL,
		client:  client,
		log:     log,
		metrics: m,
	}
}

// ---------------------------------------------------------------------------
// REI API wire types (unexported — only this file uses them)
// ---------------------------------------------------------------------------

// chatRequest is the top-level request body for the chat-completion endpoint.
type chatRequest struct {
	Messages []chatMessage `json:"messages"`
}

// chatMessage is one message in the conversation. The gateway only ever
// sends a single user message.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse captures just the part of the upstream payload we extract
// content from. The full raw payload is passed through untouched in
// Result.Raw — this struct exists only for the choices[0].message.content
// path.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Result is the outcome of a successful chat-completion call.
type Result struct {
	// Content is choices[0].message.content when the upstream payload has
	// that shape, and "" otherwise. The empty-string fallback is
	// deliberate: the REI API sometimes returns 200 bodies without
	// choices, and those are not errors.
	Content string

	// Raw is the upstream response body, verbatim.
	Raw json.RawMessage
}

// ---------------------------------------------------------------------------
// ChatCompletion
// ---------------------------------------------------------------------------

// ChatCompletion relays one chat message to the REI API on behalf of a
// unit and returns the normalized result. Exactly one attempt is made —
// no retries at any layer.
//
// text goes on the wire verbatim: no sanitization, length limit, or
// escaping beyond JSON encoding. The full credential goes in the
// Authorization header; only the masked form ever reaches the log.
//
// Failures map to the taxonomy in errors.go, checked in this order:
// 401 → ErrUnauthorized, 404 → ErrAgentNotFound, other non-200 →
// *StatusError, timeout → ErrTimeout, anything else → a wrapped generic
// error.
func (c *Client) ChatCompletion(ctx context.Context, secret, text string) (*Result, error) {
	// Step 1: Build and serialize the request body.
	body, err := json.Marshal(&chatRequest{
		Messages: []chatMessage{{Role: "user", Content: text}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	// Step 2: Build the HTTP request. The context comes from the inbound
	// request, so a dropped client connection aborts this call too.
	url := c.baseURL + chatCompletionPath

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+secret)

	c.log.Info("outgoing request to rei api",
		"url", url,
		"authorization", "Bearer "+units.Mask(secret),
		"body_length", len(body),
	)

	// Step 3: Make the HTTP call. This is the only suspension point in
	// the gateway; it can legitimately block for tens of minutes.
	start := time.Now()

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		c.metrics.ObserveUpstream(0, time.Since(start))

		// A read timeout is reported distinctly: the completion may well
		// still be running upstream even though we gave up waiting.
		var netErr net.Error
		if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("sending request to rei api: %w", err)
	}
	defer httpResp.Body.Close()

	c.metrics.ObserveUpstream(httpResp.StatusCode, time.Since(start))
	c.log.Info("rei api response", "status", httpResp.StatusCode, "elapsed", time.Since(start).String())

	// Step 4: Walk the status ladder — first match wins.
	switch {
	case httpResp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case httpResp.StatusCode == http.StatusNotFound:
		return nil, ErrAgentNotFound
	case httpResp.StatusCode != http.StatusOK:
		raw, _ := io.ReadAll(httpResp.Body)
		return nil, &StatusError{Status: httpResp.StatusCode, Body: string(raw)}
	}

	// Step 5: Read and decode the 200 body. We keep the raw bytes — the
	// caller passes them through untouched — and separately pick out the
	// content path.
	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("reading rei response: %w", err)
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding rei response: %w", err)
	}

	// A body without choices yields empty content, not an error.
	var content string
	if len(decoded.Choices) > 0 {
		content = decoded.Choices[0].Message.Content
	}

	return &Result{Content: content, Raw: raw}, nil
}
