package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/howard-nolan/reigate/internal/upstream"
)

// chatRequest is the inbound body for POST /chat/{unit_id}.
type chatRequest struct {
	// Text is relayed verbatim: no sanitization, no length limit, empty
	// allowed.
	Text string `json:"text"`

	// TokenWatchlist is an optional list of opaque records. The gateway
	// never interprets or forwards it; it only shows up as a count in the
	// request log.
	TokenWatchlist []map[string]any `json:"token_watchlist,omitempty"`
}

// chatResponse is the normalized envelope returned to the caller.
type chatResponse struct {
	Content        string          `json:"content"`
	Unit           string          `json:"unit"`
	RawInputLength int             `json:"raw_input_length"`
	RawResponse    json.RawMessage `json:"raw_response"`
}

type unitsResponse struct {
	Units []string `json:"units"`
	Count int      `json:"count"`
}

type healthResponse struct {
	Status          string `json:"status"`
	UnitsConfigured int    `json:"units_configured"`
}

// detailResponse is the error envelope for every non-200 the gateway
// produces itself: {"detail": "..."}.
type detailResponse struct {
	Detail string `json:"detail"`
}

// handleChat handles POST /chat/{unit_id}: resolve the unit to its
// credential, relay the text to the REI API, return the normalized
// response. One inbound request maps to at most one outbound call.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	unitID := strings.ToLower(chi.URLParam(r, "unitID"))

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeDetail(w, "chat", http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	s.log.Info("incoming chat request",
		"request_id", middleware.GetReqID(r.Context()),
		"unit", unitID,
		"text_length", utf8.RuneCountInString(req.Text),
		"token_watchlist_entries", len(req.TokenWatchlist),
	)

	secret, err := s.registry.Resolve(unitID)
	if err != nil {
		// The lookup error enumerates configured unit names (never
		// credentials), so callers can self-correct.
		s.log.Error("unit not found", "unit", unitID, "configured", s.registry.Names())
		s.writeDetail(w, "chat", http.StatusNotFound, err.Error())
		return
	}

	res, err := s.rei.ChatCompletion(r.Context(), secret, req.Text)
	if err != nil {
		status, detail := translateRelayError(err)
		s.log.Error("chat relay failed", "unit", unitID, "status", status, "error", err)
		s.writeDetail(w, "chat", status, detail)
		return
	}

	resp := chatResponse{
		Content:        res.Content,
		Unit:           unitID,
		RawInputLength: utf8.RuneCountInString(req.Text),
		RawResponse:    res.Raw,
	}

	s.log.Info("chat response",
		"request_id", middleware.GetReqID(r.Context()),
		"unit", unitID,
		"content_length", utf8.RuneCountInString(resp.Content),
	)
	s.writeJSON(w, "chat", http.StatusOK, resp)
}

// translateRelayError maps the upstream error taxonomy onto the HTTP codes
// and detail messages the gateway's callers see. Every relay error passes
// through here exactly once; nothing is retried or swallowed.
func translateRelayError(err error) (status int, detail string) {
	var statusErr *upstream.StatusError

	switch {
	case errors.Is(err, upstream.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"

	case errors.Is(err, upstream.ErrAgentNotFound):
		return http.StatusNotFound, "Agent not found"

	case errors.As(err, &statusErr):
		// Other upstream statuses pass straight through with the raw
		// upstream body as detail.
		return statusErr.Status, "API error: " + statusErr.Body

	case errors.Is(err, upstream.ErrTimeout):
		return http.StatusGatewayTimeout,
			"The REI API took too long to respond. The operation may still be running upstream; try a simpler query or check back later."

	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// handleUnits handles GET /units.
func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	names := s.registry.Names()
	s.log.Info("units endpoint accessed", "count", len(names))

	s.writeJSON(w, "units", http.StatusOK, unitsResponse{
		Units: names,
		Count: len(names),
	})
}

// handleHealth handles GET /health. It always reports healthy while the
// process runs; an empty registry shows up in units_configured, not in the
// status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "health", http.StatusOK, healthResponse{
		Status:          "healthy",
		UnitsConfigured: s.registry.Len(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, route string, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("writing response", "route", route, "error", err)
	}
	s.metrics.IncRequest(route, status)
}

func (s *Server) writeDetail(w http.ResponseWriter, route string, status int, detail string) {
	s.writeJSON(w, route, status, detailResponse{Detail: detail})
}
