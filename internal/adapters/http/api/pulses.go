package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/resonance/internal/domain/model"
)

// recordRequest is the body of POST /v1/pulses and POST /v1/inbox.
type recordRequest struct {
	Text        string `json:"text"`
	InputType   string `json:"input_type"`
	SourceLabel string `json:"source_label"`
	PublishedAt string `json:"published_at"`
}

type queuedResponse struct {
	Status string `json:"status"`
}

// handleRecord handles POST /v1/pulses: a synchronous recording that emits
// no notifications. A record stored despite a failed fingerprint write is
// returned in the error body.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	const op = "api.record"
	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, wrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeDomainError(w, wrapKind(op, ErrBadRequest, errors.New("missing text")))
		return
	}
	published, err := parseTime(req.PublishedAt)
	if err != nil {
		writeDomainError(w, wrapKind(op, ErrBadRequest, err))
		return
	}
	meta := model.RecordMeta{InputType: req.InputType, SourceLabel: req.SourceLabel}
	if !published.IsZero() {
		meta.PublishedAt = &published
	}
	c, err := s.deps.Record(r.Context(), req.Text, meta)
	switch {
	case err != nil && c.ID != "":
		status, code := domainStatus(err)
		writeJSON(w, status, partialResponse{
			errorResponse: errorResponse{Code: code, Message: err.Error()},
			Comparison:    c,
		})
	case err != nil:
		writeDomainError(w, err)
	default:
		writeJSON(w, http.StatusCreated, c)
	}
}

// handleGetPulse handles GET /v1/pulses/{id}.
func (s *Server) handleGetPulse(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Comparison(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleConvergences handles GET /v1/convergences?min_strength=&min_matches=&since=.
// Absent thresholds take the configured defaults.
func (s *Server) handleConvergences(w http.ResponseWriter, r *http.Request) {
	const op = "api.convergences"
	q := r.URL.Query()
	c := s.deps.ConvergenceDefaults()
	if raw := q.Get("min_strength"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			writeDomainError(w, wrapKind(op, ErrBadRequest, errors.New("min_strength must be within [0,1]")))
			return
		}
		c.MinStrength = v
	}
	if raw := q.Get("min_matches"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeDomainError(w, wrapKind(op, ErrBadRequest, errors.New("min_matches must be a positive integer")))
			return
		}
		c.MinMatches = v
	}
	since, err := parseTime(q.Get("since"))
	if err != nil {
		writeDomainError(w, wrapKind(op, ErrBadRequest, err))
		return
	}
	c.Since = since

	found, err := s.deps.Convergences(r.Context(), c)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if found == nil {
		found = []model.Comparison{}
	}
	writeJSON(w, http.StatusOK, found)
}

// handleInbox handles POST /v1/inbox: the text is recorded on the next tick.
func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	const op = "api.inbox"
	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, wrapKind(op, ErrBadRequest, err))
		return
	}
	published, err := parseTime(req.PublishedAt)
	if err != nil {
		writeDomainError(w, wrapKind(op, ErrBadRequest, err))
		return
	}
	if err := s.deps.Push(req.Text, req.SourceLabel, published); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, queuedResponse{Status: "queued"})
}
