package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/okian/resonance/internal/domain/model"
)

// registerRequest is the body of POST /v1/fingerprints. Charge accepts a
// number or a string; anything unparseable resolves to the default.
type registerRequest struct {
	IntentText string          `json:"intent_text"`
	Owner      string          `json:"owner"`
	Tags       []string        `json:"tags"`
	Charge     json.RawMessage `json:"charge"`
	Source     string          `json:"source"`
	Priority   string          `json:"priority"`
	Category   string          `json:"category"`
}

func (req *registerRequest) validate() error {
	switch {
	case strings.TrimSpace(req.IntentText) == "":
		return errors.New("missing intent_text")
	case strings.TrimSpace(req.Owner) == "":
		return errors.New("missing owner")
	}
	return nil
}

func (req *registerRequest) options() model.RegisterOptions {
	opts := model.RegisterOptions{
		Tags:     req.Tags,
		Source:   req.Source,
		Priority: req.Priority,
		Category: req.Category,
	}
	raw := bytes.TrimSpace(req.Charge)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return opts
	}
	var charge float64
	var text string
	switch {
	case json.Unmarshal(raw, &charge) == nil:
	case json.Unmarshal(raw, &text) == nil:
		charge = model.ParseCharge(text)
	default:
		charge = model.DefaultCharge
	}
	opts.Charge = &charge
	return opts
}

type archiveResponse struct {
	ID       string `json:"id"`
	Archived bool   `json:"archived"`
}

// handleRegister handles POST /v1/fingerprints.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "api.register"
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, wrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeDomainError(w, wrapKind(op, ErrBadRequest, err))
		return
	}
	fp, err := s.deps.Register(r.Context(), req.IntentText, req.Owner, req.options())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fp)
}

// handleListFingerprints handles GET /v1/fingerprints?owner=&tag=&active=.
// Tags may repeat or be comma separated; every tag must be present.
func (s *Server) handleListFingerprints(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_fingerprints"
	q := r.URL.Query()
	f := model.Filter{Owner: strings.TrimSpace(q.Get("owner"))}
	for _, v := range q["tag"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Tags = append(f.Tags, t)
			}
		}
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeDomainError(w, wrapKind(op, ErrBadRequest, errors.New("active must be a boolean")))
			return
		}
		f.ActiveOnly = active
	}
	fps, err := s.deps.Fingerprints(r.Context(), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if fps == nil {
		fps = []model.Fingerprint{}
	}
	writeJSON(w, http.StatusOK, fps)
}

// handleGetFingerprint handles GET /v1/fingerprints/{id}.
func (s *Server) handleGetFingerprint(w http.ResponseWriter, r *http.Request) {
	fp, err := s.deps.Fingerprint(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fp)
}

// handleArchive handles DELETE /v1/fingerprints/{id}. Fingerprints are never
// removed; unknown ids answer 404 with archived=false.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := s.deps.Archive(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if !ok {
		status = http.StatusNotFound
	}
	writeJSON(w, status, archiveResponse{ID: id, Archived: ok})
}
