package api

import (
	"net/http"
)

// handleSchedulerStatus handles GET /v1/scheduler.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	st, err := s.deps.SchedulerStatus()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleSchedulerStart handles POST /v1/scheduler/start. Starting a running
// scheduler is a no-op.
func (s *Server) handleSchedulerStart(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.StartScheduler(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	s.handleSchedulerStatus(w, r)
}

// handleSchedulerStop handles POST /v1/scheduler/stop.
func (s *Server) handleSchedulerStop(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.StopScheduler(); err != nil {
		writeDomainError(w, err)
		return
	}
	s.handleSchedulerStatus(w, r)
}

// handleSchedulerTick handles POST /v1/scheduler/tick, running one poll now.
func (s *Server) handleSchedulerTick(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Tick(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
