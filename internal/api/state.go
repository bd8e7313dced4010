package api

import "net/http"

// handleState returns the latest accepted state snapshot.
//
// Before any device report has arrived this is the defined default:
// zero readings, window Closed, mode Auto, no timestamp.
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Store().Current())
}
