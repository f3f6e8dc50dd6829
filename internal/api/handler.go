package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"push":   s.bridge.PushState().String(),
	})
}

// snapshotHandler serves the current merged snapshot. It never triggers a
// fetch: the polling and push tasks keep the store fresh, and the age
// header lets callers judge staleness themselves.
func (s *Server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.bridge.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Snapshot-Age", strconv.FormatInt(int64(s.bridge.SnapshotAge().Seconds()), 10))
	json.NewEncoder(w).Encode(snap)
}
