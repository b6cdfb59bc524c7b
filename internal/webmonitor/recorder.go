package webmonitor

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

func (s *Server) recorderAvailable(w http.ResponseWriter) bool {
	if s.deps.Recorder == nil {
		writeError(w, "recording is not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if !s.recorderAvailable(w) {
		return
	}
	var req RecordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}

	path, err := s.deps.Recorder.Start(req.Name)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{
		"status":     "recording",
		"file":       path,
		"started_at": float64(time.Now().Unix()),
	})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if !s.recorderAvailable(w) {
		return
	}
	path, err := s.deps.Recorder.Stop()
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{
		"status":     "stopped",
		"file":       path,
		"stats":      s.deps.Recorder.GetStatus(),
		"stopped_at": float64(time.Now().Unix()),
	})
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	if !s.recorderAvailable(w) {
		return
	}
	writeJSON(w, s.deps.Recorder.GetStatus())
}
