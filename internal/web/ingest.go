package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"htbot/internal/ingest"
	logx "htbot/pkg/logx"
)

const maxIngestBody = 64 << 10

// handleIngest is the device-facing POST /history. Only a missing id or an
// undecodable body is a 400; pipeline failures are reported in the JSON
// result with status "error".
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var in ingest.Input
	dec := json.NewDecoder(io.LimitReader(r.Body, maxIngestBody))
	if err := dec.Decode(&in); err != nil {
		s.log.Warn("ingest body rejected", logx.Err(err))
		writeJSON(w, http.StatusBadRequest, ingest.Result{Status: ingest.StatusError, Message: "invalid JSON body"})
		return
	}
	if err := in.Validate(); err != nil {
		msg := err.Error()
		if errors.Is(err, ingest.ErrMissingDeviceID) {
			msg = "id is required"
		}
		writeJSON(w, http.StatusBadRequest, ingest.Result{Status: ingest.StatusError, Message: msg})
		return
	}

	res := s.deps.Ingest.Ingest(r.Context(), in.Reading())
	if res.RequestID != "" {
		w.Header().Set("X-Ingest-Id", res.RequestID)
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
