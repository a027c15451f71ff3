package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func statusForKind(kind clinic.Kind) int {
	switch kind {
	case clinic.KindValidation, clinic.KindBadRequest:
		return http.StatusBadRequest
	case clinic.KindConflict:
		return http.StatusConflict
	case clinic.KindNotFound:
		return http.StatusNotFound
	case clinic.KindForbidden:
		return http.StatusForbidden
	case clinic.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleError maps a workflow error to its HTTP status by kind.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	kind := clinic.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("kind", string(kind)).Msg("request failed")
	}
	writeError(w, status, string(kind), err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON: "+err.Error())
		return false
	}
	return true
}
