package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"hivemind-hq/scribe/pkg/sharing"
	"hivemind-hq/scribe/pkg/spaces"
)

// response is the JSON envelope every endpoint uses.
type response struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response{
		Success: false,
		Error:   &apiError{Code: code, Message: message},
	})
}

// writeDomainError maps domain errors onto HTTP statuses and stable codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var capErr *spaces.CapacityError

	switch {
	case errors.Is(err, spaces.ErrSpaceNotFound),
		errors.Is(err, spaces.ErrUserNotFound),
		errors.Is(err, sharing.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, spaces.ErrInvalidCode):
		writeError(w, http.StatusForbidden, "invalid_invite_code", err.Error())

	case errors.Is(err, spaces.ErrNotAuthorized),
		errors.Is(err, spaces.ErrNotMember):
		writeError(w, http.StatusForbidden, "not_authorized", err.Error())

	case errors.Is(err, spaces.ErrAlreadyMember):
		writeError(w, http.StatusConflict, "already_member", err.Error())

	case errors.Is(err, spaces.ErrSpaceFull):
		writeError(w, http.StatusConflict, "space_full", err.Error())

	case errors.Is(err, sharing.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "already_resolved", err.Error())

	case errors.Is(err, sharing.ErrDuplicateArtifact):
		writeError(w, http.StatusConflict, "duplicate_artifact", err.Error())

	case errors.Is(err, spaces.ErrInvalidSpaceType), errors.As(err, &capErr):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// decodeBody parses a JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed request body: "+err.Error())
		return false
	}
	return true
}
