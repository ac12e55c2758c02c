package httpresponse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	errs "rps_arena/internal/errors"
)

type Response[T any] struct {
	Status int `json:"Status"`
	Body   T   `json:"Body,omitempty"`
}

type ErrorResponse struct {
	ErrorDescription string `json:"ErrorDescription"`
}

const INTERNALERRORJSON = "{\"Status\": 500,\"Body\":{\"ErrorDescription\": \"Internal server error\"}}"

const MALFORMEDJSON_errorDesc = "json unmarshalling error"

// WriteResponseWithStatus writes body in the {Status, Body} envelope and
// mirrors status in the HTTP status line.
func WriteResponseWithStatus(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	jsonByte, err := json.Marshal(Response[any]{Status: status, Body: body})
	if err != nil {
		WriteInternalErrorResponse(w)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(jsonByte)
}

func WriteInternalErrorResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = fmt.Fprintln(w, INTERNALERRORJSON)
}

var statusByError = []struct {
	err    error
	status int
}{
	{errs.ErrInvalidUsername, http.StatusBadRequest},
	{errs.ErrInvalidEmail, http.StatusBadRequest},
	{errs.ErrWeakPassword, http.StatusBadRequest},
	{errs.ErrBioTooLong, http.StatusBadRequest},
	{errs.ErrUnknownAvatar, http.StatusBadRequest},
	{errs.ErrInvalidChoice, http.StatusBadRequest},
	{errs.ErrSelfChallenge, http.StatusBadRequest},
	{errs.ErrUnknownCommand, http.StatusBadRequest},

	{errs.ErrWrongPassword, http.StatusUnauthorized},
	{errs.ErrSessionNotFound, http.StatusUnauthorized},

	{errs.ErrNotYourGame, http.StatusForbidden},
	{errs.ErrNotChallenged, http.StatusForbidden},

	{errs.ErrUserNotFound, http.StatusNotFound},
	{errs.ErrProfileNotFound, http.StatusNotFound},
	{errs.ErrGameNotFound, http.StatusNotFound},
	{errs.ErrNoActiveGame, http.StatusNotFound},

	{errs.ErrUserExists, http.StatusConflict},
	{errs.ErrEmailExists, http.StatusConflict},
	{errs.ErrAlreadyInGame, http.StatusConflict},
	{errs.ErrGameNotWaiting, http.StatusConflict},
	{errs.ErrGameNotRunning, http.StatusConflict},
	{errs.ErrGameInProgress, http.StatusConflict},
	{errs.ErrChoiceRejected, http.StatusConflict},

	{errs.ErrClientClosed, http.StatusServiceUnavailable},
}

// StatusFor maps a usecase error to an HTTP status. Unknown errors are 500.
func StatusFor(err error) int {
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// Describe returns the message shown to clients for err. Internal errors
// are not described.
func Describe(err error) string {
	if StatusFor(err) == http.StatusInternalServerError {
		return errs.ErrInternal.Error()
	}
	return err.Error()
}

// WriteError answers with the status for err.
func WriteError(w http.ResponseWriter, err error) {
	WriteResponseWithStatus(w, StatusFor(err), ErrorResponse{ErrorDescription: Describe(err)})
}
