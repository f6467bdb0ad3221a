// Package apperror defines the error taxonomy shared by the ranking engine and its callers.
package apperror

import (
	"errors"
	"net/http"
)

// Domain errors returned by the engine. Callers match them with errors.Is.
var (
	ErrInvalidRank      = errors.New("invalid rank")
	ErrLevelNotFound    = errors.New("level not found")
	ErrRecordNotFound   = errors.New("record not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrBelowThreshold   = errors.New("progress below level minimum completion")
	ErrAlreadyProcessed = errors.New("record already processed")
	ErrInvalidInput     = errors.New("invalid input")
	ErrListInconsistent = errors.New("list inconsistent")
)

// StatusCode maps an engine error to the HTTP status the admin API responds with.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrLevelNotFound), errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRank), errors.Is(err, ErrBelowThreshold), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyProcessed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// IsValidation reports whether err is caused by caller input rather than storage.
func IsValidation(err error) bool {
	code := StatusCode(err)
	return code >= 400 && code < 500
}
