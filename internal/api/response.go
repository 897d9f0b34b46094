// Package api provides HTTP response utilities for VIVA.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vivalabs/viva/internal/models"
)

// Pre-marshaled fallback response to avoid runtime JSON encoding failures
var fallbackErrorResponse []byte

// init validates that our fallback response can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal the response to JSON first to catch encoding errors before writing headers
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writeDomainError maps a controller error to its HTTP status and writes the
// error envelope. Unrecognized errors are treated as storage-layer failures:
// fatal for this request.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrSurveyNotFound), errors.Is(err, models.ErrSessionNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
	case errors.Is(err, models.ErrSessionAlreadyComplete), errors.Is(err, models.ErrSurveyComplete):
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
	case errors.Is(err, models.ErrUpstreamUnavailable):
		// The answer was already persisted; the client should retry without
		// asking the respondent to re-enter it.
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Question generator unavailable, please retry; your answer was saved"))
	case isInvalidInput(err):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
	default:
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}

// isInvalidInput reports whether err belongs to the InvalidInput error class.
func isInvalidInput(err error) bool {
	for _, target := range []error{
		models.ErrEmptyTopic,
		models.ErrTopicTooLong,
		models.ErrInvalidMaxProbes,
		models.ErrInvalidLanguage,
		models.ErrEmptyRespondentID,
		models.ErrEmptyAnswer,
		models.ErrAnswerTooLong,
		models.ErrInvalidModality,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
