// Package respond writes the service's response envelope.
package respond

import (
	"encoding/json"
	"net/http"

	"profilehub/internal/apperr"
)

type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func JSON(w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < http.StatusBadRequest,
	})
}

// Err writes the envelope for a failed operation, mapping the error's kind to
// its HTTP status. Untagged errors come out as a generic 500.
func Err(w http.ResponseWriter, err error) {
	JSON(w, apperr.Status(err), nil, apperr.Message(err))
}

// ErrMessage writes a failure envelope with an explicit status and message.
func ErrMessage(w http.ResponseWriter, status int, message string) {
	JSON(w, status, nil, message)
}
