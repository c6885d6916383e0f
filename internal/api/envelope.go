package api

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Response is the standard JSON envelope returned by every endpoint.
type Response struct {
	Result  interface{} `json:"result"`
	Success bool        `json:"success"`
	Errors  []APIError  `json:"errors"`
}

// APIError represents a single error in a response envelope.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// maxErrorLen bounds how much of an upstream error message reaches the
// client verbatim.
const maxErrorLen = 300

// SuccessResponse builds a successful envelope.
func SuccessResponse(result interface{}) Response {
	return Response{
		Result:  result,
		Success: true,
		Errors:  []APIError{},
	}
}

// ErrorResponse builds an error envelope. Messages longer than maxErrorLen
// are truncated.
func ErrorResponse(code int, message string) Response {
	if len(message) > maxErrorLen {
		message = message[:maxErrorLen] + "..."
	}
	return Response{
		Result:  nil,
		Success: false,
		Errors: []APIError{
			{Code: code, Message: message},
		},
	}
}

// WriteJSON serialises resp as JSON and writes it to w with the given HTTP
// status code.
func WriteJSON(w http.ResponseWriter, status int, resp interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
