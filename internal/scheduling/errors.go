package scheduling

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// APIError is a non-2xx answer from the scheduling backend.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("scheduling: %s returned status %d: %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("scheduling: %s returned status %d", e.Endpoint, e.Status)
}

// parseAPIError pulls FastAPI's "detail" (or a plain "message") out of an error body.
func parseAPIError(endpoint string, status int, body []byte) *APIError {
	apiErr := &APIError{Endpoint: endpoint, Status: status}
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return apiErr
	}
	var detail string
	if len(payload.Detail) > 0 && json.Unmarshal(payload.Detail, &detail) == nil {
		apiErr.Message = strings.TrimSpace(detail)
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(payload.Message)
	}
	return apiErr
}

// UserMessage returns the backend's own explanation when it sent one, else fallback.
func UserMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
