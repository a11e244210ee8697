package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedChunk is returned for payloads that are not JSON objects.
var ErrMalformedChunk = errors.New("malformed stream chunk")

// APIError is an error object reported in-band by a streaming response.
type APIError struct {
	Message string
	Type    string
	Code    string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = strings.TrimSpace(e.Type)
	}
	if msg == "" {
		msg = "unknown API error"
	}
	if e.Code != "" {
		return fmt.Sprintf("API error (%s): %s", e.Code, msg)
	}
	return "API error: " + msg
}
