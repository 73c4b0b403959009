// Package domain holds the Event type and its wire-level validation.
package domain

import (
	"encoding/json"
	"time"

	apperrors "floodgate.io/floodgate/internal/pkg/errors"
)

// Event is the unit of work flowing through the pipeline.
// Constructed by the admission gateway after validation succeeds;
// immutable thereafter.
type Event struct {
	// EventID is generated by the gateway on acceptance and doubles as the
	// idempotency key for persistence. Never supplied by the client.
	EventID  string                 `json:"event_id"`
	UserID   string                 `json:"user_id"`
	Type     string                 `json:"type"`
	Metadata map[string]interface{} `json:"metadata"`
	// Timestamp is event-time; defaults to admission time when absent.
	Timestamp time.Time `json:"timestamp"`
}

// ingestRequest is the raw wire shape accepted by POST /ingest.
// Unknown fields are ignored.
type ingestRequest struct {
	UserID    string                 `json:"user_id"`
	Type      string                 `json:"type"`
	Metadata  map[string]interface{} `json:"metadata"`
	Timestamp string                 `json:"timestamp"`
}

// ParseEvent validates a raw JSON candidate and returns a normalized Event.
// Required: user_id and type, both non-empty strings. Optional: metadata
// (defaults to an empty map) and timestamp (RFC 3339, defaults to now).
// On failure it returns a VALIDATION_FAILED AppError carrying field-level
// diagnostics. No side effects.
func ParseEvent(raw []byte, now time.Time) (*Event, *apperrors.AppError) {
	var req ingestRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, apperrors.ErrValidationFailed([]apperrors.FieldError{
			{Field: "body", Code: "malformed_json", Message: err.Error()},
		})
	}

	var fieldErrs []apperrors.FieldError
	if req.UserID == "" {
		fieldErrs = append(fieldErrs, apperrors.FieldError{
			Field: "user_id", Code: "required", Message: "user_id must be a non-empty string",
		})
	}
	if req.Type == "" {
		fieldErrs = append(fieldErrs, apperrors.FieldError{
			Field: "type", Code: "required", Message: "type must be a non-empty string",
		})
	}

	ts := now
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			fieldErrs = append(fieldErrs, apperrors.FieldError{
				Field: "timestamp", Code: "invalid_datetime", Message: "timestamp must be RFC 3339",
			})
		} else {
			ts = parsed
		}
	}

	if len(fieldErrs) > 0 {
		return nil, apperrors.ErrValidationFailed(fieldErrs)
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	return &Event{
		UserID:    req.UserID,
		Type:      req.Type,
		Metadata:  metadata,
		Timestamp: ts,
	}, nil
}

// Encode serializes the event for the stream payload field.
func (e *Event) Encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeEvent deserializes a stream payload back into an Event.
func DecodeEvent(payload string) (*Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return nil, err
	}
	return &e, nil
}
