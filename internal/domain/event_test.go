package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "floodgate.io/floodgate/internal/pkg/errors"
)

func TestParseEvent_Valid(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ev, appErr := ParseEvent([]byte(`{"user_id":"u1","type":"click","metadata":{"page":"/home"}}`), now)
	require.Nil(t, appErr)

	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, "click", ev.Type)
	assert.Equal(t, "/home", ev.Metadata["page"])
	assert.Equal(t, now, ev.Timestamp)
	assert.Empty(t, ev.EventID, "event_id is assigned by the gateway, not the parser")
}

func TestParseEvent_DefaultsMetadata(t *testing.T) {
	ev, appErr := ParseEvent([]byte(`{"user_id":"u1","type":"click"}`), time.Now())
	require.Nil(t, appErr)
	require.NotNil(t, ev.Metadata)
	assert.Empty(t, ev.Metadata)
}

func TestParseEvent_ExplicitTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ev, appErr := ParseEvent([]byte(`{"user_id":"u1","type":"click","timestamp":"2024-01-02T03:04:05Z"}`), now)
	require.Nil(t, appErr)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), ev.Timestamp)
}

func TestParseEvent_IgnoresUnknownFields(t *testing.T) {
	ev, appErr := ParseEvent([]byte(`{"user_id":"u1","type":"click","color":"red"}`), time.Now())
	require.Nil(t, appErr)
	assert.Equal(t, "u1", ev.UserID)
}

func TestParseEvent_FieldDiagnostics(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{name: "missing user_id", body: `{"type":"click"}`, wantField: "user_id"},
		{name: "empty user_id", body: `{"user_id":"","type":"click"}`, wantField: "user_id"},
		{name: "missing type", body: `{"user_id":"u1"}`, wantField: "type"},
		{name: "bad timestamp", body: `{"user_id":"u1","type":"click","timestamp":"yesterday"}`, wantField: "timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, appErr := ParseEvent([]byte(tt.body), time.Now())
			require.Nil(t, ev)
			require.NotNil(t, appErr)
			assert.Equal(t, apperrors.CodeValidationFailed, appErr.Code)

			fields := make([]string, 0, len(appErr.FieldErrors))
			for _, fe := range appErr.FieldErrors {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestParseEvent_MalformedJSON(t *testing.T) {
	ev, appErr := ParseEvent([]byte(`{not json`), time.Now())
	require.Nil(t, ev)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeValidationFailed, appErr.Code)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	orig := &Event{
		EventID:   "e1",
		UserID:    "u1",
		Type:      "click",
		Metadata:  map[string]interface{}{"k": "v"},
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	payload, err := orig.Encode()
	require.NoError(t, err)

	got, err := DecodeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, orig, got)
}
