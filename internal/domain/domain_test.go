package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTimestampAcceptsNaiveAndRFC3339(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-05-01T10:00:00.123456", time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC)},
		{"2024-05-01T10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-05-01T10:00:00Z", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"", time.Time{}},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q) failed: %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
}

func TestMessageUnmarshalRejectsUnknownRole(t *testing.T) {
	t.Parallel()

	var m Message
	err := json.Unmarshal([]byte(`{"id":1,"role":"system","content":"x"}`), &m)
	if err == nil {
		t.Fatal("expected unknown role to fail")
	}

	if err := json.Unmarshal([]byte(`{"id":2,"role":"assistant","content":"ok","created_at":"2024-05-01T10:00:00"}`), &m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID != 2 || m.Role != RoleAssistant || m.CreatedAt.IsZero() {
		t.Errorf("unexpected message: %+v", m)
	}
}

func TestPhaseTerminal(t *testing.T) {
	t.Parallel()

	for _, p := range []Phase{PhaseStarted, PhaseSearching, PhaseRetrieving, PhaseEmbedding, PhaseProcessing} {
		if p.Terminal() {
			t.Errorf("%s should not be terminal", p)
		}
	}
	if !PhaseCompleted.Terminal() || !PhaseError.Terminal() {
		t.Error("completed and error must be terminal")
	}
	if Phase("thinking").Known() {
		t.Error("unexpected known phase")
	}
}
