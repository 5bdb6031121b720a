package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks a user-authored turn.
	RoleUser Role = "user"
	// RoleAssistant marks a backend-generated turn.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one chat turn. ID is globally unique and is the only
// deduplication key inside a transcript.
type Message struct {
	ID        int64     `json:"id"`
	ThreadID  int64     `json:"thread_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalJSON accepts the backend's zone-less timestamps and validates the role.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        int64     `json:"id"`
		ThreadID  int64     `json:"thread_id"`
		Role      Role      `json:"role"`
		Content   string    `json:"content"`
		CreatedAt Timestamp `json:"created_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Role != "" && !raw.Role.Valid() {
		return fmt.Errorf("unknown role %q", raw.Role)
	}
	m.ID = raw.ID
	m.ThreadID = raw.ThreadID
	m.Role = raw.Role
	m.Content = raw.Content
	m.CreatedAt = raw.CreatedAt.Time()
	return nil
}
