// Package domain contains core domain types for the ragchat client.
package domain

import (
	"encoding/json"
	"time"
)

// Thread is a conversation container grouping ordered messages.
type Thread struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalJSON accepts the backend's zone-less timestamps.
func (t *Thread) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        int64     `json:"id"`
		Title     string    `json:"title"`
		CreatedAt Timestamp `json:"created_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.ID = raw.ID
	t.Title = raw.Title
	t.CreatedAt = raw.CreatedAt.Time()
	return nil
}

// DisplayTitle returns the title, or a placeholder derived from the id.
func (t Thread) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return "Untitled"
}
