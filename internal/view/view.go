// Package view projects the transcript and thread directory into plain values
// the terminal UI renders. It holds no state of its own.
package view

import (
	"strings"

	"github.com/ashureev/ragchat/internal/domain"
	"github.com/ashureev/ragchat/internal/threads"
	"github.com/ashureev/ragchat/internal/transcript"
)

// Icon is the symbol shown next to a status badge.
type Icon int

const (
	IconSpinner Icon = iota
	IconSearch
	IconDatabase
	IconBrain
	IconCheck
	IconAlert
)

// Glyph returns a terminal-safe rendering of the icon. The spinner has no
// fixed glyph; the UI animates it.
func (i Icon) Glyph() string {
	switch i {
	case IconSearch:
		return "⌕"
	case IconDatabase:
		return "≡"
	case IconBrain:
		return "✦"
	case IconCheck:
		return "✓"
	case IconAlert:
		return "!"
	default:
		return "…"
	}
}

// Animated reports whether the icon is drawn with a spinner.
func (i Icon) Animated() bool { return i == IconSpinner }

// Badge is the inline status shown on a streaming reply.
type Badge struct {
	Phase   domain.Phase
	Label   string
	Message string
	Icon    Icon
}

// MessageItem is one rendered transcript row.
type MessageItem struct {
	ID        int64
	Role      domain.Role
	Text      string
	Badge     *Badge
	Streaming bool
}

// ThreadItem is one row of the thread list.
type ThreadItem struct {
	ID     int64
	Title  string
	Active bool
}

// Screen is everything the main view needs to draw.
type Screen struct {
	Threads   []ThreadItem
	Title     string
	HasThread bool
	Messages  []MessageItem
}

// Project derives the screen from transcript rows and a directory snapshot.
func Project(entries []transcript.ViewEntry, dir threads.Snapshot) Screen {
	s := Screen{
		Threads:  make([]ThreadItem, 0, len(dir.Threads)),
		Messages: make([]MessageItem, 0, len(entries)),
	}
	for _, t := range dir.Threads {
		active := t.ID == dir.ActiveID
		s.Threads = append(s.Threads, ThreadItem{ID: t.ID, Title: t.DisplayTitle(), Active: active})
		if active {
			s.Title = t.DisplayTitle()
			s.HasThread = true
		}
	}
	if !s.HasThread {
		s.Title = "New conversation"
	}

	for _, e := range entries {
		item := MessageItem{ID: e.ID, Role: e.Role, Text: e.Text, Streaming: e.Streaming}
		if e.Status != nil {
			item.Badge = badgeFor(*e.Status)
		}
		s.Messages = append(s.Messages, item)
	}
	return s
}

func badgeFor(st domain.StreamStatus) *Badge {
	if st.Phase == domain.PhaseCompleted {
		return nil
	}
	b := &Badge{Phase: st.Phase, Label: phaseLabel(st.Phase), Message: st.Message, Icon: phaseIcon(st.Phase)}
	if b.Message == "" {
		b.Message = b.Label
	}
	return b
}

func phaseIcon(p domain.Phase) Icon {
	switch p {
	case domain.PhaseSearching:
		return IconSearch
	case domain.PhaseRetrieving:
		return IconDatabase
	case domain.PhaseEmbedding:
		return IconBrain
	case domain.PhaseCompleted:
		return IconCheck
	case domain.PhaseError:
		return IconAlert
	default:
		return IconSpinner
	}
}

func phaseLabel(p domain.Phase) string {
	switch p {
	case domain.PhaseStarted:
		return "Starting"
	case domain.PhaseSearching:
		return "Searching"
	case domain.PhaseRetrieving:
		return "Retrieving"
	case domain.PhaseEmbedding:
		return "Embedding"
	case domain.PhaseProcessing:
		return "Processing"
	case domain.PhaseError:
		return "Error"
	}
	if p == "" {
		return "Working"
	}
	s := string(p)
	return strings.ToUpper(s[:1]) + s[1:]
}

// Composer is the message input.
type Composer struct {
	Value string
}

// CanSend reports whether the composer holds something worth sending.
func (c Composer) CanSend() bool {
	return strings.TrimSpace(c.Value) != ""
}

// Content returns the text to send.
func (c Composer) Content() string {
	return strings.TrimSpace(c.Value)
}
