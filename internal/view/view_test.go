package view

import (
	"testing"

	"github.com/ashureev/ragchat/internal/domain"
	"github.com/ashureev/ragchat/internal/threads"
	"github.com/ashureev/ragchat/internal/transcript"
	"github.com/google/go-cmp/cmp"
)

func TestProjectScreen(t *testing.T) {
	t.Parallel()

	entries := []transcript.ViewEntry{
		{ID: 1, Role: domain.RoleUser, Text: "hi"},
		{ID: 2, Role: domain.RoleAssistant, Text: "Hel", Streaming: true, Status: &domain.StreamStatus{
			ThreadID: 3, ChatID: 2, Phase: domain.PhaseSearching, Message: "Searching through relevant documents",
		}},
		{ID: 4, Role: domain.RoleAssistant, Text: "", Status: &domain.StreamStatus{Phase: domain.PhaseError, Message: "boom"}},
	}
	dir := threads.Snapshot{
		Threads:  []domain.Thread{{ID: 3, Title: "Three"}, {ID: 5}},
		ActiveID: 3,
	}

	want := Screen{
		Threads: []ThreadItem{
			{ID: 3, Title: "Three", Active: true},
			{ID: 5, Title: "Untitled"},
		},
		Title:     "Three",
		HasThread: true,
		Messages: []MessageItem{
			{ID: 1, Role: domain.RoleUser, Text: "hi"},
			{ID: 2, Role: domain.RoleAssistant, Text: "Hel", Streaming: true, Badge: &Badge{
				Phase: domain.PhaseSearching, Label: "Searching", Message: "Searching through relevant documents", Icon: IconSearch,
			}},
			{ID: 4, Role: domain.RoleAssistant, Badge: &Badge{
				Phase: domain.PhaseError, Label: "Error", Message: "boom", Icon: IconAlert,
			}},
		},
	}
	if diff := cmp.Diff(want, Project(entries, dir)); diff != "" {
		t.Errorf("Project mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectWithoutSelection(t *testing.T) {
	t.Parallel()

	s := Project(nil, threads.Snapshot{Threads: []domain.Thread{{ID: 1, Title: "a"}}})
	if s.HasThread || s.Title != "New conversation" {
		t.Errorf("screen = %+v", s)
	}
	if len(s.Messages) != 0 || s.Threads[0].Active {
		t.Errorf("screen = %+v", s)
	}
}

func TestBadgeIcons(t *testing.T) {
	t.Parallel()

	tests := map[domain.Phase]Icon{
		domain.PhaseStarted:    IconSpinner,
		domain.PhaseSearching:  IconSearch,
		domain.PhaseRetrieving: IconDatabase,
		domain.PhaseEmbedding:  IconBrain,
		domain.PhaseProcessing: IconSpinner,
		domain.PhaseError:      IconAlert,
		"reranking":            IconSpinner,
	}
	for phase, want := range tests {
		b := badgeFor(domain.StreamStatus{Phase: phase})
		if b == nil || b.Icon != want {
			t.Errorf("phase %q: badge %+v, want icon %d", phase, b, want)
		}
		if b != nil && b.Message == "" {
			t.Errorf("phase %q: empty badge message", phase)
		}
	}
	if b := badgeFor(domain.StreamStatus{Phase: domain.PhaseCompleted}); b != nil {
		t.Errorf("completed phase produced badge %+v", b)
	}
	if got := phaseLabel("reranking"); got != "Reranking" {
		t.Errorf("label = %q", got)
	}
}

func TestComposerCanSend(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"":          false,
		"   \n\t":   false,
		"hi":        true,
		"  hello  ": true,
	}
	for value, want := range tests {
		if got := (Composer{Value: value}).CanSend(); got != want {
			t.Errorf("CanSend(%q) = %v, want %v", value, got, want)
		}
	}
	if got := (Composer{Value: "  hello  "}).Content(); got != "hello" {
		t.Errorf("Content = %q", got)
	}
}
