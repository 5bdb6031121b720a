package transcript

import "github.com/ashureev/ragchat/internal/domain"

// ViewEntry is one transcript row ready for presentation.
type ViewEntry struct {
	ID        int64
	Role      domain.Role
	Text      string
	Status    *domain.StreamStatus // nil once the reply completed
	Streaming bool
}

// Render derives the view rows of s. Completed statuses are hidden; an error
// status stays visible.
func Render(s State) []ViewEntry {
	out := make([]ViewEntry, 0, len(s.entries))
	for _, e := range s.entries {
		v := ViewEntry{
			ID:   e.Message.ID,
			Role: e.Message.Role,
			Text: e.Text(),
		}
		if e.Status != nil && e.Status.Phase != domain.PhaseCompleted {
			st := *e.Status
			v.Status = &st
			v.Streaming = !st.Phase.Terminal()
		}
		out = append(out, v)
	}
	return out
}
