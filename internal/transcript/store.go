package transcript

import (
	"errors"
	"log/slog"

	"github.com/ashureev/ragchat/internal/channel"
	"github.com/ashureev/ragchat/internal/domain"
)

// ErrThreadMismatch is returned by Seed when the snapshot is for a thread that
// is no longer the selected one.
var ErrThreadMismatch = errors.New("snapshot thread is not the active selection")

// Selection reports the thread currently selected by the user.
type Selection interface {
	ActiveID() (int64, bool)
}

// Recorder observes every event the store folds. Implementations must not block.
type Recorder interface {
	Observe(kind channel.Kind, out Outcome)
}

// Store owns the transcript of the active thread. It is not safe for
// concurrent use; all calls happen on the UI loop.
type Store struct {
	state    State
	sel      Selection
	recorder Recorder
	logger   *slog.Logger
}

// NewStore creates an empty store bound to a thread selection. recorder may be nil.
func NewStore(sel Selection, recorder Recorder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{sel: sel, recorder: recorder, logger: logger}
}

// Seed replaces the transcript with a snapshot of threadID. A snapshot for a
// thread other than the current selection is discarded: the store keeps a
// transcript that already belongs to the selection and is emptied otherwise.
func (s *Store) Seed(threadID int64, msgs []domain.Message) error {
	active, ok := s.sel.ActiveID()
	if !ok || active != threadID {
		if !ok || s.state.ThreadID != active {
			s.state = State{}
		}
		s.logger.Debug("Discarding stale snapshot", "thread_id", threadID, "active_thread_id", active)
		return ErrThreadMismatch
	}
	s.state = NewState(threadID, msgs)
	s.logger.Debug("Transcript seeded", "thread_id", threadID, "messages", s.state.Len())
	return nil
}

// ApplyStatus updates the progress annotation of a materialized message.
func (s *Store) ApplyStatus(st domain.StreamStatus) Outcome {
	return s.Apply(channel.StatusEvent{Status: st})
}

// ApplyChunk appends streamed text to a materialized message.
func (s *Store) ApplyChunk(chatID int64, text string) Outcome {
	return s.Apply(channel.ChunkEvent{ChatID: chatID, Text: text})
}

// ApplyMessage adds a finalized message unless it is already present.
func (s *Store) ApplyMessage(m domain.Message) Outcome {
	return s.Apply(channel.MessageEvent{Message: m})
}

// Apply folds any channel event into the transcript.
func (s *Store) Apply(ev channel.Event) Outcome {
	next, out := Reduce(s.state, ev)
	s.state = next
	if s.recorder != nil {
		s.recorder.Observe(ev.Kind(), out)
	}
	if !out.Applied {
		s.logger.Debug("Transcript event dropped",
			"kind", ev.Kind(),
			"reason", out.Reason,
			"thread_id", s.state.ThreadID,
		)
	}
	return out
}

// Reset discards the transcript, on thread switch or logout.
func (s *Store) Reset() {
	s.state = State{}
}

// ThreadID returns the thread the transcript belongs to, zero when empty.
func (s *Store) ThreadID() int64 {
	return s.state.ThreadID
}

// State returns the current transcript value.
func (s *Store) State() State {
	return s.state
}

// CurrentView derives the display rows from the current transcript.
func (s *Store) CurrentView() []ViewEntry {
	return Render(s.state)
}
