package transcript

import (
	"github.com/ashureev/ragchat/internal/channel"
	"github.com/ashureev/ragchat/internal/domain"
)

// DropReason says why an event left the transcript unchanged.
type DropReason string

const (
	// DropOrphan: the event refers to a message not yet materialized in this view.
	DropOrphan DropReason = "orphan"
	// DropThreadMismatch: the event belongs to a thread other than the active one.
	DropThreadMismatch DropReason = "thread_mismatch"
	// DropDuplicate: the message is already present.
	DropDuplicate DropReason = "duplicate"
	// DropAfterTerminal: a status arrived for a reply that already completed or failed.
	DropAfterTerminal DropReason = "after_terminal"
	// DropNoThread: no thread is active.
	DropNoThread DropReason = "no_thread"
	// DropUnsupported: the event is not a transcript event.
	DropUnsupported DropReason = "unsupported"
)

// Outcome reports what Reduce did with an event.
type Outcome struct {
	Applied bool
	Reason  DropReason
}

var applied = Outcome{Applied: true}

func dropped(r DropReason) Outcome { return Outcome{Reason: r} }

// Reduce folds one channel event into s. It is the only place transcript
// state changes; the returned State is s itself whenever the event is dropped.
func Reduce(s State, ev channel.Event) (State, Outcome) {
	switch e := ev.(type) {
	case channel.StatusEvent:
		return reduceStatus(s, e.Status)
	case channel.ChunkEvent:
		return reduceChunk(s, e.ThreadID, e.ChatID, e.Text)
	case channel.MessageEvent:
		return reduceMessage(s, e.Message)
	case channel.ThreadDeclaredEvent:
		return s, dropped(DropUnsupported)
	default:
		return s, dropped(DropUnsupported)
	}
}

// foreign reports whether a thread id stamped on an event rules it out.
// Zero means the transport did not stamp one.
func foreign(s State, threadID int64) bool {
	return threadID != 0 && threadID != s.ThreadID
}

func reduceStatus(s State, st domain.StreamStatus) (State, Outcome) {
	if s.ThreadID == 0 {
		return s, dropped(DropNoThread)
	}
	if foreign(s, st.ThreadID) {
		return s, dropped(DropThreadMismatch)
	}
	i, ok := s.index[st.ChatID]
	if !ok {
		return s, dropped(DropOrphan)
	}
	e := s.entries[i]
	if e.Status != nil && e.Status.Phase.Terminal() {
		return s, dropped(DropAfterTerminal)
	}
	status := st
	e.Status = &status
	return s.replace(i, e), applied
}

func reduceChunk(s State, threadID, chatID int64, text string) (State, Outcome) {
	if s.ThreadID == 0 {
		return s, dropped(DropNoThread)
	}
	if foreign(s, threadID) {
		return s, dropped(DropThreadMismatch)
	}
	i, ok := s.index[chatID]
	if !ok {
		return s, dropped(DropOrphan)
	}
	e := s.entries[i]
	e.Partial += text
	return s.replace(i, e), applied
}

func reduceMessage(s State, m domain.Message) (State, Outcome) {
	if s.ThreadID == 0 {
		return s, dropped(DropNoThread)
	}
	if m.ThreadID != s.ThreadID {
		return s, dropped(DropThreadMismatch)
	}
	if _, ok := s.index[m.ID]; ok {
		return s, dropped(DropDuplicate)
	}
	return s.appendEntry(Entry{Message: m}), applied
}
