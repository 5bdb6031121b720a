// Package transcript folds a REST snapshot and the live event stream of one
// thread into a single ordered view of its messages.
package transcript

import (
	"maps"
	"slices"

	"github.com/ashureev/ragchat/internal/domain"
)

// Entry is a message as the transcript holds it: the materialized message, the
// latest progress status for it, and the text streamed so far.
type Entry struct {
	Message domain.Message
	Status  *domain.StreamStatus
	Partial string
}

// Text returns what the entry displays: the streamed text once any arrived,
// otherwise the materialized content.
func (e Entry) Text() string {
	if e.Partial != "" {
		return e.Partial
	}
	return e.Message.Content
}

// State is an immutable transcript value. Reduce never mutates a State it is
// given; it returns a new one sharing untouched entries.
type State struct {
	ThreadID int64
	entries  []Entry
	index    map[int64]int
}

// NewState builds the transcript of threadID from an ordered snapshot.
// Duplicate ids in the snapshot keep their first occurrence.
func NewState(threadID int64, msgs []domain.Message) State {
	s := State{
		ThreadID: threadID,
		entries:  make([]Entry, 0, len(msgs)),
		index:    make(map[int64]int, len(msgs)),
	}
	for _, m := range msgs {
		if _, ok := s.index[m.ID]; ok {
			continue
		}
		if m.ThreadID == 0 {
			m.ThreadID = threadID
		}
		s.index[m.ID] = len(s.entries)
		s.entries = append(s.entries, Entry{Message: m})
	}
	return s
}

// Len returns the number of entries.
func (s State) Len() int { return len(s.entries) }

// Entries returns a copy of the entries in arrival order.
func (s State) Entries() []Entry {
	return slices.Clone(s.entries)
}

// Lookup returns the entry for message id.
func (s State) Lookup(id int64) (Entry, bool) {
	i, ok := s.index[id]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// replace returns a copy of s with entry i swapped for e.
func (s State) replace(i int, e Entry) State {
	entries := slices.Clone(s.entries)
	entries[i] = e
	return State{ThreadID: s.ThreadID, entries: entries, index: s.index}
}

// appendEntry returns a copy of s with e added at the end.
func (s State) appendEntry(e Entry) State {
	entries := make([]Entry, len(s.entries), len(s.entries)+1)
	copy(entries, s.entries)
	index := maps.Clone(s.index)
	if index == nil {
		index = make(map[int64]int, 1)
	}
	index[e.Message.ID] = len(entries)
	return State{ThreadID: s.ThreadID, entries: append(entries, e), index: index}
}
