// Package channel defines the live event pipe between the client and the backend.
package channel

import (
	"time"

	"github.com/ashureev/ragchat/internal/domain"
)

// Kind names an inbound event case.
type Kind string

const (
	KindStatus         Kind = "status"
	KindChunk          Kind = "chunk"
	KindMessage        Kind = "message"
	KindThreadDeclared Kind = "thread_declared"
)

// Event is an inbound channel event. The set of implementations is closed:
// StatusEvent, ChunkEvent, MessageEvent and ThreadDeclaredEvent.
type Event interface {
	Kind() Kind
	isEvent()
}

// StatusEvent is a progress update for an in-flight assistant reply.
type StatusEvent struct {
	Status domain.StreamStatus
}

// ChunkEvent is an incremental token fragment for message ChatID.
// ThreadID is zero when the transport did not stamp it.
type ChunkEvent struct {
	ChatID   int64
	ThreadID int64
	Text     string
}

// MessageEvent is a finalized message: a user echo, a non-streamed assistant
// turn, or the shell of a reply that is about to stream.
type MessageEvent struct {
	Message domain.Message
}

// ThreadDeclaredEvent tells the client which thread a just-sent message went to.
// IsNew means the server created the thread on the fly.
type ThreadDeclaredEvent struct {
	ThreadID  int64
	Title     string
	CreatedAt time.Time
	IsNew     bool
}

func (StatusEvent) Kind() Kind         { return KindStatus }
func (ChunkEvent) Kind() Kind          { return KindChunk }
func (MessageEvent) Kind() Kind        { return KindMessage }
func (ThreadDeclaredEvent) Kind() Kind { return KindThreadDeclared }

func (StatusEvent) isEvent()         {}
func (ChunkEvent) isEvent()          {}
func (MessageEvent) isEvent()        {}
func (ThreadDeclaredEvent) isEvent() {}

// Thread returns the declared thread as a domain value.
func (e ThreadDeclaredEvent) Thread() domain.Thread {
	return domain.Thread{ID: e.ThreadID, Title: e.Title, CreatedAt: e.CreatedAt}
}

// SendRequest is the one outbound event: a user-authored message.
// ThreadID zero means no thread is selected and the server should create one.
type SendRequest struct {
	Content  string
	ThreadID int64
}
