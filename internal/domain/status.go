package domain

// Phase is a named stage of backend processing for a streaming reply.
type Phase string

const (
	PhaseStarted    Phase = "started"
	PhaseSearching  Phase = "searching"
	PhaseRetrieving Phase = "retrieving"
	PhaseEmbedding  Phase = "embedding"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseError      Phase = "error"
)

// Terminal returns true for phases after which no progress is expected.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseError
}

// Known reports whether p is one of the phases the backend documents.
func (p Phase) Known() bool {
	switch p {
	case PhaseStarted, PhaseSearching, PhaseRetrieving, PhaseEmbedding,
		PhaseProcessing, PhaseCompleted, PhaseError:
		return true
	}
	return false
}

// StreamStatus is a transient progress annotation for an in-flight reply.
// It is attached to a message and never persisted on its own.
type StreamStatus struct {
	ThreadID int64  `json:"thread_id"`
	ChatID   int64  `json:"chat_id"`
	Phase    Phase  `json:"phase"`
	Message  string `json:"message"`
}
