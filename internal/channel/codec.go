package channel

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ashureev/ragchat/internal/domain"
)

// Wire event names used by the backend.
const (
	wireStatus      = "status"
	wireError       = "error"
	wireChunk       = "response_chunk"
	wireChatMessage = "chat_message"
	wireThreadInfo  = "thread_info"
)

var (
	// ErrUnknownEvent marks a well-formed frame whose event name the client ignores.
	ErrUnknownEvent = errors.New("unknown event")
	errMalformed    = errors.New("malformed frame")
)

// envelope is the JSON text frame exchanged over the websocket.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wireStatusData struct {
	Phase    domain.Phase `json:"phase"`
	Message  string       `json:"message"`
	ThreadID int64        `json:"thread_id"`
	ChatID   int64        `json:"chat_id"`
}

type wireChunkData struct {
	Chunk    string `json:"chunk"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int64  `json:"thread_id,omitempty"`
}

type wireMessageData struct {
	ChatID    int64            `json:"chat_id"`
	ThreadID  int64            `json:"thread_id"`
	Role      domain.Role      `json:"role"`
	Content   string           `json:"content"`
	CreatedAt domain.Timestamp `json:"created_at"`
}

type wireThreadData struct {
	ThreadID  int64            `json:"thread_id"`
	Title     string           `json:"title"`
	CreatedAt domain.Timestamp `json:"created_at"`
	IsNew     bool             `json:"is_new"`
}

type wireSendData struct {
	Message  string `json:"message"`
	ThreadID *int64 `json:"thread_id"`
}

// Decode parses one inbound frame. Frames with an event name the client does
// not consume return ErrUnknownEvent.
func Decode(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}

	switch env.Event {
	case wireStatus, wireError:
		var d wireStatusData
		if err := decodeData(env, &d); err != nil {
			return nil, err
		}
		if env.Event == wireError {
			d.Phase = domain.PhaseError
		}
		return StatusEvent{Status: domain.StreamStatus{
			ThreadID: d.ThreadID,
			ChatID:   d.ChatID,
			Phase:    d.Phase,
			Message:  d.Message,
		}}, nil
	case wireChunk:
		var d wireChunkData
		if err := decodeData(env, &d); err != nil {
			return nil, err
		}
		return ChunkEvent{ChatID: d.ChatID, ThreadID: d.ThreadID, Text: d.Chunk}, nil
	case wireChatMessage:
		var d wireMessageData
		if err := decodeData(env, &d); err != nil {
			return nil, err
		}
		if !d.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", errMalformed, d.Role)
		}
		return MessageEvent{Message: domain.Message{
			ID:        d.ChatID,
			ThreadID:  d.ThreadID,
			Role:      d.Role,
			Content:   d.Content,
			CreatedAt: d.CreatedAt.Time(),
		}}, nil
	case wireThreadInfo:
		var d wireThreadData
		if err := decodeData(env, &d); err != nil {
			return nil, err
		}
		return ThreadDeclaredEvent{
			ThreadID:  d.ThreadID,
			Title:     d.Title,
			CreatedAt: d.CreatedAt.Time(),
			IsNew:     d.IsNew,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func decodeData(env envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s without data", errMalformed, env.Event)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %w", errMalformed, env.Event, err)
	}
	return nil
}

// Encode renders an inbound event as a wire frame. The backend test harness
// uses it to speak the same protocol the client decodes.
func Encode(ev Event) ([]byte, error) {
	var (
		name string
		data any
	)
	switch e := ev.(type) {
	case StatusEvent:
		name = wireStatus
		data = wireStatusData{
			Phase:    e.Status.Phase,
			Message:  e.Status.Message,
			ThreadID: e.Status.ThreadID,
			ChatID:   e.Status.ChatID,
		}
	case ChunkEvent:
		name = wireChunk
		data = wireChunkData{Chunk: e.Text, ChatID: e.ChatID, ThreadID: e.ThreadID}
	case MessageEvent:
		name = wireChatMessage
		data = wireMessageData{
			ChatID:    e.Message.ID,
			ThreadID:  e.Message.ThreadID,
			Role:      e.Message.Role,
			Content:   e.Message.Content,
			CreatedAt: domain.Timestamp(e.Message.CreatedAt),
		}
	case ThreadDeclaredEvent:
		name = wireThreadInfo
		data = wireThreadData{
			ThreadID:  e.ThreadID,
			Title:     e.Title,
			CreatedAt: domain.Timestamp(e.CreatedAt),
			IsNew:     e.IsNew,
		}
	default:
		return nil, fmt.Errorf("encode: unsupported event %T", ev)
	}
	return marshalEnvelope(name, data)
}

// EncodeSend renders the outbound user message frame.
func EncodeSend(req SendRequest) ([]byte, error) {
	d := wireSendData{Message: req.Content}
	if req.ThreadID != 0 {
		id := req.ThreadID
		d.ThreadID = &id
	}
	return marshalEnvelope(wireChatMessage, d)
}

// DecodeSend parses an outbound user message frame.
func DecodeSend(frame []byte) (SendRequest, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return SendRequest{}, fmt.Errorf("%w: %w", errMalformed, err)
	}
	if env.Event != wireChatMessage {
		return SendRequest{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	var d wireSendData
	if err := decodeData(env, &d); err != nil {
		return SendRequest{}, err
	}
	req := SendRequest{Content: d.Message}
	if d.ThreadID != nil {
		req.ThreadID = *d.ThreadID
	}
	return req, nil
}

// EncodeRaw renders an arbitrary event name, for events the client ignores.
func EncodeRaw(name string, data any) ([]byte, error) {
	return marshalEnvelope(name, data)
}

func marshalEnvelope(name string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	out, err := json.Marshal(envelope{Event: name, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return out, nil
}
