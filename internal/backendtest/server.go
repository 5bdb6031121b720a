// Package backendtest runs a scripted in-process backend for tests: the REST
// endpoints for threads, messages and verification, and the websocket event
// stream with the backend's reply sequence.
package backendtest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/ragchat/internal/channel"
	"github.com/ashureev/ragchat/internal/domain"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// UserID is the identity every accepted credential maps to.
const UserID = "user-1"

// DefaultReply is the chunk sequence streamed for each user message.
var DefaultReply = []string{"Hel", "lo"}

type failure struct {
	status int
	detail string
}

// Server is a fake backend listening on a loopback address.
type Server struct {
	srv   *httptest.Server
	conns *registry
	now   func() time.Time

	mu         sync.Mutex
	token      string
	threads    []domain.Thread
	messages   map[int64][]domain.Message
	nextThread int64
	nextChat   int64
	failures   map[string]failure
	reply      []string
	autoReply  bool

	received chan channel.SendRequest
}

// New starts a backend accepting token. It is closed when the test ends.
func New(tb testing.TB, token string) *Server {
	tb.Helper()

	s := &Server{
		conns:     newRegistry(),
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		token:     token,
		messages:  make(map[int64][]domain.Message),
		failures:  make(map[string]failure),
		reply:     DefaultReply,
		autoReply: true,
		received:  make(chan channel.SendRequest, 64),
	}
	s.srv = httptest.NewServer(s.routes())
	tb.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(s.failureMiddleware)

	r.Post("/auth/verify", s.handleVerify)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/threads", s.handleListThreads)
		r.Post("/threads", s.handleCreateThread)
		r.Get("/threads/{threadID}/messages", s.handleListMessages)
		r.Get("/ws", s.handleWebSocket)
	})
	return r
}

// URL returns the base URL of the backend.
func (s *Server) URL() string { return s.srv.URL }

// WebSocketURL returns the URL of the event stream endpoint.
func (s *Server) WebSocketURL() string { return s.srv.URL + "/ws" }

// Close drops live connections and shuts the server down.
func (s *Server) Close() {
	s.conns.dropAll()
	s.srv.Close()
}

// Token returns the credential the backend currently accepts.
func (s *Server) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetToken changes the accepted credential, e.g. to simulate expiry.
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// AddThread stores a thread and returns it.
func (s *Server) AddThread(title string) domain.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addThreadLocked(title)
}

func (s *Server) addThreadLocked(title string) domain.Thread {
	s.nextThread++
	t := domain.Thread{ID: s.nextThread, Title: title, CreatedAt: s.now()}
	s.threads = append(s.threads, t)
	return t
}

// AddMessage stores a message in threadID and returns it.
func (s *Server) AddMessage(threadID int64, role domain.Role, content string) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addMessageLocked(threadID, role, content)
}

func (s *Server) addMessageLocked(threadID int64, role domain.Role, content string) domain.Message {
	s.nextChat++
	m := domain.Message{ID: s.nextChat, ThreadID: threadID, Role: role, Content: content, CreatedAt: s.now()}
	s.messages[threadID] = append(s.messages[threadID], m)
	return m
}

// Messages returns the stored messages of threadID.
func (s *Server) Messages(threadID int64) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.messages[threadID]...)
}

// Fail makes every request for method and path answer status with detail.
func (s *Server) Fail(method, path string, status int, detail string) {
	s.mu.Lock()
	s.failures[method+" "+path] = failure{status: status, detail: detail}
	s.mu.Unlock()
}

// ClearFailures removes every injected failure.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	clear(s.failures)
	s.mu.Unlock()
}

// SetReply replaces the chunks streamed for each user message.
func (s *Server) SetReply(chunks ...string) {
	s.mu.Lock()
	s.reply = chunks
	s.mu.Unlock()
}

// SetAutoReply toggles the scripted reply to user messages. When off, sent
// messages are only recorded and tests push events themselves.
func (s *Server) SetAutoReply(on bool) {
	s.mu.Lock()
	s.autoReply = on
	s.mu.Unlock()
}

// Received delivers every message clients sent over the websocket.
func (s *Server) Received() <-chan channel.SendRequest { return s.received }

// Connections returns the number of live websocket connections and the number
// accepted since start.
func (s *Server) Connections() (live, total int) { return s.conns.counts() }

// DropConnections abruptly closes every live websocket connection.
func (s *Server) DropConnections() int { return s.conns.dropAll() }

// Push sends ev to every connected client.
func (s *Server) Push(ctx context.Context, ev channel.Event) error {
	frame, err := channel.Encode(ev)
	if err != nil {
		return err
	}
	return s.broadcast(ctx, frame)
}

// PushRaw sends an arbitrary event to every connected client.
func (s *Server) PushRaw(ctx context.Context, name string, data any) error {
	frame, err := channel.EncodeRaw(name, data)
	if err != nil {
		return err
	}
	return s.broadcast(ctx, frame)
}

func (s *Server) broadcast(ctx context.Context, frame []byte) error {
	for _, conn := range s.conns.snapshot() {
		if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
			return fmt.Errorf("push: %w", err)
		}
	}
	return nil
}

func (s *Server) failureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		f, ok := s.failures[r.Method+" "+r.URL.Path]
		s.mu.Unlock()
		if ok {
			writeDetail(w, f.status, f.detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// writeDetail writes an error body in the backend's {"detail": ...} shape.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

type threadRow struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

// messageRow mirrors the backend's snapshot rows, which carry no thread id.
type messageRow struct {
	ID        int64       `json:"id"`
	Role      domain.Role `json:"role"`
	Content   string      `json:"content"`
	CreatedAt string      `json:"created_at"`
}

// isoformat renders t the way the backend does: zone-less, microseconds.
func isoformat(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000")
}

func toThreadRow(t domain.Thread) threadRow {
	return threadRow{ID: t.ID, Title: t.Title, CreatedAt: isoformat(t.CreatedAt)}
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "token is required")
		return
	}
	if token != s.Token() {
		writeDetail(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": UserID})
}

func (s *Server) handleListThreads(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	rows := make([]threadRow, 0, len(s.threads))
	for _, t := range s.threads {
		rows = append(rows, toThreadRow(t))
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleCreateThread(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	t := s.addThreadLocked(defaultTitle(s.now()))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, toThreadRow(t))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "threadID"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid thread id")
		return
	}

	s.mu.Lock()
	_, found := s.findThreadLocked(id)
	msgs := s.messages[id]
	rows := make([]messageRow, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, messageRow{ID: m.ID, Role: m.Role, Content: m.Content, CreatedAt: isoformat(m.CreatedAt)})
	}
	s.mu.Unlock()

	if !found {
		writeDetail(w, http.StatusNotFound, "Thread not found")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) findThreadLocked(id int64) (domain.Thread, bool) {
	for _, t := range s.threads {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Thread{}, false
}

func defaultTitle(now time.Time) string {
	return "Thread " + now.Format("2006-01-02 15:04:05")
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Debug("Failed to accept websocket", "error", err)
		return
	}
	id := s.conns.register(conn)
	defer s.conns.unregister(id)
	slog.Debug("Backend websocket connected", "conn_id", id, "user_id", UserIDFromContext(r.Context()))
	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "conn_id", id)
		}
	}()

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				slog.Debug("Backend websocket read error", "error", err, "conn_id", id)
			}
			return
		}

		req, err := channel.DecodeSend(data)
		if err != nil {
			slog.Debug("Ignoring client frame", "error", err, "conn_id", id)
			continue
		}

		select {
		case s.received <- req:
		default:
		}

		if err := s.respond(ctx, conn, req); err != nil {
			slog.Debug("Scripted reply failed", "error", err, "conn_id", id)
			return
		}
	}
}

// respond plays the backend's reply sequence for one user message: thread
// declaration, user echo, empty assistant shell, started status, chunks and
// completed status.
func (s *Server) respond(ctx context.Context, conn *websocket.Conn, req channel.SendRequest) error {
	s.mu.Lock()
	if !s.autoReply {
		s.mu.Unlock()
		return nil
	}
	thread, found := s.findThreadLocked(req.ThreadID)
	if !found {
		thread = s.addThreadLocked(defaultTitle(s.now()))
	}
	isNew := req.ThreadID == 0 || req.ThreadID != thread.ID
	user := s.addMessageLocked(thread.ID, domain.RoleUser, req.Content)
	shell := s.addMessageLocked(thread.ID, domain.RoleAssistant, "")
	chunks := append([]string(nil), s.reply...)
	s.mu.Unlock()

	events := []channel.Event{
		channel.ThreadDeclaredEvent{ThreadID: thread.ID, Title: thread.Title, CreatedAt: thread.CreatedAt, IsNew: isNew},
		channel.MessageEvent{Message: user},
		channel.MessageEvent{Message: shell},
		channel.StatusEvent{Status: domain.StreamStatus{
			ThreadID: thread.ID, ChatID: shell.ID, Phase: domain.PhaseStarted, Message: "Processing your message",
		}},
	}
	for _, c := range chunks {
		events = append(events, channel.ChunkEvent{ChatID: shell.ID, Text: c})
	}
	events = append(events, channel.StatusEvent{Status: domain.StreamStatus{
		ThreadID: thread.ID, ChatID: shell.ID, Phase: domain.PhaseCompleted, Message: "Processing completed",
	}})

	for _, ev := range events {
		frame, err := channel.Encode(ev)
		if err != nil {
			return err
		}
		if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
			return fmt.Errorf("write %s: %w", ev.Kind(), err)
		}
	}

	s.mu.Lock()
	s.setContentLocked(thread.ID, shell.ID, strings.Join(chunks, ""))
	s.mu.Unlock()
	return nil
}

func (s *Server) setContentLocked(threadID, chatID int64, content string) {
	for i, m := range s.messages[threadID] {
		if m.ID == chatID {
			s.messages[threadID][i].Content = content
			return
		}
	}
}
