package channel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashureev/ragchat/internal/backendtest"
	"github.com/ashureev/ragchat/internal/channel"
	"github.com/ashureev/ragchat/internal/domain"
	"github.com/ashureev/ragchat/internal/shared"
	"github.com/ashureev/ragchat/internal/transcript"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

const testToken = "secret"

type activeThread int64

func (a activeThread) ActiveID() (int64, bool) { return int64(a), a != 0 }

func newChannel(t *testing.T, url, token string) *channel.WSChannel {
	t.Helper()
	ch, err := channel.NewWSChannel(channel.WSConfig{
		URL:          url,
		Token:        token,
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewWSChannel failed: %v", err)
	}
	return ch
}

func waitState(t *testing.T, ch channel.Channel, want channel.ConnState) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s, ok := <-ch.States():
			if !ok {
				t.Fatalf("states closed before %s", want)
			}
			if s == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func nextEvent(t *testing.T, ch channel.Channel) channel.Event {
	t.Helper()
	select {
	case ev, ok := <-ch.Events():
		if !ok {
			t.Fatal("events closed")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func waitLive(t *testing.T, srv *backendtest.Server, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if live, _ := srv.Connections(); live == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("backend never reached %d live connections", n)
}

func TestWSChannelStreamsReplyIntoTranscript(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := backendtest.New(t, testToken)
	thread := srv.AddThread("Three")

	ch := newChannel(t, srv.WebSocketURL(), testToken)
	waitState(t, ch, channel.StateConnected)

	store := transcript.NewStore(activeThread(thread.ID), nil, nil)
	if err := store.Seed(thread.ID, nil); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	if err := ch.Send(context.Background(), channel.SendRequest{Content: "hi", ThreadID: thread.ID}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case req := <-srv.Received():
		if req.Content != "hi" || req.ThreadID != thread.ID {
			t.Fatalf("backend received %+v", req)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("backend never received the message")
	}

	declared, ok := nextEvent(t, ch).(channel.ThreadDeclaredEvent)
	if !ok || declared.ThreadID != thread.ID || declared.IsNew {
		t.Fatalf("first event = %+v, want thread declaration for existing thread", declared)
	}

	// user echo, assistant shell, started, two chunks, completed
	for range 6 {
		if out := store.Apply(nextEvent(t, ch)); !out.Applied {
			t.Fatalf("event dropped: %s", out.Reason)
		}
	}

	msgs := srv.Messages(thread.ID)
	if len(msgs) != 2 {
		t.Fatalf("backend stored %d messages, want 2", len(msgs))
	}
	want := []transcript.ViewEntry{
		{ID: msgs[0].ID, Role: domain.RoleUser, Text: "hi"},
		{ID: msgs[1].ID, Role: domain.RoleAssistant, Text: "Hello"},
	}
	if diff := cmp.Diff(want, store.CurrentView()); diff != "" {
		t.Errorf("view mismatch (-want +got):\n%s", diff)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := <-ch.Events(); ok {
		t.Error("events still open after Close")
	}
	srv.Close()
}

func TestWSChannelSendWhileDisconnected(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t, testToken)
	ch := newChannel(t, srv.WebSocketURL(), "wrong")
	defer ch.Close()

	waitState(t, ch, channel.StateDisconnected)

	err := ch.Send(context.Background(), channel.SendRequest{Content: "hi"})
	var chErr *shared.ChannelError
	if !errors.As(err, &chErr) {
		t.Fatalf("expected ChannelError, got %v", err)
	}
}

func TestWSChannelReconnectsAfterDrop(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t, testToken)
	ch := newChannel(t, srv.WebSocketURL(), testToken)
	defer ch.Close()

	waitState(t, ch, channel.StateConnected)
	waitLive(t, srv, 1)

	srv.DropConnections()
	waitState(t, ch, channel.StateDisconnected)
	waitState(t, ch, channel.StateConnected)
	waitLive(t, srv, 1)

	if _, total := srv.Connections(); total != 2 {
		t.Fatalf("backend accepted %d connections, want 2", total)
	}

	// Events flow again on the new connection; nothing is replayed.
	msg := domain.Message{ID: 5, ThreadID: 1, Role: domain.RoleUser, Content: "again"}
	if err := srv.Push(context.Background(), channel.MessageEvent{Message: msg}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	got, ok := nextEvent(t, ch).(channel.MessageEvent)
	if !ok || got.Message.ID != 5 {
		t.Fatalf("event = %+v", got)
	}
}

func TestWSChannelSkipsUnknownEvents(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t, testToken)
	ch := newChannel(t, srv.WebSocketURL(), testToken)
	defer ch.Close()

	waitState(t, ch, channel.StateConnected)
	waitLive(t, srv, 1)

	ctx := context.Background()
	if err := srv.PushRaw(ctx, "search_results", map[string]any{"results": "docs"}); err != nil {
		t.Fatalf("PushRaw failed: %v", err)
	}
	if err := srv.PushRaw(ctx, "chat_message", map[string]any{"chat_id": 1, "role": "system"}); err != nil {
		t.Fatalf("PushRaw failed: %v", err)
	}
	if err := srv.Push(ctx, channel.ChunkEvent{ChatID: 2, Text: "ok"}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	got, ok := nextEvent(t, ch).(channel.ChunkEvent)
	if !ok || got.Text != "ok" {
		t.Fatalf("event = %+v, want the chunk", got)
	}
}

func TestWSChannelCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t, testToken)
	ch := newChannel(t, srv.WebSocketURL(), testToken)
	waitState(t, ch, channel.StateConnected)

	if err := ch.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if err := ch.Send(context.Background(), channel.SendRequest{Content: "late"}); err == nil {
		t.Fatal("Send after Close succeeded")
	}
}

func TestNewWSChannelRequiresToken(t *testing.T) {
	t.Parallel()

	_, err := channel.NewWSChannel(channel.WSConfig{URL: "http://localhost:1/ws"})
	if !shared.IsAuth(err) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}
