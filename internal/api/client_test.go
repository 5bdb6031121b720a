package api_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/ragchat/internal/api"
	"github.com/ashureev/ragchat/internal/backendtest"
	"github.com/ashureev/ragchat/internal/domain"
	"github.com/ashureev/ragchat/internal/shared"
)

const testToken = "secret"

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingObserver) RecordAPIRequest(op, status string, _ time.Duration) {
	r.mu.Lock()
	r.calls = append(r.calls, op+" "+status)
	r.mu.Unlock()
}

func newClient(t *testing.T, srv *backendtest.Server) *api.Client {
	t.Helper()
	c, err := api.New(srv.URL(), 5*time.Second, nil)
	if err != nil {
		t.Fatalf("api.New failed: %v", err)
	}
	return c.WithToken(testToken)
}

func TestListAndCreateThreads(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t, testToken)
	seeded := srv.AddThread("Three")
	c := newClient(t, srv)
	ctx := context.Background()

	list, err := c.ListThreads(ctx)
	if err != nil {
		t.Fatalf("ListThreads failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != seeded.ID || list[0].Title != "Three" {
		t.Fatalf("ListThreads = %+v", list)
	}
	if !list[0].CreatedAt.Equal(seeded.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", list[0].CreatedAt, seeded.CreatedAt)
	}

	created, err := c.CreateThread(ctx)
	if err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	if created.ID == seeded.ID || created.Title == "" {
		t.Fatalf("CreateThread = %+v", created)
	}
}

func TestListMessagesStampsThread(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t, testToken)
	th := srv.AddThread("Three")
	srv.AddMessage(th.ID, domain.RoleUser, "hi")
	srv.AddMessage(th.ID, domain.RoleAssistant, "Hello")

	msgs, err := newClient(t, srv).ListMessages(context.Background(), th.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	for _, m := range msgs {
		if m.ThreadID != th.ID {
			t.Errorf("message %d has thread %d, want %d", m.ID, m.ThreadID, th.ID)
		}
	}
	if msgs[0].Role != domain.RoleUser || msgs[1].Content != "Hello" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t, testToken)
	c, err := api.New(srv.URL(), 5*time.Second, nil)
	if err != nil {
		t.Fatalf("api.New failed: %v", err)
	}
	ctx := context.Background()

	res, err := c.Verify(ctx, testToken)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if res.UserID != backendtest.UserID {
		t.Errorf("UserID = %q", res.UserID)
	}

	_, err = c.Verify(ctx, "wrong")
	var authErr *shared.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Status != http.StatusUnauthorized || authErr.Detail != "Invalid token" {
		t.Errorf("AuthError = %+v", authErr)
	}

	if _, err := c.Verify(ctx, "  "); !shared.IsAuth(err) {
		t.Errorf("expected AuthError for blank token, got %v", err)
	}
}

func TestStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		wantAuth bool
	}{
		{"unauthorized", http.StatusUnauthorized, true},
		{"forbidden", http.StatusForbidden, true},
		{"not found", http.StatusNotFound, false},
		{"server error", http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := backendtest.New(t, testToken)
			srv.Fail(http.MethodGet, "/threads", tt.status, "backend says no")

			_, err := newClient(t, srv).ListThreads(context.Background())
			if tt.wantAuth {
				if !shared.IsAuth(err) {
					t.Fatalf("expected AuthError, got %v", err)
				}
				return
			}
			var fetchErr *shared.FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("expected FetchError, got %v", err)
			}
			if fetchErr.Status != tt.status || fetchErr.Notice() != "backend says no" {
				t.Errorf("FetchError = %+v", fetchErr)
			}
		})
	}
}

func TestMissingCredentialIsAuthError(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t, testToken)
	c, err := api.New(srv.URL(), 5*time.Second, nil)
	if err != nil {
		t.Fatalf("api.New failed: %v", err)
	}
	if _, err := c.ListThreads(context.Background()); !shared.IsAuth(err) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestTransportFailureIsFetchError(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t, testToken)
	c := newClient(t, srv)
	srv.Close()

	_, err := c.CreateThread(context.Background())
	var fetchErr *shared.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.Status != 0 || fetchErr.Notice() != "create thread failed" {
		t.Errorf("FetchError = %+v, notice %q", fetchErr, fetchErr.Notice())
	}
}

func TestObserverSeesRequests(t *testing.T) {
	t.Parallel()

	srv := backendtest.New(t, testToken)
	obs := &recordingObserver{}
	c := newClient(t, srv).WithObserver(obs)

	if _, err := c.ListThreads(context.Background()); err != nil {
		t.Fatalf("ListThreads failed: %v", err)
	}
	srv.Fail(http.MethodPost, "/threads", http.StatusInternalServerError, "down")
	_, _ = c.CreateThread(context.Background())

	obs.mu.Lock()
	defer obs.mu.Unlock()
	want := []string{"list threads 200", "create thread 500"}
	if len(obs.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", obs.calls, want)
	}
	for i := range want {
		if obs.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, obs.calls[i], want[i])
		}
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	t.Parallel()

	if _, err := api.New("ftp://example.com", time.Second, nil); err == nil {
		t.Fatal("expected error for non-http scheme")
	}
}
