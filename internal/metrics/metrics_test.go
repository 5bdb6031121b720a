package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/ragchat/internal/channel"
	"github.com/ashureev/ragchat/internal/transcript"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCountsOutcomes(t *testing.T) {
	t.Parallel()

	m := New()
	m.Observe(channel.KindChunk, transcript.Outcome{Applied: true})
	m.Observe(channel.KindChunk, transcript.Outcome{Applied: true})
	m.Observe(channel.KindStatus, transcript.Outcome{Reason: transcript.DropOrphan})

	if got := testutil.ToFloat64(m.TranscriptEventsTotal.WithLabelValues("chunk", "applied")); got != 2 {
		t.Errorf("applied chunks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TranscriptEventsTotal.WithLabelValues("status", "orphan")); got != 1 {
		t.Errorf("orphan statuses = %v, want 1", got)
	}
}

func TestRecordConnState(t *testing.T) {
	t.Parallel()

	m := New()
	m.RecordConnState(channel.StateConnecting)
	m.RecordConnState(channel.StateConnected)
	if got := testutil.ToFloat64(m.ChannelConnected); got != 1 {
		t.Fatalf("connected gauge = %v, want 1", got)
	}
	m.RecordConnState(channel.StateDisconnected)
	if got := testutil.ToFloat64(m.ChannelConnected); got != 0 {
		t.Fatalf("connected gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.ChannelStateChanges.WithLabelValues("connected")); got != 1 {
		t.Errorf("connected transitions = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	m := New()
	m.RecordAPIRequest("list threads", "200", 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `ragchat_api_requests_total{op="list threads",status="200"} 1`) {
		t.Errorf("metrics output missing api counter:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.serve(ctx, ln) }()

	var resp *http.Response
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = http.Get("http://" + ln.Addr().String() + "/health")
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
