package monitor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"whisperer/internal/metrics"
	"whisperer/internal/output"
	"whisperer/internal/session"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Hub, *metrics.Metrics, *httptest.Server) {
	t.Helper()
	hub := NewHub(quietLogger())
	m := metrics.New()
	srv := NewServer("127.0.0.1:0", m.Registry, hub, quietLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return hub, m, ts
}

func dial(t *testing.T, hub *Hub, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return f
}

func TestWebsocketStreamsLevelsAndState(t *testing.T) {
	hub, _, ts := newTestServer(t)
	conn := dial(t, hub, ts)

	hub.OnStep(session.Step{
		Chunk:     true,
		From:      session.StateListening,
		To:        session.StateRecording,
		Speech:    true,
		Level:     session.Level{Raw: 800, Smoothed: 640, Peak: 800},
		Threshold: 225,
	})

	level := readFrame(t, conn)
	if level.Type != "level" || level.Level == nil || level.Level.Peak != 800 || !level.Speech {
		t.Errorf("unexpected level frame %+v", level)
	}
	state := readFrame(t, conn)
	if state.Type != "state" || state.From != "listening" || state.State != "recording" {
		t.Errorf("unexpected state frame %+v", state)
	}

	if err := hub.Deliver(context.Background(), output.Transcript{ID: "u1", Text: "hello"}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	tr := readFrame(t, conn)
	if tr.Type != "transcript" || tr.Text != "hello" || tr.UtteranceID != "u1" {
		t.Errorf("unexpected transcript frame %+v", tr)
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := NewHub(quietLogger())
	c := &client{remote: "test", send: make(chan []byte, 1)}
	hub.add(c)

	hub.broadcastBytes([]byte(`{"n":1}`))
	hub.broadcastBytes([]byte(`{"n":2}`))

	if hub.Clients() != 0 {
		t.Errorf("Expected slow client removed, got %d clients", hub.Clients())
	}
	if msg, ok := <-c.send; !ok || string(msg) != `{"n":1}` {
		t.Errorf("Expected first frame still buffered, got %q (ok=%v)", msg, ok)
	}
	if _, ok := <-c.send; ok {
		t.Error("Expected send channel closed")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, m, ts := newTestServer(t)
	m.Chunks.Add(3)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	resp.Body.Close()
	if health["status"] != "ok" {
		t.Errorf("unexpected health %v", health)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "whisperer_chunks_total 3") {
		t.Errorf("Expected chunk counter in metrics output, got:\n%s", body)
	}
}
