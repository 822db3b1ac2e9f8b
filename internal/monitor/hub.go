// Package monitor serves Prometheus metrics and a live websocket feed of
// input levels, state changes and transcripts.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"whisperer/internal/output"
	"whisperer/internal/session"
)

// Frame is one JSON message on the websocket feed.
type Frame struct {
	Type        string         `json:"type"`
	Time        time.Time      `json:"time"`
	State       string         `json:"state,omitempty"`
	From        string         `json:"from,omitempty"`
	Speech      bool           `json:"speech,omitempty"`
	Level       *session.Level `json:"level,omitempty"`
	Threshold   float64        `json:"threshold,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	UtteranceID string         `json:"utterance_id,omitempty"`
	Text        string         `json:"text,omitempty"`
	Error       string         `json:"error,omitempty"`
	Attempt     int            `json:"attempt,omitempty"`
}

const (
	clientBuffer = 64
	writeWait    = 5 * time.Second
)

type client struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans frames out to websocket subscribers. Clients that cannot keep up
// are disconnected rather than slowing down the capture loop.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     *slog.Logger
}

// NewHub returns an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     logger.With("component", "monitor"),
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// Broadcast sends f to every subscriber without blocking.
func (h *Hub) Broadcast(f Frame) {
	if f.Time.IsZero() {
		f.Time = time.Now()
	}
	b, err := json.Marshal(f)
	if err != nil {
		h.log.Error("encode frame", "err", err)
		return
	}
	h.broadcastBytes(b)
}

func (h *Hub) broadcastBytes(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.log.Warn("dropping slow websocket client", "remote", c.remote)
			delete(h.clients, c)
			c.close()
		}
	}
}

// OnStep publishes chunk levels and state changes.
func (h *Hub) OnStep(step session.Step) {
	if h.Clients() == 0 {
		return
	}
	if step.Chunk {
		lvl := step.Level
		h.Broadcast(Frame{Type: "level", State: step.To.String(), Speech: step.Speech, Level: &lvl, Threshold: step.Threshold})
	}
	if step.Changed() {
		f := Frame{Type: "state", From: step.From.String(), State: step.To.String(), Reason: string(step.Reason)}
		if step.Utterance != nil {
			f.UtteranceID = step.Utterance.ID
		}
		h.Broadcast(f)
	}
}

// OnDeviceRetry publishes a microphone reconnect attempt.
func (h *Hub) OnDeviceRetry(attempt int, cause error) {
	f := Frame{Type: "device", Attempt: attempt}
	if cause != nil {
		f.Error = cause.Error()
	}
	h.Broadcast(f)
}

// OnHandoffError publishes a dropped utterance.
func (h *Hub) OnHandoffError(err error) {
	h.Broadcast(Frame{Type: "dropped", Error: err.Error()})
}

// Deliver publishes a finished transcript. It makes the hub an output.Sink.
func (h *Hub) Deliver(_ context.Context, t output.Transcript) error {
	h.Broadcast(Frame{Type: "transcript", UtteranceID: t.ID, Text: t.Text, Reason: t.Reason})
	return nil
}

func (h *Hub) serve(conn *websocket.Conn) {
	c := &client{conn: conn, remote: conn.RemoteAddr().String(), send: make(chan []byte, clientBuffer)}
	h.add(c)
	h.log.Debug("websocket client connected", "remote", c.remote)

	go func() {
		// subscribers only listen; reading detects the close
		defer h.remove(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer conn.Close()
	for msg := range c.send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
