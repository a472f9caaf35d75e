package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fredcamaral/deckforge/internal/adapters/secondary/logging"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 1 << 20
)

// handleChat streams a generated presentation as newline-delimited JSON events.
// Errors before the first event get a regular JSON error response; later errors
// are sent as an error event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ports.ChatGenerationRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id := uuid.NewString()
	if !s.connMgr.Register(id, "ndjson", cancel) {
		s.writeError(w, r, errShuttingDown)
		return
	}
	defer s.connMgr.Unregister(id)

	s.metrics.StreamStarted()
	defer s.metrics.StreamFinished()

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	started := false

	emit := func(event ports.StreamEvent) error {
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := enc.Encode(event); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	err := s.generation.StreamChat(ctx, req, emit)
	if err == nil {
		return
	}

	if !started {
		s.writeError(w, r, err)
		return
	}

	logger := logging.FromContext(r.Context())
	if ctx.Err() != nil {
		logger.Info("chat stream cancelled", zap.String("stream_id", id))
		return
	}
	logger.Warn("chat stream failed", zap.String("stream_id", id), zap.Error(err))
	_ = emit(ports.StreamEvent{Type: ports.EventTypeError, Message: messageForError(err, statusForError(err))})
}

// ClientMessage is a control message sent by a WebSocket client after the request
type ClientMessage struct {
	Type string `json:"type"`
}

// createUpgrader creates a WebSocket upgrader with proper origin validation
func (s *Server) createUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return s.isValidOrigin(r)
		},
	}
}

// wsWriter serializes writes to a WebSocket connection
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) writeJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(v)
}

func (w *wsWriter) close(code int, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
	_ = w.conn.Close()
}

// handleChatWebSocket streams a generated presentation over a WebSocket. The first
// client message is the chat request; a later {"type":"stop"} aborts the stream.
func (s *Server) handleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	upgrader := s.createUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)
	out := &wsWriter{conn: conn}

	var req ports.ChatGenerationRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = out.writeJSON(ports.StreamEvent{Type: ports.EventTypeError, Message: "invalid chat request"})
		out.close(websocket.CloseUnsupportedData, "invalid chat request")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id := uuid.NewString()
	if !s.connMgr.Register(id, "websocket", cancel) {
		out.close(websocket.CloseGoingAway, "server is shutting down")
		return
	}
	defer s.connMgr.Unregister(id)

	s.metrics.StreamStarted()
	defer s.metrics.StreamFinished()

	stopped := make(chan struct{})
	var stopOnce sync.Once
	go func() {
		for {
			var msg ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				cancel()
				return
			}
			if msg.Type == ports.EventTypeStop {
				stopOnce.Do(func() { close(stopped) })
				s.connMgr.Cancel(id)
				return
			}
		}
	}()

	err = s.generation.StreamChat(ctx, req, func(event ports.StreamEvent) error {
		return out.writeJSON(event)
	})

	select {
	case <-stopped:
		logger.Info("chat stream stopped by client", zap.String("stream_id", id))
		_ = out.writeJSON(ports.StreamEvent{Type: ports.EventTypeStop})
		out.close(websocket.CloseNormalClosure, "stopped")
		return
	default:
	}

	switch {
	case err == nil:
		out.close(websocket.CloseNormalClosure, "done")
	case ctx.Err() != nil:
		logger.Info("chat stream cancelled", zap.String("stream_id", id))
		out.close(websocket.CloseGoingAway, "cancelled")
	default:
		logger.Warn("chat stream failed", zap.String("stream_id", id), zap.Error(err))
		_ = out.writeJSON(ports.StreamEvent{Type: ports.EventTypeError, Message: messageForError(err, statusForError(err))})
		out.close(websocket.CloseInternalServerErr, "stream failed")
	}
}

// isValidOrigin validates WebSocket connection origins based on environment
func (s *Server) isValidOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Allow empty origin (non-browser clients)
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		s.logger.Warn("WebSocket connection rejected: invalid origin URL", zap.String("origin", origin), zap.Error(err))
		return false
	}

	if s.config.IsDevelopment() && isLocalOrigin(originURL) {
		return true
	}

	for _, allowed := range s.config.GetCORSOrigins() {
		if allowed == "*" || strings.EqualFold(allowed, originURL.Scheme+"://"+originURL.Host) {
			return true
		}
	}

	s.logger.Warn("WebSocket connection rejected: origin not allowed", zap.String("origin", origin))
	return false
}

// isLocalOrigin accepts loopback hosts during development
func isLocalOrigin(originURL *url.URL) bool {
	switch originURL.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
