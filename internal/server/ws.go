package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxbrief/internal/capture"
	"voxbrief/internal/logging"
	"voxbrief/internal/services"
	"voxbrief/internal/session"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsMaxMessage = 4 << 20
)

// Messages sent to the page.
const (
	MessageState = "state"
	MessageError = "error"
)

// Commands accepted from the page.
const (
	CommandStart         = "start"
	CommandStop          = "stop"
	CommandSetCredential = "setCredential"
	CommandLoadModel     = "loadModel"
)

type wsServerMsg struct {
	Type    string            `json:"type"`
	State   *session.Snapshot `json:"state,omitempty"`
	Command string            `json:"command,omitempty"`
	Error   string            `json:"error,omitempty"`
	Kind    string            `json:"kind,omitempty"`
}

type wsClientMsg struct {
	Type   string `json:"type"`
	APIKey string `json:"apiKey"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeJSON(msg wsServerMsg) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.c.WriteJSON(msg)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	clientID := uuid.NewString()
	logger := logging.WithContext(r.Context(), s.logger).With(logging.String("client_id", clientID))
	logger.Info("websocket connected", logging.String(logging.FieldEventType, "ws_connected"))

	wc := &wsConn{c: conn}
	updates, unsubscribe := s.ctrl.Subscribe()
	defer unsubscribe()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		s.readLoop(r, wc, logger)
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-readDone:
			logger.Info("websocket disconnected", logging.String(logging.FieldEventType, "ws_disconnected"))
			return
		case snap, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
			if err := wc.writeJSON(wsServerMsg{Type: MessageState, State: &snap}); err != nil {
				return
			}
		case <-ticker.C:
			if err := wc.ping(); err != nil {
				return
			}
		}
	}
}

func (s *Server) readLoop(r *http.Request, wc *wsConn, logger *slog.Logger) {
	conn := wc.c
	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read failed", logging.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		if kind == websocket.BinaryMessage {
			s.pushChunk(wc, data)
			continue
		}

		var msg wsClientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = wc.writeJSON(wsServerMsg{Type: MessageError, Error: "invalid json"})
			continue
		}
		var cmdErr error
		switch strings.TrimSpace(msg.Type) {
		case CommandStart:
			cmdErr = s.ctrl.Start(r.Context())
		case CommandStop:
			cmdErr = s.ctrl.Stop(r.Context())
		case CommandSetCredential:
			s.ctrl.SetCredential(msg.APIKey)
		case CommandLoadModel:
			s.loadModel()
		default:
			_ = wc.writeJSON(wsServerMsg{Type: MessageError, Command: msg.Type, Error: "unknown command"})
			continue
		}
		if cmdErr != nil {
			logger.Info("command rejected",
				logging.String(logging.FieldEventType, "command_rejected"),
				logging.String("command", msg.Type),
				logging.ErrorKind(cmdErr),
			)
			_ = wc.writeJSON(wsServerMsg{
				Type:    MessageError,
				Command: msg.Type,
				Error:   services.StatusMessage(cmdErr),
				Kind:    services.Kind(cmdErr),
			})
		}
	}
}

func (s *Server) pushChunk(wc *wsConn, data []byte) {
	if s.sink == nil {
		_ = wc.writeJSON(wsServerMsg{Type: MessageError, Error: "audio streaming is not enabled"})
		return
	}
	if err := s.sink.Push(data); err != nil {
		message := err.Error()
		if errors.Is(err, capture.ErrNotCapturing) {
			message = "not recording"
		}
		_ = wc.writeJSON(wsServerMsg{Type: MessageError, Error: message})
	}
}
