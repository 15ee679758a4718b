// Package ws 通过WebSocket连接处理开票对话轮次
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	draftstore "github.com/zhouzirui/z-invoice/backend/internal/service/draft"
	"github.com/zhouzirui/z-invoice/backend/internal/service/engine"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Service 连接依赖的引擎能力
type Service interface {
	SubmitTurn(ctx context.Context, req engine.TurnRequest) (engine.TurnResult, error)
	Session(ctx context.Context, sessionID string) (engine.SessionView, error)
}

// Handler WebSocket轮次处理器
type Handler struct {
	svc      Service
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器
func New(svc Service) *Handler {
	return &Handler{
		svc: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	view, err := h.svc.Session(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, draftstore.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "session lookup failed", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[websocket] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, conn)

	h.send(conn, outgoingMessage{
		Type:      "connected",
		SessionID: sessionID,
		Data:      map[string]any{"step": view.Session.CurrentStep},
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(conn, sessionID, "session mismatch")
			continue
		}

		h.handleMessage(ctx, conn, sessionID, view.Session.Source, &msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *websocket.Conn, sessionID, source string, msg *inboundMessage) {
	switch msg.Type {
	case "text":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			h.sendError(conn, sessionID, "invalid text message")
			return
		}

		result, err := h.svc.SubmitTurn(ctx, engine.TurnRequest{
			SessionID: sessionID,
			Text:      text.Text,
			Source:    source,
		})
		if err != nil {
			log.Printf("[websocket] turn failed session=%s: %v", sessionID, err)
			h.sendError(conn, sessionID, err.Error())
			return
		}

		h.send(conn, outgoingMessage{Type: "reply", SessionID: sessionID, Data: result})
	case "ping":
		h.send(conn, outgoingMessage{Type: "pong", SessionID: sessionID})
	default:
		h.sendError(conn, sessionID, "unsupported message type: "+msg.Type)
	}
}

func (h *Handler) send(conn *websocket.Conn, msg outgoingMessage) {
	msg.Timestamp = time.Now().Unix()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed: %v", msg.Type, err)
	}
}

func (h *Handler) sendError(conn *websocket.Conn, sessionID, message string) {
	h.send(conn, outgoingMessage{
		Type:      "error",
		SessionID: sessionID,
		Data:      map[string]string{"message": message},
	})
}

// pingLoop 定期发送ping消息，WriteControl 可与读循环中的写操作并发
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
