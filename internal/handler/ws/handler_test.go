package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-invoice/backend/internal/model/draft"
	"github.com/zhouzirui/z-invoice/backend/internal/service/document"
	draftstore "github.com/zhouzirui/z-invoice/backend/internal/service/draft"
	"github.com/zhouzirui/z-invoice/backend/internal/service/engine"
)

type reply struct {
	Type      string            `json:"type"`
	SessionID string            `json:"sessionId"`
	Data      engine.TurnResult `json:"data"`
}

func setupServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	eng, err := engine.New(engine.Options{
		Store:    draftstore.NewMemoryStore(),
		Pipeline: document.NewMemoryPipeline("INV"),
	})
	if err != nil {
		t.Fatalf("engine.New err: %v", err)
	}

	r := chi.NewRouter()
	New(eng).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, eng
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello outgoingMessage
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read connected message: %v", err)
	}
	if hello.Type != "connected" {
		t.Fatalf("expected connected, got %s", hello.Type)
	}
	return conn
}

func TestTextMessageRunsTurn(t *testing.T) {
	srv, eng := setupServer(t)
	started, err := eng.StartSession(context.Background(), "web", "")
	if err != nil {
		t.Fatalf("StartSession err: %v", err)
	}
	conn := dial(t, srv, started.SessionID)

	if err := conn.WriteJSON(map[string]any{"type": "text", "data": map[string]string{"text": "persoana fizica"}}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	var got reply
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if got.Type != "reply" {
		t.Fatalf("expected reply, got %s", got.Type)
	}
	if got.Data.Step != draft.StepManualCompanyName {
		t.Fatalf("expected manual_company_name, got %s", got.Data.Step)
	}
	if got.Data.ReplyText == "" {
		t.Fatal("expected reply text")
	}
}

func TestEmptyTextReturnsError(t *testing.T) {
	srv, eng := setupServer(t)
	started, _ := eng.StartSession(context.Background(), "web", "")
	conn := dial(t, srv, started.SessionID)

	if err := conn.WriteJSON(map[string]any{"type": "text", "data": map[string]string{"text": " "}}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	var got outgoingMessage
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read err: %v", err)
	}
	if got.Type != "error" {
		t.Fatalf("expected error, got %s", got.Type)
	}
}

func TestUnknownSessionRejected(t *testing.T) {
	srv, _ := setupServer(t)

	resp, err := http.Get(srv.URL + "/ws/missing")
	if err != nil {
		t.Fatalf("get err: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
