package stream

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/zhouzirui/z-invoice/backend/internal/model/draft"
	"github.com/zhouzirui/z-invoice/backend/internal/service/engine"
	"github.com/zhouzirui/z-invoice/backend/pkg/utils"
)

// TurnSubmitter runs one drafting turn.
type TurnSubmitter interface {
	SubmitTurn(ctx context.Context, req engine.TurnRequest) (engine.TurnResult, error)
}

// Handler runs drafting turns over Server-Sent Events
type Handler struct {
	turns TurnSubmitter
}

// New creates a new stream handler
func New(turns TurnSubmitter) *Handler {
	return &Handler{turns: turns}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event       string              `json:"event"`
	Content     string              `json:"content,omitempty"`
	SessionID   string              `json:"sessionId,omitempty"`
	Step        draft.Step          `json:"step,omitempty"`
	DocumentRef *engine.DocumentRef `json:"documentRef,omitempty"`
	Finished    bool                `json:"finished,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// HandleStreamRequest submits userMessage as a turn of sessionID and streams
// the outcome as status, reply and done events.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID, source, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "status",
		SessionID: sessionID,
		Content:   "processing",
	})

	result, err := h.turns.SubmitTurn(ctx, engine.TurnRequest{
		SessionID: sessionID,
		Text:      userMessage,
		Source:    source,
	})
	if err != nil {
		h.sendSSEError(w, flusher, sessionID, err.Error())
		return err
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:       "reply",
		SessionID:   result.SessionID,
		Content:     result.ReplyText,
		Step:        result.Step,
		DocumentRef: result.DocumentRef,
	})

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "done",
		SessionID: result.SessionID,
		Step:      result.Step,
		Finished:  true,
	})

	log.Printf("[stream] completed turn for session=%s step=%s", result.SessionID, result.Step)
	return nil
}

func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	utils.SendSSEEvent(w, flusher, response.Event, response)
}

func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, sessionID, errorMsg string) {
	h.sendSSE(w, flusher, StreamResponse{
		Event:     "error",
		SessionID: sessionID,
		Error:     errorMsg,
		Finished:  true,
	})
}
