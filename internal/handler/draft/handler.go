package draft

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	draftstore "github.com/zhouzirui/z-invoice/backend/internal/service/draft"
	"github.com/zhouzirui/z-invoice/backend/internal/service/engine"
	"github.com/zhouzirui/z-invoice/backend/pkg/utils"
)

// Service 处理器依赖的引擎能力
type Service interface {
	StartSession(ctx context.Context, source, contact string) (engine.StartResult, error)
	SubmitTurn(ctx context.Context, req engine.TurnRequest) (engine.TurnResult, error)
	Session(ctx context.Context, sessionID string) (engine.SessionView, error)
}

// Handler 草稿会话的HTTP处理器
type Handler struct {
	svc Service
}

// New 创建草稿处理器
func New(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册会话与轮次路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleStartSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Post("/turns", h.handleTurn)
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Source  string `json:"source"`
		Contact string `json:"contact"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.StartSession(r.Context(), payload.Source, payload.Contact)
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req engine.TurnRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.SubmitTurn(r.Context(), req)
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))

	view, err := h.svc.Session(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, view)
}

// StatusFor 将引擎错误映射为HTTP状态码
func StatusFor(err error) int {
	switch {
	case errors.Is(err, draftstore.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrEmptyText), errors.Is(err, engine.ErrSourceRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
