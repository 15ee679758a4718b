package channel

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-invoice/backend/internal/model/channel"
	"github.com/zhouzirui/z-invoice/backend/pkg/utils"
)

// Handler 渠道配置的HTTP处理器
type Handler struct {
	channels channel.Store
}

// New 创建渠道处理器
func New(channels channel.Store) *Handler {
	return &Handler{
		channels: channels,
	}
}

// RegisterRoutes 注册渠道相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/channels", h.handleListChannels)
	r.Get("/channels/{source}", h.handleGetChannel)
}

// handleListChannels 列出所有渠道
func (h *Handler) handleListChannels(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.channels.List())
}

// handleGetChannel 查询单个渠道，未知来源返回404
func (h *Handler) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.channels.FindBySource(chi.URLParam(r, "source"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "channel not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, profile)
}
