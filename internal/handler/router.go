package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	channelHandler "github.com/zhouzirui/z-invoice/backend/internal/handler/channel"
	draftHandler "github.com/zhouzirui/z-invoice/backend/internal/handler/draft"
	"github.com/zhouzirui/z-invoice/backend/internal/handler/stream"
	"github.com/zhouzirui/z-invoice/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/z-invoice/backend/internal/middleware"
	"github.com/zhouzirui/z-invoice/backend/internal/model/channel"
	"github.com/zhouzirui/z-invoice/backend/internal/service/engine"
	"github.com/zhouzirui/z-invoice/backend/pkg/utils"
)

// NewRouter wires HTTP routes to the drafting engine.
func NewRouter(eng *engine.Engine, channels channel.Store, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigins))

	r.Get("/health", handleHealth)

	streamHandler := stream.New(eng)

	r.Route("/api", func(api chi.Router) {
		draftHandler.New(eng).RegisterRoutes(api)
		channelHandler.New(channels).RegisterRoutes(api)
		ws.New(eng).RegisterRoutes(api)

		api.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")
			userMessage := r.URL.Query().Get("message")

			if userMessage == "" {
				utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
				return
			}

			if err := streamHandler.HandleStreamRequest(r.Context(), w, sessionID, r.URL.Query().Get("source"), userMessage); err != nil {
				log.Printf("[stream] error handling request: %v", err)
			}
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
