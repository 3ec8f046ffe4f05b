package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/ai-advisor/backend/internal/handler/chat"
	"github.com/zhouzirui/ai-advisor/backend/internal/handler/static"
	"github.com/zhouzirui/ai-advisor/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/ai-advisor/backend/internal/middleware"
	chatService "github.com/zhouzirui/ai-advisor/backend/internal/service/chat"
	"github.com/zhouzirui/ai-advisor/backend/pkg/utils"
)

// Dependencies are the services the HTTP layer is wired to.
type Dependencies struct {
	Chat      *chatService.Service
	Provider  string
	StaticDir string
	Logger    zerolog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	chatHandler := chat.New(deps.Chat)
	streamHandler := stream.New(deps.Chat, deps.Logger)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)

		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":     "ok",
				"provider":   deps.Provider,
				"configured": deps.Chat.Configured(),
				"sessions":   len(deps.Chat.Sessions(r.Context())),
			})
		})
	})

	static.New(deps.StaticDir).RegisterRoutes(r)

	return r
}
