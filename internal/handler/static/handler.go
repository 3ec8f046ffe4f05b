package static

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/ai-advisor/backend/pkg/utils"
)

// Handler serves the single-page front end from a directory.
type Handler struct {
	dir   string
	files http.Handler
}

// New 创建静态资源处理器
func New(dir string) *Handler {
	return &Handler{
		dir:   dir,
		files: http.FileServer(http.Dir(dir)),
	}
}

// RegisterRoutes 注册静态资源路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Get("/*", h.files.ServeHTTP)
}

// handleIndex reads index.html on every request so edits show up without a restart.
func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := os.ReadFile(filepath.Join(h.dir, "index.html"))
	if err != nil {
		utils.RespondText(w, http.StatusInternalServerError, "Error loading page: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}
