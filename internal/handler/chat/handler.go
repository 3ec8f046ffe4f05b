package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/ai-advisor/backend/internal/service/chat"
	"github.com/zhouzirui/ai-advisor/backend/pkg/utils"
)

// Handler 聊天与对话记录的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/transcript", h.handleTranscript)
	r.Post("/transcript/clear", h.handleClear)
}

// handleChat 提问并记录回答
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
		Question  string `json:"question"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.chatSvc.Ask(r.Context(), payload.SessionID, payload.Question)
	if err != nil {
		if errors.Is(err, chatService.ErrQuestionRequired) {
			utils.RespondError(w, http.StatusBadRequest, "Question required")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "Server error")
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}

// handleTranscript 返回会话记录
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	messages := h.chatSvc.Transcript(r.Context(), r.URL.Query().Get("sessionId"))
	utils.RespondJSON(w, http.StatusOK, messages)
}

// handleClear 清空会话记录，请求体可省略，查询参数 sessionId 优先于请求体
func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if strings.TrimSpace(sessionID) == "" {
		var payload struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			// clearing never fails; a missing or malformed body means the default session
			payload.SessionID = ""
		}
		sessionID = payload.SessionID
	}

	cleared := h.chatSvc.Clear(r.Context(), sessionID)
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"sessionId": cleared,
	})
}
