package stream

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/ai-advisor/backend/internal/model/chat"
	chatService "github.com/zhouzirui/ai-advisor/backend/internal/service/chat"
	"github.com/zhouzirui/ai-advisor/backend/internal/service/realtime"
	"github.com/zhouzirui/ai-advisor/backend/pkg/utils"
)

// EventSnapshot is the first frame of every mirror stream and carries the
// transcript as it stood when the client connected.
const EventSnapshot = "snapshot"

const defaultKeepAlive = 15 * time.Second

// Snapshot 当前会话记录
type Snapshot struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Messages  []chat.Message `json:"messages"`
}

// Handler serves transcript mirror feeds over SSE and WebSocket and relays
// pushed messages.
type Handler struct {
	chatSvc   *chatService.Service
	logger    zerolog.Logger
	upgrader  websocket.Upgrader
	keepAlive time.Duration
}

// New creates a new stream handler
func New(chatSvc *chatService.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		logger:  logger.With().Str("component", "stream").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		keepAlive: defaultKeepAlive,
	}
}

// RegisterRoutes 注册实时推送相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/transcript/stream", h.handleSSE)
	r.Get("/transcript/ws", h.handleWebSocket)
	r.Post("/pusher", h.handlePush)
}

func (h *Handler) snapshot(r *http.Request, sessionID string) Snapshot {
	return Snapshot{
		Type:      EventSnapshot,
		SessionID: sessionID,
		Messages:  h.chatSvc.Transcript(r.Context(), sessionID),
	}
}

// replayFilter holds the ids carried by a snapshot. The feed subscribes before
// reading the snapshot, so a message stored in between arrives twice.
type replayFilter map[string]struct{}

func newReplayFilter(messages []chat.Message) replayFilter {
	f := make(replayFilter, len(messages))
	for _, msg := range messages {
		f[msg.ID] = struct{}{}
	}
	return f
}

// seen reports whether event repeats a snapshot message.
func (f replayFilter) seen(event realtime.Event) bool {
	if event.Type != realtime.EventMessage || event.Message == nil || event.Message.ID == "" {
		return false
	}
	if _, ok := f[event.Message.ID]; !ok {
		return false
	}
	delete(f, event.Message.ID)
	return true
}

// handleSSE streams transcript events for one session as Server-Sent Events.
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	sessionID := chat.NormalizeSessionID(r.URL.Query().Get("sessionId"))

	events, cancel, err := h.chatSvc.Subscribe(ctx, sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "realtime unavailable")
		return
	}
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	h.logger.Debug().Str("session_id", sessionID).Msg("sse mirror opened")
	defer h.logger.Debug().Str("session_id", sessionID).Msg("sse mirror closed")

	snap := h.snapshot(r, sessionID)
	replayed := newReplayFilter(snap.Messages)
	if err := utils.SendSSEEvent(w, flusher, EventSnapshot, snap); err != nil {
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "keep-alive"); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			if replayed.seen(event) {
				continue
			}
			if err := utils.SendSSEEvent(w, flusher, event.Type, event); err != nil {
				h.logger.Debug().Err(err).Str("session_id", sessionID).Msg("sse write failed")
				return
			}
		}
	}
}

// handlePush relays a message to the session's mirror clients without
// recording it in the transcript.
func (h *Handler) handlePush(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
		Role      string `json:"role"`
		Content   string `json:"content"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.chatSvc.Push(r.Context(), payload.SessionID, chat.Role(payload.Role), payload.Content)
	switch {
	case errors.Is(err, chatService.ErrContentRequired):
		utils.RespondError(w, http.StatusBadRequest, "Missing content")
	case err != nil:
		h.logger.Error().Err(err).Str("session_id", payload.SessionID).Msg("push failed")
		utils.RespondError(w, http.StatusInternalServerError, "Server error")
	default:
		utils.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}
