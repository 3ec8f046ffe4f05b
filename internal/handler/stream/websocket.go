package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/ai-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/ai-advisor/backend/pkg/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// handleWebSocket 通过WebSocket推送会话记录变化
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chat.NormalizeSessionID(r.URL.Query().Get("sessionId"))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// subscribe before upgrading so nothing published after the handshake is missed
	events, unsubscribe, err := h.chatSvc.Subscribe(ctx, sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "realtime unavailable")
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	h.logger.Debug().Str("session_id", sessionID).Msg("websocket mirror opened")

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go h.readLoop(cancel, conn)
	go h.pingLoop(ctx, conn)

	snap := h.snapshot(r, sessionID)
	replayed := newReplayFilter(snap.Messages)
	if err := h.writeJSON(conn, snap); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(writeWait))
				return
			}
			if replayed.seen(event) {
				continue
			}
			if err := h.writeJSON(conn, event); err != nil {
				h.logger.Debug().Err(err).Str("session_id", sessionID).Msg("websocket write failed")
				return
			}
		}
	}
}

func (h *Handler) writeJSON(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// readLoop drains client frames so control messages are processed, and ends
// the connection when the client goes away.
func (h *Handler) readLoop(cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
