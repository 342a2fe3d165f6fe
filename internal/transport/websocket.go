package transport

import (
	"context"
	"errors"
	"letta-mcp-server/internal/logging"
	"net/http"
	"sync"
	"time"

	"github.com/fredcamaral/gomcp-sdk/protocol"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = maxBodyBytes
)

// handleWebSocket upgrades the connection and answers each JSON-RPC text
// frame with one response frame. Notifications get no response.
func (h *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "WebSocket upgrade failed", "error", err.Error())
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var writeMu sync.Mutex
	write := func(messageType int, v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if v == nil {
			return conn.WriteMessage(messageType, nil)
		}
		return conn.WriteJSON(v)
	}

	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	h.logger.InfoContext(ctx, "WebSocket client connected", "remote", r.RemoteAddr)
	for {
		var req protocol.JSONRPCRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, context.Canceled) {
				h.logger.DebugContext(ctx, "WebSocket read ended", "error", err.Error())
			}
			return
		}

		callCtx := logging.WithTraceID(ctx, logging.GenerateTraceID())
		resp := h.server.MCPServer().HandleRequest(callCtx, &req)
		if req.ID == nil || resp == nil {
			continue
		}
		if err := write(websocket.TextMessage, resp); err != nil {
			h.logger.WarnContext(ctx, "WebSocket write failed", "error", err.Error())
			return
		}
	}
}
