package chat

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/Mihendy/pp-2025/internal/api"
	"github.com/Mihendy/pp-2025/internal/identity"
	"github.com/Mihendy/pp-2025/internal/logutil"
)

// WSHandler serves the real-time chat endpoint at
// /api/v1/chats/ws/{chatId}/{userId}.
type WSHandler struct {
	svc      *Service
	registry *Registry
	auth     *identity.Service
	logger   *slog.Logger
}

// NewWSHandler creates the websocket chat handler.
func NewWSHandler(svc *Service, registry *Registry, auth *identity.Service, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		svc:      svc,
		registry: registry,
		auth:     auth,
		logger:   logutil.NoopIfNil(logger),
	}
}

// wsConn adapts a websocket to the Conn interface.
type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Send(text string) error {
	return websocket.Message.Send(c.ws, text)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// ServeHTTP authenticates the request, then upgrades and runs the
// connection loop. Browsers cannot set headers on websocket upgrades,
// so the access token travels in the access_token query parameter.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseUint(chi.URLParam(r, "chatId"), 10, 64)
	if err != nil || chatID == 0 {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid chat id")
		return
	}
	pathUserID, err := strconv.ParseUint(chi.URLParam(r, "userId"), 10, 64)
	if err != nil || pathUserID == 0 {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid user id")
		return
	}

	token := r.URL.Query().Get("access_token")
	if token == "" {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "access_token query parameter is required")
		return
	}
	user, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "invalid access token")
		return
	}
	// The path user id is part of the protocol; it must be the caller.
	if user.ID != uint(pathUserID) {
		api.WriteForbidden(w, "user id does not match token")
		return
	}

	if err := h.svc.Authorize(r.Context(), uint(chatID), user.ID); err != nil {
		switch {
		case errors.Is(err, ErrChatNotFound):
			api.WriteNotFound(w, "chat not found")
		case errors.Is(err, ErrNotChatMember):
			api.WriteForbidden(w, "not a member of the chat")
		default:
			h.logger.Error("chat authorization failed", "error", err)
			api.WriteInternalError(w, "chat authorization failed")
		}
		return
	}

	websocket.Handler(func(ws *websocket.Conn) {
		h.serve(ws, uint(chatID), user.ID)
	}).ServeHTTP(w, r)
}

// serve replays the backlog, joins the room and pumps inbound frames
// until the peer disconnects.
func (h *WSHandler) serve(ws *websocket.Conn, chatID, userID uint) {
	ctx := ws.Request().Context()
	conn := &wsConn{ws: ws}

	backlog, err := h.svc.Backlog(ctx, chatID)
	if err != nil {
		h.logger.Error("backlog fetch failed", "error", err, "chat_id", chatID)
		ws.Close()
		return
	}
	for _, view := range backlog {
		b, err := encodeView(view)
		if err != nil {
			continue
		}
		if err := conn.Send(b); err != nil {
			ws.Close()
			return
		}
	}

	m := h.registry.Join(chatID, userID, conn)
	defer h.registry.Leave(chatID, m)

	for {
		var text string
		if err := websocket.Message.Receive(ws, &text); err != nil {
			if err != io.EOF {
				h.logger.Debug("websocket receive ended", "error", err, "chat_id", chatID)
			}
			return
		}
		if text == "" {
			continue
		}
		if _, err := h.registry.Receive(ctx, chatID, userID, text); err != nil {
			h.logger.Error("message handling failed", "error", err, "chat_id", chatID)
			return
		}
	}
}

func encodeView(v MessageView) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
