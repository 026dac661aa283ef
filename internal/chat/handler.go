package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Mihendy/pp-2025/internal/api"
	"github.com/Mihendy/pp-2025/internal/identity"
	"github.com/Mihendy/pp-2025/internal/logutil"
	"github.com/Mihendy/pp-2025/internal/store"
)

// Handler exposes the chat REST endpoints.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates a chat HTTP handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logutil.NoopIfNil(logger)}
}

type createChatRequest struct {
	Name string `json:"name"`
}

type addMemberRequest struct {
	UserID uint `json:"user_id"`
}

func urlID(r *http.Request, name string) (uint, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func mustUser(w http.ResponseWriter, r *http.Request) (*store.User, bool) {
	user, ok := identity.UserFrom(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return nil, false
	}
	return user, true
}

// Create handles POST /api/v1/chats.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}

	var req createChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "name is required")
		return
	}

	c, err := h.svc.Create(r.Context(), req.Name, user.ID)
	if err != nil {
		h.logger.Error("chat creation failed", "error", err)
		api.WriteInternalError(w, "chat creation failed")
		return
	}
	api.WriteJSON(w, http.StatusCreated, c)
}

// ListMine handles GET /api/v1/chats.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}
	chats, err := h.svc.ListMine(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("chat listing failed", "error", err)
		api.WriteInternalError(w, "chat listing failed")
		return
	}
	if chats == nil {
		chats = []store.Chat{}
	}
	api.WriteJSON(w, http.StatusOK, chats)
}

// Get handles GET /api/v1/chats/{chatId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}
	chatID, ok := urlID(r, "chatId")
	if !ok {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid chat id")
		return
	}

	c, err := h.svc.Get(r.Context(), chatID)
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	members, err := h.svc.Members(r.Context(), chatID, user.ID)
	if err != nil {
		h.writeChatError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, ChatDetail{
		ID:        c.ID,
		Name:      c.Name,
		OwnerID:   c.OwnerID,
		MemberIDs: members,
	})
}

// ChatDetail is a chat with its member list.
type ChatDetail struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	OwnerID   uint   `json:"owner_id"`
	MemberIDs []uint `json:"member_ids"`
}

// RemoveMember handles DELETE /api/v1/chats/{chatId}/members/{userId}.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}
	chatID, ok := urlID(r, "chatId")
	if !ok {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid chat id")
		return
	}
	memberID, ok := urlID(r, "userId")
	if !ok {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid user id")
		return
	}

	if err := h.svc.RemoveMember(r.Context(), chatID, user.ID, memberID); err != nil {
		h.writeChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/v1/chats/{chatId}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}
	chatID, ok := urlID(r, "chatId")
	if !ok {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid chat id")
		return
	}

	if err := h.svc.Delete(r.Context(), chatID, user.ID); err != nil {
		h.writeChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddMember handles POST /api/v1/chats/{chatId}/members.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}
	chatID, ok := urlID(r, "chatId")
	if !ok {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid chat id")
		return
	}

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == 0 {
		api.WriteBadRequest(w, api.ReasonMissingField, "user_id is required")
		return
	}

	if err := h.svc.AddMember(r.Context(), chatID, user.ID, req.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.WriteNotFound(w, "user not found")
			return
		}
		h.writeChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History handles GET /api/v1/chats/{chatId}/messages. It returns the
// same backlog a websocket client receives on connect, oldest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}
	chatID, ok := urlID(r, "chatId")
	if !ok {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid chat id")
		return
	}

	if err := h.svc.Authorize(r.Context(), chatID, user.ID); err != nil {
		h.writeChatError(w, err)
		return
	}
	backlog, err := h.svc.Backlog(r.Context(), chatID)
	if err != nil {
		h.logger.Error("backlog fetch failed", "error", err)
		api.WriteInternalError(w, "backlog fetch failed")
		return
	}
	api.WriteJSON(w, http.StatusOK, backlog)
}

func (h *Handler) writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrChatNotFound):
		api.WriteNotFound(w, "chat not found")
	case errors.Is(err, ErrNotChatMember):
		api.WriteForbidden(w, "not a member of the chat")
	case errors.Is(err, ErrNotChatOwner):
		api.WriteForbidden(w, "only the owner may do this")
	case errors.Is(err, ErrOwnerNotRemovable):
		api.WriteForbidden(w, "the owner cannot be removed")
	default:
		h.logger.Error("chat request failed", "error", err)
		api.WriteInternalError(w, "chat request failed")
	}
}
