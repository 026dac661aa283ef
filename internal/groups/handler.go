package groups

import (
	"context"
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

// Handler exposes the group and invitation endpoints.
type Handler struct {
	svc    *Service
	users  store.UserStore
	logger *slog.Logger
}

// NewHandler creates a groups HTTP handler.
func NewHandler(svc *Service, users store.UserStore, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, users: users, logger: logutil.NoopIfNil(logger)}
}

type createGroupRequest struct {
	Name string `json:"name"`
}

type inviteRequest struct {
	RecipientID uint `json:"recipient_id"`
}

type respondRequest struct {
	Accept bool `json:"accept"`
}

// MemberView is a group member in API responses.
type MemberView struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
}

// GroupDetail is a group with its resolved member list.
type GroupDetail struct {
	ID        uint         `json:"id"`
	Name      string       `json:"name"`
	CreatorID uint         `json:"creator_id"`
	Members   []MemberView `json:"members"`
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

// Create handles POST /api/v1/groups.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "name is required")
		return
	}

	g, err := h.svc.Create(r.Context(), req.Name, user.ID)
	if err != nil {
		h.logger.Error("group creation failed", "error", err)
		api.WriteInternalError(w, "group creation failed")
		return
	}
	api.WriteJSON(w, http.StatusCreated, g)
}

// ListMine handles GET /api/v1/groups.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}
	groups, err := h.svc.ListMine(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("group listing failed", "error", err)
		api.WriteInternalError(w, "group listing failed")
		return
	}
	if groups == nil {
		groups = []store.Group{}
	}
	api.WriteJSON(w, http.StatusOK, groups)
}

// ListAll handles GET /api/v1/groups/all.
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	groups, err := h.svc.ListAll(r.Context())
	if err != nil {
		h.logger.Error("group listing failed", "error", err)
		api.WriteInternalError(w, "group listing failed")
		return
	}
	if groups == nil {
		groups = []store.Group{}
	}
	api.WriteJSON(w, http.StatusOK, groups)
}

// Get handles GET /api/v1/groups/{groupId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlID(r, "groupId")
	if !ok {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid group id")
		return
	}

	g, err := h.svc.Get(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, ErrGroupNotFound) {
			api.WriteNotFound(w, "group not found")
			return
		}
		h.logger.Error("group lookup failed", "error", err)
		api.WriteInternalError(w, "group lookup failed")
		return
	}

	detail, err := h.detailOf(r.Context(), g)
	if err != nil {
		h.logger.Error("member listing failed", "error", err)
		api.WriteInternalError(w, "member listing failed")
		return
	}

	api.WriteJSON(w, http.StatusOK, detail)
}

// ListCreated handles GET /api/v1/groups/creator: groups the caller
// created, with resolved member lists.
func (h *Handler) ListCreated(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}
	groups, err := h.svc.ListCreated(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("group listing failed", "error", err)
		api.WriteInternalError(w, "group listing failed")
		return
	}
	h.writeDetails(w, r, groups)
}

// ListJoined handles GET /api/v1/groups/member: groups the caller
// holds a membership row in, with resolved member lists.
func (h *Handler) ListJoined(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}
	groups, err := h.svc.ListJoined(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("group listing failed", "error", err)
		api.WriteInternalError(w, "group listing failed")
		return
	}
	h.writeDetails(w, r, groups)
}

func (h *Handler) writeDetails(w http.ResponseWriter, r *http.Request, groups []store.Group) {
	details := make([]GroupDetail, 0, len(groups))
	for i := range groups {
		detail, err := h.detailOf(r.Context(), &groups[i])
		if err != nil {
			h.logger.Error("member listing failed", "error", err, "group_id", groups[i].ID)
			api.WriteInternalError(w, "member listing failed")
			return
		}
		details = append(details, detail)
	}
	api.WriteJSON(w, http.StatusOK, details)
}

// detailOf resolves a group's member ids to id/email pairs; members
// deleted since joining are skipped.
func (h *Handler) detailOf(ctx context.Context, g *store.Group) (GroupDetail, error) {
	memberIDs, err := h.svc.Members(ctx, g.ID)
	if err != nil {
		return GroupDetail{}, err
	}

	detail := GroupDetail{ID: g.ID, Name: g.Name, CreatorID: g.CreatorID, Members: []MemberView{}}
	for _, id := range memberIDs {
		u, err := h.users.GetUserByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return GroupDetail{}, err
		}
		detail.Members = append(detail.Members, MemberView{ID: u.ID, Email: u.Email})
	}
	return detail, nil
}

// Delete handles DELETE /api/v1/groups/{groupId}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}
	groupID, ok := urlID(r, "groupId")
	if !ok {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid group id")
		return
	}

	if err := h.svc.Delete(r.Context(), groupID, user.ID); err != nil {
		switch {
		case errors.Is(err, ErrGroupNotFound):
			api.WriteNotFound(w, "group not found")
		case errors.Is(err, ErrNotGroupCreator):
			api.WriteForbidden(w, "only the creator may delete the group")
		default:
			h.logger.Error("group deletion failed", "error", err)
			api.WriteInternalError(w, "group deletion failed")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember handles DELETE /api/v1/groups/{groupId}/members/{userId}.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}
	groupID, ok := urlID(r, "groupId")
	if !ok {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid group id")
		return
	}
	memberID, ok := urlID(r, "userId")
	if !ok {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid user id")
		return
	}

	if err := h.svc.RemoveMember(r.Context(), groupID, user.ID, memberID); err != nil {
		switch {
		case errors.Is(err, ErrGroupNotFound):
			api.WriteNotFound(w, "group not found")
		case errors.Is(err, ErrNotGroupCreator):
			api.WriteForbidden(w, "only the creator may remove members")
		case errors.Is(err, ErrNotGroupMember):
			api.WriteBadRequest(w, api.ReasonInvalidField, "the creator cannot be removed")
		case errors.Is(err, ErrMemberNotFound):
			api.WriteNotFound(w, "user is not a member")
		default:
			h.logger.Error("member removal failed", "error", err)
			api.WriteInternalError(w, "member removal failed")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Invite handles POST /api/v1/groups/{groupId}/invite.
func (h *Handler) Invite(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}
	groupID, ok := urlID(r, "groupId")
	if !ok {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid group id")
		return
	}

	var req inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.RecipientID == 0 {
		api.WriteBadRequest(w, api.ReasonMissingField, "recipient_id is required")
		return
	}

	inv, err := h.svc.Invite(r.Context(), groupID, user.ID, req.RecipientID)
	if err != nil {
		switch {
		case errors.Is(err, ErrSelfInvite):
			api.WriteBadRequest(w, api.ReasonInvalidField, "cannot invite yourself")
		case errors.Is(err, ErrGroupNotFound):
			api.WriteNotFound(w, "group not found")
		case errors.Is(err, ErrNotGroupMember):
			api.WriteForbidden(w, "only members may invite")
		case errors.Is(err, ErrRecipientNotFound):
			api.WriteNotFound(w, "recipient not found")
		case errors.Is(err, ErrDuplicateInvite):
			api.WriteConflict(w, "a pending invite already exists")
		case errors.Is(err, ErrAlreadyMember):
			api.WriteConflict(w, "recipient is already a member")
		default:
			h.logger.Error("invite failed", "error", err)
			api.WriteInternalError(w, "invite failed")
		}
		return
	}
	api.WriteJSON(w, http.StatusCreated, inv)
}

// ListInvites handles GET /api/v1/invites. The optional status query
// parameter filters by invitation state.
func (h *Handler) ListInvites(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}

	status := store.InviteStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid status filter")
		return
	}

	invites, err := h.svc.ListInvites(r.Context(), user.ID, status)
	if err != nil {
		h.logger.Error("invite listing failed", "error", err)
		api.WriteInternalError(w, "invite listing failed")
		return
	}
	if invites == nil {
		invites = []store.Invitation{}
	}
	api.WriteJSON(w, http.StatusOK, invites)
}

// Respond handles POST /api/v1/invites/{inviteId}/respond.
func (h *Handler) Respond(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}
	inviteID, ok := urlID(r, "inviteId")
	if !ok {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid invite id")
		return
	}

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	inv, err := h.svc.Respond(r.Context(), inviteID, user.ID, req.Accept)
	if err != nil {
		switch {
		case errors.Is(err, ErrInviteNotFound):
			api.WriteNotFound(w, "invite not found")
		case errors.Is(err, ErrNotRecipient):
			api.WriteForbidden(w, "invite is addressed to another user")
		case errors.Is(err, ErrAlreadyResolved):
			api.WriteConflict(w, "invite already resolved")
		default:
			h.logger.Error("invite response failed", "error", err)
			api.WriteInternalError(w, "invite response failed")
		}
		return
	}
	api.WriteJSON(w, http.StatusOK, inv)
}
