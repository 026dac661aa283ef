package wopi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/Mihendy/pp-2025/internal/api"
	"github.com/Mihendy/pp-2025/internal/identity"
	"github.com/Mihendy/pp-2025/internal/logutil"
	"github.com/Mihendy/pp-2025/internal/rights"
	"github.com/Mihendy/pp-2025/internal/store"
)

// Handler exposes the files and permissions REST endpoints.
type Handler struct {
	svc            *Service
	externalOrigin string
	logger         *slog.Logger
}

// NewHandler creates a files HTTP handler. externalOrigin is the public
// origin embedded in editor-session URLs.
func NewHandler(svc *Service, externalOrigin string, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, externalOrigin: externalOrigin, logger: logutil.NoopIfNil(logger)}
}

type createFileRequest struct {
	FileID string `json:"file_id"`
}

type permissionRequest struct {
	FileID string `json:"file_id"`
	UserID uint   `json:"user_id"`
	Level  string `json:"level"`
}

type revokeRequest struct {
	FileID string `json:"file_id"`
	UserID uint   `json:"user_id"`
}

// EditorSessionResponse carries the credentials an editor iframe needs.
type EditorSessionResponse struct {
	FileID      string `json:"file_id"`
	AccessToken string `json:"access_token"`
	WopiSrc     string `json:"wopi_src"`
}

func mustUser(w http.ResponseWriter, r *http.Request) (*store.User, bool) {
	user, ok := identity.UserFrom(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return nil, false
	}
	return user, true
}

func validFileID(id string) bool {
	return id != "" && !strings.Contains(id, "/") && !strings.Contains(id, "..")
}

// CreateFile handles POST /api/v1/files.
func (h *Handler) CreateFile(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}

	var req createFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if !validFileID(req.FileID) {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid file_id")
		return
	}

	if err := h.svc.CreateFile(r.Context(), req.FileID, user.ID); err != nil {
		if errors.Is(err, ErrFileExists) {
			api.WriteConflict(w, "file already exists")
			return
		}
		h.logger.Error("file creation failed", "error", err, "file_id", req.FileID)
		api.WriteStorageError(w, "file creation failed")
		return
	}
	api.WriteJSON(w, http.StatusCreated, map[string]string{"file_id": req.FileID})
}

// ListFiles handles GET /api/v1/files.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}
	perms, err := h.svc.ListFiles(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("file listing failed", "error", err)
		api.WriteInternalError(w, "file listing failed")
		return
	}
	if perms == nil {
		perms = []store.FilePermission{}
	}
	api.WriteJSON(w, http.StatusOK, perms)
}

// EditorSession handles GET /api/v1/files/edit?file_id=...; it opens a
// short-lived editing session for an editable file.
func (h *Handler) EditorSession(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}
	fileID := r.URL.Query().Get("file_id")
	if !validFileID(fileID) {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid file_id")
		return
	}

	token, err := h.svc.EditorSession(r.Context(), fileID, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, ErrFileNotFound):
			api.WriteNotFound(w, "file not found")
		case errors.Is(err, ErrEditNotSupported):
			api.WriteError(w, http.StatusUnsupportedMediaType, api.ReasonUnsupportedType, "file type not supported for editing")
		case errors.Is(err, ErrNoPermission), errors.Is(err, ErrInsufficient):
			api.WriteForbidden(w, "editor rights required")
		default:
			h.logger.Error("editor session failed", "error", err, "file_id", fileID)
			api.WriteInternalError(w, "editor session failed")
		}
		return
	}

	api.WriteJSON(w, http.StatusOK, EditorSessionResponse{
		FileID:      fileID,
		AccessToken: token,
		WopiSrc:     fmt.Sprintf("%s/wopi/files/%s", h.externalOrigin, url.PathEscape(fileID)),
	})
}

// Permissions handles GET /api/v1/files/permissions?file_id=...
func (h *Handler) Permissions(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}
	fileID := r.URL.Query().Get("file_id")
	if !validFileID(fileID) {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid file_id")
		return
	}

	perms, err := h.svc.Permissions(r.Context(), fileID, user.ID)
	if err != nil {
		h.writePermError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, perms)
}

// Grant handles POST /api/v1/files/permissions.
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}
	req, level, ok := h.decodePermission(w, r)
	if !ok {
		return
	}

	if err := h.svc.Grant(r.Context(), req.FileID, user.ID, req.UserID, level); err != nil {
		h.writePermError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Update handles PUT /api/v1/files/permissions.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}
	req, level, ok := h.decodePermission(w, r)
	if !ok {
		return
	}

	if err := h.svc.Update(r.Context(), req.FileID, user.ID, req.UserID, level); err != nil {
		h.writePermError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Revoke handles DELETE /api/v1/files/permissions.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}

	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if !validFileID(req.FileID) || req.UserID == 0 {
		api.WriteBadRequest(w, api.ReasonInvalidField, "file_id and user_id are required")
		return
	}

	if err := h.svc.Revoke(r.Context(), req.FileID, user.ID, req.UserID); err != nil {
		h.writePermError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodePermission(w http.ResponseWriter, r *http.Request) (permissionRequest, rights.Level, bool) {
	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return req, "", false
	}
	if !validFileID(req.FileID) || req.UserID == 0 {
		api.WriteBadRequest(w, api.ReasonInvalidField, "file_id and user_id are required")
		return req, "", false
	}
	level, ok := rights.Parse(req.Level)
	if !ok {
		api.WriteBadRequest(w, api.ReasonInvalidField, "level must be viewer, editor or owner")
		return req, "", false
	}
	return req, level, true
}

func (h *Handler) writePermError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoPermission):
		api.WriteForbidden(w, "no permission on this file")
	case errors.Is(err, ErrInsufficient):
		api.WriteForbidden(w, "insufficient rights")
	case errors.Is(err, ErrOwnerImmutable):
		api.WriteForbidden(w, "the owner's permission cannot be changed")
	case errors.Is(err, ErrAlreadyGranted):
		api.WriteConflict(w, "permission already granted")
	case errors.Is(err, ErrUserNotFound):
		api.WriteNotFound(w, "user not found")
	case errors.Is(err, ErrFileNotFound):
		api.WriteNotFound(w, "file not found")
	default:
		h.logger.Error("permission request failed", "error", err)
		api.WriteInternalError(w, "permission request failed")
	}
}
