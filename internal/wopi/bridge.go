package wopi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/Mihendy/pp-2025/internal/api"
	"github.com/Mihendy/pp-2025/internal/blob"
	"github.com/Mihendy/pp-2025/internal/identity"
	"github.com/Mihendy/pp-2025/internal/logutil"
	"github.com/Mihendy/pp-2025/internal/rights"
)

// CheckFileInfo is the WOPI host metadata document editors fetch before
// opening a file.
type CheckFileInfo struct {
	BaseFileName     string `json:"BaseFileName"`
	Size             int64  `json:"Size"`
	OwnerID          string `json:"OwnerId"`
	UserID           string `json:"UserId"`
	UserFriendlyName string `json:"UserFriendlyName"`
	UserCanWrite     bool   `json:"UserCanWrite"`
	UserCanNotWrite  bool   `json:"ReadOnly"`
	LastModifiedTime string `json:"LastModifiedTime"`
}

// Bridge serves the WOPI protocol surface under /wopi/files/.
//
// GET  /wopi/files/{fileId}           -> CheckFileInfo (viewer)
// GET  /wopi/files/{fileId}/contents  -> file bytes    (viewer)
// POST /wopi/files/{fileId}/contents  -> save          (editor)
type Bridge struct {
	svc    *Service
	blobs  blob.Store
	auth   *identity.Service
	logger *slog.Logger
}

// NewBridge creates a WOPI bridge.
func NewBridge(svc *Service, blobs blob.Store, auth *identity.Service, logger *slog.Logger) *Bridge {
	return &Bridge{svc: svc, blobs: blobs, auth: auth, logger: logutil.NoopIfNil(logger)}
}

// ServeHTTP dispatches WOPI requests. Editors cannot send Authorization
// headers, so identity travels in the access_token query parameter:
// either an editor-session token or a regular access JWT.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest, ok := strings.CutPrefix(r.URL.Path, "/wopi/files/")
	if !ok || rest == "" {
		api.WriteNotFound(w, "unknown WOPI path")
		return
	}

	fileID, isContents := rest, false
	if cut, found := strings.CutSuffix(rest, "/contents"); found {
		fileID, isContents = cut, true
	}
	fileID, err := url.PathUnescape(fileID)
	if err != nil || fileID == "" || strings.Contains(fileID, "/") {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid file id")
		return
	}

	userID, ok := b.authenticate(w, r, fileID)
	if !ok {
		return
	}

	switch {
	case !isContents && r.Method == http.MethodGet:
		b.checkFileInfo(w, r, fileID, userID)
	case isContents && r.Method == http.MethodGet:
		b.getContents(w, r, fileID, userID)
	case isContents && r.Method == http.MethodPost:
		b.putContents(w, r, fileID, userID)
	default:
		api.WriteError(w, http.StatusMethodNotAllowed, api.ReasonBadRequest, "method not allowed")
	}
}

// authenticate resolves the access_token parameter to a user id.
func (b *Bridge) authenticate(w http.ResponseWriter, r *http.Request, fileID string) (uint, bool) {
	token := r.URL.Query().Get("access_token")
	if token == "" {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "access_token query parameter is required")
		return 0, false
	}

	if userID, err := b.svc.ResolveSession(r.Context(), token, fileID); err == nil {
		return userID, true
	}

	user, err := b.auth.Authenticate(r.Context(), token)
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "invalid access token")
		return 0, false
	}
	return user.ID, true
}

func (b *Bridge) requireLevel(ctx context.Context, w http.ResponseWriter, fileID string, userID uint, min rights.Level) bool {
	err := b.svc.Require(ctx, fileID, userID, min)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrNoPermission):
		api.WriteForbidden(w, "no permission on this file")
	case errors.Is(err, ErrInsufficient):
		api.WriteForbidden(w, "insufficient rights")
	default:
		b.logger.Error("permission check failed", "error", err, "file_id", fileID)
		api.WriteInternalError(w, "permission check failed")
	}
	return false
}

func (b *Bridge) checkFileInfo(w http.ResponseWriter, r *http.Request, fileID string, userID uint) {
	ctx := r.Context()
	if !b.requireLevel(ctx, w, fileID, userID, rights.Viewer) {
		return
	}

	info, err := b.blobs.Stat(ctx, fileID)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			api.WriteNotFound(w, "file not found")
			return
		}
		b.logger.Error("file stat failed", "error", err, "file_id", fileID)
		api.WriteStorageError(w, "file stat failed")
		return
	}

	level, err := b.svc.LevelFor(ctx, fileID, userID)
	if err != nil {
		b.logger.Error("level lookup failed", "error", err, "file_id", fileID)
		api.WriteInternalError(w, "level lookup failed")
		return
	}

	ownerID := ""
	perms, err := b.svc.perms.ListPermissionsForFile(ctx, fileID)
	if err == nil {
		for _, p := range perms {
			if p.Level == string(rights.Owner) {
				ownerID = strconv.FormatUint(uint64(p.UserID), 10)
				break
			}
		}
	}

	// Editors show the display name next to the cursor.
	friendly := fmt.Sprintf("user-%d", userID)
	if u, err := b.svc.users.GetUserByID(ctx, userID); err == nil {
		friendly = u.Email
	}

	// Write capability reflects rights alone; the extension allow-list
	// is enforced when an editing session is opened.
	canWrite := level.AtLeast(rights.Editor)
	api.WriteJSON(w, http.StatusOK, CheckFileInfo{
		BaseFileName:     path.Base(fileID),
		Size:             info.Size,
		OwnerID:          ownerID,
		UserID:           strconv.FormatUint(uint64(userID), 10),
		UserFriendlyName: friendly,
		UserCanWrite:     canWrite,
		UserCanNotWrite:  !canWrite,
		LastModifiedTime: info.LastModified.UTC().Format("2006-01-02T15:04:05.000000000Z"),
	})
}

func (b *Bridge) getContents(w http.ResponseWriter, r *http.Request, fileID string, userID uint) {
	ctx := r.Context()
	if !b.requireLevel(ctx, w, fileID, userID, rights.Viewer) {
		return
	}

	rc, err := b.blobs.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			api.WriteNotFound(w, "file not found")
			return
		}
		b.logger.Error("file read failed", "error", err, "file_id", fileID)
		api.WriteStorageError(w, "file read failed")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		b.logger.Warn("file stream interrupted", "error", err, "file_id", fileID)
	}
}

func (b *Bridge) putContents(w http.ResponseWriter, r *http.Request, fileID string, userID uint) {
	ctx := r.Context()
	if !b.requireLevel(ctx, w, fileID, userID, rights.Editor) {
		return
	}

	// The file must exist; WOPI saves never create.
	if _, err := b.blobs.Stat(ctx, fileID); err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			api.WriteNotFound(w, "file not found")
			return
		}
		b.logger.Error("file stat failed", "error", err, "file_id", fileID)
		api.WriteStorageError(w, "file stat failed")
		return
	}

	if err := b.blobs.Put(ctx, fileID, r.Body, r.ContentLength); err != nil {
		b.logger.Error("file write failed", "error", err, "file_id", fileID)
		api.WriteStorageError(w, "file write failed")
		return
	}

	b.logger.Info("file saved", "file_id", fileID, "user_id", userID)
	w.WriteHeader(http.StatusOK)
}
