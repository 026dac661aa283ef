// Package wopi implements file permissions, the files API and the WOPI
// bridge used by Collabora-style online editors.
package wopi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/Mihendy/pp-2025/internal/blob"
	"github.com/Mihendy/pp-2025/internal/cache"
	"github.com/Mihendy/pp-2025/internal/logutil"
	"github.com/Mihendy/pp-2025/internal/rights"
	"github.com/Mihendy/pp-2025/internal/store"
)

// Errors returned by the files service.
var (
	ErrFileExists       = errors.New("file already exists")
	ErrFileNotFound     = errors.New("file not found")
	ErrNoPermission     = errors.New("no permission on this file")
	ErrInsufficient     = errors.New("insufficient rights")
	ErrOwnerImmutable   = errors.New("the owner's permission cannot be changed")
	ErrAlreadyGranted   = errors.New("permission already granted")
	ErrEditNotSupported = errors.New("file type not supported for editing")
	ErrUserNotFound     = errors.New("user not found")
)

// defaultEditableExtensions is the office-document allow-list for
// collaborative editing.
var defaultEditableExtensions = []string{
	".odt", ".doc", ".docx", ".rtf", ".txt",
	".ods", ".xls", ".xlsx", ".csv",
	".odp", ".ppt", ".pptx",
}

// Service manages stored files and their permissions.
type Service struct {
	perms    store.PermissionStore
	users    store.UserStore
	blobs    blob.Store
	sessions cache.Cache
	editable map[string]bool
	logger   *slog.Logger
}

// NewService creates a files service. allowedExtensions overrides the
// built-in editable-extension list when non-empty.
func NewService(perms store.PermissionStore, users store.UserStore, blobs blob.Store, sessions cache.Cache, allowedExtensions []string, logger *slog.Logger) *Service {
	exts := allowedExtensions
	if len(exts) == 0 {
		exts = defaultEditableExtensions
	}
	editable := make(map[string]bool, len(exts))
	for _, e := range exts {
		editable[strings.ToLower(e)] = true
	}
	return &Service{
		perms:    perms,
		users:    users,
		blobs:    blobs,
		sessions: sessions,
		editable: editable,
		logger:   logutil.NoopIfNil(logger),
	}
}

// Editable reports whether the file's extension is on the editing
// allow-list.
func (s *Service) Editable(fileID string) bool {
	return s.editable[strings.ToLower(path.Ext(fileID))]
}

// LevelFor returns the user's rights level on a file.
func (s *Service) LevelFor(ctx context.Context, fileID string, userID uint) (rights.Level, error) {
	p, err := s.perms.GetPermission(ctx, fileID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNoPermission
		}
		return "", err
	}
	level, ok := rights.Parse(p.Level)
	if !ok {
		return "", fmt.Errorf("corrupt permission level %q", p.Level)
	}
	return level, nil
}

// Require checks that the user holds at least min rights on the file.
func (s *Service) Require(ctx context.Context, fileID string, userID uint, min rights.Level) error {
	level, err := s.LevelFor(ctx, fileID, userID)
	if err != nil {
		return err
	}
	if !level.AtLeast(min) {
		return ErrInsufficient
	}
	return nil
}

// CreateFile creates an empty file and grants the creator ownership.
func (s *Service) CreateFile(ctx context.Context, fileID string, ownerID uint) error {
	if _, err := s.blobs.Stat(ctx, fileID); err == nil {
		return ErrFileExists
	} else if !errors.Is(err, blob.ErrNotFound) {
		return err
	}

	if err := s.blobs.Put(ctx, fileID, bytes.NewReader(nil), 0); err != nil {
		return err
	}

	err := s.perms.GrantPermission(ctx, &store.FilePermission{
		FileID: fileID,
		UserID: ownerID,
		Level:  string(rights.Owner),
	})
	// The blob may have been deleted out of band while the grant
	// survived; a stale owner grant is harmless.
	if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return err
	}

	s.logger.Info("file created", "file_id", fileID, "owner_id", ownerID)
	return nil
}

// ListFiles returns the permissions the user holds, one per file.
func (s *Service) ListFiles(ctx context.Context, userID uint) ([]store.FilePermission, error) {
	return s.perms.ListFilesForUser(ctx, userID)
}

// Grant gives a user a rights level on a file. Only the owner may
// grant, and ownership itself cannot be granted away.
func (s *Service) Grant(ctx context.Context, fileID string, actorID, userID uint, level rights.Level) error {
	if err := s.Require(ctx, fileID, actorID, rights.Owner); err != nil {
		return err
	}
	if level == rights.Owner {
		return ErrOwnerImmutable
	}
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	err := s.perms.GrantPermission(ctx, &store.FilePermission{
		FileID: fileID,
		UserID: userID,
		Level:  string(level),
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return ErrAlreadyGranted
	}
	if err != nil {
		return err
	}
	s.logger.Info("permission granted", "file_id", fileID, "user_id", userID, "level", level)
	return nil
}

// Update changes a user's level on a file. Owner only; the owner's own
// grant is immutable.
func (s *Service) Update(ctx context.Context, fileID string, actorID, userID uint, level rights.Level) error {
	if err := s.Require(ctx, fileID, actorID, rights.Owner); err != nil {
		return err
	}
	if level == rights.Owner {
		return ErrOwnerImmutable
	}

	existing, err := s.perms.GetPermission(ctx, fileID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoPermission
		}
		return err
	}
	if existing.Level == string(rights.Owner) {
		return ErrOwnerImmutable
	}

	return s.perms.UpdatePermission(ctx, fileID, userID, string(level))
}

// Revoke removes a user's permission. Owner only; ownership cannot be
// revoked.
func (s *Service) Revoke(ctx context.Context, fileID string, actorID, userID uint) error {
	if err := s.Require(ctx, fileID, actorID, rights.Owner); err != nil {
		return err
	}

	existing, err := s.perms.GetPermission(ctx, fileID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoPermission
		}
		return err
	}
	if existing.Level == string(rights.Owner) {
		return ErrOwnerImmutable
	}

	return s.perms.RevokePermission(ctx, fileID, userID)
}

// Permissions lists everyone's level on a file. Requires viewer rights.
func (s *Service) Permissions(ctx context.Context, fileID string, actorID uint) ([]store.FilePermission, error) {
	if err := s.Require(ctx, fileID, actorID, rights.Viewer); err != nil {
		return nil, err
	}
	return s.perms.ListPermissionsForFile(ctx, fileID)
}

// EditorSession opens an editing session: the caller must hold editor
// rights and the file type must be editable. The returned token is a
// short-lived credential the WOPI endpoints accept via access_token.
func (s *Service) EditorSession(ctx context.Context, fileID string, userID uint) (string, error) {
	if _, err := s.blobs.Stat(ctx, fileID); err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return "", ErrFileNotFound
		}
		return "", err
	}
	if !s.Editable(fileID) {
		return "", ErrEditNotSupported
	}
	if err := s.Require(ctx, fileID, userID, rights.Editor); err != nil {
		return "", err
	}

	token := uuid.NewString()
	value := fmt.Sprintf("%d:%s", userID, fileID)
	if err := s.sessions.Set(ctx, sessionKey(token), []byte(value), cache.TTLEditorSession); err != nil {
		return "", err
	}
	return token, nil
}

// ResolveSession validates a session token for a file and returns the
// user it was issued to.
func (s *Service) ResolveSession(ctx context.Context, token, fileID string) (uint, error) {
	raw, err := s.sessions.Get(ctx, sessionKey(token))
	if err != nil {
		return 0, ErrNoPermission
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 || parts[1] != fileID {
		return 0, ErrNoPermission
	}
	var userID uint
	if _, err := fmt.Sscanf(parts[0], "%d", &userID); err != nil {
		return 0, ErrNoPermission
	}
	return userID, nil
}

func sessionKey(token string) string {
	return "wopi:session:" + token
}
