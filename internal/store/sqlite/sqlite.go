// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Mihendy/pp-2025/internal/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements the store.Driver interface using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init initializes the SQLite database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dbPath := filepath.Join(d.dataDir, "collab.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	// AutoMigrate creates/updates tables based on model structs
	if err := db.AutoMigrate(
		&store.User{},
		&store.Group{},
		&store.GroupMember{},
		&store.Invitation{},
		&store.Chat{},
		&store.ChatMember{},
		&store.Message{},
		&store.FilePermission{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// UserStore implementation

// CreateUser creates a new user account.
func (d *Driver) CreateUser(ctx context.Context, u *store.User) error {
	result := d.db.WithContext(ctx).Create(u)
	if isUniqueViolation(result.Error) {
		return store.ErrAlreadyExists
	}
	return result.Error
}

// GetUserByID retrieves a user by id.
func (d *Driver) GetUserByID(ctx context.Context, id uint) (*store.User, error) {
	var u store.User
	result := d.db.WithContext(ctx).First(&u, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &u, nil
}

// GetUserByEmail retrieves a user by email.
func (d *Driver) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	var u store.User
	result := d.db.WithContext(ctx).First(&u, "email = ?", email)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &u, nil
}

// GroupStore implementation

// CreateGroup creates a new group.
func (d *Driver) CreateGroup(ctx context.Context, g *store.Group) error {
	result := d.db.WithContext(ctx).Create(g)
	return result.Error
}

// GetGroup retrieves a group by id.
func (d *Driver) GetGroup(ctx context.Context, id uint) (*store.Group, error) {
	var g store.Group
	result := d.db.WithContext(ctx).First(&g, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &g, nil
}

// ListGroups returns all groups.
func (d *Driver) ListGroups(ctx context.Context) ([]store.Group, error) {
	var groups []store.Group
	result := d.db.WithContext(ctx).Order("id").Find(&groups)
	if result.Error != nil {
		return nil, result.Error
	}
	return groups, nil
}

// ListGroupsForUser returns groups the user created or joined.
func (d *Driver) ListGroupsForUser(ctx context.Context, userID uint) ([]store.Group, error) {
	var groups []store.Group
	result := d.db.WithContext(ctx).
		Where("creator_id = ? OR id IN (?)", userID,
			d.db.Model(&store.GroupMember{}).Select("group_id").Where("user_id = ?", userID)).
		Order("id").
		Find(&groups)
	if result.Error != nil {
		return nil, result.Error
	}
	return groups, nil
}

// ListGroupsByCreator returns groups the user created.
func (d *Driver) ListGroupsByCreator(ctx context.Context, userID uint) ([]store.Group, error) {
	var groups []store.Group
	result := d.db.WithContext(ctx).Where("creator_id = ?", userID).Order("id").Find(&groups)
	if result.Error != nil {
		return nil, result.Error
	}
	return groups, nil
}

// ListGroupsByMember returns groups the user holds a membership row in.
func (d *Driver) ListGroupsByMember(ctx context.Context, userID uint) ([]store.Group, error) {
	var groups []store.Group
	result := d.db.WithContext(ctx).
		Where("id IN (?)",
			d.db.Model(&store.GroupMember{}).Select("group_id").Where("user_id = ?", userID)).
		Order("id").
		Find(&groups)
	if result.Error != nil {
		return nil, result.Error
	}
	return groups, nil
}

// DeleteGroup deletes a group with its memberships and invitations.
func (d *Driver) DeleteGroup(ctx context.Context, id uint) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&store.Group{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return store.ErrNotFound
		}
		if err := tx.Delete(&store.GroupMember{}, "group_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&store.Invitation{}, "group_id = ?", id).Error
	})
}

// AddMember adds a user to a group.
func (d *Driver) AddMember(ctx context.Context, groupID, userID uint) error {
	result := d.db.WithContext(ctx).Create(&store.GroupMember{GroupID: groupID, UserID: userID})
	if isUniqueViolation(result.Error) {
		return store.ErrAlreadyExists
	}
	return result.Error
}

// RemoveMember removes a user from a group.
func (d *Driver) RemoveMember(ctx context.Context, groupID, userID uint) error {
	result := d.db.WithContext(ctx).Delete(&store.GroupMember{}, "group_id = ? AND user_id = ?", groupID, userID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// IsMember reports whether the user created or joined the group.
func (d *Driver) IsMember(ctx context.Context, groupID, userID uint) (bool, error) {
	var g store.Group
	result := d.db.WithContext(ctx).First(&g, "id = ?", groupID)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return false, store.ErrNotFound
		}
		return false, result.Error
	}
	if g.CreatorID == userID {
		return true, nil
	}
	var count int64
	if err := d.db.WithContext(ctx).Model(&store.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListMembers returns the member user ids of a group, creator first.
func (d *Driver) ListMembers(ctx context.Context, groupID uint) ([]uint, error) {
	g, err := d.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	var rows []store.GroupMember
	if err := d.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(rows)+1)
	ids = append(ids, g.CreatorID)
	for _, row := range rows {
		if row.UserID != g.CreatorID {
			ids = append(ids, row.UserID)
		}
	}
	return ids, nil
}

// InviteStore implementation

// CreateInvite creates a new invitation.
func (d *Driver) CreateInvite(ctx context.Context, inv *store.Invitation) error {
	result := d.db.WithContext(ctx).Create(inv)
	return result.Error
}

// GetInvite retrieves an invitation by id.
func (d *Driver) GetInvite(ctx context.Context, id uint) (*store.Invitation, error) {
	var inv store.Invitation
	result := d.db.WithContext(ctx).First(&inv, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &inv, nil
}

// ListInvitesForUser returns invitations addressed to a user, optionally
// filtered by status.
func (d *Driver) ListInvitesForUser(ctx context.Context, recipientID uint, status store.InviteStatus) ([]store.Invitation, error) {
	var invites []store.Invitation
	query := d.db.WithContext(ctx).Where("recipient_id = ?", recipientID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	result := query.Order("id").Find(&invites)
	if result.Error != nil {
		return nil, result.Error
	}
	return invites, nil
}

// HasPendingInvite reports whether a pending invite to the group already
// exists for the recipient.
func (d *Driver) HasPendingInvite(ctx context.Context, groupID, recipientID uint) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&store.Invitation{}).
		Where("group_id = ? AND recipient_id = ? AND status = ?", groupID, recipientID, store.InvitePending).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ResolveInvite flips a pending invite to the given status via a
// conditional update. The update and the membership insert run in one
// transaction so two concurrent accepts cannot both succeed.
func (d *Driver) ResolveInvite(ctx context.Context, id, recipientID uint, status store.InviteStatus) (bool, error) {
	resolved := false
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&store.Invitation{}).
			Where("id = ? AND recipient_id = ? AND status = ?", id, recipientID, store.InvitePending).
			Update("status", status)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		resolved = true
		if status != store.InviteAccepted {
			return nil
		}
		var inv store.Invitation
		if err := tx.First(&inv, "id = ?", id).Error; err != nil {
			return err
		}
		err := tx.Create(&store.GroupMember{GroupID: inv.GroupID, UserID: recipientID}).Error
		if isUniqueViolation(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return false, err
	}
	return resolved, nil
}

// ChatStore implementation

// CreateChat creates a chat and its owner membership together.
func (d *Driver) CreateChat(ctx context.Context, c *store.Chat) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		return tx.Create(&store.ChatMember{ChatID: c.ID, UserID: c.OwnerID}).Error
	})
}

// GetChat retrieves a chat by id.
func (d *Driver) GetChat(ctx context.Context, id uint) (*store.Chat, error) {
	var c store.Chat
	result := d.db.WithContext(ctx).First(&c, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &c, nil
}

// ListChatsForUser returns chats the user belongs to.
func (d *Driver) ListChatsForUser(ctx context.Context, userID uint) ([]store.Chat, error) {
	var chats []store.Chat
	result := d.db.WithContext(ctx).
		Where("id IN (?)",
			d.db.Model(&store.ChatMember{}).Select("chat_id").Where("user_id = ?", userID)).
		Order("id").
		Find(&chats)
	if result.Error != nil {
		return nil, result.Error
	}
	return chats, nil
}

// DeleteChat deletes a chat with its memberships and messages.
func (d *Driver) DeleteChat(ctx context.Context, id uint) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&store.Chat{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return store.ErrNotFound
		}
		if err := tx.Delete(&store.ChatMember{}, "chat_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&store.Message{}, "chat_id = ?", id).Error
	})
}

// AddChatMember adds a user to a chat.
func (d *Driver) AddChatMember(ctx context.Context, chatID, userID uint) error {
	result := d.db.WithContext(ctx).Create(&store.ChatMember{ChatID: chatID, UserID: userID})
	if isUniqueViolation(result.Error) {
		return store.ErrAlreadyExists
	}
	return result.Error
}

// RemoveChatMember deletes a chat membership row.
func (d *Driver) RemoveChatMember(ctx context.Context, chatID, userID uint) error {
	result := d.db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Delete(&store.ChatMember{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// IsChatMember reports whether the user belongs to the chat.
func (d *Driver) IsChatMember(ctx context.Context, chatID, userID uint) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&store.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListChatMembers returns member user ids in join order, which is
// stable for a given chat.
func (d *Driver) ListChatMembers(ctx context.Context, chatID uint) ([]uint, error) {
	var members []store.ChatMember
	result := d.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id").
		Find(&members)
	if result.Error != nil {
		return nil, result.Error
	}
	ids := make([]uint, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

// MessageStore implementation

// AppendMessage persists a chat message.
func (d *Driver) AppendMessage(ctx context.Context, m *store.Message) error {
	result := d.db.WithContext(ctx).Create(m)
	return result.Error
}

// ListRecentMessages returns up to limit messages for a chat, newest first.
func (d *Driver) ListRecentMessages(ctx context.Context, chatID uint, limit int) ([]store.Message, error) {
	var messages []store.Message
	result := d.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id DESC").
		Limit(limit).
		Find(&messages)
	if result.Error != nil {
		return nil, result.Error
	}
	return messages, nil
}

// PermissionStore implementation

// GrantPermission records a permission grant for a file.
func (d *Driver) GrantPermission(ctx context.Context, p *store.FilePermission) error {
	result := d.db.WithContext(ctx).Create(p)
	if isUniqueViolation(result.Error) {
		return store.ErrAlreadyExists
	}
	return result.Error
}

// GetPermission retrieves a user's permission on a file.
func (d *Driver) GetPermission(ctx context.Context, fileID string, userID uint) (*store.FilePermission, error) {
	var p store.FilePermission
	result := d.db.WithContext(ctx).First(&p, "file_id = ? AND user_id = ?", fileID, userID)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &p, nil
}

// ListPermissionsForFile returns all permissions on a file.
func (d *Driver) ListPermissionsForFile(ctx context.Context, fileID string) ([]store.FilePermission, error) {
	var perms []store.FilePermission
	result := d.db.WithContext(ctx).Where("file_id = ?", fileID).Order("id").Find(&perms)
	if result.Error != nil {
		return nil, result.Error
	}
	return perms, nil
}

// ListFilesForUser returns all permissions granted to a user.
func (d *Driver) ListFilesForUser(ctx context.Context, userID uint) ([]store.FilePermission, error) {
	var perms []store.FilePermission
	result := d.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&perms)
	if result.Error != nil {
		return nil, result.Error
	}
	return perms, nil
}

// UpdatePermission changes a user's rights level on a file.
func (d *Driver) UpdatePermission(ctx context.Context, fileID string, userID uint, level string) error {
	result := d.db.WithContext(ctx).Model(&store.FilePermission{}).
		Where("file_id = ? AND user_id = ?", fileID, userID).
		Update("level", level)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RevokePermission removes a user's permission on a file.
func (d *Driver) RevokePermission(ctx context.Context, fileID string, userID uint) error {
	result := d.db.WithContext(ctx).Delete(&store.FilePermission{}, "file_id = ? AND user_id = ?", fileID, userID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Compile-time interface checks
var _ store.Driver = (*Driver)(nil)
var _ store.Store = (*Driver)(nil)
