// Package store defines the persistent entities of the collaboration
// backend and the repository interfaces drivers implement.
package store

import (
	"context"
	"errors"
	"time"
)

// Common store errors. Drivers translate their native errors into these
// so callers can branch without knowing the backend.
var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// InviteStatus is the lifecycle state of a group invitation.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteDeclined InviteStatus = "declined"
)

// Valid reports whether s is a known invitation status.
func (s InviteStatus) Valid() bool {
	switch s {
	case InvitePending, InviteAccepted, InviteDeclined:
		return true
	}
	return false
}

// User is a registered account.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Group is a named collaboration group owned by its creator.
type Group struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	CreatorID uint      `gorm:"index;not null" json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupMember links a user to a group. The creator is not stored as a
// member row; membership queries must union the creator id.
type GroupMember struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	GroupID uint `gorm:"uniqueIndex:idx_group_user;not null" json:"group_id"`
	UserID  uint `gorm:"uniqueIndex:idx_group_user;not null" json:"user_id"`
}

// Invitation is a pending, accepted or declined group invite.
type Invitation struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	GroupID     uint         `gorm:"index;not null" json:"group_id"`
	SenderID    uint         `gorm:"not null" json:"sender_id"`
	RecipientID uint         `gorm:"index;not null" json:"recipient_id"`
	Status      InviteStatus `gorm:"not null;default:pending" json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Chat is a chat room. The owner is always a member.
type Chat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	OwnerID   uint      `gorm:"index;not null" json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMember links a user to a chat.
type ChatMember struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	ChatID uint `gorm:"uniqueIndex:idx_chat_user;not null" json:"chat_id"`
	UserID uint `gorm:"uniqueIndex:idx_chat_user;not null" json:"user_id"`
}

// Message is a persisted chat message.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ChatID    uint      `gorm:"index;not null" json:"chat_id"`
	SenderID  uint      `gorm:"not null" json:"sender_id"`
	Text      string    `gorm:"not null" json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// FilePermission grants a user a rights level on a stored file.
type FilePermission struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FileID    string    `gorm:"uniqueIndex:idx_file_user;not null" json:"file_id"`
	UserID    uint      `gorm:"uniqueIndex:idx_file_user;not null" json:"user_id"`
	Level     string    `gorm:"not null" json:"level"`
	GrantedAt time.Time `json:"granted_at"`
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id uint) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// GroupStore persists groups and their memberships.
type GroupStore interface {
	CreateGroup(ctx context.Context, g *Group) error
	GetGroup(ctx context.Context, id uint) (*Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	// ListGroupsForUser returns groups the user created or joined.
	ListGroupsForUser(ctx context.Context, userID uint) ([]Group, error)
	ListGroupsByCreator(ctx context.Context, userID uint) ([]Group, error)
	// ListGroupsByMember matches membership rows only; the implicit
	// creator privilege does not count as membership here.
	ListGroupsByMember(ctx context.Context, userID uint) ([]Group, error)
	DeleteGroup(ctx context.Context, id uint) error

	AddMember(ctx context.Context, groupID, userID uint) error
	RemoveMember(ctx context.Context, groupID, userID uint) error
	IsMember(ctx context.Context, groupID, userID uint) (bool, error)
	ListMembers(ctx context.Context, groupID uint) ([]uint, error)
}

// InviteStore persists invitations.
type InviteStore interface {
	CreateInvite(ctx context.Context, inv *Invitation) error
	GetInvite(ctx context.Context, id uint) (*Invitation, error)
	ListInvitesForUser(ctx context.Context, recipientID uint, status InviteStatus) ([]Invitation, error)
	HasPendingInvite(ctx context.Context, groupID, recipientID uint) (bool, error)

	// ResolveInvite atomically flips a pending invite addressed to
	// recipientID into status, adding the group membership when status
	// is accepted. It reports false when no pending invite matched,
	// without distinguishing why; callers disambiguate via GetInvite.
	ResolveInvite(ctx context.Context, id, recipientID uint, status InviteStatus) (bool, error)
}

// ChatStore persists chats and their memberships.
type ChatStore interface {
	// CreateChat inserts the chat and its owner membership together.
	CreateChat(ctx context.Context, c *Chat) error
	GetChat(ctx context.Context, id uint) (*Chat, error)
	ListChatsForUser(ctx context.Context, userID uint) ([]Chat, error)
	DeleteChat(ctx context.Context, id uint) error

	AddChatMember(ctx context.Context, chatID, userID uint) error
	RemoveChatMember(ctx context.Context, chatID, userID uint) error
	IsChatMember(ctx context.Context, chatID, userID uint) (bool, error)
	// ListChatMembers returns member user ids in a stable order.
	ListChatMembers(ctx context.Context, chatID uint) ([]uint, error)
}

// MessageStore persists chat messages.
type MessageStore interface {
	AppendMessage(ctx context.Context, m *Message) error
	// ListRecentMessages returns up to limit messages, newest first.
	ListRecentMessages(ctx context.Context, chatID uint, limit int) ([]Message, error)
}

// PermissionStore persists file permissions.
type PermissionStore interface {
	GrantPermission(ctx context.Context, p *FilePermission) error
	GetPermission(ctx context.Context, fileID string, userID uint) (*FilePermission, error)
	ListPermissionsForFile(ctx context.Context, fileID string) ([]FilePermission, error)
	ListFilesForUser(ctx context.Context, userID uint) ([]FilePermission, error)
	UpdatePermission(ctx context.Context, fileID string, userID uint, level string) error
	RevokePermission(ctx context.Context, fileID string, userID uint) error
}

// Store aggregates the repositories a driver provides.
type Store interface {
	UserStore
	GroupStore
	InviteStore
	ChatStore
	MessageStore
	PermissionStore
}

// Driver is a pluggable storage backend.
type Driver interface {
	Store

	// Init prepares the backend (migrations, directories).
	Init(ctx context.Context) error

	// Close releases backend resources.
	Close() error

	// Name returns the driver name, e.g. "sqlite".
	Name() string
}
