package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/Mihendy/pp-2025/internal/logutil"
	"github.com/Mihendy/pp-2025/internal/store"
)

// Errors returned by the chat service.
var (
	ErrChatNotFound      = errors.New("chat not found")
	ErrNotChatMember     = errors.New("not a member of the chat")
	ErrNotChatOwner      = errors.New("only the owner may do this")
	ErrOwnerNotRemovable = errors.New("the owner cannot be removed")
)

// MessageView is the wire representation of a chat message.
type MessageView struct {
	ID        uint      `json:"id"`
	ChatID    uint      `json:"chat_id"`
	SenderID  uint      `json:"sender_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func viewOf(m *store.Message) MessageView {
	return MessageView{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}

func encodeMessage(m *store.Message) (string, error) {
	b, err := json.Marshal(viewOf(m))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Service coordinates chats, memberships and the message backlog.
type Service struct {
	chats        store.ChatStore
	messages     store.MessageStore
	users        store.UserStore
	historyLimit int
	logger       *slog.Logger
}

// NewService creates a chat service. historyLimit is the number of
// backlog messages replayed to a connecting client.
func NewService(chats store.ChatStore, messages store.MessageStore, users store.UserStore, historyLimit int, logger *slog.Logger) *Service {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &Service{
		chats:        chats,
		messages:     messages,
		users:        users,
		historyLimit: historyLimit,
		logger:       logutil.NoopIfNil(logger),
	}
}

// Create creates a chat; the owner becomes its first member.
func (s *Service) Create(ctx context.Context, name string, ownerID uint) (*store.Chat, error) {
	c := &store.Chat{Name: name, OwnerID: ownerID}
	if err := s.chats.CreateChat(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("chat created", "chat_id", c.ID, "owner_id", ownerID)
	return c, nil
}

// Get returns a chat by id.
func (s *Service) Get(ctx context.Context, id uint) (*store.Chat, error) {
	c, err := s.chats.GetChat(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListMine returns chats the user belongs to.
func (s *Service) ListMine(ctx context.Context, userID uint) ([]store.Chat, error) {
	return s.chats.ListChatsForUser(ctx, userID)
}

// Delete removes a chat with its history. Owner only.
func (s *Service) Delete(ctx context.Context, chatID, actorID uint) error {
	c, err := s.Get(ctx, chatID)
	if err != nil {
		return err
	}
	if c.OwnerID != actorID {
		return ErrNotChatOwner
	}
	if err := s.chats.DeleteChat(ctx, chatID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrChatNotFound
		}
		return err
	}
	s.logger.Info("chat deleted", "chat_id", chatID)
	return nil
}

// AddMember adds a user to a chat. Members may add other users.
func (s *Service) AddMember(ctx context.Context, chatID, actorID, userID uint) error {
	if _, err := s.Get(ctx, chatID); err != nil {
		return err
	}
	isMember, err := s.chats.IsChatMember(ctx, chatID, actorID)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrNotChatMember
	}
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return err
	}
	if err := s.chats.AddChatMember(ctx, chatID, userID); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return err
	}
	return nil
}

// RemoveMember removes a user from a chat. Owner only; the owner's own
// membership cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, chatID, actorID, userID uint) error {
	c, err := s.Get(ctx, chatID)
	if err != nil {
		return err
	}
	if c.OwnerID != actorID {
		return ErrNotChatOwner
	}
	if userID == c.OwnerID {
		return ErrOwnerNotRemovable
	}
	if err := s.chats.RemoveChatMember(ctx, chatID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotChatMember
		}
		return err
	}
	s.logger.Info("chat member removed", "chat_id", chatID, "user_id", userID)
	return nil
}

// Members returns the chat's member ids. Member gated.
func (s *Service) Members(ctx context.Context, chatID, actorID uint) ([]uint, error) {
	if err := s.Authorize(ctx, chatID, actorID); err != nil {
		return nil, err
	}
	ids, err := s.chats.ListChatMembers(ctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return ids, nil
}

// Authorize checks that the user may read and post in the chat.
func (s *Service) Authorize(ctx context.Context, chatID, userID uint) error {
	if _, err := s.Get(ctx, chatID); err != nil {
		return err
	}
	isMember, err := s.chats.IsChatMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrNotChatMember
	}
	return nil
}

// Backlog returns the most recent messages in chronological order,
// oldest first, ready to replay to a connecting client.
func (s *Service) Backlog(ctx context.Context, chatID uint) ([]MessageView, error) {
	msgs, err := s.messages.ListRecentMessages(ctx, chatID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	// The store returns newest first; reverse for replay.
	views := make([]MessageView, len(msgs))
	for i := range msgs {
		views[len(msgs)-1-i] = viewOf(&msgs[i])
	}
	return views, nil
}
