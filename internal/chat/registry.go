// Package chat implements chat rooms with persisted history and
// real-time fan-out over websockets.
package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Mihendy/pp-2025/internal/logutil"
	"github.com/Mihendy/pp-2025/internal/store"
)

// Conn is the transport side of a live chat connection. The websocket
// endpoint provides the real implementation; tests substitute fakes.
type Conn interface {
	// Send writes one outbound frame. It may block and must be safe to
	// call from the broadcasting goroutine.
	Send(text string) error

	// Close tears the connection down.
	Close() error
}

// member is one live connection inside a room.
type member struct {
	id     uuid.UUID
	userID uint
	conn   Conn
}

// room holds the live connections of one chat. Messages are persisted
// and broadcast under the room lock, so every connection observes the
// same order the store recorded.
type room struct {
	mu      sync.Mutex
	chatID  uint
	members []*member
}

// Registry tracks the live rooms. Rooms are created on first join and
// dropped when the last connection leaves.
type Registry struct {
	mu       sync.Mutex
	rooms    map[uint]*room
	messages store.MessageStore
	logger   *slog.Logger
}

// NewRegistry creates a connection registry backed by the message store.
func NewRegistry(messages store.MessageStore, logger *slog.Logger) *Registry {
	return &Registry{
		rooms:    make(map[uint]*room),
		messages: messages,
		logger:   logutil.NoopIfNil(logger),
	}
}

// Join registers a live connection in the chat's room and returns the
// member handle used for Receive and Leave.
func (reg *Registry) Join(chatID, userID uint, conn Conn) *member {
	m := &member{id: uuid.New(), userID: userID, conn: conn}

	// The registry lock is held across the append so a concurrent Leave
	// cannot drop the room between lookup and join.
	reg.mu.Lock()
	rm, ok := reg.rooms[chatID]
	if !ok {
		rm = &room{chatID: chatID}
		reg.rooms[chatID] = rm
	}
	rm.mu.Lock()
	rm.members = append(rm.members, m)
	rm.mu.Unlock()
	reg.mu.Unlock()

	reg.logger.Debug("chat member joined", "chat_id", chatID, "user_id", userID)
	return m
}

// Leave removes the connection from its room, dropping the room when it
// becomes empty.
func (reg *Registry) Leave(chatID uint, m *member) {
	reg.mu.Lock()
	rm, ok := reg.rooms[chatID]
	if !ok {
		reg.mu.Unlock()
		return
	}

	rm.mu.Lock()
	for i, other := range rm.members {
		if other.id == m.id {
			rm.members = append(rm.members[:i], rm.members[i+1:]...)
			break
		}
	}
	empty := len(rm.members) == 0
	rm.mu.Unlock()

	if empty {
		delete(reg.rooms, chatID)
	}
	reg.mu.Unlock()

	reg.logger.Debug("chat member left", "chat_id", chatID, "user_id", m.userID)
}

// Receive persists an inbound message and fans it out to every live
// connection in the room, the sender included. Persistence and
// broadcast happen under the room lock, so concurrent senders are
// serialized into one order shared by the store and all connections.
func (reg *Registry) Receive(ctx context.Context, chatID, senderID uint, text string) (*store.Message, error) {
	reg.mu.Lock()
	rm, ok := reg.rooms[chatID]
	reg.mu.Unlock()

	if !ok {
		// No live connections; persist only.
		msg := &store.Message{ChatID: chatID, SenderID: senderID, Text: text}
		if err := reg.messages.AppendMessage(ctx, msg); err != nil {
			return nil, err
		}
		return msg, nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	msg := &store.Message{ChatID: chatID, SenderID: senderID, Text: text}
	if err := reg.messages.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	reg.broadcastLocked(rm, msg)
	return msg, nil
}

// broadcastLocked delivers a message to all members of rm. Connections
// that fail to accept the frame are dropped; delivery continues with
// the remaining ones. Callers must hold rm.mu.
func (reg *Registry) broadcastLocked(rm *room, msg *store.Message) {
	payload, err := encodeMessage(msg)
	if err != nil {
		reg.logger.Error("message encoding failed", "error", err, "chat_id", rm.chatID)
		return
	}

	kept := rm.members[:0]
	for _, m := range rm.members {
		if err := m.conn.Send(payload); err != nil {
			reg.logger.Warn("dropping dead chat connection",
				"chat_id", rm.chatID, "user_id", m.userID, "error", err)
			m.conn.Close()
			continue
		}
		kept = append(kept, m)
	}
	rm.members = kept
}

// LiveCount returns the number of live connections in a chat.
func (reg *Registry) LiveCount(chatID uint) int {
	reg.mu.Lock()
	rm, ok := reg.rooms[chatID]
	reg.mu.Unlock()
	if !ok {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}
