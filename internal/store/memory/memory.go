// Package memory implements an in-memory persistence driver for tests
// and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Mihendy/pp-2025/internal/store"
)

func init() {
	store.Register("memory", NewDriver)
}

// Driver implements the store.Driver interface with in-memory maps.
// All state is lost on Close.
type Driver struct {
	mu sync.RWMutex

	nextID map[string]uint

	users        map[uint]*store.User
	usersByEmail map[string]uint
	groups       map[uint]*store.Group
	groupMembers map[uint]map[uint]bool
	invites      map[uint]*store.Invitation
	chats        map[uint]*store.Chat
	chatMembers  map[uint]map[uint]bool
	messages     map[uint][]store.Message
	permissions  map[string]map[uint]*store.FilePermission
}

// NewDriver creates a new in-memory driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	return &Driver{
		nextID:       make(map[string]uint),
		users:        make(map[uint]*store.User),
		usersByEmail: make(map[string]uint),
		groups:       make(map[uint]*store.Group),
		groupMembers: make(map[uint]map[uint]bool),
		invites:      make(map[uint]*store.Invitation),
		chats:        make(map[uint]*store.Chat),
		chatMembers:  make(map[uint]map[uint]bool),
		messages:     make(map[uint][]store.Message),
		permissions:  make(map[string]map[uint]*store.FilePermission),
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string { return "memory" }

// Init is a no-op for the memory driver.
func (d *Driver) Init(ctx context.Context) error { return nil }

// Close discards all state.
func (d *Driver) Close() error { return nil }

// next must be called with d.mu held.
func (d *Driver) next(kind string) uint {
	d.nextID[kind]++
	return d.nextID[kind]
}

// UserStore implementation

func (d *Driver) CreateUser(ctx context.Context, u *store.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.usersByEmail[u.Email]; ok {
		return store.ErrAlreadyExists
	}
	u.ID = d.next("user")
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	cp := *u
	d.users[u.ID] = &cp
	d.usersByEmail[u.Email] = u.ID
	return nil
}

func (d *Driver) GetUserByID(ctx context.Context, id uint) (*store.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *Driver) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.usersByEmail[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d.users[id]
	return &cp, nil
}

// GroupStore implementation

func (d *Driver) CreateGroup(ctx context.Context, g *store.Group) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	g.ID = d.next("group")
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	cp := *g
	d.groups[g.ID] = &cp
	d.groupMembers[g.ID] = make(map[uint]bool)
	return nil
}

func (d *Driver) GetGroup(ctx context.Context, id uint) (*store.Group, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (d *Driver) ListGroups(ctx context.Context) ([]store.Group, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	groups := make([]store.Group, 0, len(d.groups))
	for _, g := range d.groups {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

func (d *Driver) ListGroupsForUser(ctx context.Context, userID uint) ([]store.Group, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var groups []store.Group
	for id, g := range d.groups {
		if g.CreatorID == userID || d.groupMembers[id][userID] {
			groups = append(groups, *g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

func (d *Driver) ListGroupsByCreator(ctx context.Context, userID uint) ([]store.Group, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var groups []store.Group
	for _, g := range d.groups {
		if g.CreatorID == userID {
			groups = append(groups, *g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

func (d *Driver) ListGroupsByMember(ctx context.Context, userID uint) ([]store.Group, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var groups []store.Group
	for id, g := range d.groups {
		if d.groupMembers[id][userID] {
			groups = append(groups, *g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

func (d *Driver) DeleteGroup(ctx context.Context, id uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.groups[id]; !ok {
		return store.ErrNotFound
	}
	delete(d.groups, id)
	delete(d.groupMembers, id)
	for invID, inv := range d.invites {
		if inv.GroupID == id {
			delete(d.invites, invID)
		}
	}
	return nil
}

func (d *Driver) AddMember(ctx context.Context, groupID, userID uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.groupMembers[groupID]
	if !ok {
		return store.ErrNotFound
	}
	if members[userID] {
		return store.ErrAlreadyExists
	}
	members[userID] = true
	return nil
}

func (d *Driver) RemoveMember(ctx context.Context, groupID, userID uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.groupMembers[groupID]
	if !ok || !members[userID] {
		return store.ErrNotFound
	}
	delete(members, userID)
	return nil
}

func (d *Driver) IsMember(ctx context.Context, groupID, userID uint) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[groupID]
	if !ok {
		return false, store.ErrNotFound
	}
	if g.CreatorID == userID {
		return true, nil
	}
	return d.groupMembers[groupID][userID], nil
}

func (d *Driver) ListMembers(ctx context.Context, groupID uint) ([]uint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[groupID]
	if !ok {
		return nil, store.ErrNotFound
	}
	members := d.groupMembers[groupID]
	rest := make([]uint, 0, len(members))
	for id := range members {
		if id != g.CreatorID {
			rest = append(rest, id)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append([]uint{g.CreatorID}, rest...), nil
}

// InviteStore implementation

func (d *Driver) CreateInvite(ctx context.Context, inv *store.Invitation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	inv.ID = d.next("invite")
	if inv.Status == "" {
		inv.Status = store.InvitePending
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	cp := *inv
	d.invites[inv.ID] = &cp
	return nil
}

func (d *Driver) GetInvite(ctx context.Context, id uint) (*store.Invitation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	inv, ok := d.invites[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (d *Driver) ListInvitesForUser(ctx context.Context, recipientID uint, status store.InviteStatus) ([]store.Invitation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var invites []store.Invitation
	for _, inv := range d.invites {
		if inv.RecipientID != recipientID {
			continue
		}
		if status != "" && inv.Status != status {
			continue
		}
		invites = append(invites, *inv)
	}
	sort.Slice(invites, func(i, j int) bool { return invites[i].ID < invites[j].ID })
	return invites, nil
}

func (d *Driver) HasPendingInvite(ctx context.Context, groupID, recipientID uint) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, inv := range d.invites {
		if inv.GroupID == groupID && inv.RecipientID == recipientID && inv.Status == store.InvitePending {
			return true, nil
		}
	}
	return false, nil
}

func (d *Driver) ResolveInvite(ctx context.Context, id, recipientID uint, status store.InviteStatus) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inv, ok := d.invites[id]
	if !ok || inv.RecipientID != recipientID || inv.Status != store.InvitePending {
		return false, nil
	}
	inv.Status = status
	if status == store.InviteAccepted {
		if members, ok := d.groupMembers[inv.GroupID]; ok {
			members[recipientID] = true
		}
	}
	return true, nil
}

// ChatStore implementation

func (d *Driver) CreateChat(ctx context.Context, c *store.Chat) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c.ID = d.next("chat")
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	cp := *c
	d.chats[c.ID] = &cp
	d.chatMembers[c.ID] = map[uint]bool{c.OwnerID: true}
	return nil
}

func (d *Driver) GetChat(ctx context.Context, id uint) (*store.Chat, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.chats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (d *Driver) ListChatsForUser(ctx context.Context, userID uint) ([]store.Chat, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var chats []store.Chat
	for id, c := range d.chats {
		if d.chatMembers[id][userID] {
			chats = append(chats, *c)
		}
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i].ID < chats[j].ID })
	return chats, nil
}

func (d *Driver) DeleteChat(ctx context.Context, id uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.chats[id]; !ok {
		return store.ErrNotFound
	}
	delete(d.chats, id)
	delete(d.chatMembers, id)
	delete(d.messages, id)
	return nil
}

func (d *Driver) AddChatMember(ctx context.Context, chatID, userID uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.chatMembers[chatID]
	if !ok {
		return store.ErrNotFound
	}
	if members[userID] {
		return store.ErrAlreadyExists
	}
	members[userID] = true
	return nil
}

func (d *Driver) RemoveChatMember(ctx context.Context, chatID, userID uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.chatMembers[chatID]
	if !ok || !members[userID] {
		return store.ErrNotFound
	}
	delete(members, userID)
	return nil
}

func (d *Driver) IsChatMember(ctx context.Context, chatID, userID uint) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.chatMembers[chatID][userID], nil
}

func (d *Driver) ListChatMembers(ctx context.Context, chatID uint) ([]uint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	members, ok := d.chatMembers[chatID]
	if !ok {
		return nil, store.ErrNotFound
	}
	ids := make([]uint, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// MessageStore implementation

func (d *Driver) AppendMessage(ctx context.Context, m *store.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m.ID = d.next("message")
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	d.messages[m.ChatID] = append(d.messages[m.ChatID], *m)
	return nil
}

func (d *Driver) ListRecentMessages(ctx context.Context, chatID uint, limit int) ([]store.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	all := d.messages[chatID]
	if limit > len(all) {
		limit = len(all)
	}
	out := make([]store.Message, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// PermissionStore implementation

func (d *Driver) GrantPermission(ctx context.Context, p *store.FilePermission) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	perms, ok := d.permissions[p.FileID]
	if !ok {
		perms = make(map[uint]*store.FilePermission)
		d.permissions[p.FileID] = perms
	}
	if _, exists := perms[p.UserID]; exists {
		return store.ErrAlreadyExists
	}
	p.ID = d.next("permission")
	if p.GrantedAt.IsZero() {
		p.GrantedAt = time.Now().UTC()
	}
	cp := *p
	perms[p.UserID] = &cp
	return nil
}

func (d *Driver) GetPermission(ctx context.Context, fileID string, userID uint) (*store.FilePermission, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.permissions[fileID][userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (d *Driver) ListPermissionsForFile(ctx context.Context, fileID string) ([]store.FilePermission, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var perms []store.FilePermission
	for _, p := range d.permissions[fileID] {
		perms = append(perms, *p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].ID < perms[j].ID })
	return perms, nil
}

func (d *Driver) ListFilesForUser(ctx context.Context, userID uint) ([]store.FilePermission, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var perms []store.FilePermission
	for _, byUser := range d.permissions {
		if p, ok := byUser[userID]; ok {
			perms = append(perms, *p)
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].ID < perms[j].ID })
	return perms, nil
}

func (d *Driver) UpdatePermission(ctx context.Context, fileID string, userID uint, level string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.permissions[fileID][userID]
	if !ok {
		return store.ErrNotFound
	}
	p.Level = level
	return nil
}

func (d *Driver) RevokePermission(ctx context.Context, fileID string, userID uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.permissions[fileID][userID]; !ok {
		return store.ErrNotFound
	}
	delete(d.permissions[fileID], userID)
	return nil
}

// Compile-time interface checks
var _ store.Driver = (*Driver)(nil)
var _ store.Store = (*Driver)(nil)
