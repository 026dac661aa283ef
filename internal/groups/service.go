// Package groups implements group management and the invitation
// lifecycle.
package groups

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Mihendy/pp-2025/internal/logutil"
	"github.com/Mihendy/pp-2025/internal/store"
)

// Errors returned by the groups service.
var (
	ErrGroupNotFound     = errors.New("group not found")
	ErrNotGroupMember    = errors.New("not a member of the group")
	ErrNotGroupCreator   = errors.New("only the creator may do this")
	ErrSelfInvite        = errors.New("cannot invite yourself")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrDuplicateInvite   = errors.New("a pending invite already exists")
	ErrAlreadyMember     = errors.New("recipient is already a member")
	ErrInviteNotFound    = errors.New("invite not found")
	ErrNotRecipient      = errors.New("invite is addressed to another user")
	ErrAlreadyResolved   = errors.New("invite already resolved")
	ErrMemberNotFound    = errors.New("user is not a member")
)

// Service coordinates groups, memberships and invitations.
type Service struct {
	groups  store.GroupStore
	invites store.InviteStore
	users   store.UserStore
	logger  *slog.Logger
}

// NewService creates a groups service.
func NewService(groups store.GroupStore, invites store.InviteStore, users store.UserStore, logger *slog.Logger) *Service {
	return &Service{
		groups:  groups,
		invites: invites,
		users:   users,
		logger:  logutil.NoopIfNil(logger),
	}
}

// Create creates a group owned by creatorID. The creator is implicitly
// a member and never stored as a member row.
func (s *Service) Create(ctx context.Context, name string, creatorID uint) (*store.Group, error) {
	g := &store.Group{Name: name, CreatorID: creatorID}
	if err := s.groups.CreateGroup(ctx, g); err != nil {
		return nil, err
	}
	s.logger.Info("group created", "group_id", g.ID, "creator_id", creatorID)
	return g, nil
}

// Get returns a group by id.
func (s *Service) Get(ctx context.Context, id uint) (*store.Group, error) {
	g, err := s.groups.GetGroup(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return g, nil
}

// ListAll returns every group.
func (s *Service) ListAll(ctx context.Context) ([]store.Group, error) {
	return s.groups.ListGroups(ctx)
}

// ListMine returns groups the user created or joined.
func (s *Service) ListMine(ctx context.Context, userID uint) ([]store.Group, error) {
	return s.groups.ListGroupsForUser(ctx, userID)
}

// ListCreated returns groups the user created.
func (s *Service) ListCreated(ctx context.Context, userID uint) ([]store.Group, error) {
	return s.groups.ListGroupsByCreator(ctx, userID)
}

// ListJoined returns groups the user joined by accepting an invite.
// Creating a group does not count as joining it.
func (s *Service) ListJoined(ctx context.Context, userID uint) ([]store.Group, error) {
	return s.groups.ListGroupsByMember(ctx, userID)
}

// Members returns member ids of a group, creator first.
func (s *Service) Members(ctx context.Context, groupID uint) ([]uint, error) {
	ids, err := s.groups.ListMembers(ctx, groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return ids, nil
}

// Delete removes a group. Only the creator may delete it.
func (s *Service) Delete(ctx context.Context, groupID, actorID uint) error {
	g, err := s.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if g.CreatorID != actorID {
		return ErrNotGroupCreator
	}
	if err := s.groups.DeleteGroup(ctx, groupID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrGroupNotFound
		}
		return err
	}
	s.logger.Info("group deleted", "group_id", groupID)
	return nil
}

// RemoveMember removes a user from a group. Only the creator may remove
// members, and the creator itself cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, groupID, actorID, memberID uint) error {
	g, err := s.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if g.CreatorID != actorID {
		return ErrNotGroupCreator
	}
	if memberID == g.CreatorID {
		return ErrNotGroupMember
	}
	if err := s.groups.RemoveMember(ctx, groupID, memberID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMemberNotFound
		}
		return err
	}
	s.logger.Info("member removed", "group_id", groupID, "user_id", memberID)
	return nil
}

// Invite creates a pending invitation. Validation order is fixed:
// self-invite, group existence, sender membership, recipient existence,
// duplicate pending invite, existing membership.
func (s *Service) Invite(ctx context.Context, groupID, senderID, recipientID uint) (*store.Invitation, error) {
	if senderID == recipientID {
		return nil, ErrSelfInvite
	}

	g, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}

	isMember, err := s.groups.IsMember(ctx, groupID, senderID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotGroupMember
	}

	if _, err := s.users.GetUserByID(ctx, recipientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}

	pending, err := s.invites.HasPendingInvite(ctx, groupID, recipientID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrDuplicateInvite
	}

	recipientMember, err := s.groups.IsMember(ctx, groupID, recipientID)
	if err != nil {
		return nil, err
	}
	if recipientMember || g.CreatorID == recipientID {
		return nil, ErrAlreadyMember
	}

	inv := &store.Invitation{
		GroupID:     groupID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Status:      store.InvitePending,
	}
	if err := s.invites.CreateInvite(ctx, inv); err != nil {
		return nil, err
	}
	s.logger.Info("invite sent", "invite_id", inv.ID, "group_id", groupID, "recipient_id", recipientID)
	return inv, nil
}

// ListInvites returns invitations addressed to the user, optionally
// filtered by status.
func (s *Service) ListInvites(ctx context.Context, recipientID uint, status store.InviteStatus) ([]store.Invitation, error) {
	return s.invites.ListInvitesForUser(ctx, recipientID, status)
}

// Respond accepts or declines a pending invitation. The resolve is a
// single conditional update; when it doesn't land, a follow-up lookup
// distinguishes a missing invite, a foreign invite, and one already
// resolved by a concurrent request.
func (s *Service) Respond(ctx context.Context, inviteID, actorID uint, accept bool) (*store.Invitation, error) {
	status := store.InviteDeclined
	if accept {
		status = store.InviteAccepted
	}

	resolved, err := s.invites.ResolveInvite(ctx, inviteID, actorID, status)
	if err != nil {
		return nil, err
	}
	if !resolved {
		inv, err := s.invites.GetInvite(ctx, inviteID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrInviteNotFound
			}
			return nil, err
		}
		if inv.RecipientID != actorID {
			return nil, ErrNotRecipient
		}
		return nil, ErrAlreadyResolved
	}

	inv, err := s.invites.GetInvite(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("invite resolved", "invite_id", inviteID, "status", status)
	return inv, nil
}
