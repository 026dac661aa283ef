package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Mihendy/pp-2025/internal/store"
	"github.com/Mihendy/pp-2025/internal/store/memory"
)

func newDriver(t *testing.T) store.Driver {
	t.Helper()
	d, err := memory.NewDriver(&store.DriverConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	d := newDriver(t)
	ctx := context.Background()

	u := &store.User{Email: "alice@urfu.me", PasswordHash: "x"}
	if err := d.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if u.ID == 0 {
		t.Fatal("expected assigned id")
	}

	err := d.CreateUser(ctx, &store.User{Email: "alice@urfu.me", PasswordHash: "y"})
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := d.GetUserByEmail(ctx, "alice@urfu.me")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("expected id %d, got %d", u.ID, got.ID)
	}
}

func TestGroupMembership_CreatorImplicit(t *testing.T) {
	d := newDriver(t)
	ctx := context.Background()

	g := &store.Group{Name: "algorithms", CreatorID: 1}
	if err := d.CreateGroup(ctx, g); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	ok, err := d.IsMember(ctx, g.ID, 1)
	if err != nil || !ok {
		t.Fatalf("expected creator to be a member, got %v/%v", ok, err)
	}

	if err := d.AddMember(ctx, g.ID, 2); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	members, err := d.ListMembers(ctx, g.ID)
	if err != nil {
		t.Fatalf("ListMembers failed: %v", err)
	}
	if len(members) != 2 || members[0] != 1 || members[1] != 2 {
		t.Errorf("expected members [1 2], got %v", members)
	}

	groups, err := d.ListGroupsForUser(ctx, 2)
	if err != nil {
		t.Fatalf("ListGroupsForUser failed: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != g.ID {
		t.Errorf("expected member's group list to contain %d, got %v", g.ID, groups)
	}
}

func TestResolveInvite_OnlyOnce(t *testing.T) {
	d := newDriver(t)
	ctx := context.Background()

	g := &store.Group{Name: "g", CreatorID: 1}
	if err := d.CreateGroup(ctx, g); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	inv := &store.Invitation{GroupID: g.ID, SenderID: 1, RecipientID: 2}
	if err := d.CreateInvite(ctx, inv); err != nil {
		t.Fatalf("CreateInvite failed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := d.ResolveInvite(ctx, inv.ID, 2, store.InviteAccepted)
			if err != nil {
				t.Errorf("ResolveInvite failed: %v", err)
			}
			results[i] = ok
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one resolve to win, got %d", wins)
	}

	got, err := d.GetInvite(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetInvite failed: %v", err)
	}
	if got.Status != store.InviteAccepted {
		t.Errorf("expected accepted status, got %q", got.Status)
	}
	member, err := d.IsMember(ctx, g.ID, 2)
	if err != nil || !member {
		t.Errorf("expected recipient to be a member, got %v/%v", member, err)
	}
}

func TestResolveInvite_WrongRecipient(t *testing.T) {
	d := newDriver(t)
	ctx := context.Background()

	g := &store.Group{Name: "g", CreatorID: 1}
	if err := d.CreateGroup(ctx, g); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	inv := &store.Invitation{GroupID: g.ID, SenderID: 1, RecipientID: 2}
	if err := d.CreateInvite(ctx, inv); err != nil {
		t.Fatalf("CreateInvite failed: %v", err)
	}

	ok, err := d.ResolveInvite(ctx, inv.ID, 3, store.InviteAccepted)
	if err != nil {
		t.Fatalf("ResolveInvite failed: %v", err)
	}
	if ok {
		t.Fatal("expected resolve by non-recipient to be rejected")
	}
	got, _ := d.GetInvite(ctx, inv.ID)
	if got.Status != store.InvitePending {
		t.Errorf("expected invite to stay pending, got %q", got.Status)
	}
}

func TestCreateChat_OwnerIsMember(t *testing.T) {
	d := newDriver(t)
	ctx := context.Background()

	c := &store.Chat{Name: "standup", OwnerID: 7}
	if err := d.CreateChat(ctx, c); err != nil {
		t.Fatalf("CreateChat failed: %v", err)
	}
	ok, err := d.IsChatMember(ctx, c.ID, 7)
	if err != nil || !ok {
		t.Fatalf("expected owner to be a chat member, got %v/%v", ok, err)
	}
}

func TestListRecentMessages_NewestFirst(t *testing.T) {
	d := newDriver(t)
	ctx := context.Background()

	c := &store.Chat{Name: "c", OwnerID: 1}
	if err := d.CreateChat(ctx, c); err != nil {
		t.Fatalf("CreateChat failed: %v", err)
	}
	texts := []string{"one", "two", "three", "four"}
	for _, txt := range texts {
		if err := d.AppendMessage(ctx, &store.Message{ChatID: c.ID, SenderID: 1, Text: txt}); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	msgs, err := d.ListRecentMessages(ctx, c.ID, 3)
	if err != nil {
		t.Fatalf("ListRecentMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	want := []string{"four", "three", "two"}
	for i, w := range want {
		if msgs[i].Text != w {
			t.Errorf("message %d: expected %q, got %q", i, w, msgs[i].Text)
		}
	}
}

func TestPermissions_GrantUpdateRevoke(t *testing.T) {
	d := newDriver(t)
	ctx := context.Background()

	p := &store.FilePermission{FileID: "notes.docx", UserID: 1, Level: "owner"}
	if err := d.GrantPermission(ctx, p); err != nil {
		t.Fatalf("GrantPermission failed: %v", err)
	}
	err := d.GrantPermission(ctx, &store.FilePermission{FileID: "notes.docx", UserID: 1, Level: "viewer"})
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	if err := d.GrantPermission(ctx, &store.FilePermission{FileID: "notes.docx", UserID: 2, Level: "viewer"}); err != nil {
		t.Fatalf("GrantPermission failed: %v", err)
	}
	if err := d.UpdatePermission(ctx, "notes.docx", 2, "editor"); err != nil {
		t.Fatalf("UpdatePermission failed: %v", err)
	}
	got, err := d.GetPermission(ctx, "notes.docx", 2)
	if err != nil {
		t.Fatalf("GetPermission failed: %v", err)
	}
	if got.Level != "editor" {
		t.Errorf("expected level editor, got %q", got.Level)
	}

	if err := d.RevokePermission(ctx, "notes.docx", 2); err != nil {
		t.Fatalf("RevokePermission failed: %v", err)
	}
	if _, err := d.GetPermission(ctx, "notes.docx", 2); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after revoke, got %v", err)
	}

	perms, err := d.ListPermissionsForFile(ctx, "notes.docx")
	if err != nil {
		t.Fatalf("ListPermissionsForFile failed: %v", err)
	}
	if len(perms) != 1 || perms[0].UserID != 1 {
		t.Errorf("expected single owner permission, got %v", perms)
	}
}
