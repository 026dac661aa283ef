package chat_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Mihendy/pp-2025/internal/chat"
	"github.com/Mihendy/pp-2025/internal/store"
	"github.com/Mihendy/pp-2025/internal/store/memory"
)

func newService(t *testing.T, historyLimit int) (*chat.Service, store.Driver) {
	t.Helper()
	d, err := memory.NewDriver(&store.DriverConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return chat.NewService(d, d, d, historyLimit, nil), d
}

func TestBacklog_LastNOldestFirst(t *testing.T) {
	svc, d := newService(t, 3)
	ctx := context.Background()

	c, err := svc.Create(ctx, "room", 1)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for i := 1; i <= 5; i++ {
		if err := d.AppendMessage(ctx, &store.Message{ChatID: c.ID, SenderID: 1, Text: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	backlog, err := svc.Backlog(ctx, c.ID)
	if err != nil {
		t.Fatalf("Backlog failed: %v", err)
	}
	want := []string{"m3", "m4", "m5"}
	if len(backlog) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(backlog))
	}
	for i, w := range want {
		if backlog[i].Text != w {
			t.Errorf("backlog[%d]: expected %q, got %q", i, w, backlog[i].Text)
		}
	}
}

func TestAuthorize(t *testing.T) {
	svc, d := newService(t, 20)
	ctx := context.Background()

	if err := d.CreateUser(ctx, &store.User{Email: "b@urfu.me", PasswordHash: "x"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	c, err := svc.Create(ctx, "room", 1)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := svc.Authorize(ctx, c.ID, 1); err != nil {
		t.Errorf("owner should be authorized, got %v", err)
	}
	if err := svc.Authorize(ctx, c.ID, 2); !errors.Is(err, chat.ErrNotChatMember) {
		t.Errorf("expected ErrNotChatMember, got %v", err)
	}
	if err := svc.Authorize(ctx, 999, 1); !errors.Is(err, chat.ErrChatNotFound) {
		t.Errorf("expected ErrChatNotFound, got %v", err)
	}

	if err := svc.AddMember(ctx, c.ID, 1, 1); err != nil {
		// Adding an existing member is idempotent.
		t.Errorf("re-adding member should not fail, got %v", err)
	}
	if err := svc.AddMember(ctx, c.ID, 2, 1); !errors.Is(err, chat.ErrNotChatMember) {
		t.Errorf("non-members may not add users, got %v", err)
	}
}

func TestDelete_OwnerOnly(t *testing.T) {
	svc, _ := newService(t, 20)
	ctx := context.Background()

	c, err := svc.Create(ctx, "room", 1)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := svc.Delete(ctx, c.ID, 2); !errors.Is(err, chat.ErrNotChatOwner) {
		t.Errorf("expected ErrNotChatOwner, got %v", err)
	}
	if err := svc.Delete(ctx, c.ID, 1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := svc.Get(ctx, c.ID); !errors.Is(err, chat.ErrChatNotFound) {
		t.Errorf("expected ErrChatNotFound after delete, got %v", err)
	}
}

func TestRemoveMember_OwnerOnly(t *testing.T) {
	svc, d := newService(t, 20)
	ctx := context.Background()

	for _, email := range []string{"a@urfu.me", "b@urfu.me"} {
		if err := d.CreateUser(ctx, &store.User{Email: email, PasswordHash: "x"}); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}

	c, err := svc.Create(ctx, "room", 1)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := svc.AddMember(ctx, c.ID, 1, 2); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	if err := svc.RemoveMember(ctx, c.ID, 2, 1); !errors.Is(err, chat.ErrNotChatOwner) {
		t.Errorf("non-owners may not remove members, got %v", err)
	}
	if err := svc.RemoveMember(ctx, c.ID, 1, 1); !errors.Is(err, chat.ErrOwnerNotRemovable) {
		t.Errorf("expected ErrOwnerNotRemovable, got %v", err)
	}

	if err := svc.RemoveMember(ctx, c.ID, 1, 2); err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	if err := svc.Authorize(ctx, c.ID, 2); !errors.Is(err, chat.ErrNotChatMember) {
		t.Errorf("removed member should lose access, got %v", err)
	}
	if err := svc.RemoveMember(ctx, c.ID, 1, 2); !errors.Is(err, chat.ErrNotChatMember) {
		t.Errorf("removing a non-member should report ErrNotChatMember, got %v", err)
	}
}

func TestMembers_MemberGated(t *testing.T) {
	svc, d := newService(t, 20)
	ctx := context.Background()

	for _, email := range []string{"a@urfu.me", "b@urfu.me"} {
		if err := d.CreateUser(ctx, &store.User{Email: email, PasswordHash: "x"}); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}

	c, err := svc.Create(ctx, "room", 1)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := svc.AddMember(ctx, c.ID, 1, 2); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	ids, err := svc.Members(ctx, c.ID, 1)
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("expected members [1 2], got %v", ids)
	}

	if _, err := svc.Members(ctx, c.ID, 3); !errors.Is(err, chat.ErrNotChatMember) {
		t.Errorf("outsiders may not list members, got %v", err)
	}
}
