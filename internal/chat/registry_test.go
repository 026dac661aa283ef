package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Mihendy/pp-2025/internal/chat"
	"github.com/Mihendy/pp-2025/internal/store"
	"github.com/Mihendy/pp-2025/internal/store/memory"
)

// fakeConn records delivered frames in order.
type fakeConn struct {
	mu     sync.Mutex
	frames []string
	fail   bool
	closed bool
}

func (c *fakeConn) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection reset")
	}
	c.frames = append(c.frames, text)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) texts(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		var v chat.MessageView
		if err := json.Unmarshal([]byte(f), &v); err != nil {
			t.Fatalf("bad frame %q: %v", f, err)
		}
		out = append(out, v.Text)
	}
	return out
}

func newRegistry(t *testing.T) (*chat.Registry, store.Driver) {
	t.Helper()
	d, err := memory.NewDriver(&store.DriverConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return chat.NewRegistry(d, nil), d
}

func TestReceive_BroadcastIncludesSender(t *testing.T) {
	reg, d := newRegistry(t)
	ctx := context.Background()

	c := &store.Chat{Name: "room", OwnerID: 1}
	if err := d.CreateChat(ctx, c); err != nil {
		t.Fatalf("CreateChat failed: %v", err)
	}

	sender := &fakeConn{}
	peer := &fakeConn{}
	ms := reg.Join(c.ID, 1, sender)
	mp := reg.Join(c.ID, 2, peer)
	defer reg.Leave(c.ID, ms)
	defer reg.Leave(c.ID, mp)

	msg, err := reg.Receive(ctx, c.ID, 1, "hello")
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if msg.ID == 0 {
		t.Error("expected message to be persisted with an id")
	}

	for name, conn := range map[string]*fakeConn{"sender": sender, "peer": peer} {
		got := conn.texts(t)
		if len(got) != 1 || got[0] != "hello" {
			t.Errorf("%s: expected [hello], got %v", name, got)
		}
	}
}

func TestReceive_OrderMatchesStore(t *testing.T) {
	reg, d := newRegistry(t)
	ctx := context.Background()

	c := &store.Chat{Name: "room", OwnerID: 1}
	if err := d.CreateChat(ctx, c); err != nil {
		t.Fatalf("CreateChat failed: %v", err)
	}

	observer := &fakeConn{}
	m := reg.Join(c.ID, 2, observer)
	defer reg.Leave(c.ID, m)

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := reg.Receive(ctx, c.ID, 1, fmt.Sprintf("m%d", i)); err != nil {
				t.Errorf("Receive failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	delivered := observer.texts(t)
	if len(delivered) != n {
		t.Fatalf("expected %d frames, got %d", n, len(delivered))
	}

	// Store order (oldest first) must equal delivery order.
	stored, err := d.ListRecentMessages(ctx, c.ID, n)
	if err != nil {
		t.Fatalf("ListRecentMessages failed: %v", err)
	}
	for i := range stored {
		wantIdx := len(stored) - 1 - i
		if stored[i].Text != delivered[wantIdx] {
			t.Fatalf("order mismatch at %d: store %q vs delivered %q", i, stored[i].Text, delivered[wantIdx])
		}
	}
}

func TestReceive_DropsDeadConnections(t *testing.T) {
	reg, d := newRegistry(t)
	ctx := context.Background()

	c := &store.Chat{Name: "room", OwnerID: 1}
	if err := d.CreateChat(ctx, c); err != nil {
		t.Fatalf("CreateChat failed: %v", err)
	}

	dead := &fakeConn{fail: true}
	alive := &fakeConn{}
	reg.Join(c.ID, 1, dead)
	ma := reg.Join(c.ID, 2, alive)
	defer reg.Leave(c.ID, ma)

	if _, err := reg.Receive(ctx, c.ID, 2, "still here"); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	got := alive.texts(t)
	if len(got) != 1 || got[0] != "still here" {
		t.Errorf("live connection should receive despite dead peer, got %v", got)
	}
	if !dead.closed {
		t.Error("dead connection should be closed")
	}
	if n := reg.LiveCount(c.ID); n != 1 {
		t.Errorf("expected 1 live connection, got %d", n)
	}
}

func TestLeave_DropsEmptyRoom(t *testing.T) {
	reg, d := newRegistry(t)
	ctx := context.Background()

	c := &store.Chat{Name: "room", OwnerID: 1}
	if err := d.CreateChat(ctx, c); err != nil {
		t.Fatalf("CreateChat failed: %v", err)
	}

	conn := &fakeConn{}
	m := reg.Join(c.ID, 1, conn)
	if n := reg.LiveCount(c.ID); n != 1 {
		t.Fatalf("expected 1 live connection, got %d", n)
	}
	reg.Leave(c.ID, m)
	if n := reg.LiveCount(c.ID); n != 0 {
		t.Errorf("expected empty room to be dropped, got %d", n)
	}

	// Messages to a room with no live connections still persist.
	if _, err := reg.Receive(ctx, c.ID, 1, "offline"); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	stored, _ := d.ListRecentMessages(ctx, c.ID, 10)
	if len(stored) != 1 || stored[0].Text != "offline" {
		t.Errorf("expected persisted offline message, got %v", stored)
	}
}
