package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Mihendy/pp-2025/internal/identity"
	"github.com/Mihendy/pp-2025/internal/store"
	"github.com/Mihendy/pp-2025/internal/store/memory"
)

func newService(t *testing.T) (*identity.Service, store.Driver) {
	t.Helper()
	d, err := memory.NewDriver(&store.DriverConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	auth := identity.NewUserAuth(4) // low cost to keep tests fast
	tokens := identity.NewTokenIssuer("test-secret", time.Hour, 24*time.Hour)
	return identity.NewService(d, auth, tokens, "@urfu.me", nil), d
}

func TestRegister_DomainGate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		email string
		want  error
	}{
		{"student@urfu.me", nil},
		{"someone@gmail.com", identity.ErrEmailDomain},
		{"urfu.me", identity.ErrEmailDomain},
		{"other@urfu.me.evil.com", identity.ErrEmailDomain},
	}
	for _, c := range cases {
		_, _, err := svc.Register(ctx, c.email, "pw123456", "pw123456")
		if !errors.Is(err, c.want) {
			t.Errorf("Register(%q): expected %v, got %v", c.email, c.want, err)
		}
	}
}

func TestRegister_PasswordMismatchAndDuplicate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "a@urfu.me", "one", "two"); !errors.Is(err, identity.ErrPasswordMismatch) {
		t.Errorf("expected ErrPasswordMismatch, got %v", err)
	}

	if _, _, err := svc.Register(ctx, "a@urfu.me", "pw", "pw"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, _, err := svc.Register(ctx, "a@urfu.me", "pw", "pw"); !errors.Is(err, identity.ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
	// Email comparison is case-insensitive.
	if _, _, err := svc.Register(ctx, "A@URFU.ME", "pw", "pw"); !errors.Is(err, identity.ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken for uppercase duplicate, got %v", err)
	}
}

func TestLogin_SameErrorForUnknownAndWrongPassword(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "a@urfu.me", "correct", "correct"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, errUnknown := svc.Login(ctx, "nobody@urfu.me", "whatever")
	_, errWrong := svc.Login(ctx, "a@urfu.me", "incorrect")

	if !errors.Is(errUnknown, identity.ErrInvalidCredentials) {
		t.Errorf("unknown user: expected ErrInvalidCredentials, got %v", errUnknown)
	}
	if !errors.Is(errWrong, identity.ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", errWrong)
	}

	pair, err := svc.Login(ctx, "a@urfu.me", "correct")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Error("expected both tokens to be issued")
	}
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "a@urfu.me", "pw", "pw"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	pair, err := svc.Login(ctx, "a@urfu.me", "pw")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := svc.Refresh(ctx, pair.AccessToken); !errors.Is(err, identity.ErrWrongTokenKind) {
		t.Errorf("expected ErrWrongTokenKind, got %v", err)
	}

	fresh, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if fresh.AccessToken == "" || fresh.RefreshToken == "" {
		t.Error("expected a fresh token pair")
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, "a@urfu.me", "pw", "pw")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	pair, err := svc.Login(ctx, "a@urfu.me", "pw")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	got, err := svc.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if got.ID != user.ID || got.Email != "a@urfu.me" {
		t.Errorf("unexpected user: %+v", got)
	}

	if _, err := svc.Authenticate(ctx, pair.RefreshToken); !errors.Is(err, identity.ErrWrongTokenKind) {
		t.Errorf("expected ErrWrongTokenKind for refresh token, got %v", err)
	}
}

func TestGetUser(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, _, err := svc.Register(ctx, "a@urfu.me", "pw", "pw")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, err := svc.GetUser(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.ID != created.ID || got.Email != "a@urfu.me" {
		t.Errorf("unexpected user: %+v", got)
	}

	if _, err := svc.GetUser(ctx, 999); !errors.Is(err, identity.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRegister_IssuesTokenPair(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	user, pair, err := svc.Register(ctx, "a@urfu.me", "pw", "pw")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected a token pair on registration")
	}

	got, err := svc.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("access token resolves to user %d, want %d", got.ID, user.ID)
	}

	if _, err := svc.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Errorf("refresh token from registration should work, got %v", err)
	}
}
