package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Mihendy/pp-2025/internal/logutil"
	"github.com/Mihendy/pp-2025/internal/store"
)

// Service implements registration, login and token refresh on top of
// a user store.
type Service struct {
	users       store.UserStore
	auth        *UserAuth
	tokens      *TokenIssuer
	emailDomain string
	logger      *slog.Logger
}

// NewService creates an identity service.
// emailDomain is the required email suffix, e.g. "@urfu.me".
func NewService(users store.UserStore, auth *UserAuth, tokens *TokenIssuer, emailDomain string, logger *slog.Logger) *Service {
	return &Service{
		users:       users,
		auth:        auth,
		tokens:      tokens,
		emailDomain: emailDomain,
		logger:      logutil.NoopIfNil(logger),
	}
}

// Register creates a new account and issues its first token pair, so
// a fresh registration is already logged in. The email must carry the
// configured domain suffix and both password fields must match.
func (s *Service) Register(ctx context.Context, email, password, passwordConfirm string) (*store.User, *TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	if !strings.HasSuffix(email, s.emailDomain) {
		return nil, nil, ErrEmailDomain
	}
	if password != passwordConfirm {
		return nil, nil, ErrPasswordMismatch
	}

	hash, err := s.auth.HashPassword(password)
	if err != nil {
		return nil, nil, err
	}

	user := &store.User{Email: email, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, err
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return user, pair, nil
}

// Login verifies credentials and issues a token pair. Unknown email and
// wrong password both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := s.auth.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	return s.tokens.IssuePair(user.ID)
}

// Refresh exchanges a valid refresh token for a fresh pair.
// Access tokens are rejected with ErrWrongTokenKind.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	userID, err := s.tokens.Verify(refreshToken, KindRefresh)
	if err != nil {
		return nil, err
	}

	// The account may have disappeared since the token was issued.
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return s.tokens.IssuePair(userID)
}

// GetUser returns an account by id.
func (s *Service) GetUser(ctx context.Context, id uint) (*store.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// Authenticate verifies an access token and loads the account it
// belongs to.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*store.User, error) {
	userID, err := s.tokens.Verify(accessToken, KindAccess)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}
