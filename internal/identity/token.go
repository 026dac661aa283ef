package identity

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// Token kinds. A refresh token can only be exchanged for a new pair;
// an access token authenticates API requests.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// TokenPair is an access/refresh token pair issued on login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// tokenClaims is the JWT payload. Subject carries the user id.
type tokenClaims struct {
	jwt.Claims
	Kind string `json:"kind"`
}

// TokenIssuer signs and verifies HS256 JWTs.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer creates a token issuer with the given HMAC secret and TTLs.
func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// IssuePair creates a fresh access/refresh pair for the user.
func (t *TokenIssuer) IssuePair(userID uint) (*TokenPair, error) {
	access, err := t.sign(userID, KindAccess, t.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := t.sign(userID, KindRefresh, t.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	}, nil
}

func (t *TokenIssuer) sign(userID uint, kind string, ttl time.Duration) (string, error) {
	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: t.secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	now := t.now()
	claims := tokenClaims{
		Claims: jwt.Claims{
			Subject:  strconv.FormatUint(uint64(userID), 10),
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind: kind,
	}

	return jwt.Signed(sig).Claims(claims).Serialize()
}

// Verify parses a token, checks its signature and expiry, and requires
// the given kind. It returns the user id the token was issued for.
func (t *TokenIssuer) Verify(raw, kind string) (uint, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return 0, ErrInvalidToken
	}

	var claims tokenClaims
	if err := tok.Claims(t.secret, &claims); err != nil {
		return 0, ErrInvalidToken
	}

	if err := claims.Validate(jwt.Expected{Time: t.now()}); err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return 0, ErrTokenExpired
		}
		return 0, ErrInvalidToken
	}

	if claims.Kind != kind {
		return 0, ErrWrongTokenKind
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return uint(userID), nil
}
