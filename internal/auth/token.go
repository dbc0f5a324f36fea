// ABOUTME: Access-credential collaborator: JWT minting, persistence, and verification
// ABOUTME: FindOrCreateToken reuses a live persisted token or mints a new HS256 JWT

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/argon/internal/platform"
	"github.com/2389/argon/internal/principal"
	"github.com/2389/argon/internal/store"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// TokenService mints and verifies access tokens for principals. Tokens are
// HS256 JWTs with the principal id as subject, persisted so repeated
// find-or-create calls return the same credential while it is live.
type TokenService struct {
	store  store.TokenStore
	secret []byte
	ttl    time.Duration
	logger *slog.Logger
}

// NewTokenService creates a token service with the given signing secret and
// token lifetime.
func NewTokenService(s store.TokenStore, secret []byte, ttl time.Duration) *TokenService {
	return &TokenService{
		store:  s,
		secret: secret,
		ttl:    ttl,
		logger: slog.Default().With("component", "auth"),
	}
}

// FindOrCreateToken returns a live persisted token for the principal, minting
// and persisting a new one when none exists.
func (s *TokenService) FindOrCreateToken(ctx context.Context, p *principal.Principal) (*store.AccessToken, error) {
	now := time.Now().UTC()

	existing, err := s.store.GetLiveToken(ctx, p.ID, now)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, platform.ErrNotFound) {
		return nil, fmt.Errorf("looking up token for %s: %w", p.ID, err)
	}

	expiresAt := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   string(p.ID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("signing token for %s: %w", p.ID, err)
	}

	token := &store.AccessToken{
		PrincipalID: p.ID,
		Token:       signed,
		ExpiresAt:   expiresAt,
	}
	if err := s.store.InsertToken(ctx, token); err != nil {
		return nil, fmt.Errorf("persisting token for %s: %w", p.ID, err)
	}

	s.logger.Debug("access token minted", "principal", p.ID, "expires_at", expiresAt)
	return token, nil
}

// Verify validates a token string and extracts the principal id from the
// "sub" claim.
func (s *TokenService) Verify(tokenString string) (principal.ID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", ErrInvalidToken
	}

	return principal.ID(subject), nil
}

// CleanupExpired deletes persisted tokens whose expiry has passed.
func (s *TokenService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredTokens(ctx, time.Now().UTC())
}
