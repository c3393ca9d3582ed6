// Package auth issues and revokes session credentials. Credentials are
// HS256 JWTs bound to a session id; revocation is tracked by session so
// a displaced device loses access the moment a restore is approved.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrCredentialRevoked is returned when a verified token belongs to a
// revoked session.
var ErrCredentialRevoked = errors.New("credential revoked")

// RevocationStore remembers revoked session ids.
type RevocationStore interface {
	Revoke(ctx context.Context, sessionID string) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// Issuer implements the credential collaborator over signed JWTs.
type Issuer struct {
	secret  []byte
	ttl     time.Duration
	revoked RevocationStore
	now     func() time.Time
}

func NewIssuer(secret string, ttl time.Duration, revoked RevocationStore) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, revoked: revoked, now: time.Now}
}

// WithClock is test-only for deterministic timestamps.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Claims map[string]string `json:"claims,omitempty"`
}

// Issue signs a credential for a session.
func (i *Issuer) Issue(_ context.Context, sessionID string, claims map[string]string) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Claims: claims,
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return signed, nil
}

// Revoke invalidates every credential bound to a session.
func (i *Issuer) Revoke(ctx context.Context, sessionID string) error {
	return i.revoked.Revoke(ctx, sessionID)
}

// Verify parses a credential and returns its session id and claims.
func (i *Issuer) Verify(ctx context.Context, credential string) (string, map[string]string, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(credential, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return "", nil, err
	}
	revoked, err := i.revoked.IsRevoked(ctx, claims.Subject)
	if err != nil {
		return "", nil, err
	}
	if revoked {
		return "", nil, ErrCredentialRevoked
	}
	return claims.Subject, claims.Claims, nil
}

// MemoryRevocations is an in-memory RevocationStore for tests and
// single-node deployments.
type MemoryRevocations struct {
	mu      sync.RWMutex
	revoked map[string]struct{}
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{revoked: make(map[string]struct{})}
}

func (m *MemoryRevocations) Revoke(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[sessionID] = struct{}{}
	return nil
}

func (m *MemoryRevocations) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.revoked[sessionID]
	return ok, nil
}
