package auth

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList answers whether an otherwise valid token was revoked by the
// identity service, either by JTI or by invalidating all of a user's tokens
type RevocationList interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	RevokeUser(ctx context.Context, userID string, ttl time.Duration) error
	IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
}

// CheckRevoked returns ErrTokenRevoked when the claims were revoked
func CheckRevoked(ctx context.Context, list RevocationList, claims *Claims) error {
	if list == nil {
		return nil
	}
	if claims.ID != "" {
		revoked, err := list.IsRevoked(ctx, claims.ID)
		if err != nil {
			return err
		}
		if revoked {
			return ErrTokenRevoked
		}
	}
	revoked, err := list.IsUserRevoked(ctx, claims.UserID, claims.IssuedAtTime())
	if err != nil {
		return err
	}
	if revoked {
		return ErrTokenRevoked
	}
	return nil
}

// RedisRevocationList stores revocations in Redis under a shared key prefix
type RedisRevocationList struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisRevocationList creates a revocation list on an existing client
func NewRedisRevocationList(client redis.Cmdable) *RedisRevocationList {
	return &RedisRevocationList{client: client, keyPrefix: "token:blacklist:"}
}

func (r *RedisRevocationList) jtiKey(jti string) string {
	return r.keyPrefix + "jti:" + jti
}

func (r *RedisRevocationList) userKey(userID string) string {
	return r.keyPrefix + "user:" + userID
}

// Revoke marks a JTI revoked for ttl
func (r *RedisRevocationList) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.jtiKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked checks the JTI
func (r *RedisRevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, r.jtiKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}

// RevokeUser invalidates every token issued to the user up to now
func (r *RedisRevocationList) RevokeUser(ctx context.Context, userID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.userKey(userID), time.Now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	return nil
}

// IsUserRevoked reports whether issuedAt is at or before the user's cutoff
func (r *RedisRevocationList) IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	raw, err := r.client.Get(ctx, r.userKey(userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user revocation: %w", err)
	}
	cutoff, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("failed to parse revocation timestamp: %w", err)
	}
	return issuedAt.Unix() <= cutoff, nil
}

var _ RevocationList = (*RedisRevocationList)(nil)

// MemoryRevocationList is a single-process revocation list
type MemoryRevocationList struct {
	mu    sync.Mutex
	jtis  map[string]time.Time
	users map[string]time.Time
	now   func() time.Time
}

// NewMemoryRevocationList creates an empty in-memory list
func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{
		jtis:  make(map[string]time.Time),
		users: make(map[string]time.Time),
		now:   time.Now,
	}
}

// Revoke marks a JTI revoked for ttl
func (m *MemoryRevocationList) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jtis[jti] = m.now().Add(ttl)
	return nil
}

// IsRevoked checks the JTI, dropping expired entries
func (m *MemoryRevocationList) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.jtis[jti]
	if !ok {
		return false, nil
	}
	if m.now().After(until) {
		delete(m.jtis, jti)
		return false, nil
	}
	return true, nil
}

// RevokeUser invalidates every token issued to the user up to now
func (m *MemoryRevocationList) RevokeUser(_ context.Context, userID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = m.now()
	return nil
}

// IsUserRevoked reports whether issuedAt is at or before the user's cutoff
func (m *MemoryRevocationList) IsUserRevoked(_ context.Context, userID string, issuedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff, ok := m.users[userID]
	if !ok {
		return false, nil
	}
	return !issuedAt.After(cutoff), nil
}

var _ RevocationList = (*MemoryRevocationList)(nil)
