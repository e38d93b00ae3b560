package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshValidator tracks which refresh tokens are currently valid for
// session confirmation. Registration happens on confirmed sign-in;
// rotation replaces the owner's token set.
type RefreshValidator interface {
	// Register makes token valid for owner until ttl elapses, replacing
	// any previously registered token for that owner.
	Register(ctx context.Context, owner, token string, ttl time.Duration) error
	// Validate returns the owner a token is registered for.
	Validate(ctx context.Context, token string) (owner string, ok bool, err error)
	// HasOwner reports whether the owner has any live registration.
	HasOwner(ctx context.Context, owner string) (bool, error)
	// Revoke invalidates one token.
	Revoke(ctx context.Context, token string) error
	// RevokeOwner invalidates everything registered for the owner.
	RevokeOwner(ctx context.Context, owner string) error
}

type refreshRecord struct {
	owner  string
	expiry time.Time
}

// MemoryRefreshValidator keeps refresh registrations in memory.
type MemoryRefreshValidator struct {
	mu     sync.Mutex
	tokens map[string]refreshRecord // token hash -> record
	owners map[string]string        // owner -> current token hash
}

// NewMemoryRefreshValidator constructs an in-memory validator.
func NewMemoryRefreshValidator() *MemoryRefreshValidator {
	return &MemoryRefreshValidator{
		tokens: make(map[string]refreshRecord),
		owners: make(map[string]string),
	}
}

// Register makes token the owner's single live registration.
func (v *MemoryRefreshValidator) Register(_ context.Context, owner, token string, ttl time.Duration) error {
	hash := refreshHash(token)
	v.mu.Lock()
	defer v.mu.Unlock()
	if prev, ok := v.owners[owner]; ok {
		delete(v.tokens, prev)
	}
	v.tokens[hash] = refreshRecord{owner: owner, expiry: time.Now().UTC().Add(ttl)}
	v.owners[owner] = hash
	return nil
}

// Validate resolves a token to its owner.
func (v *MemoryRefreshValidator) Validate(_ context.Context, token string) (string, bool, error) {
	hash := refreshHash(token)
	v.mu.Lock()
	defer v.mu.Unlock()
	rec, ok := v.tokens[hash]
	if !ok {
		return "", false, nil
	}
	if time.Now().UTC().After(rec.expiry) {
		delete(v.tokens, hash)
		if v.owners[rec.owner] == hash {
			delete(v.owners, rec.owner)
		}
		return "", false, nil
	}
	return rec.owner, true, nil
}

// HasOwner reports whether the owner holds a live registration.
func (v *MemoryRefreshValidator) HasOwner(_ context.Context, owner string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	hash, ok := v.owners[owner]
	if !ok {
		return false, nil
	}
	rec, ok := v.tokens[hash]
	if !ok || time.Now().UTC().After(rec.expiry) {
		delete(v.tokens, hash)
		delete(v.owners, owner)
		return false, nil
	}
	return true, nil
}

// Revoke invalidates one token.
func (v *MemoryRefreshValidator) Revoke(_ context.Context, token string) error {
	hash := refreshHash(token)
	v.mu.Lock()
	defer v.mu.Unlock()
	if rec, ok := v.tokens[hash]; ok {
		delete(v.tokens, hash)
		if v.owners[rec.owner] == hash {
			delete(v.owners, rec.owner)
		}
	}
	return nil
}

// RevokeOwner invalidates the owner's registration.
func (v *MemoryRefreshValidator) RevokeOwner(_ context.Context, owner string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if hash, ok := v.owners[owner]; ok {
		delete(v.tokens, hash)
		delete(v.owners, owner)
	}
	return nil
}

// RedisRefreshValidator stores refresh registrations in Redis with TTLs.
type RedisRefreshValidator struct {
	client *redis.Client
}

// NewRedisRefreshValidator builds a Redis-backed validator.
func NewRedisRefreshValidator(addr, password string) *RedisRefreshValidator {
	return &RedisRefreshValidator{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

// Register makes token the owner's single live registration.
func (v *RedisRefreshValidator) Register(ctx context.Context, owner, token string, ttl time.Duration) error {
	hash := refreshHash(token)
	prev, err := v.client.Get(ctx, refreshOwnerKey(owner)).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	pipe := v.client.TxPipeline()
	if prev != "" && prev != hash {
		pipe.Del(ctx, refreshTokenKey(prev))
	}
	pipe.Set(ctx, refreshTokenKey(hash), owner, ttl)
	pipe.Set(ctx, refreshOwnerKey(owner), hash, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Validate resolves a token to its owner.
func (v *RedisRefreshValidator) Validate(ctx context.Context, token string) (string, bool, error) {
	owner, err := v.client.Get(ctx, refreshTokenKey(refreshHash(token))).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return owner, true, nil
}

// HasOwner reports whether the owner holds a live registration.
func (v *RedisRefreshValidator) HasOwner(ctx context.Context, owner string) (bool, error) {
	_, err := v.client.Get(ctx, refreshOwnerKey(owner)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Revoke invalidates one token.
func (v *RedisRefreshValidator) Revoke(ctx context.Context, token string) error {
	hash := refreshHash(token)
	owner, err := v.client.Get(ctx, refreshTokenKey(hash)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := v.client.TxPipeline()
	pipe.Del(ctx, refreshTokenKey(hash))
	pipe.Del(ctx, refreshOwnerKey(owner))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// RevokeOwner invalidates the owner's registration.
func (v *RedisRefreshValidator) RevokeOwner(ctx context.Context, owner string) error {
	hash, err := v.client.Get(ctx, refreshOwnerKey(owner)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := v.client.TxPipeline()
	pipe.Del(ctx, refreshTokenKey(hash))
	pipe.Del(ctx, refreshOwnerKey(owner))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

func refreshHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func refreshTokenKey(hash string) string {
	return fmt.Sprintf("bookmart:refresh:token:%s", hash)
}

func refreshOwnerKey(owner string) string {
	return fmt.Sprintf("bookmart:refresh:owner:%s", owner)
}
