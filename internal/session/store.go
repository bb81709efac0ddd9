// Package session хранит корзины кассовых сессий между запросами.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/storybook-pos/internal/cart"
)

// ErrNotFound возвращается, если сессия не открыта или истекла.
var ErrNotFound = errors.New("session not found")

// Store описывает хранилище состояний корзин.
type Store interface {
	Load(ctx context.Context, id string) (cart.State, error)
	Save(ctx context.Context, id string, state cart.State) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	state     cart.State
	expiresAt time.Time
}

// MemoryStore хранит сессии в памяти процесса.
// Истёкшие сессии вычищаются при сохранении не реже раза за ttl, даже если их никто не читает.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryStore создаёт хранилище в памяти. Нулевой ttl отключает истечение сессий.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Load возвращает состояние корзины сессии.
func (s *MemoryStore) Load(_ context.Context, id string) (cart.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return cart.State{}, ErrNotFound
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		delete(s.entries, id)
		return cart.State{}, ErrNotFound
	}
	return cart.FromState(e.state).State(), nil
}

// Save сохраняет состояние корзины и продлевает срок жизни сессии.
func (s *MemoryStore) Save(_ context.Context, id string, state cart.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expiresAt time.Time
	if s.ttl > 0 {
		expiresAt = now.Add(s.ttl)
		if now.Sub(s.lastSweep) >= s.ttl {
			s.sweep(now)
		}
	}
	s.entries[id] = memoryEntry{state: cart.FromState(state).State(), expiresAt: expiresAt}
	return nil
}

// sweep удаляет истёкшие сессии. Вызывается под s.mu.
func (s *MemoryStore) sweep(now time.Time) {
	for id, e := range s.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.entries, id)
		}
	}
	s.lastSweep = now
}

// Delete удаляет сессию.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
	return nil
}

// RedisStore хранит сессии в Redis в виде JSON.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore создаёт хранилище сессий поверх клиента Redis.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		prefix: "pos:cart:",
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Load возвращает состояние корзины сессии.
func (s *RedisStore) Load(ctx context.Context, id string) (cart.State, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cart.State{}, ErrNotFound
		}
		return cart.State{}, fmt.Errorf("get session: %w", err)
	}

	var state cart.State
	if err := json.Unmarshal(data, &state); err != nil {
		return cart.State{}, fmt.Errorf("decode session: %w", err)
	}
	return state, nil
}

// Save сохраняет состояние корзины и продлевает срок жизни сессии.
func (s *RedisStore) Save(ctx context.Context, id string, state cart.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// Delete удаляет сессию.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
