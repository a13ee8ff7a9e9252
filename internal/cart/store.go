package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/MikeMC777/bikerhub/internal/redisx"
)

type Store interface {
	Lines(ctx context.Context, userID string) ([]Line, error)
	Line(ctx context.Context, userID, productID string) (*Line, error)
	Save(ctx context.Context, userID string, l Line) error
	Remove(ctx context.Context, userID, productID string) (bool, error)
	Clear(ctx context.Context, userID string) error

	// AddWish and RemoveWish report whether the wishlist changed.
	AddWish(ctx context.Context, userID, productID string) (bool, error)
	RemoveWish(ctx context.Context, userID, productID string) (bool, error)
	Wishlist(ctx context.Context, userID string) ([]string, error)
}

// RedisStore keeps a cart as a hash of product id to JSON line and the
// wishlist as a set, both expiring after a month of inactivity.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) cartKey(userID string) string {
	return redisx.Key(s.prefix, redisx.KeyCart, userID)
}

func (s *RedisStore) wishKey(userID string) string {
	return redisx.Key(s.prefix, redisx.KeyWishlist, userID)
}

func (s *RedisStore) Lines(ctx context.Context, userID string) ([]Line, error) {
	raw, err := s.client.HGetAll(ctx, s.cartKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Line, 0, len(raw))
	for pid, v := range raw {
		var l Line
		if err := json.Unmarshal([]byte(v), &l); err != nil {
			return nil, fmt.Errorf("decode cart line %s: %w", pid, err)
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *RedisStore) Line(ctx context.Context, userID, productID string) (*Line, error) {
	v, err := s.client.HGet(ctx, s.cartKey(userID), productID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var l Line
	if err := json.Unmarshal([]byte(v), &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *RedisStore) Save(ctx context.Context, userID string, l Line) error {
	b, err := json.Marshal(l)
	if err != nil {
		return err
	}
	key := s.cartKey(userID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, l.ProductID, b)
	pipe.Expire(ctx, key, redisx.TTLCart)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Remove(ctx context.Context, userID, productID string) (bool, error) {
	n, err := s.client.HDel(ctx, s.cartKey(userID), productID).Result()
	return n > 0, err
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	return s.client.Del(ctx, s.cartKey(userID)).Err()
}

func (s *RedisStore) AddWish(ctx context.Context, userID, productID string) (bool, error) {
	key := s.wishKey(userID)
	pipe := s.client.TxPipeline()
	added := pipe.SAdd(ctx, key, productID)
	pipe.Expire(ctx, key, redisx.TTLCart)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return added.Val() == 1, nil
}

func (s *RedisStore) RemoveWish(ctx context.Context, userID, productID string) (bool, error) {
	n, err := s.client.SRem(ctx, s.wishKey(userID), productID).Result()
	return n == 1, err
}

func (s *RedisStore) Wishlist(ctx context.Context, userID string) ([]string, error) {
	return s.client.SMembers(ctx, s.wishKey(userID)).Result()
}

// MemoryStore is the fallback when redis is disabled.
type MemoryStore struct {
	mu     sync.Mutex
	carts  map[string]map[string]Line
	wishes map[string]map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: map[string]map[string]Line{}, wishes: map[string]map[string]bool{}}
}

func (m *MemoryStore) Lines(_ context.Context, userID string) ([]Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Line, 0, len(m.carts[userID]))
	for _, l := range m.carts[userID] {
		out = append(out, l)
	}
	return out, nil
}

func (m *MemoryStore) Line(_ context.Context, userID, productID string) (*Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.carts[userID][productID]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (m *MemoryStore) Save(_ context.Context, userID string, l Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.carts[userID] == nil {
		m.carts[userID] = map[string]Line{}
	}
	m.carts[userID][l.ProductID] = l
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, userID, productID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.carts[userID][productID]
	delete(m.carts[userID], productID)
	return ok, nil
}

func (m *MemoryStore) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	return nil
}

func (m *MemoryStore) AddWish(_ context.Context, userID, productID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wishes[userID] == nil {
		m.wishes[userID] = map[string]bool{}
	}
	if m.wishes[userID][productID] {
		return false, nil
	}
	m.wishes[userID][productID] = true
	return true, nil
}

func (m *MemoryStore) RemoveWish(_ context.Context, userID, productID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.wishes[userID][productID] {
		return false, nil
	}
	delete(m.wishes[userID], productID)
	return true, nil
}

func (m *MemoryStore) Wishlist(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.wishes[userID]))
	for id := range m.wishes[userID] {
		out = append(out, id)
	}
	return out, nil
}
