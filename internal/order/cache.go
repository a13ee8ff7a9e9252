package order

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/MikeMC777/bikerhub/internal/redisx"
)

// StatusCache keeps the latest status of recently touched orders.
type StatusCache interface {
	GetStatus(ctx context.Context, orderID string) (Status, bool, error)
	SetStatus(ctx context.Context, orderID string, s Status) error
}

// Idempotency maps a client supplied Idempotency-Key to the order it created.
// Reserve claims a free key. For a taken key it returns the stored order id,
// which is empty while the request holding the key has not finished.
type Idempotency interface {
	Reserve(ctx context.Context, customerID, key string) (orderID string, reserved bool, err error)
	Remember(ctx context.Context, customerID, key, orderID string) error
	Release(ctx context.Context, customerID, key string) error
}

// idemPending marks a reserved key whose order is not created yet.
const idemPending = "-"

type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) GetStatus(ctx context.Context, orderID string) (Status, bool, error) {
	v, err := s.client.Get(ctx, redisx.Key(s.prefix, redisx.KeyOrderStatus, orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return Status(v), true, nil
}

func (s *RedisStore) SetStatus(ctx context.Context, orderID string, st Status) error {
	return s.client.Set(ctx, redisx.Key(s.prefix, redisx.KeyOrderStatus, orderID), string(st), redisx.TTLStatusCache).Err()
}

func (s *RedisStore) Reserve(ctx context.Context, customerID, key string) (string, bool, error) {
	k := redisx.Key(s.prefix, redisx.KeyIdemOrderCreate, customerID, key)
	for range 2 {
		ok, err := s.client.SetNX(ctx, k, idemPending, redisx.TTLIdempotency).Result()
		if err != nil {
			return "", false, err
		}
		if ok {
			return "", true, nil
		}
		v, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return "", false, err
		}
		if v == idemPending {
			v = ""
		}
		return v, false, nil
	}
	return "", false, nil
}

func (s *RedisStore) Remember(ctx context.Context, customerID, key, orderID string) error {
	return s.client.Set(ctx, redisx.Key(s.prefix, redisx.KeyIdemOrderCreate, customerID, key), orderID, redisx.TTLIdempotency).Err()
}

func (s *RedisStore) Release(ctx context.Context, customerID, key string) error {
	return s.client.Del(ctx, redisx.Key(s.prefix, redisx.KeyIdemOrderCreate, customerID, key)).Err()
}

// MemoryStore is the single process fallback used when redis is disabled.
type MemoryStore struct {
	mu       sync.Mutex
	statuses map[string]Status
	keys     map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{statuses: map[string]Status{}, keys: map[string]string{}}
}

func (m *MemoryStore) GetStatus(_ context.Context, orderID string) (Status, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[orderID]
	return s, ok, nil
}

func (m *MemoryStore) SetStatus(_ context.Context, orderID string, s Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[orderID] = s
	return nil
}

func (m *MemoryStore) Reserve(_ context.Context, customerID, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keys[customerID+":"+key]
	if !ok {
		m.keys[customerID+":"+key] = idemPending
		return "", true, nil
	}
	if id == idemPending {
		id = ""
	}
	return id, false, nil
}

func (m *MemoryStore) Remember(_ context.Context, customerID, key, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[customerID+":"+key] = orderID
	return nil
}

func (m *MemoryStore) Release(_ context.Context, customerID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, customerID+":"+key)
	return nil
}
