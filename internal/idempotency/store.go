package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wichananm65/homemeal-backend/internal/cart"
)

var ErrMiss = errors.New("idempotency key not found")

// Bucket is the window during which an identical checkout reuses its intent.
const Bucket = 10 * time.Minute

// IntentKey derives the key for a payment intent from everything that
// determines its amount. The same cart, address and customer inside one
// bucket map to the same key.
func IntentKey(customerID int, lines []cart.Line, address string, at time.Time) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, strconv.Itoa(l.MealID)+"@"+l.Price.String())
	}
	sort.Strings(parts)

	h := sha256.New()
	fmt.Fprintf(h, "%d\n%s\n%s\n%d", customerID, strings.Join(parts, ","),
		strings.ToLower(strings.TrimSpace(address)), at.UTC().Truncate(Bucket).Unix())
	return hex.EncodeToString(h.Sum(nil))
}

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func redisKey(key string) string {
	return "idem:intent:" + key
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return b, nil
}

// Put stores value unless the key is already taken. It reports whether
// this call stored it.
func (s *Store) Put(ctx context.Context, key string, value []byte) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, redisKey(key), value, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// MemoryStore is used in tests and when Redis is not configured. Entries
// expire after ttl like their Redis counterparts.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	data map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 2 * Bucket
	}
	return &MemoryStore{ttl: ttl, now: time.Now, data: map[string]memoryEntry{}}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok || !m.now().Before(e.expiresAt) {
		return nil, ErrMiss
	}
	return e.value, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = memoryEntry{value: value, expiresAt: now.Add(m.ttl)}
	return true, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// sweep drops expired entries. Callers hold mu.
func (m *MemoryStore) sweep(now time.Time) {
	for k, e := range m.data {
		if !now.Before(e.expiresAt) {
			delete(m.data, k)
		}
	}
}
