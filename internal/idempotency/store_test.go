package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wichananm65/homemeal-backend/internal/cart"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStore_PutOnce(t *testing.T) {
	mr, client := setupRedis(t)
	s := NewStore(client, time.Hour)
	ctx := context.Background()

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	stored, err := s.Put(ctx, "k", []byte(`{"id":"order_1"}`))
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = s.Put(ctx, "k", []byte(`{"id":"order_2"}`))
	require.NoError(t, err)
	assert.False(t, stored)

	b, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"order_1"}`, string(b))

	mr.FastForward(2 * time.Hour)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestStore_Delete(t *testing.T) {
	_, client := setupRedis(t)
	s := NewStore(client, time.Hour)
	ctx := context.Background()

	_, err := s.Put(ctx, "k", []byte("v"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore(time.Hour)
	ctx := context.Background()
	ok, _ := m.Put(ctx, "k", []byte("a"))
	assert.True(t, ok)
	ok, _ = m.Put(ctx, "k", []byte("b"))
	assert.False(t, ok)
	b, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "a", string(b))
}

func TestMemoryStore_EntriesExpire(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemoryStore(20 * time.Minute)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := m.Put(ctx, "abandoned", []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(20 * time.Minute)
	_, err = m.Get(ctx, "abandoned")
	assert.ErrorIs(t, err, ErrMiss)

	// the expired key can be claimed again and is swept on the next write
	ok, err = m.Put(ctx, "abandoned", []byte("b"))
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = m.Put(ctx, "other", []byte("c"))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	now = now.Add(time.Hour)
	_, err = m.Put(ctx, "fresh", []byte("d"))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
}

func TestIntentKey(t *testing.T) {
	lines := []cart.Line{
		{MealID: 1, Price: decimal.NewFromInt(120)},
		{MealID: 2, Price: decimal.NewFromInt(80)},
	}
	swapped := []cart.Line{lines[1], lines[0]}
	at := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)

	k := IntentKey(7, lines, "12 MG Road", at)
	assert.Equal(t, k, IntentKey(7, swapped, " 12 mg road ", at.Add(5*time.Minute)))
	assert.NotEqual(t, k, IntentKey(8, lines, "12 MG Road", at))
	assert.NotEqual(t, k, IntentKey(7, lines[:1], "12 MG Road", at))
	assert.NotEqual(t, k, IntentKey(7, lines, "Other Road", at))
	assert.NotEqual(t, k, IntentKey(7, lines, "12 MG Road", at.Add(Bucket)))
}
