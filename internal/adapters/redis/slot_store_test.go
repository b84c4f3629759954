package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peopleops/hrportal/internal/adapters/tokenstore"
	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/ports"
	"github.com/peopleops/hrportal/internal/testutil"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	return testutil.NewMiniRedis(t)
}

func TestSlotStore_SetGetClear(t *testing.T) {
	mr, client := setupMiniRedis(t)
	store := NewSlotStore(client, SlotStoreOptions{TTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, store.SetSlot(ctx, "sid-1", ports.SlotPrimary, "tok"))
	assert.Equal(t, "tok", mustGet(t, mr, "hrportal:slot:sid-1:token"))
	assert.Equal(t, time.Hour, mr.TTL("hrportal:slot:sid-1:token"))

	v, ok, err := store.GetSlot(ctx, "sid-1", ports.SlotPrimary)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", v)

	require.NoError(t, store.ClearSlot(ctx, "sid-1", ports.SlotPrimary))
	_, ok, err = store.GetSlot(ctx, "sid-1", ports.SlotPrimary)
	require.NoError(t, err)
	assert.False(t, ok)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestSlotStore_ExpiresWithTTL(t *testing.T) {
	mr, client := setupMiniRedis(t)
	store := NewSlotStore(client, SlotStoreOptions{Prefix: "t:", TTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, store.SetSlot(ctx, "sid", ports.SlotSSO, "sso"))
	mr.FastForward(2 * time.Minute)

	_, ok, err := store.GetSlot(ctx, "sid", ports.SlotSSO)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSlotStore_EmptySID(t *testing.T) {
	_, client := setupMiniRedis(t)
	store := NewSlotStore(client, SlotStoreOptions{})
	ctx := context.Background()

	_, ok, err := store.GetSlot(ctx, "", ports.SlotPrimary)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Error(t, store.SetSlot(ctx, "", ports.SlotPrimary, "x"))
	assert.NoError(t, store.ClearSlot(ctx, "", ports.SlotPrimary))
}

func TestSlotStore_AsTokenStore_SlotIndependence(t *testing.T) {
	_, client := setupMiniRedis(t)
	backend := NewSlotStore(client, SlotStoreOptions{})
	ctx := context.Background()

	primary := tokenstore.NewServer(backend, "sid-9", ports.SlotPrimary, nil)
	sso := tokenstore.NewServer(backend, "sid-9", ports.SlotSSO, nil)

	require.NoError(t, primary.Set(ctx, "p"))
	require.NoError(t, sso.Set(ctx, "s"))
	require.NoError(t, sso.Clear(ctx))

	got, ok := primary.Get(ctx)
	assert.True(t, ok)
	assert.Equal(t, domainauth.Credential("p"), got)
	_, ok = sso.Get(ctx)
	assert.False(t, ok)
}

func TestSlotStore_ConnectionErrorIsWrapped(t *testing.T) {
	mr, client := setupMiniRedis(t)
	store := NewSlotStore(client, SlotStoreOptions{})
	mr.Close()

	_, _, err := store.GetSlot(context.Background(), "sid", ports.SlotPrimary)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis get slot")
}
