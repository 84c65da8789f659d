package quotes

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"stocks-trader/database"
	"stocks-trader/models"
)

func newTestStore(t *testing.T) *database.GormStore {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "quotes.db"), logger.Silent)
	require.NoError(t, err)
	s, err := database.NewGormStore(db, database.RetryPolicy{MaxRetries: 0})
	require.NoError(t, err)
	return s
}

func TestCache_UpsertKeepsName(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(newTestStore(t), nil, 0)

	created, err := cache.Upsert(ctx, "sh.601398", Update{Price: d("7.16"), Change: d("-0.28")})
	require.NoError(t, err)
	assert.Equal(t, "sh.601398", created.Name, "unknown code without name is named after its code")

	_, err = cache.Upsert(ctx, "sh.601398", Update{Name: "工商银行", Price: d("7.16"), Change: d("-0.28")})
	require.NoError(t, err)

	updated, err := cache.Upsert(ctx, "sh.601398", Update{Price: d("7.20"), Change: d("0.28")})
	require.NoError(t, err)
	assert.Equal(t, "工商银行", updated.Name)
	assert.True(t, updated.Price.Equal(d("7.20")))
}

func TestCache_Patch(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(newTestStore(t), nil, 0)
	_, err := cache.Upsert(ctx, "sz.000002", Update{Name: "万科A", Price: d("6.85"), Change: d("-1.15")})
	require.NoError(t, err)

	price := d("7.00")
	got, err := cache.Patch(ctx, "sz.000002", Fields{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, "万科A", got.Name)
	assert.True(t, got.Change.Equal(d("-1.15")))
	assert.True(t, got.Price.Equal(price))

	negative := d("-1")
	_, err = cache.Patch(ctx, "sz.000002", Fields{Price: &negative})
	assert.ErrorIs(t, err, database.ErrInvalidDocument)
}

func TestCache_Search(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(newTestStore(t), nil, 0)
	for _, inst := range database.SeedInstruments {
		_, err := cache.Upsert(ctx, inst.Code, Update{Name: inst.Name, Price: inst.Price, Change: inst.Change})
		require.NoError(t, err)
	}

	got := cache.Search(ctx, "SZ.")
	require.Len(t, got, 2)
	assert.Equal(t, "sz.000001", got[0].Code)

	got = cache.Search(ctx, "银行")
	assert.Len(t, got, 3)
}

func TestCache_RedisMirror(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(newTestStore(t), rdb, time.Minute)

	_, err := cache.Upsert(ctx, "sh.600000", Update{Name: "浦发银行", Price: d("11.71"), Change: d("0.43")})
	require.NoError(t, err)
	assert.True(t, mr.Exists("stock:sh.600000:quote"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("stock:sh.600000:quote"))

	got, err := cache.Get(ctx, "sh.600000")
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(d("11.71")))
	assert.True(t, mr.Exists("stock:sh.600000:quote"), "read repopulates the mirror")

	mirrored, err := cache.Get(ctx, "sh.600000")
	require.NoError(t, err)
	assert.Equal(t, "sh.600000", mirrored.Code)
	assert.Equal(t, "浦发银行", mirrored.Name)
}

func TestCache_MirrorFailureRejectsWrite(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := newTestStore(t)
	cache := NewCache(store, rdb, time.Minute)

	_, err := cache.Upsert(ctx, "sh.600000", Update{Name: "浦发银行", Price: d("11.71"), Change: d("0.43")})
	require.NoError(t, err)

	mr.SetError("transient")
	_, err = cache.Upsert(ctx, "sh.600000", Update{Price: d("12.00"), Change: d("2.48")})
	require.Error(t, err)
	mr.SetError("")

	var stored models.Instrument
	require.NoError(t, store.Get(ctx, database.Instruments, "sh.600000", &stored))
	got, err := cache.Get(ctx, "sh.600000")
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(stored.Price), "mirror %s, store %s", got.Price, stored.Price)
	assert.True(t, got.Price.Equal(d("11.71")))

	_, err = cache.Upsert(ctx, "sh.600000", Update{Price: d("12.00"), Change: d("2.48")})
	require.NoError(t, err)
	got, err = cache.Get(ctx, "sh.600000")
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(d("12.00")))
}

func TestCache_ConcurrentUpsertsDifferentInstruments(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(newTestStore(t), nil, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := fmt.Sprintf("sh.60000%d", i)
			for j := 1; j <= 5; j++ {
				_, err := cache.Upsert(ctx, code, Update{Price: d(fmt.Sprint(j)), Change: d("0")})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	all := cache.GetAll(ctx)
	require.Len(t, all, 8)
	for _, inst := range all {
		assert.True(t, inst.Price.Equal(d("5")))
	}
}
