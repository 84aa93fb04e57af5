package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name  string
	Count int
}

func TestMemoryCacheCopiesValue(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute, time.Minute)

	v := item{Name: "root", Count: 1}
	require.NoError(t, c.Set(ctx, "k", v, time.Minute))
	v.Count = 99

	var got item
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, 1, got.Count)

	require.NoError(t, c.Delete(ctx, "k"))
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrMiss)
}

func TestMultiLevelFallsBackToRemote(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemoryCache(time.Minute, time.Minute)
	l2 := NewMemoryCache(time.Minute, time.Minute)
	m := NewMultiLevelCache(l1, l2, time.Second)

	require.NoError(t, l2.Set(ctx, "k", item{Name: "remote"}, time.Minute))

	var got item
	require.NoError(t, m.Get(ctx, "k", &got))
	assert.Equal(t, "remote", got.Name)
	// 回写 L1
	assert.Equal(t, 1, l1.ItemCount())
}

func TestGetOrLoadCoalesces(t *testing.T) {
	ctx := context.Background()
	c := NewMultiLevelCache(NewMemoryCache(time.Minute, time.Minute), nil, time.Minute)

	var calls int32
	release := make(chan struct{})
	load := func(ctx context.Context) (item, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return item{Name: "loaded"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := GetOrLoad(ctx, c, "combo", time.Minute, load)
			assert.NoError(t, err)
			assert.Equal(t, "loaded", v.Name)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(2))

	// 已写回缓存，不再回源
	_, err := GetOrLoad(ctx, c, "combo", time.Minute, func(ctx context.Context) (item, error) {
		return item{}, errors.New("should not load")
	})
	assert.NoError(t, err)
}
