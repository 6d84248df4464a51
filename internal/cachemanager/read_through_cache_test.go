package cachemanager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type downloadInput struct {
	URL string
}

func newCountingCache(t *testing.T, skip bool, fail error) (*ReadThroughCache[string, string, downloadInput], *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	cache := NewInMemoryCacheManager[string, string]("audio", DefaultExpiration, DefaultCleanupInterval)
	rtc := NewReadThroughCache[string, string, downloadInput](
		cache,
		func(ctx context.Context, input downloadInput) (string, error) {
			calls.Add(1)
			if fail != nil {
				return "", fail
			}
			return "/cache/" + input.URL, nil
		},
		skip,
	)
	return rtc, &calls
}

func TestReadThroughCache_Get_FillsOnce(t *testing.T) {
	rtc, calls := newCountingCache(t, false, nil)

	for i := 0; i < 3; i++ {
		got, err := rtc.Get(context.Background(), "a.mp3", downloadInput{URL: "a.mp3"}, time.Minute)
		require.NoError(t, err)
		require.Equal(t, "/cache/a.mp3", got)
	}
	require.Equal(t, int32(1), calls.Load())
}

func TestReadThroughCache_Get_WithCacheDisabled(t *testing.T) {
	rtc, calls := newCountingCache(t, true, nil)

	for i := 0; i < 3; i++ {
		_, err := rtc.Get(context.Background(), "a.mp3", downloadInput{URL: "a.mp3"}, time.Minute)
		require.NoError(t, err)
	}
	require.Equal(t, int32(3), calls.Load())
}

func TestReadThroughCache_Get_ErrorNotCached(t *testing.T) {
	rtc, calls := newCountingCache(t, false, errors.New("404"))

	_, err := rtc.Get(context.Background(), "a.mp3", downloadInput{URL: "a.mp3"}, time.Minute)
	require.Error(t, err)
	_, err = rtc.Get(context.Background(), "a.mp3", downloadInput{URL: "a.mp3"}, time.Minute)
	require.Error(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestReadThroughCache_GetWithRefresh(t *testing.T) {
	rtc, calls := newCountingCache(t, false, nil)

	got, err := rtc.GetWithRefresh(context.Background(), "b.mp3", downloadInput{URL: "b.mp3"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, "/cache/b.mp3", got)

	got, err = rtc.GetWithRefresh(context.Background(), "b.mp3", downloadInput{URL: "b.mp3"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, "/cache/b.mp3", got)
	require.Equal(t, int32(1), calls.Load())
}

func TestReadThroughCache_ConcurrentMissesShareFill(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	cache := NewInMemoryCacheManager[string, string]("audio", DefaultExpiration, DefaultCleanupInterval)
	rtc := NewReadThroughCache[string, string, downloadInput](
		cache,
		func(ctx context.Context, input downloadInput) (string, error) {
			calls.Add(1)
			<-release
			return "/cache/" + input.URL, nil
		},
		false,
	)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := rtc.Get(context.Background(), "c.mp3", downloadInput{URL: "c.mp3"}, time.Minute)
			require.NoError(t, err)
			require.Equal(t, "/cache/c.mp3", got)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.LessOrEqual(t, calls.Load(), int32(2))
}
