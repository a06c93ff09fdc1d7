package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/tutorlink/internal/model"
)

type fakeSource struct {
	profiles map[string]model.Profile
	calls    [][]string
	err      error
}

func (f *fakeSource) FetchProfiles(_ context.Context, ids []string) (map[string]model.Profile, error) {
	f.calls = append(f.calls, append([]string(nil), ids...))
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]model.Profile{}
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestProfileCache_ReadThroughAndWriteBack(t *testing.T) {
	mr, rdb := setupRedis(t)
	src := &fakeSource{profiles: map[string]model.Profile{
		"u1": {UID: "u1", DisplayName: "One"},
		"u2": {UID: "u2", DisplayName: "Two"},
	}}
	c := NewProfileCache(src, rdb, time.Minute)
	ctx := context.Background()

	got, err := c.FetchProfiles(ctx, []string{"u1", "u2", "ghost"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, [][]string{{"u1", "u2", "ghost"}}, src.calls)
	assert.True(t, mr.Exists("profile:u1"))
	assert.False(t, mr.Exists("profile:ghost"), "absent profiles are not cached")

	ttl := mr.TTL("profile:u2")
	assert.Equal(t, time.Minute, ttl)

	got, err = c.FetchProfiles(ctx, []string{"u1", "u2", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, "Two", got["u2"].DisplayName)
	require.Len(t, src.calls, 2)
	assert.Equal(t, []string{"ghost"}, src.calls[1], "only misses reach the source")

	counters := c.Counters()
	assert.EqualValues(t, 2, counters.Hits)
	assert.EqualValues(t, 4, counters.Misses)
	assert.EqualValues(t, 2, counters.SourceLoads)
}

func TestProfileCache_ExpiryAndInvalidate(t *testing.T) {
	mr, rdb := setupRedis(t)
	src := &fakeSource{profiles: map[string]model.Profile{"u1": {UID: "u1"}}}
	c := NewProfileCache(src, rdb, time.Minute)
	ctx := context.Background()

	_, err := c.FetchProfiles(ctx, []string{"u1"})
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = c.FetchProfiles(ctx, []string{"u1"})
	require.NoError(t, err)
	assert.Len(t, src.calls, 2)

	require.NoError(t, c.Invalidate(ctx, "u1"))
	assert.False(t, mr.Exists("profile:u1"))
}

func TestProfileCache_RedisDownFallsBackToSource(t *testing.T) {
	mr, rdb := setupRedis(t)
	src := &fakeSource{profiles: map[string]model.Profile{"u1": {UID: "u1", DisplayName: "One"}}}
	c := NewProfileCache(src, rdb, time.Minute)
	mr.Close()

	got, err := c.FetchProfiles(context.Background(), []string{"u1"})
	require.NoError(t, err)
	assert.Equal(t, "One", got["u1"].DisplayName)
}

func TestProfileCache_SourceErrorPropagates(t *testing.T) {
	_, rdb := setupRedis(t)
	boom := errors.New("boom")
	c := NewProfileCache(&fakeSource{err: boom}, rdb, time.Minute)

	_, err := c.FetchProfiles(context.Background(), []string{"u1"})
	assert.ErrorIs(t, err, boom)
}
