package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoreboard/core"
)

const testKey = "game:leaderboard"

// newTestClient spins up a miniredis server and returns a client plus the server.
func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestStore_UpsertIfGreater(t *testing.T) {
	for _, strategy := range []Strategy{StrategyNative, StrategyCompare} {
		t.Run(string(strategy), func(t *testing.T) {
			client, mr := newTestClient(t)
			store := NewWithClient(client, testKey, strategy)
			ctx := context.Background()

			out, err := store.UpsertIfGreater(ctx, "alice", 10)
			require.NoError(t, err)
			assert.True(t, out.Updated)

			out, err = store.UpsertIfGreater(ctx, "alice", 5)
			require.NoError(t, err)
			assert.False(t, out.Updated)

			out, err = store.UpsertIfGreater(ctx, "alice", 10)
			require.NoError(t, err)
			assert.False(t, out.Updated, "equal score is not an improvement")

			stored, err := mr.ZScore(testKey, "alice")
			require.NoError(t, err)
			assert.Equal(t, float64(10), stored)

			out, err = store.UpsertIfGreater(ctx, "alice", 12.5)
			require.NoError(t, err)
			assert.True(t, out.Updated)

			stored, err = mr.ZScore(testKey, "alice")
			require.NoError(t, err)
			assert.Equal(t, 12.5, stored)
		})
	}
}

func TestStore_UpsertIfGreater_InvalidInput(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewWithClient(client, testKey, StrategyNative)
	ctx := context.Background()

	_, err := store.UpsertIfGreater(ctx, " ", 1)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = store.UpsertIfGreater(ctx, "bob", -4)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	assert.False(t, mr.Exists(testKey))
}

func TestStore_TopK(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewWithClient(client, testKey, StrategyNative)
	ctx := context.Background()

	for i := 1; i <= 15; i++ {
		_, err := store.UpsertIfGreater(ctx, core.PlayerID(fmt.Sprintf("p%02d", i)), float64(i*10))
		require.NoError(t, err)
	}

	top, err := store.TopK(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 10)
	assert.Equal(t, core.ScoreEntry{Player: "p15", Score: 150}, top[0])
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].Score, top[i].Score)
	}

	top, err = store.TopK(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, top, 15)

	top, err = store.TopK(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, top)

	members, err := mr.ZMembers(testKey)
	require.NoError(t, err)
	assert.Len(t, members, 15)
}

func TestStore_ConnectivityErrors(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewWithClient(client, testKey, StrategyNative)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, store.Ping(ctx))
	mr.Close()

	err := store.Ping(ctx)
	assert.ErrorIs(t, err, core.ErrBackendConnectivity)

	_, err = store.UpsertIfGreater(ctx, "alice", 1)
	assert.ErrorIs(t, err, core.ErrBackendConnectivity)

	_, err = store.TopK(ctx, 10)
	assert.ErrorIs(t, err, core.ErrBackendConnectivity)
}

func TestStore_ClosedClient(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewWithClient(client, testKey, StrategyNative)
	require.NoError(t, store.Close())

	_, err := store.TopK(context.Background(), 10)
	assert.ErrorIs(t, err, core.ErrBackendConnectivity)
}

func TestStore_Compare_MissingMemberWrites(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewWithClient(db, testKey, StrategyCompare)
	ctx := context.Background()

	mock.ExpectZScore(testKey, "alice").RedisNil()
	mock.ExpectZAdd(testKey, redis.Z{Score: 10, Member: "alice"}).SetVal(1)

	out, err := store.UpsertIfGreater(ctx, "alice", 10)
	require.NoError(t, err)
	assert.True(t, out.Updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Compare_LowerScoreSkipsWrite(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewWithClient(db, testKey, StrategyCompare)

	mock.ExpectZScore(testKey, "alice").SetVal(10)

	out, err := store.UpsertIfGreater(context.Background(), "alice", 5)
	require.NoError(t, err)
	assert.False(t, out.Updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_OperationErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewWithClient(db, testKey, StrategyCompare)
	ctx := context.Background()

	mock.ExpectZScore(testKey, "alice").SetErr(errors.New("WRONGTYPE Operation against a key holding the wrong kind of value"))
	_, err := store.UpsertIfGreater(ctx, "alice", 5)
	assert.ErrorIs(t, err, core.ErrBackendOperation)
	assert.NotErrorIs(t, err, core.ErrBackendConnectivity)

	mock.ExpectZRevRangeWithScores(testKey, 0, 9).SetErr(errors.New("ERR unknown"))
	_, err = store.TopK(ctx, 10)
	assert.ErrorIs(t, err, core.ErrBackendOperation)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_TopK_DecodesMembers(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewWithClient(db, testKey, StrategyNative)

	mock.ExpectZRevRangeWithScores(testKey, 0, 2).SetVal([]redis.Z{
		{Score: 300, Member: "user3"},
		{Score: 200, Member: "user2"},
		{Score: 100, Member: "user1"},
	})

	top, err := store.TopK(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []core.ScoreEntry{
		{Player: "user3", Score: 300},
		{Player: "user2", Score: 200},
		{Player: "user1", Score: 100},
	}, top)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNew_ParsesURL(t *testing.T) {
	_, mr := newTestClient(t)
	cfg := DefaultConfig()
	cfg.URL = "redis://" + mr.Addr() + "/0"

	store, err := New(cfg, testKey)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Ping(context.Background()))

	_, err = New(Config{URL: "http://nope"}, testKey)
	assert.Error(t, err)
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "redis://localhost:6379", config.URL)
	assert.Equal(t, StrategyNative, config.Strategy)
	assert.Equal(t, 10, config.PoolSize)
	assert.Equal(t, 2, config.MinIdleConns)
	assert.Equal(t, 5*time.Second, config.DialTimeout)
	assert.Equal(t, 3*time.Second, config.ReadTimeout)
	assert.Equal(t, 3*time.Second, config.WriteTimeout)
	assert.NoError(t, config.Validate())

	config.Strategy = "optimistic"
	assert.Error(t, config.Validate())
}
