package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"rps_arena/internal/store"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	_, client := newRedis(t)
	return NewRedisStore(client, "test", zaptest.NewLogger(t).Sugar())
}

func fieldsOf(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestRedisStore_UpdateIfSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)
	id, err := s.Create(ctx, "games", store.Fields{"status": "waiting", "player1_id": "host"})
	require.NoError(t, err)
	key := store.Key("games", id)

	const joiners = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(guest string) {
			defer wg.Done()
			ok, err := s.UpdateIf(ctx, key,
				store.Fields{"status": "waiting", "player2_id": nil},
				store.Fields{"status": "in_progress", "player2_id": guest})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				winners = append(winners, guest)
				mu.Unlock()
			}
		}(fmt.Sprintf("guest-%d", i))
	}
	wg.Wait()

	require.Len(t, winners, 1)
	raw, err := s.Get(ctx, key)
	require.NoError(t, err)
	got := fieldsOf(t, raw)
	assert.Equal(t, winners[0], got["player2_id"])
	assert.Equal(t, "in_progress", got["status"])
}

func TestRedisStore_UpdateIfNilMatchesAbsent(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)
	id, err := s.Create(ctx, "games", store.Fields{"status": "in_progress"})
	require.NoError(t, err)
	key := store.Key("games", id)

	ok, err := s.UpdateIf(ctx, key, store.Fields{"player1_choice": nil}, store.Fields{"player1_choice": "rock"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UpdateIf(ctx, key, store.Fields{"player1_choice": nil}, store.Fields{"player1_choice": "paper"})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Update(ctx, key, store.Fields{"player1_choice": nil}))
	raw, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.NotContains(t, fieldsOf(t, raw), "player1_choice")

	ok, err = s.UpdateIf(ctx, store.Key("games", "missing"), store.Fields{"player1_choice": nil}, store.Fields{"status": "x"})
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s.Get(ctx, store.Key("games", "missing"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisStore_DeleteIf(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)
	id, err := s.Create(ctx, "games", store.Fields{"status": "waiting", "player1_id": "host"})
	require.NoError(t, err)
	key := store.Key("games", id)

	ok, err := s.DeleteIf(ctx, key, store.Fields{"status": "in_progress"})
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s.Get(ctx, key)
	require.NoError(t, err)

	ok, err = s.DeleteIf(ctx, key, store.Fields{"status": "waiting", "player2_id": nil})
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, store.ErrNotFound)

	all, err := s.List(ctx, "games")
	require.NoError(t, err)
	assert.Empty(t, all)

	ok, err = s.DeleteIf(ctx, key, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_CreateIfAbsentAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)

	ok, err := s.CreateIfAbsent(ctx, "usernames/alice", store.Fields{"user_id": "u1"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.CreateIfAbsent(ctx, "usernames/alice", store.Fields{"user_id": "u2"})
	require.NoError(t, err)
	assert.False(t, ok)

	for _, status := range []string{"waiting", "completed", "waiting"} {
		_, err := s.Create(ctx, "games", store.Fields{"status": status})
		require.NoError(t, err)
	}
	waiting, err := s.Query(ctx, "games", "status", "waiting", 0)
	require.NoError(t, err)
	assert.Len(t, waiting, 2)
	first, err := s.Query(ctx, "games", "status", "waiting", 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, waiting[0].ID, first[0].ID)
}

func TestRedisStore_SubscribeSnapshotThenDeletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newRedisStore(t)

	id, err := s.Create(ctx, "games", store.Fields{"status": "waiting"})
	require.NoError(t, err)
	key := store.Key("games", id)

	snaps := make(chan store.Snapshot, 16)
	stop, err := s.Subscribe(ctx, "games", func(snap store.Snapshot) { snaps <- snap })
	require.NoError(t, err)
	defer stop()

	next := func() store.Snapshot {
		t.Helper()
		select {
		case snap := <-snaps:
			return snap
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot delivered")
			return store.Snapshot{}
		}
	}

	initial := next()
	assert.Equal(t, key, initial.Key)
	assert.True(t, initial.Exists)
	assert.Equal(t, "waiting", fieldsOf(t, initial.Value)["status"])

	require.NoError(t, s.Delete(ctx, key))
	gone := next()
	assert.Equal(t, key, gone.Key)
	assert.Equal(t, id, gone.ID)
	assert.False(t, gone.Exists)
}

func TestRedisStore_SubscribeRecord(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newRedisStore(t)

	id, err := s.Create(ctx, "games", store.Fields{"status": "in_progress", "current_turn": 0})
	require.NoError(t, err)
	key := store.Key("games", id)

	snaps := make(chan store.Snapshot, 16)
	stop, err := s.Subscribe(ctx, key, func(snap store.Snapshot) { snaps <- snap })
	require.NoError(t, err)
	defer stop()

	require.NoError(t, s.Update(ctx, key, store.Fields{"current_turn": 1}))

	turns := []float64{}
	require.Eventually(t, func() bool {
		select {
		case snap := <-snaps:
			turns = append(turns, fieldsOf(t, snap.Value)["current_turn"].(float64))
		default:
		}
		return len(turns) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []float64{0, 1}, turns)
}

func TestRedisSessionStorage(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	sessions := NewSessionRedisStorage(client, "test", time.Hour, zaptest.NewLogger(t).Sugar())

	require.NoError(t, sessions.StoreSession(ctx, "s1", "u1"))
	uid, ok := sessions.GetUserIdBySession(ctx, "s1")
	require.True(t, ok)
	assert.Equal(t, "u1", uid)

	mr.FastForward(2 * time.Hour)
	_, ok = sessions.GetUserIdBySession(ctx, "s1")
	assert.False(t, ok)

	require.NoError(t, sessions.StoreSession(ctx, "s2", "u2"))
	assert.True(t, sessions.DeleteSession(ctx, "s2"))
	assert.False(t, sessions.DeleteSession(ctx, "s2"))
}
