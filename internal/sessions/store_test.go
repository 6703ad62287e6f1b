package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/PromptPanel/internal/models"
)

var base = time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)

func newRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, opts...)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func backends(t *testing.T) map[string]Store {
	rs, _ := newRedisStore(t)
	return map[string]Store{
		"memory": NewInMemoryStore(),
		"redis":  rs,
	}
}

func session(id string, updated time.Time, status models.SessionStatus) models.ConversationSession {
	return models.ConversationSession{
		ID:             id,
		StateMachineID: "sm_1",
		CurrentState:   "greeting",
		Status:         status,
		Context:        map[string]interface{}{"customer": "Ana"},
		History:        []models.HistoryEntry{{State: "greeting", Timestamp: updated}},
		StartedAt:      updated.Add(-time.Minute),
		LastUpdatedAt:  updated,
	}
}

func TestStore_ListOrderAndFilter(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, session("old", base, models.SessionStatusActive)))
			require.NoError(t, s.Save(ctx, session("new", base.Add(time.Hour), "")))
			require.NoError(t, s.Save(ctx, session("done", base.Add(2*time.Hour), models.SessionStatusTerminated)))

			all, err := s.List(ctx, false)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []string{"done", "new", "old"}, []string{all[0].ID, all[1].ID, all[2].ID})

			active, err := s.List(ctx, true)
			require.NoError(t, err)
			require.Len(t, active, 2)
			assert.Equal(t, "new", active[0].ID)
			assert.Equal(t, "Ana", active[0].Context["customer"])
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "nope")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.Terminate(context.Background(), "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_Terminate(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, session("s1", base, models.SessionStatusActive)))

			got, err := s.Terminate(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, models.SessionStatusTerminated, got.Status)
			assert.True(t, got.LastUpdatedAt.After(base))

			stored, err := s.Get(ctx, "s1")
			require.NoError(t, err)
			assert.False(t, stored.IsActive())
			assert.Len(t, stored.History, 1, "terminate keeps history intact")

			again, err := s.Terminate(ctx, "s1")
			require.NoError(t, err)
			assert.True(t, again.LastUpdatedAt.Equal(got.LastUpdatedAt), "second terminate is a no-op")

			active, err := s.List(ctx, true)
			require.NoError(t, err)
			assert.Empty(t, active)
		})
	}
}

func TestRedisStore_KeyLayout(t *testing.T) {
	s, mr := newRedisStore(t, WithKeyPrefix("engine:sess:"))
	require.NoError(t, s.Save(context.Background(), session("s1", base, models.SessionStatusActive)))

	assert.True(t, mr.Exists("engine:sess:s1"))
	members, err := mr.ZMembers("engine:sess:index")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, members)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	s, mr := newRedisStore(t, WithTTL(time.Hour))
	now := base
	s.now = func() time.Time { return now }
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, session("s1", base, models.SessionStatusActive)))

	_, err := s.Terminate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL(s.key("s1")), "terminate keeps the remaining TTL")

	mr.FastForward(2 * time.Hour)
	now = base.Add(2 * time.Hour)

	list, err := s.List(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, list)
	members, _ := mr.ZMembers(s.indexKey())
	assert.Empty(t, members, "expired index entries are pruned")
}

func TestRedisStore_SkipsUndecodable(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, session("good", base, models.SessionStatusActive)))
	require.NoError(t, mr.Set(s.key("bad"), "{not json"))
	_, err := mr.ZAdd(s.indexKey(), noExpiryScore, "bad")
	require.NoError(t, err)

	list, err := s.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "good", list[0].ID)
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedisStore(ctx, "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
