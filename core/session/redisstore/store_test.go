package redisstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/stagebot/core/conversation"
	"github.com/m3rciful/stagebot/core/conversation/conversationtest"
	"github.com/m3rciful/stagebot/core/session"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestKeys(t *testing.T) {
	k := Keys{Prefix: "stagebot:"}
	assert.Equal(t, "stagebot:session:42", k.Session(42))
	assert.Equal(t, "stagebot:lock:-100123", k.Lock(-100123))
	assert.NotEqual(t, k.Session(1), k.Lock(1))
}

func TestNewClampsDurations(t *testing.T) {
	_, client := newRedis(t)

	s := New(client, "p:", -time.Second)
	assert.Zero(t, s.ttl)

	l := NewLocker(client, "p:", 0)
	assert.Equal(t, 30*time.Second, l.ttl)
	assert.Equal(t, 10*time.Second, l.renew)
	assert.Equal(t, "p:lock:7", l.keys.Lock(7))

	l = NewLocker(client, "p:", time.Nanosecond)
	assert.Equal(t, minLockTTL, l.ttl)
	assert.Positive(t, l.renew)
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	s := New(client, "sb:", 0)

	_, found, err := s.Get(ctx, 5)
	require.NoError(t, err)
	assert.False(t, found)

	snap := conversation.Snapshot{
		CommandName:       "intro",
		CurrentStageIndex: 2,
		TrackedMessages:   []conversation.TrackedMessage{{ChatID: 5, MessageID: 101}},
		State:             json.RawMessage(`{"name":"Alice","age":-1}`),
	}
	require.NoError(t, s.Put(ctx, 5, snap))

	got, found, err := s.Get(ctx, 5)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, snap.CommandName, got.CommandName)
	assert.Equal(t, snap.CurrentStageIndex, got.CurrentStageIndex)
	assert.Equal(t, snap.TrackedMessages, got.TrackedMessages)
	assert.JSONEq(t, string(snap.State), string(got.State))

	require.NoError(t, s.Delete(ctx, 5))
	_, found, err = s.Get(ctx, 5)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Delete(ctx, 5))
}

func TestStorePutRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	s := New(client, "sb:", time.Minute)
	snap := conversation.Snapshot{CommandName: "intro", CurrentStageIndex: 1}

	require.NoError(t, s.Put(ctx, 9, snap))
	assert.Equal(t, time.Minute, mr.TTL("sb:session:9"))

	mr.FastForward(40 * time.Second)
	assert.Equal(t, 20*time.Second, mr.TTL("sb:session:9"))

	require.NoError(t, s.Put(ctx, 9, snap))
	assert.Equal(t, time.Minute, mr.TTL("sb:session:9"))

	mr.FastForward(61 * time.Second)
	_, found, err := s.Get(ctx, 9)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStoreWithoutTTLKeepsSessions(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	s := New(client, "sb:", 0)

	require.NoError(t, s.Put(ctx, 9, conversation.Snapshot{CommandName: "intro", CurrentStageIndex: 1}))
	assert.Zero(t, mr.TTL("sb:session:9"))
}

func TestStoreCorruptPayload(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	s := New(client, "sb:", 0)

	require.NoError(t, mr.Set("sb:session:3", "{not json"))
	_, found, err := s.Get(ctx, 3)
	assert.False(t, found)
	assert.ErrorIs(t, err, conversation.ErrCorruptSnapshot)

	require.NoError(t, mr.Set("sb:session:3", `{"commandName":"","currentStageIndex":0}`))
	_, _, err = s.Get(ctx, 3)
	assert.ErrorIs(t, err, conversation.ErrCorruptSnapshot)
}

func TestStoreRejectsInvalidSnapshot(t *testing.T) {
	_, client := newRedis(t)
	s := New(client, "sb:", 0)
	err := s.Put(context.Background(), 1, conversation.Snapshot{})
	assert.ErrorIs(t, err, conversation.ErrCorruptSnapshot)
}

func TestStoreReportsServerErrors(t *testing.T) {
	mr, client := newRedis(t)
	s := New(client, "sb:", 0)
	mr.SetError("LOADING")

	_, _, err := s.Get(context.Background(), 1)
	assert.ErrorContains(t, err, "redisstore: get 1")
}

func TestLockerContention(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	l := NewLocker(client, "sb:", time.Second)

	unlock, err := l.Lock(ctx, 1)
	require.NoError(t, err)
	assert.True(t, mr.Exists("sb:lock:1"))

	waitCtx, cancel := context.WithTimeout(ctx, 80*time.Millisecond)
	_, err = l.Lock(waitCtx, 1)
	cancel()
	assert.Error(t, err)

	other, err := l.Lock(ctx, 2)
	require.NoError(t, err)
	other()

	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		again, err := l.Lock(ctx, 1)
		if err == nil {
			again()
		}
	}()

	unlock()
	unlock()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("lock was not handed over after unlock")
	}
	assert.False(t, mr.Exists("sb:lock:1"))
}

func TestLockerReleaseKeepsForeignToken(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	l := NewLocker(client, "sb:", time.Second)

	unlock, err := l.Lock(ctx, 4)
	require.NoError(t, err)

	// another holder took over after our lease lapsed
	require.NoError(t, mr.Set("sb:lock:4", "someone-else"))
	unlock()

	got, err := mr.Get("sb:lock:4")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestLockerRenewsLeaseWhileHeld(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	ttl := 300 * time.Millisecond
	l := NewLocker(client, "sb:", ttl)

	unlock, err := l.Lock(ctx, 1)
	require.NoError(t, err)
	defer unlock()

	// Without renewal the lease would be gone after two rounds.
	for i := 0; i < 5; i++ {
		time.Sleep(2 * ttl / 3)
		mr.FastForward(2 * ttl / 3)
		require.True(t, mr.Exists("sb:lock:1"), "lease expired in round %d", i)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, 1)
	assert.Error(t, err)
}

func TestLockerStopsRenewingAfterUnlock(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	ttl := 300 * time.Millisecond
	l := NewLocker(client, "sb:", ttl)

	unlock, err := l.Lock(ctx, 1)
	require.NoError(t, err)
	unlock()
	assert.False(t, mr.Exists("sb:lock:1"))

	// A lease written after unlock must not be extended by the old holder.
	require.NoError(t, mr.Set("sb:lock:1", "next"))
	mr.SetTTL("sb:lock:1", ttl)
	time.Sleep(ttl / 2)
	mr.FastForward(ttl)
	assert.False(t, mr.Exists("sb:lock:1"))
}

func pingCommand() *conversation.Command[struct{}] {
	return &conversation.Command[struct{}]{
		Name: "ping",
		Stages: []conversation.Stage[struct{}]{
			conversation.OnCommand(func(context.Context, conversation.Event, struct{}) (*conversation.Result[struct{}], error) {
				return conversation.Reply[struct{}](conversation.Text("pong")), nil
			}),
		},
	}
}

func nameCommand() *conversation.Command[string] {
	return &conversation.Command[string]{
		Name: "name",
		Stages: []conversation.Stage[string]{
			conversation.OnCommand(func(context.Context, conversation.Event, string) (*conversation.Result[string], error) {
				return conversation.Reply[string](conversation.Text("Who are you?")), nil
			}),
			conversation.OnText(conversation.AnyText(), func(_ context.Context, ev conversation.Event, _ string) (*conversation.Result[string], error) {
				name := ev.Text
				return &conversation.Result[string]{
					Responses: []conversation.Response{conversation.Text("Hello " + name)},
					NextState: &name,
				}, nil
			}),
		},
	}
}

func TestRouterOverRedis(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	store := New(client, "sb:", time.Hour)
	reg := conversation.MustRegistry(pingCommand(), nameCommand())
	tr := conversationtest.NewTransport()
	router := session.NewRouter(reg, store, tr,
		session.WithLocker(NewLocker(client, "sb:", time.Second)),
		session.WithLockTimeout(time.Second),
	)
	say := func(text string) {
		t.Helper()
		require.NoError(t, router.Route(ctx, conversation.TextEvent(8, 1, text, 10, false)))
	}

	say("/ping")
	assert.False(t, mr.Exists("sb:session:8"))

	say("/name")
	snap, found, err := store.Get(ctx, 8)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "name", snap.CommandName)
	assert.Equal(t, 1, snap.CurrentStageIndex)
	assert.Len(t, snap.TrackedMessages, 1)

	say("Ada")
	assert.False(t, mr.Exists("sb:session:8"))
	assert.False(t, mr.Exists("sb:lock:8"))
	assert.Equal(t, []string{"pong", "Who are you?", "Hello Ada"}, tr.Texts())

	require.NoError(t, mr.Set("sb:session:8", "garbage"))
	say("Ada")
	assert.Equal(t, "Your previous session has expired. Please start again.", tr.Texts()[3])
	assert.False(t, mr.Exists("sb:session:8"))
}
