package conversation_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/stagebot/core/conversation"
	"github.com/m3rciful/stagebot/core/conversation/conversationtest"
)

const chatID int64 = 42

type introState struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

func introCommand() *conversation.Command[introState] {
	return &conversation.Command[introState]{
		Name:         "intro",
		Description:  "Introduce yourself",
		InitialState: introState{Age: -1},
		Stages: []conversation.Stage[introState]{
			conversation.OnCommand(func(context.Context, conversation.Event, introState) (*conversation.Result[introState], error) {
				return conversation.Reply[introState](conversation.Text("What is your name?")), nil
			}),
			conversation.OnText(conversation.AnyText(), func(_ context.Context, ev conversation.Event, s introState) (*conversation.Result[introState], error) {
				s.Name = ev.Text
				return &conversation.Result[introState]{
					Responses: []conversation.Response{conversation.Text("How old are you?")},
					NextState: &s,
				}, nil
			}),
			conversation.OnText(conversation.TextFunc(isNumber), func(_ context.Context, ev conversation.Event, s introState) (*conversation.Result[introState], error) {
				s.Age, _ = strconv.Atoi(ev.Text)
				return &conversation.Result[introState]{
					Responses: []conversation.Response{conversation.Text(fmt.Sprintf("Hi %s of age %d!", s.Name, s.Age))},
					NextState: &s,
				}, nil
			}),
		},
	}
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

func text(s string) conversation.Event {
	return conversation.TextEvent(chatID, 7, s, 1, false)
}

func newEngine(t *testing.T, def conversation.Definition, tr *conversationtest.Transport) *conversation.Engine {
	t.Helper()
	eng, err := conversation.NewEngine(def, conversation.NewDispatcher(tr, nil))
	require.NoError(t, err)
	return eng
}

func TestEnginePingEndsAfterOneStage(t *testing.T) {
	tr := conversationtest.NewTransport()
	eng := newEngine(t, pingCommand(), tr)

	handled, err := eng.Handle(context.Background(), text("/ping"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.True(t, eng.Ended())
	assert.Equal(t, []string{"pong"}, tr.Texts())
}

func TestEngineIntroScenario(t *testing.T) {
	ctx := context.Background()
	tr := conversationtest.NewTransport()
	reg := conversation.MustRegistry(introCommand())
	disp := conversation.NewDispatcher(tr, nil)

	eng, err := conversation.NewEngine(introCommand(), disp)
	require.NoError(t, err)

	handled, err := eng.Handle(ctx, text("/intro"))
	require.NoError(t, err)
	require.True(t, handled)

	handled, err = eng.Handle(ctx, text("Alice"))
	require.NoError(t, err)
	require.True(t, handled)

	snap := eng.Snapshot()
	assert.Equal(t, "intro", snap.CommandName)
	assert.Equal(t, 2, snap.CurrentStageIndex)
	assert.JSONEq(t, `{"name":"Alice","age":-1}`, string(snap.State))

	data, err := conversation.EncodeSnapshot(snap)
	require.NoError(t, err)
	decoded, err := conversation.DecodeSnapshot(data)
	require.NoError(t, err)

	restored, err := conversation.Restore(reg, disp, decoded)
	require.NoError(t, err)

	handled, err = restored.Handle(ctx, text("30"))
	require.NoError(t, err)
	require.True(t, handled)
	assert.True(t, restored.Ended())

	texts := tr.Texts()
	require.NotEmpty(t, texts)
	assert.Equal(t, "Hi Alice of age 30!", texts[len(texts)-1])
}

func TestEngineCleansUpBeforeSending(t *testing.T) {
	ctx := context.Background()
	tr := conversationtest.NewTransport()
	eng := newEngine(t, introCommand(), tr)

	_, err := eng.Handle(ctx, text("/intro"))
	require.NoError(t, err)
	first := eng.Tracked()
	require.Len(t, first, 1)

	tr.Reset()
	_, err = eng.Handle(ctx, text("Alice"))
	require.NoError(t, err)

	calls := tr.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "delete", calls[0].Op)
	assert.Equal(t, first[0].MessageID, calls[0].MessageID)
	assert.Equal(t, "text", calls[1].Op)

	tracked := eng.Tracked()
	require.Len(t, tracked, 1)
	assert.Equal(t, calls[1].MessageID, tracked[0].MessageID)
}

func TestEngineMismatchLeavesSessionUntouched(t *testing.T) {
	ctx := context.Background()
	tr := conversationtest.NewTransport()
	eng := newEngine(t, introCommand(), tr)

	_, err := eng.Handle(ctx, text("/intro"))
	require.NoError(t, err)
	_, err = eng.Handle(ctx, text("Alice"))
	require.NoError(t, err)

	before, err := conversation.EncodeSnapshot(eng.Snapshot())
	require.NoError(t, err)
	callsBefore := len(tr.Calls())

	for _, ev := range []conversation.Event{
		text("thirty"),
		conversation.CallbackEvent(chatID, 7, "age:30", 101),
	} {
		handled, err := eng.Handle(ctx, ev)
		require.NoError(t, err)
		assert.False(t, handled)
	}

	after, err := conversation.EncodeSnapshot(eng.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Len(t, tr.Calls(), callsBefore)
}

func TestEngineDeclineIsNoOp(t *testing.T) {
	ctx := context.Background()
	tr := conversationtest.NewTransport()
	calls := 0
	def := &conversation.Command[int]{
		Name: "picky",
		Stages: []conversation.Stage[int]{
			conversation.OnText(conversation.AnyText(), func(_ context.Context, ev conversation.Event, n int) (*conversation.Result[int], error) {
				calls++
				if ev.Text != "yes" {
					return nil, nil
				}
				n++
				return &conversation.Result[int]{NextState: &n}, nil
			}),
		},
	}
	eng := newEngine(t, def, tr)

	handled, err := eng.Handle(ctx, text("no"))
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Equal(t, 0, eng.StageIndex())
	assert.JSONEq(t, `0`, string(eng.State()))

	handled, err = eng.Handle(ctx, text("yes"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, 1, eng.StageIndex())
	assert.JSONEq(t, `1`, string(eng.State()))
	assert.Equal(t, 2, calls)
	assert.Empty(t, tr.Calls())
}

func TestEngineEndedIgnoresEvents(t *testing.T) {
	tr := conversationtest.NewTransport()
	eng := newEngine(t, pingCommand(), tr)

	_, err := eng.Handle(context.Background(), text("/ping"))
	require.NoError(t, err)
	require.True(t, eng.Ended())

	handled, err := eng.Handle(context.Background(), text("/ping"))
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Equal(t, 1, eng.StageIndex())
}

func TestEngineHandlerErrorKeepsPosition(t *testing.T) {
	boom := errors.New("boom")
	def := &conversation.Command[struct{}]{
		Name: "broken",
		Stages: []conversation.Stage[struct{}]{
			conversation.OnCommand(func(context.Context, conversation.Event, struct{}) (*conversation.Result[struct{}], error) {
				return nil, boom
			}),
		},
	}
	tr := conversationtest.NewTransport()
	eng := newEngine(t, def, tr)

	handled, err := eng.Handle(context.Background(), text("/broken"))
	assert.ErrorIs(t, err, boom)
	assert.False(t, handled)
	assert.Equal(t, 0, eng.StageIndex())
	assert.Empty(t, tr.Calls())
}

func TestEnginePartialSendTracksWhatWasSent(t *testing.T) {
	def := &conversation.Command[struct{}]{
		Name: "chatty",
		Stages: []conversation.Stage[struct{}]{
			conversation.OnCommand(func(context.Context, conversation.Event, struct{}) (*conversation.Result[struct{}], error) {
				return conversation.Reply[struct{}](
					conversation.Text("one"),
					conversation.Photo("https://example.com/cat.png"),
					conversation.Text("three"),
				), nil
			}),
			conversation.OnText(conversation.AnyText(), func(context.Context, conversation.Event, struct{}) (*conversation.Result[struct{}], error) {
				return conversation.Reply[struct{}](), nil
			}),
		},
	}
	tr := conversationtest.NewTransport()
	tr.FailSendAfter(2)
	eng := newEngine(t, def, tr)

	handled, err := eng.Handle(context.Background(), text("/chatty"))
	assert.ErrorIs(t, err, conversationtest.ErrInjected)
	assert.True(t, handled)
	assert.Equal(t, 1, eng.StageIndex())
	assert.Len(t, eng.Tracked(), 2)
}

func TestEngineUntrackedWhenTransportOmitsRef(t *testing.T) {
	tr := conversationtest.NewTransport()
	tr.OmitRefs(true)
	eng := newEngine(t, introCommand(), tr)

	_, err := eng.Handle(context.Background(), text("/intro"))
	require.NoError(t, err)
	assert.Empty(t, eng.Tracked())
	assert.Len(t, tr.Sent(), 1)
}

func TestEngineCleanupContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	tr := conversationtest.NewTransport()
	var failed []conversation.TrackedMessage
	disp := conversation.NewDispatcher(tr, func(_ context.Context, msg conversation.TrackedMessage, err error) {
		failed = append(failed, msg)
	})
	def := &conversation.Command[struct{}]{
		Name: "pair",
		Stages: []conversation.Stage[struct{}]{
			conversation.OnCommand(func(context.Context, conversation.Event, struct{}) (*conversation.Result[struct{}], error) {
				return conversation.Reply[struct{}](conversation.Text("a"), conversation.Text("b")), nil
			}),
			conversation.OnText(conversation.AnyText(), func(context.Context, conversation.Event, struct{}) (*conversation.Result[struct{}], error) {
				return conversation.Reply[struct{}](), nil
			}),
		},
	}
	eng, err := conversation.NewEngine(def, disp)
	require.NoError(t, err)

	_, err = eng.Handle(ctx, text("/pair"))
	require.NoError(t, err)
	tracked := eng.Tracked()
	require.Len(t, tracked, 2)
	tr.FailDelete(tracked[0].MessageID)

	eng.Cleanup(ctx)
	assert.Empty(t, eng.Tracked())
	assert.Equal(t, []int{tracked[1].MessageID}, tr.Deleted())
	require.Len(t, failed, 1)
	assert.Equal(t, tracked[0], failed[0])
}

func TestRestoreIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg := conversation.MustRegistry(introCommand())

	tr := conversationtest.NewTransport()
	eng := newEngine(t, introCommand(), tr)
	for _, in := range []string{"/intro", "Alice"} {
		_, err := eng.Handle(ctx, text(in))
		require.NoError(t, err)
	}
	snap := eng.Snapshot()

	// The twin transport hands out the same message ids from here on.
	twin := conversationtest.NewTransport()
	for range tr.Sent() {
		_, err := twin.SendText(ctx, chatID, "", conversation.Options{})
		require.NoError(t, err)
	}
	twin.Reset()
	tr.Reset()

	restored, err := conversation.Restore(reg, conversation.NewDispatcher(twin, nil), snap)
	require.NoError(t, err)
	assert.Equal(t, snap, restored.Snapshot())

	for _, in := range []string{"thirty", "30", "31"} {
		want, wantErr := eng.Handle(ctx, text(in))
		got, gotErr := restored.Handle(ctx, text(in))
		require.NoError(t, wantErr)
		require.NoError(t, gotErr)
		assert.Equal(t, want, got, "handled for %q", in)
		assert.Equal(t, eng.Snapshot(), restored.Snapshot(), "snapshot after %q", in)
	}
	assert.Equal(t, tr.Calls(), twin.Calls())
	assert.True(t, restored.Ended())

	canned := conversation.Snapshot{
		CommandName:       "intro",
		CurrentStageIndex: 1,
		TrackedMessages:   []conversation.TrackedMessage{{ChatID: chatID, MessageID: 100}},
		State:             json.RawMessage(`{"name":"","age":-1}`),
	}
	once, err := conversation.Restore(reg, conversation.NewDispatcher(twin, nil), canned)
	require.NoError(t, err)
	again, err := conversation.Restore(reg, conversation.NewDispatcher(twin, nil), once.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, canned, again.Snapshot())
}

func TestRestoreFailures(t *testing.T) {
	reg := conversation.MustRegistry(introCommand())
	disp := conversation.NewDispatcher(conversationtest.NewTransport(), nil)

	_, err := conversation.Restore(reg, disp, conversation.Snapshot{CommandName: "gone"})
	assert.ErrorIs(t, err, conversation.ErrUnknownCommand)

	_, err = conversation.Restore(reg, disp, conversation.Snapshot{CommandName: "intro", CurrentStageIndex: 4})
	assert.ErrorIs(t, err, conversation.ErrCorruptSnapshot)

	eng, err := conversation.Restore(reg, disp, conversation.Snapshot{CommandName: "intro", CurrentStageIndex: 3})
	require.NoError(t, err)
	assert.True(t, eng.Ended())
	assert.JSONEq(t, `{"name":"","age":-1}`, string(eng.State()))
}

func TestStageIndexNeverDecreases(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, introCommand(), conversationtest.NewTransport())
	inputs := []string{"hello", "/ping", "/intro", "/intro", "Bob", "abc", "/ping", "41", "42"}

	advanced := 0
	for _, in := range inputs {
		prev := eng.StageIndex()
		handled, err := eng.Handle(ctx, text(in))
		require.NoError(t, err)
		if handled {
			advanced++
			assert.Equal(t, prev+1, eng.StageIndex(), "handled %q", in)
		} else {
			assert.Equal(t, prev, eng.StageIndex(), "declined %q", in)
		}
	}
	assert.Equal(t, 3, advanced)
	assert.True(t, eng.Ended())
}

func TestCommandEncodesInitialState(t *testing.T) {
	def := introCommand()
	raw, err := def.EncodedInitialState()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"","age":-1}`, string(raw))

	eng := newEngine(t, def, conversationtest.NewTransport())
	assert.JSONEq(t, string(raw), string(eng.State()))
	assert.Equal(t, introState{Age: -1}, def.InitialState)
}
