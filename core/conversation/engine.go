package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/m3rciful/stagebot/core/logger"
)

// Engine drives one session of one command. It is not safe for concurrent
// use; callers serialize events per chat.
type Engine struct {
	def        Definition
	dispatcher *Dispatcher

	stageIndex int
	tracked    []TrackedMessage
	state      json.RawMessage
}

// NewEngine starts a fresh session at stage 0 with the command's initial state.
func NewEngine(def Definition, dispatcher *Dispatcher) (*Engine, error) {
	state, err := def.EncodedInitialState()
	if err != nil {
		return nil, err
	}
	return &Engine{def: def, dispatcher: dispatcher, state: state}, nil
}

// Restore rebuilds an engine from a snapshot. It fails with ErrUnknownCommand
// when the command is no longer registered and ErrCorruptSnapshot when the
// stage index does not fit the command.
func Restore(reg *Registry, dispatcher *Dispatcher, snap Snapshot) (*Engine, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	def, err := reg.Lookup(snap.CommandName)
	if err != nil {
		return nil, err
	}
	if snap.CurrentStageIndex > def.StageCount() {
		return nil, fmt.Errorf("%w: stage index %d beyond %d stages of %q",
			ErrCorruptSnapshot, snap.CurrentStageIndex, def.StageCount(), snap.CommandName)
	}
	state := cloneRaw(snap.State)
	if isNullJSON(state) {
		if state, err = def.EncodedInitialState(); err != nil {
			return nil, err
		}
	}
	return &Engine{
		def:        def,
		dispatcher: dispatcher,
		stageIndex: snap.CurrentStageIndex,
		tracked:    cloneTracked(snap.TrackedMessages),
		state:      state,
	}, nil
}

// Name returns the command name of the session.
func (e *Engine) Name() string { return e.def.CommandName() }

// StageIndex returns the index of the stage waiting for the next event.
func (e *Engine) StageIndex() int { return e.stageIndex }

// Ended reports whether every stage has run.
func (e *Engine) Ended() bool { return e.stageIndex >= e.def.StageCount() }

// Tracked returns a copy of the messages pending deletion.
func (e *Engine) Tracked() []TrackedMessage { return cloneTracked(e.tracked) }

// State returns a copy of the encoded state.
func (e *Engine) State() json.RawMessage { return cloneRaw(e.state) }

// Snapshot captures the session for persistence.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		CommandName:       e.def.CommandName(),
		CurrentStageIndex: e.stageIndex,
		TrackedMessages:   cloneTracked(e.tracked),
		State:             cloneRaw(e.state),
	}
}

// Handle feeds one event to the current stage. It returns false without
// touching the session when the session has ended, the event does not match,
// or the stage declines. On a send failure the stage is still consumed and
// the session keeps only the messages that were actually sent.
func (e *Engine) Handle(ctx context.Context, ev Event) (bool, error) {
	if e.Ended() {
		return false, nil
	}

	name := e.def.CommandName()
	spec, ok := e.def.StageSpec(e.stageIndex)
	if !ok {
		logger.Warn(ctx, "conversation", "stage.missing",
			slog.String("command", name),
			slog.Int("stage", e.stageIndex),
		)
		return false, nil
	}

	if !Matches(name, spec, ev) {
		logger.Debug(ctx, "conversation", "stage.mismatch",
			slog.String("command", name),
			slog.Int("stage", e.stageIndex),
			slog.String("stage_kind", spec.Kind.String()),
			slog.String("event_kind", ev.Kind.String()),
		)
		return false, nil
	}

	out, err := e.def.Invoke(ctx, e.stageIndex, ev, e.state)
	if err != nil {
		return false, fmt.Errorf("conversation: %s stage %d: %w", name, e.stageIndex, err)
	}
	if out == nil {
		logger.Debug(ctx, "conversation", "stage.declined",
			slog.String("command", name),
			slog.Int("stage", e.stageIndex),
		)
		return false, nil
	}

	e.stageIndex++
	if out.NextState != nil {
		e.state = out.NextState
	}

	e.cleanup(ctx)

	sent, err := e.dispatcher.Dispatch(ctx, ev.ChatID, out.Responses)
	e.tracked = append(e.tracked, sent...)
	if err != nil {
		return true, err
	}

	logger.Debug(ctx, "conversation", "stage.advanced",
		slog.String("command", name),
		slog.Int("stage", e.stageIndex),
		slog.Int("messages", len(sent)),
		slog.Bool("ended", e.Ended()),
	)
	return true, nil
}

// Cleanup deletes every tracked message and forgets them, even when some
// deletes fail.
func (e *Engine) Cleanup(ctx context.Context) {
	e.cleanup(ctx)
}

func (e *Engine) cleanup(ctx context.Context) {
	tracked := e.tracked
	e.tracked = nil
	if len(tracked) == 0 {
		return
	}
	e.dispatcher.Cleanup(ctx, tracked)
}
