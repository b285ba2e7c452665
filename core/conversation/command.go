package conversation

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler runs one stage. Returning a nil result declines the event and
// leaves the session untouched.
type Handler[S any] func(ctx context.Context, ev Event, state S) (*Result[S], error)

// Result is what a stage produced. A nil NextState keeps the current state.
type Result[S any] struct {
	Responses []Response
	NextState *S
}

// Reply is shorthand for a result that only sends responses.
func Reply[S any](responses ...Response) *Result[S] {
	return &Result[S]{Responses: responses}
}

// Stage is one step of a typed command.
type Stage[S any] struct {
	spec   StageSpec
	handle Handler[S]
}

// OnCommand opens a conversation when the user sends "/<name>".
func OnCommand[S any](h Handler[S]) Stage[S] {
	return Stage[S]{spec: StageSpec{Kind: StageText, Trigger: CommandTrigger()}, handle: h}
}

// OnText consumes a text message accepted by trigger.
func OnText[S any](trigger Trigger, h Handler[S]) Stage[S] {
	return Stage[S]{spec: StageSpec{Kind: StageText, Trigger: trigger}, handle: h}
}

// OnCallback consumes a button click.
func OnCallback[S any](h Handler[S]) Stage[S] {
	return Stage[S]{spec: StageSpec{Kind: StageCallback}, handle: h}
}

// Command is a typed command definition. It must not be modified after registration.
type Command[S any] struct {
	Name         string
	Description  string
	Hidden       bool
	InitialState S
	Stages       []Stage[S]
}

// Outcome is a stage result with the state already encoded.
type Outcome struct {
	Responses []Response
	NextState json.RawMessage
}

// Definition is the type-erased view of a command used by the engine and registry.
type Definition interface {
	CommandName() string
	CommandDescription() string
	IsHidden() bool
	StageCount() int
	StageSpec(index int) (StageSpec, bool)
	EncodedInitialState() (json.RawMessage, error)
	// Invoke runs stage index with the encoded state. A nil Outcome declines.
	Invoke(ctx context.Context, index int, ev Event, state json.RawMessage) (*Outcome, error)
}

var _ Definition = (*Command[struct{}])(nil)

// CommandName implements Definition.
func (c *Command[S]) CommandName() string { return c.Name }

// CommandDescription implements Definition.
func (c *Command[S]) CommandDescription() string { return c.Description }

// IsHidden implements Definition.
func (c *Command[S]) IsHidden() bool { return c.Hidden }

// StageCount implements Definition.
func (c *Command[S]) StageCount() int { return len(c.Stages) }

// StageSpec implements Definition.
func (c *Command[S]) StageSpec(index int) (StageSpec, bool) {
	if index < 0 || index >= len(c.Stages) {
		return StageSpec{}, false
	}
	return c.Stages[index].spec, true
}

// EncodedInitialState implements Definition.
func (c *Command[S]) EncodedInitialState() (json.RawMessage, error) {
	data, err := json.Marshal(c.InitialState)
	if err != nil {
		return nil, fmt.Errorf("conversation: encode initial state of %q: %w", c.Name, err)
	}
	return data, nil
}

// Invoke implements Definition.
func (c *Command[S]) Invoke(ctx context.Context, index int, ev Event, raw json.RawMessage) (*Outcome, error) {
	if index < 0 || index >= len(c.Stages) {
		return nil, fmt.Errorf("conversation: %s: stage %d out of range", c.Name, index)
	}
	stage := c.Stages[index]
	if stage.handle == nil {
		return nil, fmt.Errorf("conversation: %s: stage %d has no handler", c.Name, index)
	}

	state := c.InitialState
	if !isNullJSON(raw) {
		var decoded S
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("conversation: %s: decode state: %w", c.Name, err)
		}
		state = decoded
	}

	res, err := stage.handle(ctx, ev, state)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}

	out := &Outcome{Responses: res.Responses}
	if res.NextState != nil {
		data, err := json.Marshal(*res.NextState)
		if err != nil {
			return nil, fmt.Errorf("conversation: %s: encode state: %w", c.Name, err)
		}
		out.NextState = data
	}
	return out, nil
}
