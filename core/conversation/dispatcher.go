package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/stagebot/core/logger"
)

// DeleteErrorPolicy decides what happens when removing a tracked message fails.
// Cleanup always continues with the remaining messages and always clears the
// tracked set; the policy only observes the failure.
type DeleteErrorPolicy func(ctx context.Context, msg TrackedMessage, err error)

// LogDeleteErrors is the default policy: log and move on. Messages that are
// already gone server-side are not retried.
func LogDeleteErrors(ctx context.Context, msg TrackedMessage, err error) {
	logger.Warn(ctx, "conversation", "cleanup.delete_failed",
		slog.Int64("chat_id", msg.ChatID),
		slog.Int("message_id", msg.MessageID),
		slog.String("err", err.Error()),
	)
}

// Dispatcher turns declarative responses into transport calls.
type Dispatcher struct {
	transport     Transport
	onDeleteError DeleteErrorPolicy
}

// NewDispatcher builds a Dispatcher. A nil policy selects LogDeleteErrors.
func NewDispatcher(transport Transport, policy DeleteErrorPolicy) *Dispatcher {
	if policy == nil {
		policy = LogDeleteErrors
	}
	return &Dispatcher{transport: transport, onDeleteError: policy}
}

// Dispatch sends responses in order. On failure it returns the messages that
// were sent before the failing one together with the error.
func (d *Dispatcher) Dispatch(ctx context.Context, chatID int64, responses []Response) ([]TrackedMessage, error) {
	var sent []TrackedMessage
	for i, resp := range responses {
		ref, err := d.send(ctx, chatID, resp)
		if err != nil {
			return sent, fmt.Errorf("conversation: send %s response %d/%d: %w", resp.Kind, i+1, len(responses), err)
		}
		if ref == nil {
			continue
		}
		sent = append(sent, TrackedMessage{ChatID: ref.ChatID, MessageID: ref.MessageID})
	}
	return sent, nil
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, resp Response) (*MessageRef, error) {
	switch resp.Kind {
	case ResponseText:
		return d.transport.SendText(ctx, chatID, resp.Text, resp.Options)
	case ResponsePhoto:
		return d.transport.SendPhoto(ctx, chatID, resp.Source, resp.Options)
	case ResponseFile:
		return d.transport.SendDocument(ctx, chatID, resp.Source, resp.Options)
	}
	return nil, fmt.Errorf("unknown response kind %d", resp.Kind)
}

// Cleanup deletes every tracked message, best effort, in order.
func (d *Dispatcher) Cleanup(ctx context.Context, tracked []TrackedMessage) {
	for _, msg := range tracked {
		if err := d.transport.DeleteMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
			d.onDeleteError(ctx, msg, err)
		}
	}
}
