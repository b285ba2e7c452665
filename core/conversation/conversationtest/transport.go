// Package conversationtest provides an in-memory Transport for tests.
package conversationtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/m3rciful/stagebot/core/conversation"
)

// ErrInjected is returned by operations failed on purpose through FailSendAfter or FailDelete.
var ErrInjected = errors.New("conversationtest: injected failure")

// Call is one recorded transport operation.
type Call struct {
	Op        string // "text", "photo", "document" or "delete"
	ChatID    int64
	MessageID int
	Text      string
	Source    string
	Options   conversation.Options
}

// Transport records every call and hands out increasing message ids per chat.
type Transport struct {
	mu     sync.Mutex
	calls  []Call
	nextID map[int64]int

	failSendAfter int
	failDelete    map[int]bool
	noRef         bool
}

// NewTransport returns a recording transport whose first message id is 100.
func NewTransport() *Transport {
	return &Transport{nextID: map[int64]int{}, failSendAfter: -1, failDelete: map[int]bool{}}
}

// FailSendAfter makes every send after the first n successful ones fail.
// A negative n disables the failure.
func (t *Transport) FailSendAfter(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failSendAfter = n
}

// FailDelete makes deletion of messageID fail.
func (t *Transport) FailDelete(messageID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failDelete[messageID] = true
}

// OmitRefs makes sends succeed without returning a message reference.
func (t *Transport) OmitRefs(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.noRef = v
}

// Calls returns a copy of the recorded calls.
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// Sent returns the recorded send calls.
func (t *Transport) Sent() []Call {
	var out []Call
	for _, c := range t.Calls() {
		if c.Op != "delete" {
			out = append(out, c)
		}
	}
	return out
}

// Texts returns the text of every text message sent.
func (t *Transport) Texts() []string {
	var out []string
	for _, c := range t.Calls() {
		if c.Op == "text" {
			out = append(out, c.Text)
		}
	}
	return out
}

// Deleted returns the ids of successfully deleted messages.
func (t *Transport) Deleted() []int {
	var out []int
	for _, c := range t.Calls() {
		if c.Op == "delete" {
			out = append(out, c.MessageID)
		}
	}
	return out
}

// Reset forgets recorded calls but keeps the id counters.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
}

// SendText implements conversation.Transport.
func (t *Transport) SendText(_ context.Context, chatID int64, text string, opts conversation.Options) (*conversation.MessageRef, error) {
	return t.send(Call{Op: "text", ChatID: chatID, Text: text, Options: opts})
}

// SendPhoto implements conversation.Transport.
func (t *Transport) SendPhoto(_ context.Context, chatID int64, source string, opts conversation.Options) (*conversation.MessageRef, error) {
	return t.send(Call{Op: "photo", ChatID: chatID, Source: source, Options: opts})
}

// SendDocument implements conversation.Transport.
func (t *Transport) SendDocument(_ context.Context, chatID int64, source string, opts conversation.Options) (*conversation.MessageRef, error) {
	return t.send(Call{Op: "document", ChatID: chatID, Source: source, Options: opts})
}

// DeleteMessage implements conversation.Transport.
func (t *Transport) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failDelete[messageID] {
		return fmt.Errorf("delete %d: %w", messageID, ErrInjected)
	}
	t.calls = append(t.calls, Call{Op: "delete", ChatID: chatID, MessageID: messageID})
	return nil
}

func (t *Transport) send(c Call) (*conversation.MessageRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failSendAfter >= 0 {
		if t.failSendAfter == 0 {
			return nil, fmt.Errorf("send %s: %w", c.Op, ErrInjected)
		}
		t.failSendAfter--
	}
	if t.nextID[c.ChatID] == 0 {
		t.nextID[c.ChatID] = 100
	}
	c.MessageID = t.nextID[c.ChatID]
	t.nextID[c.ChatID]++
	t.calls = append(t.calls, c)
	if t.noRef {
		return nil, nil
	}
	return &conversation.MessageRef{ChatID: c.ChatID, MessageID: c.MessageID}, nil
}
