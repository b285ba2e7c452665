// Package session routes inbound events to staged conversations and keeps
// their snapshots between events.
package session

import (
	"context"

	"github.com/m3rciful/stagebot/core/conversation"
)

// Store persists one snapshot per chat.
// Implementations must give read-your-writes per chat id.
type Store interface {
	// Get returns the snapshot for chatID; found is false when there is none.
	Get(ctx context.Context, chatID int64) (snap conversation.Snapshot, found bool, err error)
	Put(ctx context.Context, chatID int64, snap conversation.Snapshot) error
	// Delete removes the snapshot; deleting a missing one is not an error.
	Delete(ctx context.Context, chatID int64) error
}

// Locker serializes work on a single chat.
type Locker interface {
	// Lock blocks until the chat is free or ctx is done. The returned func
	// releases the lock and is safe to call more than once.
	Lock(ctx context.Context, chatID int64) (unlock func(), err error)
}
