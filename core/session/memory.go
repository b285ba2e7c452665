package session

import (
	"context"
	"sync"

	"github.com/m3rciful/stagebot/core/conversation"
)

// MemoryStore keeps encoded snapshots in process memory. Sessions do not
// survive a restart; it is meant for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64][]byte)}
}

// Get returns the snapshot for a chat if it exists.
func (m *MemoryStore) Get(_ context.Context, chatID int64) (conversation.Snapshot, bool, error) {
	m.mu.RLock()
	data, ok := m.sessions[chatID]
	m.mu.RUnlock()
	if !ok {
		return conversation.Snapshot{}, false, nil
	}
	snap, err := conversation.DecodeSnapshot(data)
	if err != nil {
		return conversation.Snapshot{}, false, err
	}
	return snap, true, nil
}

// Put stores the snapshot for a chat, replacing any previous one.
func (m *MemoryStore) Put(_ context.Context, chatID int64, snap conversation.Snapshot) error {
	data, err := conversation.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[chatID] = data
	return nil
}

// Delete removes the snapshot for a chat.
func (m *MemoryStore) Delete(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, chatID)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
