package conversation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCorruptSnapshot reports a snapshot that cannot describe a valid session.
var ErrCorruptSnapshot = errors.New("conversation: corrupt snapshot")

// TrackedMessage is a sent message that will be deleted on the next stage transition.
type TrackedMessage struct {
	ChatID    int64 `json:"chatId"`
	MessageID int   `json:"messageId"`
}

// Snapshot is the durable form of a session.
type Snapshot struct {
	CommandName       string           `json:"commandName"`
	CurrentStageIndex int              `json:"currentStageIndex"`
	TrackedMessages   []TrackedMessage `json:"trackedMessages"`
	State             json.RawMessage  `json:"state,omitempty"`
}

// Validate checks the parts of a snapshot that do not depend on the registry.
func (s Snapshot) Validate() error {
	if s.CommandName == "" {
		return fmt.Errorf("%w: empty command name", ErrCorruptSnapshot)
	}
	if s.CurrentStageIndex < 0 {
		return fmt.Errorf("%w: negative stage index %d", ErrCorruptSnapshot, s.CurrentStageIndex)
	}
	return nil
}

// EncodeSnapshot serializes a snapshot to its JSON storage form.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.TrackedMessages == nil {
		s.TrackedMessages = []TrackedMessage{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("conversation: encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses the JSON storage form of a snapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if len(bytes.TrimSpace(data)) == 0 {
		return s, fmt.Errorf("%w: empty payload", ErrCorruptSnapshot)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if isNullJSON(s.State) {
		s.State = nil
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func cloneTracked(in []TrackedMessage) []TrackedMessage {
	if len(in) == 0 {
		return nil
	}
	return append([]TrackedMessage(nil), in...)
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if in == nil {
		return nil
	}
	return append(json.RawMessage(nil), in...)
}
