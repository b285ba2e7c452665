package conversation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// CancelCommand is reserved for aborting the active session.
const CancelCommand = "cancel"

var (
	// ErrUnknownCommand is returned when a snapshot names a command that is not registered.
	ErrUnknownCommand = errors.New("conversation: unknown command")
	// ErrDuplicateCommand is returned when two definitions share a name.
	ErrDuplicateCommand = errors.New("conversation: duplicate command")
	// ErrReservedCommand is returned when a definition uses a reserved name.
	ErrReservedCommand = errors.New("conversation: reserved command name")
)

// Registry is the immutable catalog of commands, in declaration order.
type Registry struct {
	ordered []Definition
	byName  map[string]Definition
}

// NewRegistry validates and indexes defs. Declaration order is preserved and
// decides which command wins when several opening stages accept an event.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{
		ordered: make([]Definition, 0, len(defs)),
		byName:  make(map[string]Definition, len(defs)),
	}
	for i, def := range defs {
		if def == nil {
			return nil, fmt.Errorf("conversation: registry entry %d is nil", i)
		}
		name := def.CommandName()
		switch {
		case strings.TrimSpace(name) == "":
			return nil, fmt.Errorf("conversation: registry entry %d has an empty name", i)
		case strings.ContainsAny(name, " @/"):
			return nil, fmt.Errorf("conversation: invalid command name %q", name)
		case name == CancelCommand:
			return nil, fmt.Errorf("%w: %q", ErrReservedCommand, name)
		case def.StageCount() == 0:
			return nil, fmt.Errorf("conversation: command %q has no stages", name)
		}
		if _, exists := r.byName[name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCommand, name)
		}
		r.byName[name] = def
		r.ordered = append(r.ordered, def)
	}
	return r, nil
}

// MustRegistry is NewRegistry for process start-up, where a bad catalog is fatal.
func MustRegistry(defs ...Definition) *Registry {
	r, err := NewRegistry(defs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup finds a command by name.
func (r *Registry) Lookup(name string) (Definition, error) {
	if r != nil {
		if def, ok := r.byName[name]; ok {
			return def, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

// Definitions returns the commands in declaration order.
func (r *Registry) Definitions() []Definition {
	if r == nil {
		return nil
	}
	return append([]Definition(nil), r.ordered...)
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ordered)
}

// MenuEntry is one line of the bot command menu.
type MenuEntry struct {
	Command     string
	Description string
}

// Menu lists visible commands that have a description, sorted by name.
func (r *Registry) Menu() []MenuEntry {
	var out []MenuEntry
	for _, def := range r.Definitions() {
		if def.IsHidden() || def.CommandDescription() == "" {
			continue
		}
		out = append(out, MenuEntry{Command: def.CommandName(), Description: def.CommandDescription()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}
