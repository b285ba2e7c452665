package conversation

import (
	"regexp"
	"strings"
)

// CommandPrefix introduces a bot command in chat text.
const CommandPrefix = "/"

// TriggerKind selects how a text stage decides whether it accepts an event.
type TriggerKind int

const (
	// TriggerCommand accepts "/<command name>" with an optional "@botname" suffix.
	TriggerCommand TriggerKind = iota + 1
	// TriggerText accepts text, optionally filtered by a predicate or pattern.
	TriggerText
)

// Trigger is the acceptance rule of a text stage.
type Trigger struct {
	kind      TriggerKind
	predicate func(string) bool
	pattern   *regexp.Regexp
}

// CommandTrigger matches the owning command's name.
func CommandTrigger() Trigger {
	return Trigger{kind: TriggerCommand}
}

// AnyText matches any text message.
func AnyText() Trigger {
	return Trigger{kind: TriggerText}
}

// TextFunc matches text for which fn returns true.
func TextFunc(fn func(string) bool) Trigger {
	return Trigger{kind: TriggerText, predicate: fn}
}

// TextPattern matches text containing a match of re.
func TextPattern(re *regexp.Regexp) Trigger {
	return Trigger{kind: TriggerText, pattern: re}
}

// Kind returns the trigger variant.
func (t Trigger) Kind() TriggerKind { return t.kind }

// CommandName extracts the command name from text such as "/intro@my_bot".
// ok is false when text does not start with the command prefix.
func CommandName(text string) (name string, ok bool) {
	if !strings.HasPrefix(text, CommandPrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(text, CommandPrefix)
	name, _, _ = strings.Cut(rest, "@")
	return name, true
}

func (t Trigger) matchText(commandName, text string) bool {
	switch t.kind {
	case TriggerCommand:
		name, ok := CommandName(text)
		return ok && name == commandName
	case TriggerText:
		switch {
		case t.predicate != nil:
			return t.predicate(text)
		case t.pattern != nil:
			return t.pattern.MatchString(text)
		default:
			return true
		}
	}
	return false
}

// StageKind says which kind of event a stage consumes.
type StageKind int

const (
	// StageText consumes text messages through a Trigger.
	StageText StageKind = iota + 1
	// StageCallback consumes any button click; the handler interprets the payload.
	StageCallback
)

// String returns a short label used in logs.
func (k StageKind) String() string {
	switch k {
	case StageText:
		return "text"
	case StageCallback:
		return "callback"
	}
	return "unknown"
}

// StageSpec is the transport-neutral description of a stage used for matching.
type StageSpec struct {
	Kind    StageKind
	Trigger Trigger
}

// Matches reports whether ev may be consumed by a stage of the named command.
// It has no side effects.
func Matches(commandName string, stage StageSpec, ev Event) bool {
	switch stage.Kind {
	case StageText:
		if ev.Kind != EventText {
			return false
		}
		return stage.Trigger.matchText(commandName, ev.Text)
	case StageCallback:
		return ev.Kind == EventCallback
	}
	return false
}
