// Package conversation implements staged, restartable command conversations.
//
// A command is an ordered list of stages. Each inbound event is matched
// against the current stage of a session, the stage handler turns the
// event and the accumulated state into responses, and the engine sends
// those responses after removing the messages it sent on the previous step.
// The whole position of a session fits into a Snapshot so it can be
// persisted between events.
package conversation

// EventKind distinguishes free-text messages from button clicks.
type EventKind int

const (
	// EventText is a plain chat message.
	EventText EventKind = iota + 1
	// EventCallback is an inline button click.
	EventCallback
)

// String returns a short label used in logs.
func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventCallback:
		return "callback"
	}
	return "unknown"
}

// Event is an inbound update already stripped of transport specifics.
type Event struct {
	Kind   EventKind
	ChatID int64
	UserID int64
	IsBot  bool

	// Text events.
	Text      string
	MessageID int

	// Callback events.
	Data            string
	SourceMessageID int
	CallbackID      string
}

// TextEvent builds a text message event.
func TextEvent(chatID, userID int64, text string, messageID int, isBot bool) Event {
	return Event{
		Kind:      EventText,
		ChatID:    chatID,
		UserID:    userID,
		Text:      text,
		MessageID: messageID,
		IsBot:     isBot,
	}
}

// CallbackEvent builds a button click event. sourceMessageID is the message
// carrying the clicked keyboard, 0 when unknown.
func CallbackEvent(chatID, userID int64, data string, sourceMessageID int) Event {
	return Event{
		Kind:            EventCallback,
		ChatID:          chatID,
		UserID:          userID,
		Data:            data,
		SourceMessageID: sourceMessageID,
	}
}

// IsText reports whether the event is a text message.
func (e Event) IsText() bool { return e.Kind == EventText }

// IsCallback reports whether the event is a button click.
func (e Event) IsCallback() bool { return e.Kind == EventCallback }
