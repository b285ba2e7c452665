package conversation

import "context"

// ResponseKind tags the variant of a Response.
type ResponseKind int

const (
	// ResponseText sends a text message.
	ResponseText ResponseKind = iota + 1
	// ResponsePhoto sends a photo.
	ResponsePhoto
	// ResponseFile sends a document.
	ResponseFile
)

// String returns a short label used in logs.
func (k ResponseKind) String() string {
	switch k {
	case ResponseText:
		return "text"
	case ResponsePhoto:
		return "photo"
	case ResponseFile:
		return "file"
	}
	return "unknown"
}

// Button is one inline keyboard button. Data comes back as Event.Data on click.
type Button struct {
	Text string
	Data string
}

// Options tune how a response is rendered by the transport.
type Options struct {
	ParseMode        string
	Keyboard         [][]Button
	ReplyKeyboard    [][]string
	RemoveKeyboard   bool
	ReplyToMessageID int
	DisablePreview   bool

	// Photo and file responses.
	Caption  string
	FileName string
}

// Response is a declarative outbound message. It carries no transport identifiers.
type Response struct {
	Kind    ResponseKind
	Text    string
	Source  string
	Options Options
}

// Text declares a text message.
func Text(text string, opts ...Options) Response {
	return Response{Kind: ResponseText, Text: text, Options: firstOptions(opts)}
}

// Photo declares a photo. source is an http(s) URL or a local path.
func Photo(source string, opts ...Options) Response {
	return Response{Kind: ResponsePhoto, Source: source, Options: firstOptions(opts)}
}

// File declares a document. source is an http(s) URL or a local path.
func File(source string, opts ...Options) Response {
	return Response{Kind: ResponseFile, Source: source, Options: firstOptions(opts)}
}

func firstOptions(opts []Options) Options {
	if len(opts) == 0 {
		return Options{}
	}
	return opts[0]
}

// MessageRef identifies a message accepted by the transport.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Transport is the part of the chat transport the engine drives.
// A nil *MessageRef with a nil error means the transport returned no identifier.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string, opts Options) (*MessageRef, error)
	SendPhoto(ctx context.Context, chatID int64, source string, opts Options) (*MessageRef, error)
	SendDocument(ctx context.Context, chatID int64, source string, opts Options) (*MessageRef, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}
