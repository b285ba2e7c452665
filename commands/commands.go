// Package commands holds the bot's conversation commands.
package commands

import (
	"net/http"

	"github.com/m3rciful/stagebot/core/conversation"
)

// Options configures the commands that talk to outside services.
type Options struct {
	// ImageURL is sent by the menu's random image button.
	ImageURL string
	// Jokes fetches the menu's dad jokes; the public icanhazdadjoke.com when nil.
	Jokes JokeSource
	// HTTPClient is used by the default joke source.
	HTTPClient *http.Client
}

// DefaultImageURL serves a different picture on every request.
const DefaultImageURL = "https://picsum.photos/640/480"

// Registry builds the command registry in scan order.
func Registry(opts Options) (*conversation.Registry, error) {
	if opts.ImageURL == "" {
		opts.ImageURL = DefaultImageURL
	}
	if opts.Jokes == nil {
		opts.Jokes = NewJokeClient(opts.HTTPClient, "")
	}
	return conversation.NewRegistry(
		Ping(),
		Intro(),
		Menu(opts.ImageURL, opts.Jokes),
	)
}
