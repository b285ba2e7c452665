package commands

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stagebot/core/conversation"
	"github.com/m3rciful/stagebot/core/telegram/format"
	"github.com/m3rciful/stagebot/core/telegram/keyboard"
)

// Callback data carried by the menu buttons.
const (
	DataRandomImage   = "random_image"
	DataRandomDadJoke = "random_dad_joke"
)

// Menu offers two buttons and answers the one clicked. Unknown button data
// is declined so the session stays on the menu.
func Menu(imageURL string, jokes JokeSource) *conversation.Command[struct{}] {
	buttons := []conversation.Button{
		{Text: "Random image", Data: DataRandomImage},
		{Text: "Random dad joke", Data: DataRandomDadJoke},
	}
	return &conversation.Command[struct{}]{
		Name:        "menu",
		Description: "Pick something fun",
		Stages: []conversation.Stage[struct{}]{
			conversation.OnCommand(func(context.Context, conversation.Event, struct{}) (*conversation.Result[struct{}], error) {
				return conversation.Reply[struct{}](conversation.Text("Pick an option", conversation.Options{
					Keyboard: keyboard.InlineButtonsNPerRow(buttons, 2),
				})), nil
			}),
			conversation.OnCallback(func(ctx context.Context, ev conversation.Event, _ struct{}) (*conversation.Result[struct{}], error) {
				switch ev.Data {
				case DataRandomImage:
					return conversation.Reply[struct{}](conversation.Photo(imageURL)), nil
				case DataRandomDadJoke:
					joke, err := jokes.RandomJoke(ctx)
					if err != nil {
						return nil, fmt.Errorf("menu: %w", err)
					}
					return conversation.Reply[struct{}](conversation.Text("_"+format.MustEscapeV2(joke)+"_", conversation.Options{
						ParseMode: tele.ModeMarkdownV2,
					})), nil
				}
				return nil, nil
			}),
		},
	}
}
