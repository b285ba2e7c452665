package commands

import (
	"context"

	"github.com/m3rciful/stagebot/core/conversation"
)

// Ping answers /ping with "pong".
func Ping() *conversation.Command[struct{}] {
	return &conversation.Command[struct{}]{
		Name:        "ping",
		Description: "Check that the bot is alive",
		Stages: []conversation.Stage[struct{}]{
			conversation.OnCommand(func(context.Context, conversation.Event, struct{}) (*conversation.Result[struct{}], error) {
				return conversation.Reply[struct{}](conversation.Text("pong")), nil
			}),
		},
	}
}
