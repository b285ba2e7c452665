package telegram

import (
	"context"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stagebot/core/conversation"
	"github.com/m3rciful/stagebot/core/logger"
)

// CommandSetter is the part of *tele.Bot that publishes the command menu.
type CommandSetter interface {
	SetCommands(opts ...interface{}) error
}

// MenuCommands converts registry menu entries to Bot API commands.
func MenuCommands(entries []conversation.MenuEntry) []tele.Command {
	out := make([]tele.Command, 0, len(entries))
	for _, e := range entries {
		out = append(out, tele.Command{Text: e.Command, Description: e.Description})
	}
	return out
}

// InitBotCommands sets the Telegram bot commands shown in the command menu.
// Failure is logged and not fatal.
func InitBotCommands(ctx context.Context, bot CommandSetter, reg *conversation.Registry) {
	cmds := MenuCommands(reg.Menu())
	if len(cmds) == 0 {
		return
	}
	if err := bot.SetCommands(cmds); err != nil {
		logger.LogEvent(ctx, logger.TWire, slog.LevelError, "register.commands.set_failed",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return
	}
	names := make([]string, len(cmds))
	for i, c := range cmds {
		names[i] = c.Text
	}
	summary, _ := logger.SummarizeStrings(names, 10)
	logger.LogEvent(ctx, logger.TWire, slog.LevelInfo, "register.commands.set",
		slog.String("status", "ok"),
		slog.Int("count", len(cmds)),
		slog.String("commands", summary),
	)
}
