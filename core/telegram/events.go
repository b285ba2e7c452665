package telegram

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stagebot/core/conversation"
	"github.com/m3rciful/stagebot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/stagebot/core/telegram/helpers"
)

// EventFromContext converts a text message or a callback query into a
// conversation event. Other updates report false.
func EventFromContext(c tele.Context) (conversation.Event, bool) {
	upd := c.Update()
	chatID, userID := tghelpers.IDs(c)

	switch {
	case upd.Callback != nil:
		cb := upd.Callback
		sourceID := 0
		if cb.Message != nil {
			sourceID = cb.Message.ID
			if chatID == 0 && cb.Message.Chat != nil {
				chatID = cb.Message.Chat.ID
			}
		}
		if chatID == 0 {
			return conversation.Event{}, false
		}
		ev := conversation.CallbackEvent(chatID, userID, callbacks.Data(cb), sourceID)
		ev.CallbackID = cb.ID
		if cb.Sender != nil {
			ev.IsBot = cb.Sender.IsBot
		}
		return ev, true

	case upd.Message != nil:
		msg := upd.Message
		if chatID == 0 {
			return conversation.Event{}, false
		}
		isBot := msg.Sender != nil && msg.Sender.IsBot
		return conversation.TextEvent(chatID, userID, msg.Text, msg.ID, isBot), true
	}
	return conversation.Event{}, false
}
