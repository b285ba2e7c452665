// Package keyboard builds telebot reply markups.
package keyboard

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stagebot/core/conversation"
)

// RemoveKeyboard returns a markup that hides the keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// ReplyButtons builds a reply keyboard from rows of text.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true}
	var keyboard []tele.Row
	for _, row := range rows {
		var buttons []tele.Btn
		for _, label := range row {
			buttons = append(buttons, markup.Text(label))
		}
		keyboard = append(keyboard, markup.Row(buttons...))
	}
	markup.Reply(keyboard...)
	return markup
}

// InlineButtonsRows builds an inline keyboard from rows of buttons. Button
// data is sent as is, so a click returns exactly Button.Data.
func InlineButtonsRows(rows ...[]conversation.Button) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, len(rows))
	for i, row := range rows {
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = tele.InlineButton{Text: btn.Text, Data: btn.Data}
		}
		inline[i] = r
	}
	markup.InlineKeyboard = inline
	return markup
}

// InlineButtonsNPerRow splits a flat list of buttons into rows with up to n buttons per row.
// If n <= 1, every button gets its own row.
func InlineButtonsNPerRow(buttons []conversation.Button, n int) [][]conversation.Button {
	if n <= 1 {
		n = 1
	}
	var rows [][]conversation.Button
	for i := 0; i < len(buttons); i += n {
		end := i + n
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	return rows
}

// FromOptions picks the markup described by opts. An inline keyboard wins
// over a reply keyboard, which wins over removal; nil means no markup.
func FromOptions(opts conversation.Options) *tele.ReplyMarkup {
	switch {
	case len(opts.Keyboard) > 0:
		return InlineButtonsRows(opts.Keyboard...)
	case len(opts.ReplyKeyboard) > 0:
		return ReplyButtons(opts.ReplyKeyboard...)
	case opts.RemoveKeyboard:
		return RemoveKeyboard()
	}
	return nil
}
