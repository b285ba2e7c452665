// Package callbacks decodes inline button data as delivered by Telegram.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// uniquePrefix marks telebot's "\f<unique>|<payload>" encoding.
const uniquePrefix = "\f"

// ParseCallbackData splits raw button data into unique and payload.
// Data without the telebot prefix is returned whole as payload.
func ParseCallbackData(raw string) (unique, payload string) {
	if !strings.HasPrefix(raw, uniquePrefix) {
		return "", raw
	}
	raw = strings.TrimPrefix(raw, uniquePrefix)
	unique, payload, _ = strings.Cut(raw, "|")
	return strings.TrimSpace(unique), payload
}

// Data returns the button data exactly as it was attached to the button.
// Telebot strips "\f<unique>|" before handlers run; it is put back here so
// buttons built with and without a unique key read the same.
func Data(cb *tele.Callback) string {
	if cb == nil {
		return ""
	}
	if cb.Unique == "" {
		return cb.Data
	}
	if cb.Data == "" {
		return cb.Unique
	}
	return cb.Unique + "|" + cb.Data
}

// CallbackKey returns cb.Unique if present; otherwise parses it from Data.
func CallbackKey(cb *tele.Callback) string {
	if cb == nil {
		return ""
	}
	if cb.Unique != "" {
		return cb.Unique
	}
	k, _ := ParseCallbackData(cb.Data)
	return k
}
