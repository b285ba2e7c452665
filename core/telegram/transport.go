package telegram

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stagebot/core/conversation"
	"github.com/m3rciful/stagebot/core/telegram/keyboard"
	tgsender "github.com/m3rciful/stagebot/core/telegram/sender"
)

// Bot is the subset of *tele.Bot the transport calls.
type Bot interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// Transport sends conversation responses through the Bot API. Every call
// goes through the sender dispatcher so transient failures are retried.
type Transport struct {
	bot    Bot
	sender *tgsender.Dispatcher
}

var _ conversation.Transport = (*Transport)(nil)

// NewTransport wraps bot. A nil dispatcher runs calls once without retries.
func NewTransport(bot Bot, sender *tgsender.Dispatcher) *Transport {
	return &Transport{bot: bot, sender: sender}
}

// SendText sends a text message.
func (t *Transport) SendText(ctx context.Context, chatID int64, text string, opts conversation.Options) (*conversation.MessageRef, error) {
	return t.send(ctx, "send_text", chatID, text, opts)
}

// SendPhoto sends a photo from an http(s) URL or a local path.
func (t *Transport) SendPhoto(ctx context.Context, chatID int64, source string, opts conversation.Options) (*conversation.MessageRef, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("telegram: send photo: empty source")
	}
	photo := &tele.Photo{File: fileFrom(source), Caption: opts.Caption}
	return t.send(ctx, "send_photo", chatID, photo, opts)
}

// SendDocument sends a document from an http(s) URL or a local path.
func (t *Transport) SendDocument(ctx context.Context, chatID int64, source string, opts conversation.Options) (*conversation.MessageRef, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("telegram: send document: empty source")
	}
	doc := &tele.Document{File: fileFrom(source), Caption: opts.Caption, FileName: opts.FileName}
	return t.send(ctx, "send_document", chatID, doc, opts)
}

// DeleteMessage deletes one message from the chat.
func (t *Transport) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	msg := tele.StoredMessage{MessageID: fmt.Sprint(messageID), ChatID: chatID}
	return t.do(ctx, "delete_message", func() error {
		return t.bot.Delete(msg)
	})
}

func (t *Transport) send(ctx context.Context, action string, chatID int64, what interface{}, opts conversation.Options) (*conversation.MessageRef, error) {
	var msg *tele.Message
	err := t.do(ctx, action, func() error {
		var err error
		msg, err = t.bot.Send(tele.ChatID(chatID), what, sendOptions(opts))
		return err
	})
	if err != nil {
		return nil, err
	}
	if msg == nil || msg.ID == 0 {
		return nil, nil
	}
	ref := &conversation.MessageRef{ChatID: chatID, MessageID: msg.ID}
	if msg.Chat != nil && msg.Chat.ID != 0 {
		ref.ChatID = msg.Chat.ID
	}
	return ref, nil
}

func (t *Transport) do(ctx context.Context, action string, run func() error) error {
	if t.sender == nil {
		return run()
	}
	return t.sender.Do(ctx, action, "", run)
}

func sendOptions(opts conversation.Options) *tele.SendOptions {
	so := &tele.SendOptions{
		ParseMode:             tele.ParseMode(opts.ParseMode),
		ReplyMarkup:           keyboard.FromOptions(opts),
		DisableWebPagePreview: opts.DisablePreview,
	}
	if opts.ReplyToMessageID != 0 {
		so.ReplyTo = &tele.Message{ID: opts.ReplyToMessageID}
	}
	return so
}

func fileFrom(source string) tele.File {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return tele.FromURL(source)
	}
	return tele.FromDisk(source)
}
