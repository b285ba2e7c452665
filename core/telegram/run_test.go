package telegram

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/stagebot/core/config"
	"github.com/m3rciful/stagebot/core/conversation"
)

func TestBuildPoller(t *testing.T) {
	cfg := &coreconfig.Config{
		Telegram: coreconfig.TelegramConfig{RunMode: coreconfig.RunModeWebhook},
		Webhook:  coreconfig.WebhookConfig{Listen: "0.0.0.0", Port: 8443, URL: "https://bot.example.com/hook"},
	}
	wh, ok := BuildPoller(PollerOptionsFrom(cfg)).(*tele.Webhook)
	require.True(t, ok)
	assert.Equal(t, "0.0.0.0:8443", wh.Listen)
	assert.Equal(t, "https://bot.example.com/hook", wh.Endpoint.PublicURL)
	assert.Equal(t, []string{"message", "callback_query"}, wh.AllowedUpdates)

	cfg.Telegram.RunMode = coreconfig.RunModeLongpoll
	lp, ok := BuildPoller(PollerOptionsFrom(cfg)).(*tele.LongPoller)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, lp.Timeout)

	cfg.Telegram.LongPollTimeoutSeconds = 50
	lp = BuildPoller(PollerOptionsFrom(cfg)).(*tele.LongPoller)
	assert.Equal(t, 50*time.Second, lp.Timeout)
}

func TestDefaultMiddlewares(t *testing.T) {
	assert.Equal(t, []string{"logger", "recover"}, MiddlewareNames(DefaultMiddlewares(nil, nil)))

	cfg := &coreconfig.Config{RateLimit: coreconfig.RateLimitConfig{IntervalMS: 500, ExcludeUpdates: []string{"callback"}}}
	assert.Equal(t, []string{"logger", "recover", "rate_limit"}, MiddlewareNames(DefaultMiddlewares(cfg, nil)))
}

type fakeCommandSetter struct {
	got []tele.Command
	err error
}

func (f *fakeCommandSetter) SetCommands(opts ...interface{}) error {
	if f.err != nil {
		return f.err
	}
	for _, o := range opts {
		if cmds, ok := o.([]tele.Command); ok {
			f.got = append(f.got, cmds...)
		}
	}
	return nil
}

func menuRegistry(t *testing.T) *conversation.Registry {
	t.Helper()
	noop := func(context.Context, conversation.Event, struct{}) (*conversation.Result[struct{}], error) {
		return conversation.Reply[struct{}](), nil
	}
	reg, err := conversation.NewRegistry(
		&conversation.Command[struct{}]{Name: "ping", Description: "Check the bot is alive", Stages: []conversation.Stage[struct{}]{conversation.OnCommand(noop)}},
		&conversation.Command[struct{}]{Name: "debug", Hidden: true, Description: "internal", Stages: []conversation.Stage[struct{}]{conversation.OnCommand(noop)}},
		&conversation.Command[struct{}]{Name: "intro", Description: "Introduce yourself", Stages: []conversation.Stage[struct{}]{conversation.OnCommand(noop)}},
	)
	require.NoError(t, err)
	return reg
}

func TestInitBotCommands(t *testing.T) {
	setter := &fakeCommandSetter{}
	InitBotCommands(context.Background(), setter, menuRegistry(t))
	assert.Equal(t, []tele.Command{
		{Text: "intro", Description: "Introduce yourself"},
		{Text: "ping", Description: "Check the bot is alive"},
	}, setter.got)

	failing := &fakeCommandSetter{err: errors.New("Unauthorized")}
	InitBotCommands(context.Background(), failing, menuRegistry(t))
	assert.Empty(t, failing.got)
}

func TestBuildHTTPClientStretchesForLongPoll(t *testing.T) {
	c := BuildHTTPClient(0)
	assert.Equal(t, defaultClientTimeout, c.Timeout)

	c = BuildHTTPClient(50 * time.Second)
	assert.Equal(t, 70*time.Second, c.Timeout)
	rt := c.Transport.(*retryTransport)
	assert.Equal(t, 60*time.Second, rt.base.(*http.Transport).ResponseHeaderTimeout)
}

type flakyRoundTripper struct {
	fails int
	calls int
}

func (f *flakyRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	}
	return http.DefaultTransport.RoundTrip(req)
}

func TestRetryTransportRetriesDialErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	base := &flakyRoundTripper{fails: 2}
	client := &http.Client{Transport: &retryTransport{base: base, maxRetries: 3, backoff: time.Millisecond}}

	resp, err := client.Get(srv.URL + "/bot123:abc/getMe")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 3, base.calls)
}

func TestRetryTransportGivesUp(t *testing.T) {
	base := &flakyRoundTripper{fails: 10}
	client := &http.Client{Transport: &retryTransport{base: base, maxRetries: 1, backoff: time.Millisecond}}
	_, err := client.Get("http://127.0.0.1:1/")
	require.Error(t, err)
	assert.Equal(t, 2, base.calls)
}

func TestRedactPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "https://api.telegram.org/bot123:secret/sendMessage", nil)
	assert.Equal(t, "sendMessage", redactPath(req))
}

func TestBindUpdatesRoutesNonTextMessages(t *testing.T) {
	b, err := tele.NewBot(tele.Settings{Offline: true, Synchronous: true})
	require.NoError(t, err)

	var got []conversation.Event
	bindUpdates(b, func(c tele.Context) error {
		ev, ok := EventFromContext(c)
		require.True(t, ok)
		got = append(got, ev)
		return nil
	})

	user := &tele.User{ID: 7}
	chat := &tele.Chat{ID: 9}
	for i, msg := range []*tele.Message{
		{Text: "hello"},
		{Photo: &tele.Photo{File: tele.File{FileID: "p"}}, Caption: "look"},
		{Sticker: &tele.Sticker{File: tele.File{FileID: "s"}}},
		{Location: &tele.Location{Lat: 1, Lng: 2}},
		{Dice: &tele.Dice{Type: "🎲", Value: 3}},
	} {
		msg.ID = i + 1
		msg.Sender = user
		msg.Chat = chat
		b.ProcessUpdate(tele.Update{ID: i + 1, Message: msg})
	}
	b.ProcessUpdate(tele.Update{ID: 99, Callback: &tele.Callback{
		ID: "cb", Sender: user, Data: "x", Message: &tele.Message{ID: 50, Chat: chat},
	}})

	require.Len(t, got, 6)
	assert.Equal(t, conversation.TextEvent(9, 7, "hello", 1, false), got[0])
	for i, ev := range got[1:5] {
		assert.Equal(t, conversation.TextEvent(9, 7, "", i+2, false), ev)
	}
	assert.Equal(t, conversation.EventCallback, got[5].Kind)
}
