package netutil

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestShouldRetry(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":            {nil, false},
		"plain":          {errors.New("bad request"), false},
		"dial":           {dial, true},
		"wrapped dial":   {fmt.Errorf("send: %w", dial), true},
		"timeout":        {timeoutErr{}, true},
		"url timeout":    {&url.Error{Op: "Post", URL: "https://api.telegram.org", Err: timeoutErr{}}, true},
		"url dial":       {&url.Error{Op: "Post", URL: "https://api.telegram.org", Err: dial}, true},
		"url plain":      {&url.Error{Op: "Post", URL: "https://api.telegram.org", Err: errors.New("eof")}, false},
		"telegram 502":   {&tele.Error{Code: 502, Description: "Bad Gateway"}, true},
		"telegram 400":   {&tele.Error{Code: 400, Description: "message to delete not found"}, false},
		"telegram flood": {tele.FloodError{RetryAfter: 3}, true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldRetry(tc.err))
		})
	}
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, RetryAfter(tele.FloodError{RetryAfter: 3}))
	assert.Zero(t, RetryAfter(errors.New("x")))
	assert.Zero(t, RetryAfter(nil))
}
