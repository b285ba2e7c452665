package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/m3rciful/stagebot/core/logger"
)

// JokeSource returns one joke per call.
type JokeSource interface {
	RandomJoke(ctx context.Context) (string, error)
}

// ErrEmptyJoke is returned when the service answers with an empty body.
var ErrEmptyJoke = errors.New("jokes: empty answer")

const (
	defaultJokeURL = "https://icanhazdadjoke.com/"
	jokeUserAgent  = "stagebot (https://github.com/m3rciful/stagebot)"
	maxJokeBytes   = 4 << 10
)

// JokeClient fetches plain-text dad jokes over HTTP.
type JokeClient struct {
	client *http.Client
	url    string
}

// NewJokeClient returns a client for url, icanhazdadjoke.com when empty.
func NewJokeClient(client *http.Client, url string) *JokeClient {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if url == "" {
		url = defaultJokeURL
	}
	return &JokeClient{client: client, url: url}
}

// RandomJoke fetches one joke.
func (c *JokeClient) RandomJoke(ctx context.Context) (string, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("jokes: build request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("User-Agent", jokeUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		logger.Warn(ctx, "app", "joke.fetch",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("jokes: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxJokeBytes))
		return "", fmt.Errorf("jokes: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJokeBytes))
	if err != nil {
		return "", fmt.Errorf("jokes: read body: %w", err)
	}
	joke := strings.TrimSpace(string(body))
	if joke == "" {
		return "", ErrEmptyJoke
	}
	logger.Debug(ctx, "app", "joke.fetch",
		slog.String("status", "ok"),
		slog.Int("duration_ms", logger.DurationMS(time.Since(start))),
	)
	return joke, nil
}
