// Package line talks to the LINE Messaging API: push and reply calls over
// HTTPS and verification of signed webhook deliveries.
package line

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	logx "htbot/pkg/logx"
)

const DefaultAPIBase = "https://api.line.me"

// Config holds the channel credentials.
type Config struct {
	ChannelSecret string
	AccessToken   string
	APIBase       string        // default DefaultAPIBase
	Timeout       time.Duration // default 10s
}

// Message is one outbound LINE message object.
type Message map[string]any

func TextMessage(text string) Message {
	return Message{"type": "text", "text": text}
}

func FlexMessage(altText string, contents any) Message {
	return Message{"type": "flex", "altText": altText, "contents": contents}
}

// APIError is a non-2xx answer from the Messaging API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("line api: http %d: %s", e.Status, e.Body)
}

type Client struct {
	http   *resty.Client
	secret []byte
	log    logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("line: access token is required")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	hc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIBase, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetAuthToken(cfg.AccessToken).
		SetHeader("Content-Type", "application/json")
	return &Client{http: hc, secret: []byte(cfg.ChannelSecret), log: log}, nil
}

// Send pushes a text message to a user, group or room id.
func (c *Client) Send(ctx context.Context, destination, text string) error {
	return c.Push(ctx, destination, TextMessage(text))
}

func (c *Client) Push(ctx context.Context, to string, msgs ...Message) error {
	return c.call(ctx, "/v2/bot/message/push", map[string]any{"to": to, "messages": msgs})
}

func (c *Client) Reply(ctx context.Context, replyToken string, msgs ...Message) error {
	return c.call(ctx, "/v2/bot/message/reply", map[string]any{"replyToken": replyToken, "messages": msgs})
}

func (c *Client) call(ctx context.Context, path string, body any) error {
	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post(path)
	if err != nil {
		return fmt.Errorf("line %s: %w", path, err)
	}
	if resp.IsError() {
		return &APIError{Status: resp.StatusCode(), Body: truncate(resp.String(), 300)}
	}
	c.log.Debug("line api ok", logx.String("path", path))
	return nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
