// Package upstream is the client for the action-tagged store endpoint that
// owns device config, subscriptions and reading history.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"htbot/internal/reading"
	logx "htbot/pkg/logx"
)

const defaultTimeout = 15 * time.Second

// Client talks to the store. Every call is bounded by the same timeout and is
// never retried; a timeout is that call's failure.
type Client struct {
	http *resty.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("upstream base url is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	hc := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")
	return &Client{http: hc, log: log}, nil
}

func (c *Client) get(ctx context.Context, action string, params map[string]string) ([]byte, error) {
	q := map[string]string{"action": action}
	for k, v := range params {
		q[k] = v
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(q).
		Get("")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	return checkBody(action, resp)
}

func (c *Client) post(ctx context.Context, action string, body map[string]any) ([]byte, error) {
	payload := map[string]any{"action": action}
	for k, v := range body {
		payload[k] = v
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post("")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	return checkBody(action, resp)
}

func checkBody(action string, resp *resty.Response) ([]byte, error) {
	if resp.IsError() {
		return nil, fmt.Errorf("%s: http %d", action, resp.StatusCode())
	}
	b := resp.Body()
	if !json.Valid(b) {
		return nil, fmt.Errorf("%s: response is not json", action)
	}
	return b, nil
}

func decode[T any](action string, b []byte) (T, error) {
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("%s: decode: %w", action, err)
	}
	return out, nil
}

// WriteConfig upserts the config row of a device.
func (c *Client) WriteConfig(ctx context.Context, dc DeviceConfig) (Ack, error) {
	return c.post(ctx, "writeConfig", map[string]any{
		"id":        dc.ID,
		"unit":      dc.Unit,
		"adj_temp":  dc.AdjTemp,
		"adj_humid": dc.AdjHumid,
	})
}

func (c *Client) GetConfigByID(ctx context.Context, id string) (ConfigResponse, error) {
	b, err := c.get(ctx, "getConfigById", map[string]string{"id": id})
	if err != nil {
		return ConfigResponse{}, err
	}
	out, err := decode[ConfigResponse]("getConfigById", b)
	if err == nil {
		c.log.Debug("getConfigById", logx.String("id", id), logx.Int("count", len(out.Data)))
	}
	return out, err
}

// ListDevices returns every device id known to the config sheet.
func (c *Client) ListDevices(ctx context.Context) (DeviceList, error) {
	b, err := c.get(ctx, "listDevices", nil)
	if err != nil {
		return DeviceList{}, err
	}
	return decode[DeviceList]("listDevices", b)
}

func (c *Client) AddSubscription(ctx context.Context, id, destination string) (Ack, error) {
	return c.post(ctx, "addSubscription", map[string]any{
		"id":      id,
		"line_id": destination,
	})
}

// GetSubscriptionsByID returns the raw lookup body. Interpreting it is the
// subscription resolver's job, which must fail closed on odd shapes.
func (c *Client) GetSubscriptionsByID(ctx context.Context, id string) ([]byte, error) {
	b, err := c.get(ctx, "getSubscriptionsById", map[string]string{"id": id})
	if err != nil {
		return nil, err
	}
	c.log.Debug("getSubscriptionsById", logx.String("id", id), logx.Int("bytes", len(b)))
	return b, nil
}

// AppendHistory appends one reading. An empty timestamp lets the store stamp it.
func (c *Client) AppendHistory(ctx context.Context, r reading.Reading) (Ack, error) {
	body := map[string]any{
		"id":    r.DeviceID,
		"temp":  r.Temperature,
		"humid": r.Humidity,
		"hic":   r.HeatIndex,
		"flag":  string(r.Flag),
	}
	if strings.TrimSpace(r.Timestamp) != "" {
		body["timestamp"] = r.Timestamp
	}
	return c.post(ctx, "appendHistory", body)
}

// GetHistoryByIDSorted returns one device's history, oldest first.
func (c *Client) GetHistoryByIDSorted(ctx context.Context, id string) (HistoryResponse, error) {
	b, err := c.get(ctx, "getHistoryByIdSorted", map[string]string{"id": id})
	if err != nil {
		return HistoryResponse{}, err
	}
	out, err := decode[HistoryResponse]("getHistoryByIdSorted", b)
	if err == nil {
		c.log.Debug("getHistoryByIdSorted", logx.String("id", id), logx.Int("count", out.Count))
	}
	return out, err
}

// History returns the history of every device bound to destination, newest first.
func (c *Client) History(ctx context.Context, destination string) (HistoryResponse, error) {
	b, err := c.get(ctx, "history", map[string]string{"line_id": destination})
	if err != nil {
		return HistoryResponse{}, err
	}
	out, err := decode[HistoryResponse]("history", b)
	if err == nil {
		c.log.Debug("history", logx.String("line_id", destination), logx.Int("count", out.Count))
	}
	return out, err
}

// CurrentStatus returns the last known state of every device bound to destination.
func (c *Client) CurrentStatus(ctx context.Context, destination string) (StatusResponse, error) {
	b, err := c.get(ctx, "current_status", map[string]string{"line_id": destination})
	if err != nil {
		return StatusResponse{}, err
	}
	out, err := decode[StatusResponse]("current_status", b)
	if err == nil {
		c.log.Debug("current_status", logx.String("line_id", destination), logx.Int("count", len(out.Data)))
	}
	return out, err
}
