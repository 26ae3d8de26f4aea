// Package mqttsource feeds readings published on an MQTT broker into the
// same ingestion pipeline as POST /history.
package mqttsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"htbot/internal/ingest"
	"htbot/internal/reading"
	logx "htbot/pkg/logx"
)

type Config struct {
	Broker   string
	ClientID string // default "htbot-<unix nanos>"
	Username string
	Password string
	Topic    string
	QoS      byte
}

// Ingester runs the ingestion pipeline.
type Ingester interface {
	Ingest(ctx context.Context, r reading.Reading) ingest.Result
}

var ErrNoDeviceID = errors.New("mqtt message has no device id")

type Source struct {
	cfg    Config
	ingest Ingester
	log    logx.Logger

	connectTimeout time.Duration
	newClient      func(*mqtt.ClientOptions) mqtt.Client
}

func New(cfg Config, ing Ingester, log logx.Logger) *Source {
	if strings.TrimSpace(cfg.ClientID) == "" {
		cfg.ClientID = fmt.Sprintf("htbot-%d", time.Now().UnixNano())
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Source{cfg: cfg, ingest: ing, log: log, connectTimeout: 15 * time.Second, newClient: mqtt.NewClient}
}

// DeviceFromTopic returns the second topic level ("ht/<id>/reading" gives
// "<id>"), or "" when there is none.
func DeviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Handle decodes one payload and runs the pipeline. The payload's id wins
// over the topic.
func (s *Source) Handle(ctx context.Context, topic string, payload []byte) (ingest.Result, error) {
	var in ingest.Input
	if err := json.Unmarshal(payload, &in); err != nil {
		return ingest.Result{}, fmt.Errorf("decode payload: %w", err)
	}
	if strings.TrimSpace(string(in.ID)) == "" {
		in.ID = reading.Text(DeviceFromTopic(topic))
	}
	if in.Validate() != nil {
		return ingest.Result{}, ErrNoDeviceID
	}
	return s.ingest.Ingest(ctx, in.Reading()), nil
}

func (s *Source) onMessage(ctx context.Context) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		res, err := s.Handle(ctx, msg.Topic(), msg.Payload())
		if err != nil {
			s.log.Warn("mqtt message dropped", logx.String("topic", msg.Topic()), logx.Err(err))
			return
		}
		s.log.Debug("mqtt reading ingested",
			logx.String("topic", msg.Topic()),
			logx.String("request_id", res.RequestID),
			logx.String("status", res.Status),
		)
	}
}

func (s *Source) options(ctx context.Context) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
	}
	if s.cfg.Password != "" {
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(s.connectTimeout)
	// Each message runs the pipeline with network calls; do not serialize them.
	opts.SetOrderMatters(false)

	handler := s.onMessage(ctx)
	// Subscribing on every connect restores the subscription after a reconnect.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		tok := c.Subscribe(s.cfg.Topic, s.cfg.QoS, handler)
		if !tok.WaitTimeout(s.connectTimeout) || tok.Error() != nil {
			s.log.Error("mqtt subscribe failed", logx.String("topic", s.cfg.Topic), logx.Err(tok.Error()))
			return
		}
		s.log.Info("mqtt subscribed", logx.String("topic", s.cfg.Topic), logx.Int("qos", int(s.cfg.QoS)))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.log.Warn("mqtt connection lost", logx.Err(err))
	})
	return opts
}

// Run connects and consumes until ctx ends. A failed first connect is
// returned so the caller's restart loop can retry.
func (s *Source) Run(ctx context.Context) error {
	c := s.newClient(s.options(ctx))
	tok := c.Connect()
	if !tok.WaitTimeout(s.connectTimeout) {
		return fmt.Errorf("mqtt connect %s: timed out", s.cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", s.cfg.Broker, err)
	}
	s.log.Info("mqtt connected", logx.String("broker", s.cfg.Broker), logx.String("client_id", s.cfg.ClientID))

	<-ctx.Done()
	c.Disconnect(250)
	s.log.Info("mqtt disconnected")
	return context.Canceled
}
