package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"htbot/internal/eventbus"
	"htbot/internal/notifier"
	"htbot/internal/reading"
	"htbot/internal/upstream"
	logx "htbot/pkg/logx"
)

const (
	StatusOK    = "ok"
	StatusError = "error"

	SkipOffSchedule   = "skipped: off-schedule"
	SkipNoSubscribers = "skipped: no subscribers"
)

var ErrMissingDeviceID = errors.New("missing device id")

// Store is the slice of the upstream store the pipeline needs.
type Store interface {
	AppendHistory(ctx context.Context, r reading.Reading) (upstream.Ack, error)
	GetConfigByID(ctx context.Context, id string) (upstream.ConfigResponse, error)
	GetSubscriptionsByID(ctx context.Context, id string) ([]byte, error)
}

// Dispatcher fans a message out to destinations.
type Dispatcher interface {
	Dispatch(ctx context.Context, destinations []string, text string) []notifier.Outcome
}

// Input is the ingestion payload sent by devices. Numeric fields that fail
// to parse decode to 0.
type Input struct {
	ID        reading.Text  `json:"id"`
	Temp      reading.Float `json:"temp"`
	Humid     reading.Float `json:"humid"`
	HIC       reading.Float `json:"hic"`
	Flag      reading.Text  `json:"flag"`
	Timestamp reading.Text  `json:"timestamp"`
}

func (in Input) Validate() error {
	if strings.TrimSpace(string(in.ID)) == "" {
		return ErrMissingDeviceID
	}
	return nil
}

// Reading converts the payload. A missing flag becomes reading.DefaultFlag.
func (in Input) Reading() reading.Reading {
	flag := reading.Flag(strings.TrimSpace(string(in.Flag)))
	if flag == "" {
		flag = reading.DefaultFlag
	}
	return reading.Reading{
		DeviceID:    strings.TrimSpace(string(in.ID)),
		Timestamp:   strings.TrimSpace(string(in.Timestamp)),
		Temperature: reading.SafeFloat(in.Temp),
		Humidity:    reading.SafeFloat(in.Humid),
		HeatIndex:   reading.SafeFloat(in.HIC),
		Flag:        flag,
	}
}

// Result is the ingestion response returned to the device.
type Result struct {
	Status  string             `json:"status"`
	Message string             `json:"message,omitempty"`
	Storage upstream.Ack       `json:"google_sheet,omitempty"`
	Pushes  []notifier.Outcome `json:"line_push_results,omitempty"`

	RequestID string `json:"-"`
}

type Pipeline struct {
	store  Store
	notify Dispatcher
	bus    eventbus.Bus
	log    logx.Logger
	now    func() time.Time
}

// New builds a pipeline. bus may be nil.
func New(store Store, notify Dispatcher, bus eventbus.Bus, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{store: store, notify: notify, bus: bus, log: log, now: time.Now}
}

// Ingest runs the pipeline for one reading.
func (p *Pipeline) Ingest(ctx context.Context, r reading.Reading) Result {
	start := p.now()
	res := Result{RequestID: uuid.NewString()}
	log := p.log.With(logx.String("request_id", res.RequestID), logx.String("device", r.DeviceID))
	ev := eventbus.Ingested{RequestID: res.RequestID, DeviceID: r.DeviceID}
	defer func() {
		ev.Took = p.now().Sub(start)
		p.publish(ev)
	}()

	ack, err := p.store.AppendHistory(ctx, r)
	if err != nil {
		log.Error("append history failed", logx.Err(err))
		res.Status = StatusError
		res.Message = "append_history failed: " + err.Error()
		ev.SkipReason = res.Message
		return res
	}
	res.Status = StatusOK
	res.Storage = ack
	ev.Persisted = true

	// Persisted: the rest is best effort and must not be cut short by the caller.
	ctx = context.WithoutCancel(ctx)

	name := p.displayName(ctx, r.DeviceID, log)

	if !Eligible(r.Timestamp) {
		log.Debug("push skipped", logx.String("reason", SkipOffSchedule), logx.String("timestamp", r.Timestamp))
		res.Pushes = []notifier.Outcome{notifier.Skip(SkipOffSchedule)}
		ev.SkipReason = SkipOffSchedule
		ev.Skipped = 1
		return res
	}
	ev.Eligible = true

	dests := p.destinations(ctx, r.DeviceID, log)
	if len(dests) == 0 {
		log.Debug("push skipped", logx.String("reason", SkipNoSubscribers))
		res.Pushes = []notifier.Outcome{notifier.Skip(SkipNoSubscribers)}
		ev.SkipReason = SkipNoSubscribers
		ev.Skipped = 1
		return res
	}

	res.Pushes = p.notify.Dispatch(ctx, dests, Compose(name, r))
	ev.Delivered, ev.Failed, ev.Skipped = notifier.Counts(res.Pushes)
	log.Info("reading ingested",
		logx.Int("destinations", len(dests)),
		logx.Int("delivered", ev.Delivered),
		logx.Int("failed", ev.Failed),
	)
	return res
}

func (p *Pipeline) displayName(ctx context.Context, id string, log logx.Logger) string {
	cfg, err := p.store.GetConfigByID(ctx, id)
	if err != nil {
		log.Warn("config lookup failed, using device id", logx.Err(err))
		return id
	}
	row, ok := cfg.First()
	if !ok {
		return id
	}
	if unit := strings.TrimSpace(string(row.Unit)); unit != "" {
		return unit
	}
	return id
}

func (p *Pipeline) destinations(ctx context.Context, id string, log logx.Logger) []string {
	raw, err := p.store.GetSubscriptionsByID(ctx, id)
	if err != nil {
		log.Warn("subscription lookup failed", logx.Err(err))
		return nil
	}
	return ResolveDestinations(raw)
}

func (p *Pipeline) publish(ev eventbus.Ingested) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Type: eventbus.ReadingIngested, Data: ev})
}
