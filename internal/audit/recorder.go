// Package audit persists compact summaries of pipeline and registration
// events to the local store and prunes them on a cron schedule.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"htbot/internal/eventbus"
	"htbot/internal/storage"
	logx "htbot/pkg/logx"
)

const DefaultPruneSchedule = "@hourly"

type Config struct {
	Retention     time.Duration // 0 disables pruning
	PruneSchedule string        // cron spec; default DefaultPruneSchedule
	WriteTimeout  time.Duration // per append; default 3s
}

type Recorder struct {
	store storage.Store
	bus   eventbus.Bus
	cfg   Config
	log   logx.Logger

	parser cron.Parser

	mu     sync.Mutex
	c      *cron.Cron
	unsub  func()
	done   chan struct{}
	cancel context.CancelFunc
}

func New(store storage.Store, bus eventbus.Bus, cfg Config, log logx.Logger) *Recorder {
	if cfg.PruneSchedule == "" {
		cfg.PruneSchedule = DefaultPruneSchedule
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 3 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{
		store: store,
		bus:   bus,
		cfg:   cfg,
		log:   log,
		parser: scheduleParser,
	}
}

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule checks a prune schedule spec.
func ParseSchedule(spec string) (cron.Schedule, error) {
	return scheduleParser.Parse(spec)
}

// Entry maps a bus event to an audit entry. ok is false for events that are
// not audited.
func Entry(ev eventbus.Event) (storage.AuditEntry, bool) {
	switch d := ev.Data.(type) {
	case eventbus.Ingested:
		e := storage.AuditEntry{
			At:        ev.Time,
			RequestID: d.RequestID,
			Action:    storage.ActionIngest,
			DeviceID:  d.DeviceID,
			Delivered: d.Delivered,
			Failed:    d.Failed,
			Skipped:   d.Skipped,
			TookMS:    d.Took.Milliseconds(),
		}
		if !d.Persisted {
			e.Error = d.SkipReason
		}
		return e, true
	case eventbus.Registered:
		e := storage.AuditEntry{
			At:          ev.Time,
			Action:      storage.ActionRegister,
			DeviceID:    d.DeviceID,
			Destination: d.Destination,
			TookMS:      d.Took.Milliseconds(),
		}
		switch {
		case d.ConfigErr != "" && d.SubErr != "":
			e.Error = "config: " + d.ConfigErr + "; subscription: " + d.SubErr
		case d.ConfigErr != "":
			e.Error = "config: " + d.ConfigErr
		case d.SubErr != "":
			e.Error = "subscription: " + d.SubErr
		}
		return e, true
	}
	return storage.AuditEntry{}, false
}

// Start subscribes to the bus and schedules pruning. It returns immediately.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return nil
	}

	if r.cfg.Retention > 0 {
		c := cron.New(cron.WithParser(r.parser))
		if _, err := c.AddFunc(r.cfg.PruneSchedule, func() { r.Prune(context.Background()) }); err != nil {
			return err
		}
		c.Start()
		r.c = c
	}

	ch, unsub := r.bus.Subscribe(256)
	rctx, cancel := context.WithCancel(ctx)
	r.unsub = unsub
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(rctx, ch, r.done)
	r.log.Info("audit recorder started", logx.Duration("retention", r.cfg.Retention), logx.String("prune_schedule", r.cfg.PruneSchedule))
	return nil
}

func (r *Recorder) loop(ctx context.Context, ch <-chan eventbus.Event, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.record(ev)
		}
	}
}

func (r *Recorder) record(ev eventbus.Event) {
	e, ok := Entry(ev)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()
	if err := r.store.AppendAudit(ctx, e); err != nil {
		r.log.Warn("audit append failed", logx.String("action", e.Action), logx.Err(err))
	}
}

// Prune drops entries older than the retention window.
func (r *Recorder) Prune(ctx context.Context) {
	if r.cfg.Retention <= 0 {
		return
	}
	n, err := r.store.PruneAudit(ctx, time.Now().Add(-r.cfg.Retention))
	if err != nil {
		r.log.Warn("audit prune failed", logx.Err(err))
		return
	}
	r.log.Debug("audit pruned", logx.Int64("removed", n))
}

// Stop unsubscribes and waits for the writer loop and any running prune.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	c, unsub, cancel, done := r.c, r.unsub, r.cancel, r.done
	r.c, r.unsub, r.cancel, r.done = nil, nil, nil, nil
	r.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()
	unsub()
	var cronDone <-chan struct{}
	if c != nil {
		cronDone = c.Stop().Done()
	} else {
		ch := make(chan struct{})
		close(ch)
		cronDone = ch
	}
	for _, wait := range []<-chan struct{}{done, cronDone} {
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.log.Info("audit recorder stopped")
	return nil
}
