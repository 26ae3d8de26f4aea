package notifier

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	logx "htbot/pkg/logx"
)

// Dispatcher sends one text to many destinations with isolated failures.
// It is safe for concurrent use.
type Dispatcher struct {
	sink    Sink
	cfg     Config
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, sink Sink, log logx.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		sink: sink,
		cfg:  cfg,
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:     log,
	}
}

// Dispatch attempts every destination exactly once and returns one outcome
// per destination, in the order given.
func (d *Dispatcher) Dispatch(ctx context.Context, destinations []string, text string) []Outcome {
	out := make([]Outcome, len(destinations))
	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)
	for i, dest := range destinations {
		g.Go(func() error {
			out[i] = d.sendOne(ctx, dest, text)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (d *Dispatcher) sendOne(ctx context.Context, dest, text string) (o Outcome) {
	o = Outcome{Destination: dest}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.Status = Failed
			o.Detail = fmt.Sprintf("panic: %v", r)
		}
		if o.Status == Failed {
			d.log.Warn("push failed", logx.String("destination", dest), logx.String("detail", o.Detail), logx.Duration("took", time.Since(start)))
		} else {
			d.log.Debug("push delivered", logx.String("destination", dest), logx.Duration("took", time.Since(start)))
		}
	}()

	if d.sink == nil {
		o.Status = Failed
		o.Detail = "no sink configured"
		return o
	}
	if err := d.limiter.Wait(ctx); err != nil {
		o.Status = Failed
		o.Detail = err.Error()
		return o
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	if err := d.sink.Send(callCtx, dest, text); err != nil {
		o.Status = Failed
		o.Detail = err.Error()
		return o
	}
	o.Status = Delivered
	return o
}
