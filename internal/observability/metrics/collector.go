// Package metrics turns pipeline and registration events into Prometheus
// series.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"htbot/internal/eventbus"
)

type Collector struct {
	reg *prometheus.Registry

	readings      *prometheus.CounterVec
	pushes        *prometheus.CounterVec
	skips         *prometheus.CounterVec
	ingestSeconds prometheus.Histogram
	registrations *prometheus.CounterVec
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Collector{
		reg: reg,
		readings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "htbot_readings_total",
			Help: "Readings received, by persistence result.",
		}, []string{"result"}),
		pushes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "htbot_push_outcomes_total",
			Help: "Per-destination push outcomes.",
		}, []string{"outcome"}),
		skips: f.NewCounterVec(prometheus.CounterOpts{
			Name: "htbot_push_skipped_total",
			Help: "Ingestions that made no push attempt, by reason.",
		}, []string{"reason"}),
		ingestSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "htbot_ingest_duration_seconds",
			Help:    "Wall time of one ingestion, persistence through fan-out.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}),
		registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "htbot_registrations_total",
			Help: "Register form submissions, by result.",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// Observe folds one bus event into the series.
func (c *Collector) Observe(ev eventbus.Event) {
	switch d := ev.Data.(type) {
	case eventbus.Ingested:
		c.ingestSeconds.Observe(d.Took.Seconds())
		if !d.Persisted {
			c.readings.WithLabelValues("failed").Inc()
			return
		}
		c.readings.WithLabelValues("persisted").Inc()
		c.pushes.WithLabelValues("delivered").Add(float64(d.Delivered))
		c.pushes.WithLabelValues("failed").Add(float64(d.Failed))
		if d.Delivered+d.Failed == 0 && d.SkipReason != "" {
			c.skips.WithLabelValues(d.SkipReason).Inc()
		}
	case eventbus.Registered:
		if d.ConfigErr == "" && d.SubErr == "" {
			c.registrations.WithLabelValues("ok").Inc()
		} else {
			c.registrations.WithLabelValues("partial").Inc()
		}
	}
}

// Run consumes bus events until ctx ends.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			c.Observe(ev)
		}
	}
}
