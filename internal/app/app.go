// Package app wires the service together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"htbot/internal/audit"
	"htbot/internal/config"
	"htbot/internal/eventbus"
	"htbot/internal/ingest"
	"htbot/internal/mqttsource"
	"htbot/internal/notifier"
	"htbot/internal/observability/debug"
	"htbot/internal/observability/metrics"
	"htbot/internal/runtime/supervisor"
	"htbot/internal/storage"
	"htbot/internal/transport/line"
	"htbot/internal/transport/telegram"
	"htbot/internal/upstream"
	"htbot/internal/view"
	"htbot/internal/web"
	logx "htbot/pkg/logx"
	"htbot/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    storage.Store
	recorder *audit.Recorder
	metrics  *metrics.Collector
	debug    *debug.Server

	tg   *telegram.Adapter
	web  *web.Server
	mqtt *mqttsource.Source
}

// New loads and validates the config at cfgPath and builds every component.
// Nothing runs until Start.
func New(cfgPath string) (_ *App, err error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	// The chat log sink gets its sender once the transports exist.
	logSvc, root := logx.New(cfg.LoggingConfig(), nil)
	var a *App
	defer func() {
		if err == nil {
			return
		}
		if a != nil && a.store != nil {
			_ = a.store.Close()
		}
		_ = logSvc.Close()
	}()
	log := root.With(logx.String("comp", "app"))
	comp := func(name string) logx.Logger { return root.With(logx.String("comp", name)) }

	webCfg, err := cfg.WebConfig()
	if err != nil {
		return nil, err
	}

	ucfg, err := cfg.UpstreamConfig()
	if err != nil {
		return nil, err
	}
	store, err := upstream.New(ucfg, comp("upstream"))
	if err != nil {
		return nil, err
	}

	lcfg, err := cfg.LineConfig()
	if err != nil {
		return nil, err
	}
	lineClient, err := line.New(lcfg, comp("line"))
	if err != nil {
		return nil, err
	}

	var tg *telegram.Adapter
	tgRoute := notifier.Route{Prefix: telegram.Prefix}
	if tcfg, on, err := cfg.TelegramConfig(); err != nil {
		return nil, err
	} else if on {
		tg, err = telegram.New(tcfg, webCfg.PublicBaseURL, comp("telegram"))
		if err != nil {
			return nil, err
		}
		tgRoute.Sink = tg
	}
	router := notifier.NewRouter(lineClient, tgRoute)
	logSvc.SetSender(router)

	ncfg, err := cfg.NotifierConfig()
	if err != nil {
		return nil, err
	}
	bus := eventbus.New()
	pipeline := ingest.New(store, notifier.New(ncfg, router, comp("notifier")), bus, comp("ingest"))

	srv, err := web.New(webCfg, web.Deps{
		Ingest:   pipeline,
		Views:    view.New(store, comp("view")),
		Registry: store,
		Callback: line.NewWebhook(lineClient, webCfg.PublicBaseURL, comp("line.webhook")),
		Bus:      bus,
	}, comp("web"))
	if err != nil {
		return nil, err
	}

	a = &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		metrics: metrics.New(),
		tg:      tg,
		web:     srv,
	}

	scfg, acfg, err := cfg.StorageConfig()
	if err != nil {
		return nil, err
	}
	if a.store, err = storage.Open(scfg, comp("storage")); err != nil {
		return nil, err
	}
	if a.store != nil {
		a.recorder = audit.New(a.store, bus, acfg, comp("audit"))
		log.Info("audit storage enabled", logx.String("driver", scfg.Driver))
	}

	if dcfg := cfg.DebugConfig(); dcfg.Enabled {
		a.debug = debug.New(dcfg, a.metrics.Handler(), comp("debug"))
	}

	if mcfg, on, err := cfg.MQTTConfig(); err != nil {
		return nil, err
	} else if on {
		a.mqtt = mqttsource.New(mcfg, pipeline, comp("mqtt"))
	}
	return a, nil
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if a.recorder != nil {
		if err := a.recorder.Start(a.sup.Context()); err != nil {
			return fmt.Errorf("start audit recorder: %w", err)
		}
	}
	if a.tg != nil {
		if err := a.tg.Start(a.sup.Context()); err != nil {
			return fmt.Errorf("start telegram: %w", err)
		}
	}

	a.sup.Go("web", a.web.Run)
	a.sup.Go("metrics", func(c context.Context) error { return a.metrics.Run(c, a.bus) })

	if a.debug != nil {
		a.sup.GoRestart("debug", func(c context.Context) error {
			err := a.debug.Run(c)
			if errors.Is(err, debug.ErrInsecureBind) {
				// Not fatal and not worth retrying.
				return nil
			}
			return err
		}, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	}
	if a.mqtt != nil {
		a.sup.GoRestart("mqtt", a.mqtt.Run, supervisor.WithRestartBackoff(time.Second, time.Minute))
	}

	sub := a.cfgm.Subscribe(4)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return systemd.Watchdog(c, systemd.WatchdogInterval())
	})
	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started",
		logx.Bool("telegram", a.tg != nil),
		logx.Bool("mqtt", a.mqtt != nil),
		logx.Bool("audit", a.recorder != nil),
		logx.Bool("debug", a.debug != nil),
	)
	return nil
}

// reloadLoop re-applies the logging section of each validated reload. Other
// sections only take effect after a restart.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			if next == nil {
				continue
			}
			changed, attrs := config.SummarizeConfigChange(last, next)
			last = next
			if len(changed) == 0 {
				a.log.Info("config reloaded (no changes)")
				continue
			}

			a.logs.Apply(next.LoggingConfig())
			fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
			if restart := config.RestartRequired(changed); len(restart) > 0 {
				a.log.Warn("config sections changed; restart required for them to take effect", logx.Strings("sections", restart))
			}
			a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded})
		}
	}
}

// Stop cancels every component and waits for them, each step bounded so a
// stuck component cannot stall shutdown.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(sctx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	if a.tg != nil {
		step("telegram", 2*time.Second, a.tg.Stop)
	}
	if a.recorder != nil {
		step("audit", 2*time.Second, a.recorder.Stop)
	}
	// The web server drains in-flight requests inside its own Run.
	step("supervisor", 12*time.Second, a.sup.Wait)
	if a.store != nil {
		step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	}

	a.log.Info("stopped")
	return a.logs.Close()
}
