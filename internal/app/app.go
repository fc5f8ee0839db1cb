package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"notifai/internal/config"
	"notifai/internal/eventbus"
	"notifai/internal/ingest"
	"notifai/internal/runtime/supervisor"
	"notifai/internal/task/engine"
	"notifai/internal/task/scheduler"
	"notifai/internal/transport/desktop"
	logx "notifai/pkg/logx"
)

// App is the notifai daemon.
type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	*components
	session *session
	filter  *ingest.Filter
	engine  *engine.Service
	sched   *scheduler.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	sess := &session{}
	logSvc, log := logx.New(mapLogConfig(cfg), sess)
	bus := eventbus.New()

	c, err := build(cfg, log, bus, sess)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		_ = c.close()
		_ = logSvc.Close()
		return nil, err
	}
	eng := engine.New(engCfg, log.With(logx.String("comp", "taskengine")), bus)

	a := &App{
		cfgm:       cfgm,
		log:        log.With(logx.String("comp", "app")),
		logs:       logSvc,
		bus:        bus,
		components: c,
		session:    sess,
		engine:     eng,
		sched:      scheduler.New(mapSchedulerConfig(cfg), eng, log.With(logx.String("comp", "scheduler"))),
	}

	ttl, err := config.ParseDurationOrDefault("ingest.name_cache_ttl", cfg.Ingest.NameCacheTTL, 10*time.Minute)
	if err != nil {
		_ = c.close()
		_ = logSvc.Close()
		return nil, err
	}
	a.filter = ingest.NewFilter(ingest.Options{
		SelfID:  cfg.Ingest.SelfID,
		Repo:    c.store,
		Names:   ingest.NewNameResolver(ttl, ingest.ApplicationDirs()),
		Intents: c.intents,
		Forward: a.forward,
		Log:     log,
	})

	if err := a.registerJobs(cfg); err != nil {
		_ = c.close()
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

// Done is closed when the app context is canceled (fatal error or Stop).
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
	run := a.sup.Context()
	cfg := a.cfgm.Get()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error { return validate(c) })

	client, err := desktop.Dial(run, cfg.Ingest.SelfID, a.log)
	if err != nil {
		// Classification still runs; deliveries wait for the next batch.
		a.log.Warn("desktop session unavailable", logx.Err(err))
	} else {
		a.session.set(client)
	}

	a.engine.Start(run)
	a.sched.Start(run)

	if client != nil {
		if cfg.Ingest.Enabled {
			mon := desktop.NewMonitor(client, a.log)
			a.sup.GoRestart("desktop.monitor", func(c context.Context) error {
				return mon.Run(c, a.onPosted)
			})
		}
		a.sup.GoRestart("desktop.actions", func(c context.Context) error {
			return client.WatchActions(c, a.onAction)
		})
	}
	a.sup.Go("signals", a.triggerLoop)
	a.sup.Go("systemd.watchdog", a.watchdog)
	a.sup.Go("eventbus.log", a.logEvents)
	a.sup.Go("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)

	f := a.loader.Features()
	a.log.Info("app started",
		logx.String("arch", f.Arch),
		logx.Int("threads", f.Threads()),
		logx.Int("candidates", len(a.loader.Plan())),
		logx.Bool("ingest", cfg.Ingest.Enabled))
	a.sdNotify(daemon.SdNotifyReady)
	return nil
}

func (a *App) logEvents(ctx context.Context) error {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sdNotify(daemon.SdNotifyStopping)
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("desktop", 1*time.Second, func(context.Context) error { return a.session.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("core", 2*time.Second, func(context.Context) error { return a.components.close() })

	a.log.Info("stopped", ingestFields(a.filter.Stats())...)
	return a.logs.Close()
}
