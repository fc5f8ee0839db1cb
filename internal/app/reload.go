package app

import (
	"context"
	"strings"
	"time"

	"notifai/internal/config"
	"notifai/internal/eventbus"
	logx "notifai/pkg/logx"
)

// reloadLoop applies committed config changes that can take effect live.
func (a *App) reloadLoop(ctx context.Context) error {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-sub:
			if !ok {
				return nil
			}
			// Coalesce bursts: keep only the latest config.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					break drain
				}
			}
			a.apply(ctx, last, cfg)
			last = cfg
		}
	}
}

func (a *App) apply(ctx context.Context, prev, cfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(cfg))

	if ncfg, err := mapNotifierConfig(cfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	prevSched := a.sched.Enabled()
	a.sched.Apply(mapSchedulerConfig(cfg))
	if err := a.registerJobs(cfg); err != nil {
		a.log.Warn("rescheduling failed", logx.Err(err))
	}
	switch {
	case prevSched && !cfg.Scheduler.Enabled:
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
		a.log.Info("scheduler disabled via config")
	case !prevSched && cfg.Scheduler.Enabled:
		a.sched.Start(ctx)
		a.log.Info("scheduler enabled via config")
	}

	if a.bus != nil {
		a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: sections})
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
