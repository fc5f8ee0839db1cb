package app

import (
	"notifai/internal/classifier/inference"
	"notifai/internal/classifier/loader"
	"notifai/internal/classifier/prompt"
	"notifai/internal/config"
	"notifai/internal/dispatch"
	"notifai/internal/eventbus"
	"notifai/internal/intentcache"
	"notifai/internal/notifier"
	"notifai/internal/pipeline"
	"notifai/internal/storage"
	"notifai/internal/taxonomy"
	"notifai/internal/transport/desktop"
	logx "notifai/pkg/logx"
)

// components is the classification core shared by the daemon and the
// one-shot CLI commands.
type components struct {
	store    *storage.Store
	loader   *loader.Loader
	runtime  *inference.Runtime
	prompts  *prompt.Assembler
	notif    *notifier.Service
	dispatch *dispatch.Dispatcher
	orch     *pipeline.Orchestrator
	taxonomy *taxonomy.Service
	intents  *intentcache.Cache
}

func build(cfg *config.Config, log logx.Logger, bus eventbus.Bus, sender notifier.Sender) (*components, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	ld := loader.New(mapLoaderConfig(cfg), log)
	rt := inference.New(mapInferenceConfig(cfg, ld.Features()), ld, log, bus)
	prompts := prompt.New(store)
	notif := notifier.New(ncfg, sender, log, bus)
	disp := dispatch.New(store, notif, log, bus)

	return &components{
		store:    store,
		loader:   ld,
		runtime:  rt,
		prompts:  prompts,
		notif:    notif,
		dispatch: disp,
		orch:     pipeline.New(prompts, rt, store, disp, log, bus),
		taxonomy: taxonomy.New(store, rt, log, bus),
		intents:  intentcache.New(config.IntentCacheOrDefault(cfg.IntentCache).MaxEntries, desktop.Launcher{}, log),
	}, nil
}

func (c *components) close() error {
	c.runtime.Release()
	return c.store.Close()
}
