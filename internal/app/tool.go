package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"notifai/internal/classifier/loader"
	"notifai/internal/config"
	"notifai/internal/storage"
	"notifai/internal/taxonomy"
	"notifai/internal/transport/desktop"
	logx "notifai/pkg/logx"
)

// Tool gives one-shot commands the daemon's storage and delivery path
// without starting ingestion or the scheduler.
type Tool struct {
	Config *config.Config
	log    logx.Logger

	*components
	session *session
}

// OpenTool loads the config at cfgPath and opens the store. The session bus
// is connected lazily by commands that deliver or launch.
func OpenTool(cfgPath string, log logx.Logger) (*Tool, error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return nil, err
	}
	return newTool(cfg, log)
}

func newTool(cfg *config.Config, log logx.Logger) (*Tool, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	sess := &session{}
	c, err := build(cfg, log, nil, sess)
	if err != nil {
		return nil, err
	}
	return &Tool{Config: cfg, log: log, components: c, session: sess}, nil
}

func (t *Tool) Close() error {
	return errors.Join(t.session.Close(), t.components.close())
}

func (t *Tool) Store() *storage.Store { return t.store }
func (t *Tool) Taxonomy() *taxonomy.Service { return t.taxonomy }
func (t *Tool) Loader() *loader.Loader { return t.loader }

func (t *Tool) connect(ctx context.Context) error {
	if t.session.get() != nil {
		return nil
	}
	c, err := desktop.Dial(ctx, t.Config.Ingest.SelfID, t.log)
	if err != nil {
		return err
	}
	t.session.set(c)
	return nil
}

// RunBatch delivers pending medium-priority records now.
func (t *Tool) RunBatch(ctx context.Context) (int, error) {
	if err := t.connect(ctx); err != nil {
		return 0, err
	}
	return runBatch(ctx, t.dispatch, t.log)
}

// Prune deletes records older than retention.max_age.
func (t *Tool) Prune(ctx context.Context) (int64, error) {
	r, err := mapRetention(t.Config)
	if err != nil {
		return 0, err
	}
	if r.MaxAge <= 0 {
		return 0, errors.New("retention.max_age is not set")
	}
	return prune(ctx, t.store, r.MaxAge, t.log)
}

// Open launches the application that posted record id and marks the record
// read. Capabilities live in the daemon, so this always launches by
// package; pkg overrides the stored one.
func (t *Tool) Open(ctx context.Context, id, pkg string) error {
	n, err := t.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if p := strings.TrimSpace(pkg); p != "" {
		n.Package = p
	}
	if !t.intents.Open(ctx, id) && !t.intents.OpenPackage(ctx, n.Package) {
		return fmt.Errorf("could not open %s", n.Package)
	}
	return t.store.MarkRead(ctx, id)
}
