package app

import (
	"context"

	"notifai/internal/ingest"
	"notifai/internal/pipeline"
	logx "notifai/pkg/logx"
)

// ingestFields renders the filter's verdict counters for the log.
func ingestFields(s ingest.Stats) []logx.Field {
	return []logx.Field{
		logx.Uint64("accepted", s.Accepted),
		logx.Uint64("own", s.Own),
		logx.Uint64("unmonitored", s.Unmonitored),
		logx.Uint64("empty", s.Empty),
		logx.Uint64("noise", s.Noise),
		logx.Uint64("failed", s.Failed),
	}
}

func (a *App) onPosted(ctx context.Context, p ingest.Posted) {
	a.filter.Handle(ctx, p)
}

// forward queues classification without waiting for it.
func (a *App) forward(_ context.Context, j ingest.Job) error {
	return a.engine.Enqueue(a.orch.Task(pipeline.Input{
		ID:        j.ID,
		Package:   j.Package,
		AppName:   j.AppName,
		Title:     j.Title,
		Body:      j.Body,
		Timestamp: j.Timestamp,
	}))
}

// onAction reopens the source of a clicked urgent notification and marks
// its record read. Clicks on batch summaries carry no record.
func (a *App) onAction(ctx context.Context, serverID uint32, action string) {
	id, ok := a.notif.Record(serverID)
	if !ok {
		a.log.Debug("action on untracked notification", logx.Uint64("server_id", uint64(serverID)), logx.String("action", action))
		return
	}
	if !a.intents.Open(ctx, id) {
		n, err := a.store.Get(ctx, id)
		if err == nil {
			a.intents.OpenPackage(ctx, n.Package)
		}
	}
	if err := a.store.MarkRead(ctx, id); err != nil {
		a.log.Warn("marking notification read failed", logx.String("id", id), logx.Err(err))
	}
}
