// Package pipeline runs one notification through prompt assembly,
// inference, parsing, persistence and dispatch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"notifai/internal/classifier/loader"
	"notifai/internal/classifier/parse"
	"notifai/internal/classifier/priority"
	"notifai/internal/eventbus"
	"notifai/internal/storage"
	"notifai/internal/task/engine"
	logx "notifai/pkg/logx"
)

// DefaultFolder receives everything the model could not classify.
const DefaultFolder = "Personal"

type Input struct {
	ID        string
	Package   string
	AppName   string
	Title     string
	Body      string
	Timestamp time.Time
}

type Result struct {
	ID       string
	Folder   string
	Priority priority.Tier
	// Defaulted is set when the defaults replaced a missing or
	// unparseable model answer.
	Defaulted bool
	Elapsed   time.Duration
	Err       error
}

func (r Result) OK() bool { return r.Err == nil }

type Prompter interface {
	BuildSystemSegment(ctx context.Context) (string, error)
	BuildUserSegment(appName, title, body string) string
	FullPrompt(system, appName, title, body string) string
	HasSystemSegmentChanged(ctx context.Context) (bool, error)
}

type Runtime interface {
	CacheSystemSegment(ctx context.Context, text string) int
	Classify(ctx context.Context, prompt string) (string, time.Duration)
	InitError() error
}

type Store interface {
	Insert(ctx context.Context, n storage.Notification) error
	AllFolders(ctx context.Context) ([]storage.Folder, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, n storage.Notification) error
}

type Orchestrator struct {
	prompts  Prompter
	runtime  Runtime
	store    Store
	dispatch Dispatcher
	log      logx.Logger
	bus      eventbus.Bus
}

func New(p Prompter, rt Runtime, store Store, d Dispatcher, log logx.Logger, bus eventbus.Bus) *Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Orchestrator{
		prompts:  p,
		runtime:  rt,
		store:    store,
		dispatch: d,
		log:      log.With(logx.String("comp", "pipeline")),
		bus:      bus,
	}
}

// ClassifyAndDispatch classifies in, stores the record and routes it.
// An empty or unparseable model answer falls back to DefaultFolder at
// medium priority and still succeeds. Errors and panics become a failed
// Result; nothing is stored when the failure happens before the insert.
func (o *Orchestrator) ClassifyAndDispatch(ctx context.Context, in Input) (res Result) {
	res.ID = in.ID
	defer func() {
		if rec := recover(); rec != nil {
			res.Err = fmt.Errorf("classification panicked: %v", rec)
			o.log.Error("classification panicked",
				logx.String("id", in.ID),
				logx.Any("panic", rec),
				logx.Stack(string(debug.Stack())))
		}
		if res.Err != nil && !errors.Is(res.Err, loader.ErrNoEngine) {
			o.log.Error("classification failed", logx.String("id", in.ID), logx.Err(res.Err))
		}
		o.publish(res)
	}()

	if err := o.classify(ctx, in, &res); err != nil {
		res.Err = err
		return res
	}

	n := storage.Notification{
		ID:             in.ID,
		Package:        in.Package,
		AppName:        in.AppName,
		Title:          in.Title,
		Body:           in.Body,
		ArrivedAt:      in.Timestamp,
		Folder:         res.Folder,
		Priority:       res.Priority,
		ProcessingTime: res.Elapsed,
	}
	if err := o.store.Insert(ctx, n); err != nil {
		res.Err = err
		return res
	}
	o.log.Info("notification classified",
		logx.String("id", in.ID),
		logx.String("folder", res.Folder),
		logx.String("priority", res.Priority.String()),
		logx.Duration("took", res.Elapsed),
		logx.Bool("defaulted", res.Defaulted))

	if err := o.dispatch.Dispatch(ctx, n); err != nil {
		res.Err = err
	}
	return res
}

func (o *Orchestrator) classify(ctx context.Context, in Input, res *Result) error {
	if changed, err := o.prompts.HasSystemSegmentChanged(ctx); err == nil && changed {
		o.log.Debug("system segment changed")
	}
	system, err := o.prompts.BuildSystemSegment(ctx)
	if err != nil {
		return err
	}

	var prompt string
	if o.runtime.CacheSystemSegment(ctx, system) >= 0 {
		prompt = o.prompts.BuildUserSegment(in.AppName, in.Title, in.Body)
	} else {
		prompt = o.prompts.FullPrompt(system, in.AppName, in.Title, in.Body)
	}

	response, elapsed := o.runtime.Classify(ctx, prompt)
	res.Elapsed = elapsed
	if response == "" {
		if err := o.runtime.InitError(); errors.Is(err, loader.ErrNoEngine) {
			o.log.Error("no inference engine available", logx.String("id", in.ID), logx.Err(err))
			return err
		}
		o.log.Warn("empty response from classifier, using defaults", logx.String("id", in.ID))
		o.useDefaults(res)
		return nil
	}

	c, ok := parse.Parse(response)
	if !ok {
		o.log.Warn("unparseable classification, using defaults", logx.String("id", in.ID), logx.String("response", response))
		o.useDefaults(res)
		return nil
	}
	res.Folder, res.Priority = c.Folder, c.Priority
	return o.canonicalFolder(ctx, res)
}

func (o *Orchestrator) useDefaults(res *Result) {
	res.Folder, res.Priority, res.Defaulted = DefaultFolder, priority.Default, true
}

// canonicalFolder restores the stored spelling when the model's folder
// matches an existing one ignoring case. Any other label is kept as the
// model wrote it.
func (o *Orchestrator) canonicalFolder(ctx context.Context, res *Result) error {
	folders, err := o.store.AllFolders(ctx)
	if err != nil {
		return err
	}
	for _, f := range folders {
		if strings.EqualFold(f.Name, res.Folder) {
			res.Folder = f.Name
			return nil
		}
	}
	o.log.Debug("model chose a folder outside the taxonomy", logx.String("folder", res.Folder))
	return nil
}

func (o *Orchestrator) publish(res Result) {
	if o.bus != nil {
		o.bus.Publish(eventbus.Event{Type: eventbus.NotificationClassified, Data: res})
	}
}

// Task wraps one classification as a task-engine job. Failures are not
// retried: a retry would run inference again for the same notification.
func (o *Orchestrator) Task(in Input) engine.Task {
	return engine.Task{
		ID:   in.ID,
		Name: "classify:" + in.ID,
		Opt:  engine.Options{RetryMax: -1, NoBreaker: true},
		Run: func(ctx context.Context) error {
			return engine.NoRetry(o.ClassifyAndDispatch(ctx, in).Err)
		},
	}
}
