// Package ingest turns raw notification-posted events into classification
// jobs, dropping everything the user did not opt in to and everything that
// is not user content.
package ingest

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"notifai/internal/intentcache"
	logx "notifai/pkg/logx"
)

// Posted is one notification as observed on the host.
type Posted struct {
	// Package identifies the sending application (desktop entry id).
	Package string
	// AppName is the sender-supplied application name.
	AppName string
	Title   string
	Body    string

	Ongoing           bool
	ForegroundService bool
	Progress          bool
	Category          string

	// SourceTime is the sender's own event time; zero when not given.
	SourceTime time.Time
	// ObservedAt is when the host saw the notification.
	ObservedAt time.Time

	Capability intentcache.Capability
}

// Job is a normalized notification ready for classification.
type Job struct {
	ID        string
	Package   string
	AppName   string
	Title     string
	Body      string
	Timestamp time.Time
}

type Monitored interface {
	MonitoredStatus(ctx context.Context, pkg string) (bool, error)
}

type Names interface {
	Resolve(ctx context.Context, pkg, fallback string) string
}

type Intents interface {
	Put(id string, capability intentcache.Capability, pkg string)
}

// Forward hands a job to the classifier. It must not block on
// classification.
type Forward func(ctx context.Context, j Job) error

type Verdict string

const (
	Accepted    Verdict = "accepted"
	Own         Verdict = "own"
	Unmonitored Verdict = "unmonitored"
	Empty       Verdict = "empty"
	Noise       Verdict = "noise"
	Failed      Verdict = "failed"
)

type Options struct {
	SelfID  string
	Repo    Monitored
	Names   Names
	Intents Intents
	Forward Forward
	Log     logx.Logger
}

type Filter struct {
	selfID  string
	repo    Monitored
	names   Names
	intents Intents
	forward Forward
	log     logx.Logger
	newID   func() string
	now     func() time.Time

	counts [6]atomic.Uint64
}

func NewFilter(o Options) *Filter {
	log := o.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Filter{
		selfID:  o.SelfID,
		repo:    o.Repo,
		names:   o.Names,
		intents: o.Intents,
		forward: o.Forward,
		log:     log.With(logx.String("comp", "ingest")),
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// Handle applies the filter chain to p and forwards accepted
// notifications.
func (f *Filter) Handle(ctx context.Context, p Posted) Verdict {
	v := f.handle(ctx, p)
	f.counts[verdictIndex(v)].Add(1)
	return v
}

func (f *Filter) handle(ctx context.Context, p Posted) Verdict {
	if f.selfID != "" && p.Package == f.selfID {
		return Own
	}
	ok, err := f.repo.MonitoredStatus(ctx, p.Package)
	if err != nil {
		f.log.Warn("monitored status lookup failed", logx.String("package", p.Package), logx.Err(err))
		return Failed
	}
	if !ok {
		f.log.Debug("ignoring unmonitored app", logx.String("package", p.Package))
		return Unmonitored
	}

	title, body := strings.TrimSpace(p.Title), strings.TrimSpace(p.Body)
	if title == "" && body == "" {
		f.log.Debug("skipping empty notification", logx.String("package", p.Package))
		return Empty
	}
	if p.Ongoing || p.ForegroundService || p.Progress || IsNoiseCategory(p.Category) {
		f.log.Debug("skipping system notification",
			logx.String("package", p.Package),
			logx.Bool("ongoing", p.Ongoing),
			logx.String("category", p.Category))
		return Noise
	}

	appName := p.AppName
	if f.names != nil {
		appName = f.names.Resolve(ctx, p.Package, p.AppName)
	}
	if appName == "" {
		appName = p.Package
	}

	j := Job{
		ID:        f.newID(),
		Package:   p.Package,
		AppName:   appName,
		Title:     title,
		Body:      body,
		Timestamp: f.effectiveTime(p),
	}
	if f.intents != nil {
		f.intents.Put(j.ID, p.Capability, p.Package)
	}
	if err := f.forward(ctx, j); err != nil {
		f.log.Warn("forwarding notification failed", logx.String("id", j.ID), logx.Err(err))
		return Failed
	}
	f.log.Info("notification received", logx.String("id", j.ID), logx.String("app", appName))
	return Accepted
}

func (f *Filter) effectiveTime(p Posted) time.Time {
	if !p.SourceTime.IsZero() && p.SourceTime.UnixMilli() > 0 {
		return p.SourceTime
	}
	if !p.ObservedAt.IsZero() {
		return p.ObservedAt
	}
	return f.now()
}

var noiseClasses = map[string]bool{
	"service":  true,
	"system":   true,
	"progress": true,
	"device":   true,
	"network":  true,
	"presence": true,
	"transfer": true,
}

// IsNoiseCategory reports whether a notification category is host or
// service chatter rather than user content. Both the class ("network.error"
// is class "network") and the last component ("x-gnome.system") count.
func IsNoiseCategory(category string) bool {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" {
		return false
	}
	class, _, _ := strings.Cut(c, ".")
	if noiseClasses[class] {
		return true
	}
	if i := strings.LastIndexByte(c, '.'); i >= 0 {
		return noiseClasses[c[i+1:]]
	}
	return false
}

func verdictIndex(v Verdict) int {
	switch v {
	case Accepted:
		return 0
	case Own:
		return 1
	case Unmonitored:
		return 2
	case Empty:
		return 3
	case Noise:
		return 4
	}
	return 5
}

// Stats counts verdicts since start.
type Stats struct {
	Accepted    uint64
	Own         uint64
	Unmonitored uint64
	Empty       uint64
	Noise       uint64
	Failed      uint64
}

func (f *Filter) Stats() Stats {
	return Stats{
		Accepted:    f.counts[0].Load(),
		Own:         f.counts[1].Load(),
		Unmonitored: f.counts[2].Load(),
		Empty:       f.counts[3].Load(),
		Noise:       f.counts[4].Load(),
		Failed:      f.counts[5].Load(),
	}
}
