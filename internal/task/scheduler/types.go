package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"notifai/internal/task/engine"
	logx "notifai/pkg/logx"
)

type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Europe/Berlin"
}

// Job is a registered schedule.
type Job struct {
	Name    string
	Spec    string // as given
	Timeout time.Duration
	Run     func(ctx context.Context) error
	Opt     engine.Options

	entryID cron.EntryID
}

type Service struct {
	log    logx.Logger
	engine *engine.Service
	parser cron.Parser

	mu   sync.Mutex
	cfg  Config
	loc  *time.Location
	c    *cron.Cron
	jobs map[string]*Job

	warnMu   sync.Mutex
	lastWarn map[string]time.Time
}

type ScheduleInfo struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev"`
}
