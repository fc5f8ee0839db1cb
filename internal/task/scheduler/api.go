package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"notifai/internal/task/engine"
	logx "notifai/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

// ErrUnknownJob is returned by Trigger for a name that was never registered.
var ErrUnknownJob = errors.New("unknown schedule")

// Add registers (or replaces) the job called name.
// Scheduled runs skip while a previous run of the same job is queued or running.
func (s *Service) Add(name, schedule string, timeout time.Duration, run func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if run == nil {
		return errors.New("job required")
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	spec := ps.Cron
	if ps.Kind == SpecInterval {
		spec = "@every " + ps.Every.String()
	} else if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}

	j := &Job{Name: name, Spec: spec, Timeout: timeout, Run: run, Opt: engine.Options{SkipIfRunning: true}}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.jobs[name] = j
	if s.c == nil {
		return nil
	}
	if err := s.registerLocked(j); err != nil {
		return err
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec), logx.Time("next", s.c.Entry(j.entryID).Next))
	return nil
}

// Remove unregisters name and reports whether it existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(strings.TrimSpace(name))
}

func (s *Service) removeLocked(name string) bool {
	j, ok := s.jobs[name]
	if !ok {
		return false
	}
	if s.c != nil && j.entryID != 0 {
		s.c.Remove(j.entryID)
	}
	delete(s.jobs, name)
	return true
}

// Trigger submits the job called name right away, outside its schedule.
func (s *Service) Trigger(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.enqueue(j)
}

// Schedules lists registered jobs by name with their next trigger time.
func (s *Service) Schedules() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		info := ScheduleInfo{Name: j.Name, Spec: j.Spec}
		if s.c != nil && j.entryID != 0 {
			e := s.c.Entry(j.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		out = append(out, info)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

func (s *Service) registerLocked(j *Job) error {
	job := cron.FuncJob(func() { _ = s.enqueue(j) })

	if every, ok := strings.CutPrefix(j.Spec, "@every "); ok {
		if d, err := time.ParseDuration(every); err == nil && d > 0 {
			sched, _ := spreadInterval(d, time.Now().In(s.loc), j.Name)
			j.entryID = s.c.Schedule(sched, job)
			return nil
		}
	}
	id, err := s.c.AddJob(j.Spec, job)
	if err != nil {
		return err
	}
	j.entryID = id
	return nil
}

func (s *Service) enqueue(j *Job) error {
	if s.engine == nil {
		return engine.ErrStopped
	}
	err := s.engine.Enqueue(engine.Task{Name: j.Name, Timeout: j.Timeout, Run: j.Run, Opt: j.Opt})
	s.reportEnqueueError(j.Name, err)
	return err
}

// reportEnqueueError logs enqueue failures, at most once per throttle window per job.
func (s *Service) reportEnqueueError(name string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("schedule trigger skipped", logx.String("schedule", name), logx.Err(err))
		return
	}
	now := time.Now()
	s.warnMu.Lock()
	last := s.lastWarn[name]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.warnMu.Unlock()
		return
	}
	s.lastWarn[name] = now
	s.warnMu.Unlock()
	s.log.Warn("schedule failed to enqueue task", logx.String("schedule", name), logx.Err(err))
}
