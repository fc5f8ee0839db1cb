// Package scheduler turns cron and interval schedules into task engine submissions.
//
// It owns no workers: every trigger becomes an engine.Task, so retries,
// overlap skipping and the circuit breaker apply to scheduled jobs too.
// Jobs can also be fired on demand with Trigger (manual batch delivery).
package scheduler
