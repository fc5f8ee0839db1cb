//go:build unix

package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	logx "notifai/pkg/logx"
)

// triggerLoop runs the batch job on SIGUSR1.
func (a *App) triggerLoop(ctx context.Context) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
			a.log.Info("batch delivery requested by signal")
			if err := a.sched.Trigger(JobBatchDeliver); err != nil {
				a.log.Warn("batch trigger failed", logx.Err(err))
			}
		}
	}
}
