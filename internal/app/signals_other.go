//go:build !unix

package app

import "context"

func (a *App) triggerLoop(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
