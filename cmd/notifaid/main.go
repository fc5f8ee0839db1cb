package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"notifai/internal/app"
	"notifai/internal/config"
	logx "notifai/pkg/logx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOpts struct {
	cfgPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}
	root := &cobra.Command{
		Use:          "notifaid",
		Short:        "On-device notification classifier",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), opts.cfgPath)
		},
	}
	root.PersistentFlags().StringVar(&opts.cfgPath, "config", config.DefaultPath(), "config file (yaml or json)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the daemon",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runDaemon(cmd.Context(), opts.cfgPath)
			},
		},
		batchCmd(opts),
		doctorCmd(opts),
		foldersCmd(opts),
		appsCmd(opts),
		instructionsCmd(opts),
		notificationsCmd(opts),
		readCmd(opts),
		openCmd(opts),
		pruneCmd(opts),
	)
	return root
}

func runDaemon(parent context.Context, cfgPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		return fmt.Errorf("fatal: %w", err)
	}
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("fatal start: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reason := app.StopUnknown
	select {
	case sig := <-sigCh:
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		} else {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	return a.Err()
}

// withTool opens the store for a one-shot command.
func withTool(opts *rootOpts, fn func(t *app.Tool) error) error {
	t, err := app.OpenTool(opts.cfgPath, logx.NewConsole("warn"))
	if err != nil {
		return err
	}
	defer t.Close()
	return fn(t)
}
