package daemon

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"vawter.tech/stopper"
)

// shutdownSignals cancel the task context in the daemon process
var shutdownSignals = []os.Signal{syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP}

// run executes the task in the daemon process. The task runs on the calling
// goroutine so its life is the process's life; a stopper-managed goroutine
// turns termination signals into context cancellation and forces an exit if
// the task outlives ShutdownGrace. Exit hooks run on every way out,
// including a panic.
func (d *Daemon) run(ctx context.Context) (err error) {
	runCtx, cancel := context.WithCancel(ctx)
	sctx := stopper.WithContext(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals...)

	// returned is set once the task is back; a forced exit after that
	// point would cut the exit hooks short
	var (
		mu       sync.Mutex
		returned bool
	)

	sctx.Go(func(sctx *stopper.Context) error {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			d.Logger.Info("signal received, shutting down", slog.String("signal", sig.String()))
			cancel()
		case <-runCtx.Done():
			return nil
		case <-sctx.Stopping():
			return nil
		}

		grace := time.NewTimer(d.ShutdownGrace)
		defer grace.Stop()
		select {
		case <-grace.C:
		case <-sctx.Stopping():
			return nil
		}

		mu.Lock()
		defer mu.Unlock()
		if !returned {
			d.Logger.Warn("task ignored shutdown, exiting", slog.Duration("grace", d.ShutdownGrace))
			d.Exit(ExitFailure)
		}
		return nil
	})

	defer func() {
		cancel()
		mu.Lock()
		returned = true
		mu.Unlock()

		// Hooks run while termination signals are still caught, so a
		// repeated SIGTERM cannot kill the process before the PID file is gone.
		hookErr := d.runExitHooks()
		sctx.Stop(0)
		_ = sctx.Wait()

		if r := recover(); r != nil {
			panic(r)
		}
		if err == nil {
			err = hookErr
		}
	}()

	if runErr := d.runner.Run(runCtx); runErr != nil {
		if errors.Is(runErr, context.Canceled) && runCtx.Err() != nil {
			return nil
		}
		d.Logger.Error("task failed", slog.String("error", runErr.Error()))
		return &OpError{Op: OpRun, PID: os.Getpid(), Err: runErr}
	}
	return nil
}
