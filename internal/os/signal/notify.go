// Package signal turns OS interrupt signals into context cancellation.
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"github.com/gruntwork-io/clusterflow/internal/errors"
)

// NotifyContext returns a copy of parent that is canceled when one of InterruptSignals arrives.
// The cancel cause is a *ContextCanceledCause carrying the received signal, so that child
// processes can be given the same signal instead of a hard kill.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	stop := NotifierWithContext(ctx, func(sig os.Signal) {
		cancel(NewContextCanceledCause(sig))
	}, InterruptSignals...)

	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

// NotifierWithContext calls notifyFn for every received signal until ctx is done or the returned stop func is called.
func NotifierWithContext(ctx context.Context, notifyFn func(sig os.Signal), sigs ...os.Signal) func() {
	if len(sigs) == 0 {
		return func() {}
	}

	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})

	signal.Notify(sigCh, sigs...)

	go func() {
		defer signal.Stop(sigCh)

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case sig := <-sigCh:
				notifyFn(sig)
			}
		}
	}()

	var once sync.Once

	return func() {
		once.Do(func() { close(done) })
	}
}

// CauseSignal returns the signal that canceled ctx, or nil if ctx was canceled for another reason.
func CauseSignal(ctx context.Context) os.Signal {
	var cause *ContextCanceledCause
	if errors.As(context.Cause(ctx), &cause) {
		return cause.Signal
	}

	return nil
}
