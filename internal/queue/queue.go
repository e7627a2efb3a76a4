// Package queue provides bounded admission queues.
//
// A queue hands out at most Capacity slots at a time to independent processes. Enter never
// blocks on a full queue: it reports false, leaving the caller to look elsewhere (see the
// shard package). Slots are leases: a holder refreshes its slot periodically, and a slot
// whose lease ran out, or whose holder process is gone, is reclaimed by the next Enter.
package queue

import (
	"context"
	"time"

	"github.com/gruntwork-io/clusterflow/pkg/log"
)

const (
	// BaseUnit is the number of submissions one controller is sized to serve.
	BaseUnit = 8

	// DefaultLeaseTTL is how long a slot survives without a Refresh.
	DefaultLeaseTTL = 5 * time.Minute

	minKeepAliveInterval = time.Millisecond
)

// Queue is a capacity-bounded admission primitive. One Queue value holds at most one slot.
type Queue interface {
	// Enter claims a slot. It returns false without waiting if the queue is at capacity.
	// Calling Enter while already holding a slot returns true and claims nothing new.
	Enter(ctx context.Context) (bool, error)

	// Exit releases the held slot. It is a no-op if no slot is held.
	Exit(ctx context.Context) error

	// Refresh extends the lease of the held slot. It is a no-op if no slot is held.
	Refresh(ctx context.Context) error
}

// Capacity returns the slot count for the given oversubscription ratio.
func Capacity(oversubscriptionRatio int) int {
	if oversubscriptionRatio < 1 {
		oversubscriptionRatio = 1
	}

	return oversubscriptionRatio * BaseUnit
}

// KeepAlive refreshes q every interval until ctx is done or the returned stop func is called.
// Refresh failures are logged and do not stop the loop.
func KeepAlive(ctx context.Context, logger log.Logger, q Queue, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = minKeepAliveInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := q.Refresh(ctx); err != nil && ctx.Err() == nil {
					logger.Warnf("Failed to refresh queue slot: %v", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
