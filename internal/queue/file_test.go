package queue_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gruntwork-io/clusterflow/internal/queue"
	"github.com/gruntwork-io/clusterflow/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCapacity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 32, queue.Capacity(4))
	assert.Equal(t, 8, queue.Capacity(0))
}

func TestFileQueueNeverExceedsCapacity(t *testing.T) {
	t.Parallel()

	const (
		capacity  = 4
		claimants = 16
	)

	path := filepath.Join(t.TempDir(), ".controller.lock.queue")
	logger := log.New()

	var entered atomic.Int32

	queues := make([]*queue.FileQueue, claimants)

	g, ctx := errgroup.WithContext(t.Context())

	for i := range claimants {
		queues[i] = queue.NewFileQueue(logger, path, capacity)

		g.Go(func() error {
			ok, err := queues[i].Enter(ctx)
			if ok {
				entered.Add(1)
			}

			return err
		})
	}

	require.NoError(t, g.Wait())
	assert.Equal(t, int32(capacity), entered.Load())

	occupancy, err := queue.NewFileQueue(logger, path, capacity).Occupancy(t.Context())
	require.NoError(t, err)
	assert.Equal(t, capacity, occupancy)

	for _, q := range queues {
		require.NoError(t, q.Exit(t.Context()))
	}

	occupancy, err = queue.NewFileQueue(logger, path, capacity).Occupancy(t.Context())
	require.NoError(t, err)
	assert.Zero(t, occupancy)
}

func TestFileQueueExitIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	path := filepath.Join(t.TempDir(), ".q.lock.queue")
	logger := log.New()

	first := queue.NewFileQueue(logger, path, 1)
	second := queue.NewFileQueue(logger, path, 1)

	require.NoError(t, first.Exit(ctx))

	ok, err := first.Enter(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = first.Enter(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "re-entering a held queue keeps the same slot")

	ok, err = second.Enter(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Exit(ctx))
	require.NoError(t, first.Exit(ctx))

	ok, err = second.Enter(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = first.Enter(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "a redundant exit must not free someone else's slot")
}

func TestFileQueueReclaimsExpiredLease(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	path := filepath.Join(t.TempDir(), ".q.lock.queue")
	logger := log.New()

	var now atomic.Int64

	now.Store(time.Now().UnixNano())

	clock := queue.WithClock(func() time.Time { return time.Unix(0, now.Load()) })

	holder := queue.NewFileQueue(logger, path, 1, queue.WithLeaseTTL(time.Minute), clock)
	waiter := queue.NewFileQueue(logger, path, 1, queue.WithLeaseTTL(time.Minute), clock)

	ok, err := holder.Enter(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	now.Add(int64(30 * time.Second))
	require.NoError(t, holder.Refresh(ctx))

	now.Add(int64(45 * time.Second))

	ok, err = waiter.Enter(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "refreshed lease is still valid")

	now.Add(int64(2 * time.Minute))

	ok, err = waiter.Enter(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease is reclaimed")

	require.ErrorIs(t, holder.Refresh(ctx), queue.ErrSlotLost)
}

func TestFileQueueCorruptLedger(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".q.lock.queue")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := queue.NewFileQueue(log.New(), path, 1).Enter(t.Context())
	require.ErrorIs(t, err, queue.ErrLedgerCorrupt)
}

type countingQueue struct {
	refreshes atomic.Int32
}

func (q *countingQueue) Enter(_ context.Context) (bool, error) { return true, nil }
func (q *countingQueue) Exit(_ context.Context) error          { return nil }
func (q *countingQueue) Refresh(_ context.Context) error {
	q.refreshes.Add(1)
	return nil
}

func TestKeepAlive(t *testing.T) {
	t.Parallel()

	q := new(countingQueue)

	stop := queue.KeepAlive(t.Context(), log.New(), q, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return q.refreshes.Load() >= 3 }, time.Second, 5*time.Millisecond)

	stop()

	stopped := q.refreshes.Load()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, q.refreshes.Load())
}

func TestKeepAliveWithNonPositiveInterval(t *testing.T) {
	t.Parallel()

	q := new(countingQueue)

	stop := queue.KeepAlive(t.Context(), log.New(), q, 0)
	defer stop()

	assert.Eventually(t, func() bool { return q.refreshes.Load() >= 1 }, time.Second, 5*time.Millisecond)
}
