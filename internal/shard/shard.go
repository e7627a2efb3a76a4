// Package shard spreads controller submissions over an implicit binary tree of shards.
//
// Shard 1 is the root. When shard i is full, the next candidate is 2*i or 2*i+1, chosen by a
// stable hash of the resource name and i, so every process walking the tree for the same
// name agrees on the path without talking to each other.
package shard

import (
	"context"
	"crypto/sha1" //nolint:gosec
	"fmt"
	"math"
	"strconv"

	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/internal/queue"
	"github.com/gruntwork-io/clusterflow/internal/telemetry"
	"github.com/gruntwork-io/clusterflow/pkg/log"
)

// Root is the first shard tried.
const Root = 1

// maxIndex stops the walk before shard indices overflow. Reaching it takes over 60 full shards in a row.
const maxIndex = math.MaxInt / 4

// Next returns the shard to try after current was found full.
func Next(name string, current int) int {
	digest := sha1.Sum([]byte(name + ":" + strconv.Itoa(current))) //nolint:gosec

	return 2*current + int(digest[len(digest)-1]%2)
}

// ControllerName maps a shard index to the name of the controller cluster serving it.
func ControllerName(base string, index int) string {
	if index <= Root {
		return base
	}

	return base + "-" + strconv.Itoa(index)
}

// QueueFactory returns the admission queue of the given shard.
type QueueFactory func(ctx context.Context, index int) (queue.Queue, error)

// Selector walks the shard tree until a shard admits the caller.
type Selector struct {
	logger    log.Logger
	telemeter *telemetry.Telemeter
	newQueue  QueueFactory
}

// NewSelector returns a Selector that claims slots from queues built by newQueue.
func NewSelector(logger log.Logger, telemeter *telemetry.Telemeter, newQueue QueueFactory) *Selector {
	return &Selector{
		logger:    logger.WithField(log.FieldKeyPrefix, "shard"),
		telemeter: telemeter,
		newQueue:  newQueue,
	}
}

// Result is the shard that admitted the caller, together with the held slot.
type Result struct {
	Index    int
	Queue    queue.Queue
	Attempts int
}

// ExhaustedError is returned by Walk when every shard down to the deepest index it can address
// was full.
type ExhaustedError struct {
	Name     string
	Attempts int
}

func (err ExhaustedError) Error() string {
	return fmt.Sprintf("no shard admitted %s after %d attempts", err.Name, err.Attempts)
}

// Walk claims a slot on the first shard along name's path that has room. A full shard is
// never retried; the walk only descends. It returns without a slot if ctx is done, if a
// queue fails, or with an ExhaustedError if the path runs past the deepest shard index
// without finding room, which takes over 60 full shards in a row.
func (selector *Selector) Walk(ctx context.Context, name string) (*Result, error) {
	index := Root

	for attempts := 1; ; attempts++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.New(err)
		}

		q, entered, err := selector.try(ctx, name, index)
		if err != nil {
			return nil, err
		}

		selector.telemeter.Count(ctx, "shard_attempts", 1, map[string]any{
			log.FieldKeyCluster: name,
			log.FieldKeyShard:   index,
			"entered":           entered,
		})

		if entered {
			selector.logger.Debugf("Shard %d admitted %s after %d attempt(s)", index, name, attempts)
			return &Result{Index: index, Queue: q, Attempts: attempts}, nil
		}

		if index > maxIndex {
			return nil, errors.New(ExhaustedError{Name: name, Attempts: attempts})
		}

		next := Next(name, index)
		selector.logger.Debugf("Shard %d is full for %s, trying shard %d", index, name, next)

		index = next
	}
}

func (selector *Selector) try(ctx context.Context, name string, index int) (queue.Queue, bool, error) {
	var (
		q       queue.Queue
		entered bool
	)

	err := selector.telemeter.Collect(ctx, "shard_enter", map[string]any{
		log.FieldKeyCluster: name,
		log.FieldKeyShard:   index,
	}, func(ctx context.Context) error {
		var err error

		if q, err = selector.newQueue(ctx, index); err != nil {
			return err
		}

		entered, err = q.Enter(ctx)

		return err
	})

	return q, entered, err
}
