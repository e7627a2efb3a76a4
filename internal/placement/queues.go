package placement

import (
	"context"
	"path/filepath"
	"time"

	"github.com/gruntwork-io/clusterflow/dynamodb"
	"github.com/gruntwork-io/clusterflow/internal/queue"
	"github.com/gruntwork-io/clusterflow/internal/shard"
	"github.com/gruntwork-io/clusterflow/pkg/log"
)

// QueuePath returns the ledger of the admission queue in front of the named controller.
func QueuePath(lockDir, controllerName string) string {
	return filepath.Join(lockDir, "."+controllerName+".lock.queue")
}

// FileQueues returns a factory of file-ledger queues kept under lockDir, one per controller.
func FileQueues(logger log.Logger, lockDir, controllerBase string, capacity int, leaseTTL time.Duration) shard.QueueFactory {
	return func(_ context.Context, index int) (queue.Queue, error) {
		path := QueuePath(lockDir, shard.ControllerName(controllerBase, index))
		return queue.NewFileQueue(logger, path, capacity, queue.WithLeaseTTL(leaseTTL)), nil
	}
}

// LeaseQueues returns a factory of DynamoDB lease queues sharing table, one per controller.
func LeaseQueues(logger log.Logger, client dynamodb.Client, table, controllerBase string, capacity int, leaseTTL time.Duration) shard.QueueFactory {
	return func(_ context.Context, index int) (queue.Queue, error) {
		name := shard.ControllerName(controllerBase, index)
		return dynamodb.NewLeaseQueue(logger, client, table, name, capacity, dynamodb.WithLeaseTTL(leaseTTL)), nil
	}
}
