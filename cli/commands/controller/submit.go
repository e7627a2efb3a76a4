package controller

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gruntwork-io/clusterflow/cli/commands/common"
	"github.com/gruntwork-io/clusterflow/cli/flags"
	"github.com/gruntwork-io/clusterflow/dynamodb"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/internal/placement"
	"github.com/gruntwork-io/clusterflow/internal/shard"
	"github.com/gruntwork-io/clusterflow/internal/task"
	"github.com/gruntwork-io/clusterflow/options"
)

func RunSubmit(ctx context.Context, opts *options.Options, cmdOpts *flags.TaskOptions, taskPath string) error {
	taskPath, err := filepath.Abs(taskPath)
	if err != nil {
		return errors.WithStackTrace(err)
	}

	queues, err := NewQueueFactory(ctx, opts)
	if err != nil {
		return err
	}

	pipeline, err := common.NewPipeline(ctx, opts)
	if err != nil {
		return err
	}
	defer pipeline.Close() //nolint:errcheck

	selector := shard.NewSelector(opts.Logger, pipeline.Telemeter, queues)
	builder := placement.NewControllerTaskBuilder(opts.StatusCommand, &task.Resources{
		Name:         "controller",
		InstanceType: opts.ControllerInstanceType,
	})

	placer := placement.NewPlacer(opts.Logger, selector, pipeline.Orchestrator, builder,
		placement.WithControllerBase(opts.ControllerName),
		placement.WithIdleMinutes(opts.ControllerIdleMinutes),
		placement.WithLeaseTTL(opts.QueueLeaseTTL),
	)

	result, err := placer.Submit(ctx, &placement.Request{
		TaskPath:    taskPath,
		ClusterName: cmdOpts.ClusterName,
		Detach:      cmdOpts.Detach,
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(opts.Writer, "Task for cluster %s ran on controller %s (shard %d).\n",
		result.ClusterName, result.ControllerName, result.Shard)

	return errors.WithStackTrace(err)
}

// NewQueueFactory returns the admission queues configured by opts.QueueBackend.
func NewQueueFactory(ctx context.Context, opts *options.Options) (shard.QueueFactory, error) {
	capacity := opts.QueueCapacity()

	switch opts.QueueBackend {
	case options.QueueBackendFile:
		return placement.FileQueues(opts.Logger, opts.LockDir, opts.ControllerName, capacity, opts.QueueLeaseTTL), nil
	case options.QueueBackendDynamoDB:
		client, err := dynamodb.NewClient(ctx, opts.AWSRegion)
		if err != nil {
			return nil, err
		}

		if err := dynamodb.CreateLeaseTableIfNecessary(ctx, opts.Logger, client, opts.DynamoDBTable, nil); err != nil {
			return nil, err
		}

		return placement.LeaseQueues(opts.Logger, client, opts.DynamoDBTable, opts.ControllerName, capacity, opts.QueueLeaseTTL), nil
	default:
		return nil, errors.Errorf("unknown queue backend %q", opts.QueueBackend)
	}
}
