package controller

import (
	"context"

	"github.com/gruntwork-io/clusterflow/cli/commands/common"
	"github.com/gruntwork-io/clusterflow/cli/flags"
	"github.com/gruntwork-io/clusterflow/options"
)

// RunManaged launches a submitted task from a controller. Unlike `clusterflow launch` it accepts
// tasks that need spot recovery, since the controller is what manages their recovery.
func RunManaged(ctx context.Context, opts *options.Options, cmdOpts *flags.TaskOptions, taskPath string) error {
	req, err := common.NewRequest(opts, cmdOpts, taskPath)
	if err != nil {
		return err
	}

	req.ManagedRecovery = true

	pipeline, err := common.NewPipeline(ctx, opts)
	if err != nil {
		return err
	}
	defer pipeline.Close() //nolint:errcheck

	return pipeline.Orchestrator.Launch(ctx, req)
}
