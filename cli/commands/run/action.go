package run

import (
	"context"

	"github.com/gruntwork-io/clusterflow/cli/commands/common"
	"github.com/gruntwork-io/clusterflow/cli/flags"
	"github.com/gruntwork-io/clusterflow/options"
)

func Run(ctx context.Context, opts *options.Options, cmdOpts *flags.TaskOptions, taskPath string) error {
	req, err := common.NewRequest(opts, cmdOpts, taskPath)
	if err != nil {
		return err
	}

	pipeline, err := common.NewPipeline(ctx, opts)
	if err != nil {
		return err
	}
	defer pipeline.Close() //nolint:errcheck

	return pipeline.Orchestrator.ExecOrLaunch(ctx, req)
}
