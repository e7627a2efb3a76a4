// Package run provides the `clusterflow run` command, which runs a task on a cluster if it is up
// and launches the cluster otherwise.
package run

import (
	"github.com/gruntwork-io/clusterflow/cli/commands/common"
	"github.com/gruntwork-io/clusterflow/cli/flags"
	"github.com/gruntwork-io/clusterflow/options"
	"github.com/urfave/cli/v2"
)

const CommandName = "run"

func NewCommand(opts *options.Options) *cli.Command {
	cmdOpts := new(flags.TaskOptions)

	return &cli.Command{
		Name:      CommandName,
		Usage:     "Run a task, reusing the cluster if it is up and launching it otherwise.",
		UsageText: "clusterflow run [options] <task.hcl>",
		Flags:     flags.NewLaunchFlags(cmdOpts),
		Action: func(ctx *cli.Context) error {
			taskPath, err := common.TaskPath(ctx)
			if err != nil {
				return err
			}

			return Run(ctx.Context, opts, cmdOpts, taskPath)
		},
	}
}
