// Package launch provides the `clusterflow launch` command, which provisions a cluster and runs a task on it.
package launch

import (
	"github.com/gruntwork-io/clusterflow/cli/commands/common"
	"github.com/gruntwork-io/clusterflow/cli/flags"
	"github.com/gruntwork-io/clusterflow/options"
	"github.com/urfave/cli/v2"
)

const CommandName = "launch"

func NewFlags(cmdOpts *flags.TaskOptions) []cli.Flag {
	return append(flags.NewLaunchFlags(cmdOpts), flags.NewStagesFlag(cmdOpts))
}

func NewCommand(opts *options.Options) *cli.Command {
	cmdOpts := new(flags.TaskOptions)

	return &cli.Command{
		Name:      CommandName,
		Usage:     "Provision a cluster and run a task on it.",
		UsageText: "clusterflow launch [options] <task.hcl>",
		Flags:     NewFlags(cmdOpts),
		Action: func(ctx *cli.Context) error {
			taskPath, err := common.TaskPath(ctx)
			if err != nil {
				return err
			}

			return Run(ctx.Context, opts, cmdOpts, taskPath)
		},
	}
}
