// Package exec provides the `clusterflow exec` command, which runs a task on a cluster that is already up.
package exec

import (
	"github.com/gruntwork-io/clusterflow/cli/commands/common"
	"github.com/gruntwork-io/clusterflow/cli/flags"
	"github.com/gruntwork-io/clusterflow/options"
	"github.com/urfave/cli/v2"
)

const CommandName = "exec"

func NewFlags(cmdOpts *flags.TaskOptions) []cli.Flag {
	return []cli.Flag{
		flags.NewClusterFlag(&cmdOpts.ClusterName, true),
		flags.NewDetachFlag(&cmdOpts.Detach),
	}
}

func NewCommand(opts *options.Options) *cli.Command {
	cmdOpts := new(flags.TaskOptions)

	return &cli.Command{
		Name:        CommandName,
		Usage:       "Run a task on an existing cluster.",
		UsageText:   "clusterflow exec --cluster <name> [options] <task.hcl>",
		Description: "Syncs the task's workdir and runs it. Setup and file mounts are skipped; the cluster must be UP.",
		Flags:       NewFlags(cmdOpts),
		Action: func(ctx *cli.Context) error {
			taskPath, err := common.TaskPath(ctx)
			if err != nil {
				return err
			}

			return Run(ctx.Context, opts, cmdOpts, taskPath)
		},
	}
}
