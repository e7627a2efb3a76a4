// Package controller provides the `clusterflow controller` commands, which place tasks on
// sharded controller clusters and show how busy those controllers are.
package controller

import (
	"github.com/gruntwork-io/clusterflow/cli/commands/common"
	"github.com/gruntwork-io/clusterflow/cli/flags"
	"github.com/gruntwork-io/clusterflow/options"
	"github.com/urfave/cli/v2"
)

const (
	CommandName       = "controller"
	SubmitCommandName = "submit"
	StatusCommandName = "status"
	RunCommandName    = "run"
)

func NewCommand(opts *options.Options) *cli.Command {
	return &cli.Command{
		Name:  CommandName,
		Usage: "Run tasks through controller clusters.",
		Subcommands: cli.Commands{
			NewSubmitCommand(opts),
			NewStatusCommand(opts),
			NewRunCommand(opts),
		},
	}
}

func NewSubmitCommand(opts *options.Options) *cli.Command {
	cmdOpts := new(flags.TaskOptions)

	return &cli.Command{
		Name:      SubmitCommandName,
		Usage:     "Submit a task to the first controller shard with room for it.",
		UsageText: "clusterflow controller submit [options] <task.hcl>",
		Description: "Walks the controller shards starting at the root, holding an admission slot on the first one " +
			"that has room, and launches the task from that controller. The slot is released when the controller returns.",
		Flags: []cli.Flag{
			flags.NewClusterFlag(&cmdOpts.ClusterName, false),
			flags.NewDetachFlag(&cmdOpts.Detach),
		},
		Action: func(ctx *cli.Context) error {
			taskPath, err := common.TaskPath(ctx)
			if err != nil {
				return err
			}

			return RunSubmit(ctx.Context, opts, cmdOpts, taskPath)
		},
	}
}

func NewStatusCommand(opts *options.Options) *cli.Command {
	return &cli.Command{
		Name:  StatusCommandName,
		Usage: "Show the known controllers and their queue occupancy.",
		Action: func(ctx *cli.Context) error {
			return RunStatus(ctx.Context, opts)
		},
	}
}

// NewRunCommand is the entry point controller tasks invoke. It is hidden from help output.
func NewRunCommand(opts *options.Options) *cli.Command {
	cmdOpts := new(flags.TaskOptions)

	return &cli.Command{
		Name:      RunCommandName,
		Usage:     "Launch a submitted task from a controller.",
		UsageText: "clusterflow controller run --cluster <name> [options] <task.hcl>",
		Hidden:    true,
		Flags: []cli.Flag{
			flags.NewClusterFlag(&cmdOpts.ClusterName, true),
			flags.NewDetachFlag(&cmdOpts.Detach),
		},
		Action: func(ctx *cli.Context) error {
			taskPath, err := common.TaskPath(ctx)
			if err != nil {
				return err
			}

			return RunManaged(ctx.Context, opts, cmdOpts, taskPath)
		},
	}
}
