// Package commands lists the clusterflow subcommands.
package commands

import (
	"github.com/gruntwork-io/clusterflow/cli/commands/controller"
	"github.com/gruntwork-io/clusterflow/cli/commands/down"
	"github.com/gruntwork-io/clusterflow/cli/commands/exec"
	"github.com/gruntwork-io/clusterflow/cli/commands/launch"
	"github.com/gruntwork-io/clusterflow/cli/commands/run"
	"github.com/gruntwork-io/clusterflow/cli/commands/status"
	"github.com/gruntwork-io/clusterflow/cli/commands/version"
	"github.com/gruntwork-io/clusterflow/options"
	"github.com/urfave/cli/v2"
)

// New returns the top level commands in the order they appear in help.
func New(opts *options.Options) cli.Commands {
	return cli.Commands{
		launch.NewCommand(opts),
		exec.NewCommand(opts),
		run.NewCommand(opts),
		status.NewCommand(opts),
		down.NewCommand(opts),
		controller.NewCommand(opts),
		version.NewCommand(opts),
	}
}
