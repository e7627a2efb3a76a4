// Package version provides the `clusterflow version` command.
package version

import (
	"fmt"

	"github.com/gruntwork-io/clusterflow/options"
	"github.com/urfave/cli/v2"
)

const CommandName = "version"

func NewCommand(opts *options.Options) *cli.Command {
	return &cli.Command{
		Name:  CommandName,
		Usage: "Show the clusterflow version.",
		Action: func(ctx *cli.Context) error {
			_, err := fmt.Fprintf(opts.Writer, "clusterflow version %s\n", ctx.App.Version)
			return err
		},
	}
}
