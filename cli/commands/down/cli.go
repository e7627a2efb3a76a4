// Package down provides the `clusterflow down` command, which tears clusters down.
package down

import (
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/options"
	"github.com/urfave/cli/v2"
)

const CommandName = "down"

// ErrNoClusters is returned when `down` is run without cluster names.
var ErrNoClusters = errors.New("at least one cluster name is required")

func NewCommand(opts *options.Options) *cli.Command {
	return &cli.Command{
		Name:      CommandName,
		Usage:     "Tear down clusters.",
		UsageText: "clusterflow down <cluster> [cluster...]",
		Action: func(ctx *cli.Context) error {
			if !ctx.Args().Present() {
				return ErrNoClusters
			}

			return Run(ctx.Context, opts, ctx.Args().Slice())
		},
	}
}
