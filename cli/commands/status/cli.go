// Package status provides the `clusterflow status` command, which lists the known clusters.
package status

import (
	"github.com/gruntwork-io/clusterflow/options"
	"github.com/urfave/cli/v2"
)

const (
	CommandName = "status"

	RefreshFlagName = "refresh"
)

func NewCommand(opts *options.Options) *cli.Command {
	var refresh bool

	return &cli.Command{
		Name:      CommandName,
		Usage:     "Show the known clusters.",
		UsageText: "clusterflow status [options] [cluster...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        RefreshFlagName,
				Aliases:     []string{"r"},
				Destination: &refresh,
				Usage:       "Ask the backend for the live status of each cluster before printing it.",
			},
		},
		Action: func(ctx *cli.Context) error {
			return Run(ctx.Context, opts, refresh, ctx.Args().Slice())
		},
	}
}
