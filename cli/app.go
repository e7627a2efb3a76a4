// Package cli assembles the clusterflow command line application.
package cli

import (
	"github.com/gruntwork-io/clusterflow/cli/commands"
	"github.com/gruntwork-io/clusterflow/cli/flags"
	"github.com/gruntwork-io/clusterflow/internal/telemetry"
	"github.com/gruntwork-io/clusterflow/options"
	"github.com/urfave/cli/v2"
)

const AppName = "clusterflow"

// Version is set at build time with `-ldflags "-X github.com/gruntwork-io/clusterflow/cli.Version=..."`.
var Version = "dev"

// NewApp creates the clusterflow CLI App.
func NewApp(opts *options.Options) *cli.App {
	app := &cli.App{
		Name:      AppName,
		Usage:     "Provision clusters and run task graphs on them.",
		UsageText: "clusterflow [global options] <command> [options]",
		Version:   Version,
		Writer:    opts.Writer,
		ErrWriter: opts.ErrWriter,
		Flags:     flags.NewGlobalFlags(opts),
		Commands:  commands.New(opts),
		Before:    beforeRunningCommand(opts),
		After:     afterRunningCommand,
		// Errors are reported by the caller of Run, which also picks the exit code.
		ExitErrHandler: func(*cli.Context, error) {},
	}

	return app
}

func beforeRunningCommand(opts *options.Options) cli.BeforeFunc {
	return func(ctx *cli.Context) error {
		if err := opts.ResolvePaths(); err != nil {
			return err
		}

		if err := opts.Validate(); err != nil {
			return err
		}

		telemeter, err := telemetry.NewTelemeter(ctx.Context, AppName, Version, opts.ErrWriter, opts.Telemetry)
		if err != nil {
			return err
		}

		ctx.Context = telemetry.ContextWithTelemeter(ctx.Context, telemeter)

		return nil
	}
}

func afterRunningCommand(ctx *cli.Context) error {
	return telemetry.TelemeterFromContext(ctx.Context).Shutdown(ctx.Context)
}
