package flags

import (
	"github.com/urfave/cli/v2"
)

const (
	ClusterFlagName     = "cluster"
	DryRunFlagName      = "dryrun"
	DownFlagName        = "down"
	DetachFlagName      = "detach"
	IdleMinutesFlagName = "idle-minutes-to-autostop"
	OptimizeFlagName    = "optimize"
	StagesFlagName      = "stages"
)

// TaskOptions are the per-run flags shared by the commands that run a task.
type TaskOptions struct {
	ClusterName string
	DryRun      bool
	Down        bool
	Detach      bool
	IdleMinutes int
	Optimize    string
	Stages      cli.StringSlice
}

func NewClusterFlag(dest *string, required bool) cli.Flag {
	return &cli.StringFlag{
		Name:        ClusterFlagName,
		Aliases:     []string{"c"},
		EnvVars:     EnvVars(ClusterFlagName),
		Destination: dest,
		Required:    required,
		Usage:       "The cluster to run on. A name is generated if omitted.",
	}
}

func NewDetachFlag(dest *bool) cli.Flag {
	return &cli.BoolFlag{
		Name:        DetachFlagName,
		Aliases:     []string{"d"},
		EnvVars:     EnvVars(DetachFlagName),
		Destination: dest,
		Usage:       "Return as soon as the task is started instead of streaming its output.",
	}
}

// NewLaunchFlags returns the flags of the commands that may provision a cluster.
func NewLaunchFlags(cmdOpts *TaskOptions) []cli.Flag {
	return []cli.Flag{
		NewClusterFlag(&cmdOpts.ClusterName, false),
		NewDetachFlag(&cmdOpts.Detach),
		&cli.BoolFlag{
			Name:        DryRunFlagName,
			EnvVars:     EnvVars(DryRunFlagName),
			Destination: &cmdOpts.DryRun,
			Usage:       "Show what would be provisioned and stop.",
		},
		&cli.BoolFlag{
			Name:        DownFlagName,
			EnvVars:     EnvVars(DownFlagName),
			Destination: &cmdOpts.Down,
			Usage:       "Tear the cluster down once the task finishes.",
		},
		&cli.IntFlag{
			Name:        IdleMinutesFlagName,
			Aliases:     []string{"i"},
			EnvVars:     EnvVars(IdleMinutesFlagName),
			Destination: &cmdOpts.IdleMinutes,
			Usage:       "Stop the cluster after this many idle minutes.",
		},
		&cli.StringFlag{
			Name:        OptimizeFlagName,
			EnvVars:     EnvVars(OptimizeFlagName),
			Destination: &cmdOpts.Optimize,
			Usage:       "What to minimize when picking resources: cost or time. Defaults to the global target.",
		},
	}
}

// NewStagesFlag restricts a launch to a subset of the pipeline, e.g. to re-run setup only.
func NewStagesFlag(cmdOpts *TaskOptions) cli.Flag {
	return &cli.StringSliceFlag{
		Name:        StagesFlagName,
		EnvVars:     EnvVars(StagesFlagName),
		Destination: &cmdOpts.Stages,
		Hidden:      true,
		Usage:       "Run only these pipeline stages.",
	}
}
