// Package common wires the collaborators shared by the clusterflow commands.
package common

import (
	"context"

	"github.com/gruntwork-io/clusterflow/cli/flags"
	"github.com/gruntwork-io/clusterflow/internal/backend"
	"github.com/gruntwork-io/clusterflow/internal/backend/local"
	"github.com/gruntwork-io/clusterflow/internal/cluster"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/internal/execution"
	"github.com/gruntwork-io/clusterflow/internal/optimizer"
	"github.com/gruntwork-io/clusterflow/internal/registry"
	"github.com/gruntwork-io/clusterflow/internal/report"
	"github.com/gruntwork-io/clusterflow/internal/telemetry"
	"github.com/gruntwork-io/clusterflow/options"
)

// Pipeline is everything a command needs to run tasks and inspect clusters.
type Pipeline struct {
	Registry     *registry.SQLiteRegistry
	Backend      backend.Backend
	Names        *cluster.ReservedNames
	Telemeter    *telemetry.Telemeter
	Orchestrator *execution.Orchestrator
}

// NewPipeline opens the registry and builds the backend and orchestrator configured by opts.
// The caller must Close the pipeline.
func NewPipeline(ctx context.Context, opts *options.Options) (*Pipeline, error) {
	reg, err := registry.NewSQLiteRegistry(ctx, opts.Logger, opts.RegistryPath)
	if err != nil {
		return nil, err
	}

	be, err := NewBackend(opts, reg)
	if err != nil {
		reg.Close() //nolint:errcheck
		return nil, err
	}

	if prober, ok := be.(registry.Prober); ok {
		reg.WithProber(prober)
	}

	names := cluster.NewReservedNames(opts.ControllerName)
	telemeter := telemetry.TelemeterFromContext(ctx)

	reporter := report.NewCommandReporter(opts.Logger, opts.StatusCommand, names, opts.ErrWriter)

	orch := execution.NewOrchestrator(
		opts.Logger,
		be,
		reg,
		optimizer.NewCatalog(opts.Logger),
		reporter,
		execution.WithTelemeter(telemeter),
		execution.WithReservedNames(names),
		execution.WithLockDir(opts.LockDir),
		execution.WithErrWriter(opts.ErrWriter),
	)

	return &Pipeline{
		Registry:     reg,
		Backend:      be,
		Names:        names,
		Telemeter:    telemeter,
		Orchestrator: orch,
	}, nil
}

// NewBackend returns the backend named by opts.Backend.
func NewBackend(opts *options.Options, store registry.Store) (backend.Backend, error) {
	switch opts.Backend {
	case local.Name:
		return local.New(opts.Logger, opts.StateDir, store, opts.Writer), nil
	default:
		return nil, errors.New(backend.ErrUnknownBackend{Name: opts.Backend})
	}
}

// Close releases the registry.
func (pipeline *Pipeline) Close() error {
	return pipeline.Registry.Close()
}

// NewRequest builds the execution request for the task file at taskPath.
func NewRequest(opts *options.Options, taskOpts *flags.TaskOptions, taskPath string) (*execution.Request, error) {
	dag, err := LoadTask(taskPath)
	if err != nil {
		return nil, err
	}

	targetName := taskOpts.Optimize
	if targetName == "" {
		targetName = opts.OptimizeTarget
	}

	target, err := optimizer.ParseTarget(targetName)
	if err != nil {
		return nil, err
	}

	stages, err := execution.ParseStages(taskOpts.Stages.Value())
	if err != nil {
		return nil, err
	}

	return &execution.Request{
		Dag:                   dag,
		ClusterName:           taskOpts.ClusterName,
		Stages:                stages,
		Target:                target,
		DryRun:                taskOpts.DryRun,
		Teardown:              taskOpts.Down,
		StreamLogs:            true,
		Detach:                taskOpts.Detach,
		IdleMinutesToAutostop: taskOpts.IdleMinutes,
	}, nil
}
