// Package execution drives a task through the clusterflow pipeline: optimize, provision, sync,
// set up, execute and tear down.
//
// Launch, Exec and ExecOrLaunch pick which stages run. Execute runs them in order against a
// backend, reports the state of the clusters once if any stage fails, and returns an error
// carrying the process exit code.
package execution

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gruntwork-io/clusterflow/internal/backend"
	"github.com/gruntwork-io/clusterflow/internal/cluster"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/internal/optimizer"
	"github.com/gruntwork-io/clusterflow/internal/registry"
	"github.com/gruntwork-io/clusterflow/internal/report"
	"github.com/gruntwork-io/clusterflow/internal/task"
	"github.com/gruntwork-io/clusterflow/internal/telemetry"
	"github.com/gruntwork-io/clusterflow/pkg/log"
)

// Request is one run of the pipeline.
type Request struct {
	Dag *task.Dag

	// ClusterName is the cluster to create or reuse. A name is generated if empty.
	ClusterName string
	// Handle is an already provisioned cluster. PROVISION is a no-op when set.
	Handle *cluster.Handle
	// Stages restricts the run to a subset of the pipeline. Nil runs every stage.
	Stages Stages
	Target optimizer.Target

	DryRun     bool
	Teardown   bool
	StreamLogs bool
	Detach     bool
	// IdleMinutesToAutostop configures autostop before EXEC. Zero or less leaves autostop alone.
	IdleMinutesToAutostop int
	// IsController marks runs issued by controller placement, which may target reserved names.
	IsController bool
	// ManagedRecovery marks runs of the managed-recovery entry point on a controller, which accept
	// tasks that need spot recovery.
	ManagedRecovery bool
}

// Orchestrator runs requests against one backend.
type Orchestrator struct {
	logger    log.Logger
	backend   backend.Backend
	registry  registry.Registry
	optimizer optimizer.Optimizer
	reporter  report.Reporter
	names     *cluster.ReservedNames
	telemeter *telemetry.Telemeter
	lockDir   string
	errWriter io.Writer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTelemeter records a span and a duration metric for every stage.
func WithTelemeter(telemeter *telemetry.Telemeter) Option {
	return func(orch *Orchestrator) {
		orch.telemeter = telemeter
	}
}

// WithReservedNames sets the controller names user requests may not target.
func WithReservedNames(names *cluster.ReservedNames) Option {
	return func(orch *Orchestrator) {
		orch.names = names
	}
}

// WithLockDir sets where ExecOrLaunch keeps its lock files. Defaults to the OS temp dir.
func WithLockDir(dir string) Option {
	return func(orch *Orchestrator) {
		orch.lockDir = dir
	}
}

// WithErrWriter sets where failure diagnostics are printed. Defaults to os.Stderr.
func WithErrWriter(writer io.Writer) Option {
	return func(orch *Orchestrator) {
		orch.errWriter = writer
	}
}

// NewOrchestrator returns an Orchestrator running against be.
func NewOrchestrator(logger log.Logger, be backend.Backend, reg registry.Registry, opt optimizer.Optimizer, reporter report.Reporter, opts ...Option) *Orchestrator {
	orch := &Orchestrator{
		logger:    logger,
		backend:   be,
		registry:  reg,
		optimizer: opt,
		reporter:  reporter,
		lockDir:   os.TempDir(),
		errWriter: os.Stderr,
	}

	for _, opt := range opts {
		opt(orch)
	}

	return orch
}

// Execute validates req and runs its stages. A stage failure prints the error with its stack,
// reports cluster state once and returns an error with exit code 1.
func (orch *Orchestrator) Execute(ctx context.Context, req *Request) error {
	if err := orch.validate(req); err != nil {
		return err
	}

	if req.ClusterName == "" {
		req.ClusterName = cluster.GenerateName()
	}

	if err := checkClusterName(req.ClusterName); err != nil {
		return err
	}

	logger := orch.logger.WithField(log.FieldKeyCluster, req.ClusterName)

	return orch.finish(ctx, logger, req.ClusterName, orch.run(ctx, logger, req))
}

func (orch *Orchestrator) validate(req *Request) error {
	if req.Dag.Len() != 1 {
		return usageError("clusterflow runs exactly one task per invocation, got %d in %s", req.Dag.Len(), req.Dag)
	}

	if req.Dag.Tasks[0].NeedSpotRecovery() && !req.ManagedRecovery {
		return usageError("Spot recovery is specified in the task. To launch a managed spot job, use: clusterflow controller submit")
	}

	if req.IdleMinutesToAutostop > 0 && !orch.backend.Capabilities().Autostop {
		return usageError("Backend %s does not support autostop", orch.backend.Name())
	}

	return nil
}

func checkClusterName(name string) error {
	if err := cluster.CheckNameValid(name); err != nil {
		return errors.ErrorWithExitCode{Err: err, ExitCode: 1}
	}

	return nil
}

// outcome is the result of the stages. It is turned into a report and an exit code in exactly
// one place, finish.
type outcome struct {
	err error
}

func (orch *Orchestrator) finish(ctx context.Context, logger log.Logger, clusterName string, result outcome) error {
	if result.err == nil {
		return nil
	}

	fmt.Fprintln(orch.errWriter, errors.ErrorWithStackTrace(result.err)) //nolint:errcheck
	fmt.Fprintln(orch.errWriter)                                        //nolint:errcheck

	if orch.reporter != nil {
		if err := orch.reporter.Report(context.WithoutCancel(ctx), clusterName); err != nil {
			logger.Warnf("Failed to report cluster status: %v", err)
		}
	}

	return errors.ErrorWithExitCode{Err: result.err, ExitCode: 1}
}

// run executes the requested stages in pipeline order and stops at the first failure.
func (orch *Orchestrator) run(ctx context.Context, logger log.Logger, req *Request) (result outcome) {
	current := StageOptimize

	defer errors.Recover(func(cause error) {
		result = outcome{err: StageError{Stage: current, Err: cause}}
	})

	var (
		dag    = req.Dag
		handle = req.Handle
	)

	stage := func(s Stage, fn func(ctx context.Context) error) error {
		if !req.Stages.Contains(s) {
			return nil
		}

		current = s

		attrs := map[string]any{
			log.FieldKeyCluster: req.ClusterName,
			log.FieldKeyStage:   s.String(),
		}

		err := orch.telemeter.Collect(ctx, s.metricName(), attrs, func(ctx context.Context) error {
			logger.Debugf("Running stage %s", s)
			return fn(ctx)
		})
		if err != nil {
			return StageError{Stage: s, Err: err}
		}

		return nil
	}

	if err := stage(StageOptimize, func(ctx context.Context) error {
		optimized, err := orch.optimize(ctx, logger, req)
		if err != nil {
			return err
		}

		dag = optimized

		return nil
	}); err != nil {
		return outcome{err: err}
	}

	t := dag.Tasks[0]

	orch.backend.RegisterInfo(dag, string(req.Target))

	if err := stage(StageProvision, func(ctx context.Context) error {
		if handle != nil {
			return nil
		}

		provisioned, err := orch.backend.Provision(ctx, t, t.BestResources, backend.ProvisionOptions{
			ClusterName: req.ClusterName,
			DryRun:      req.DryRun,
			StreamLogs:  req.StreamLogs,
		})
		if err != nil {
			return err
		}

		handle = provisioned

		return nil
	}); err != nil {
		return outcome{err: err}
	}

	if req.DryRun {
		logger.Infof("Dry run finished.")
		return outcome{}
	}

	stages := []struct {
		stage Stage
		fn    func(ctx context.Context) error
	}{
		{StageSyncWorkdir, func(ctx context.Context) error {
			if t.Workdir == "" {
				return nil
			}

			return orch.backend.SyncWorkdir(ctx, handle, t.Workdir)
		}},
		{StageSyncFileMounts, func(ctx context.Context) error {
			if !t.HasFileMounts() {
				return nil
			}

			return orch.backend.SyncFileMounts(ctx, handle, t.FileMounts, t.StorageMounts)
		}},
		{StageSetup, func(ctx context.Context) error {
			return orch.backend.Setup(ctx, handle, t)
		}},
		{StagePreExec, func(ctx context.Context) error {
			if req.IdleMinutesToAutostop <= 0 {
				return nil
			}

			return orch.backend.SetAutostop(ctx, handle, req.IdleMinutesToAutostop)
		}},
		{StageExec, func(ctx context.Context) error {
			return orch.execute(ctx, logger, req, handle, t)
		}},
		{StageTeardown, func(ctx context.Context) error {
			if !req.Teardown {
				return nil
			}

			if err := orch.backend.TeardownEphemeralStorage(ctx, t); err != nil {
				return err
			}

			return orch.backend.Teardown(ctx, handle)
		}},
	}

	for _, s := range stages {
		if err := stage(s.stage, s.fn); err != nil {
			return outcome{err: err}
		}
	}

	return outcome{}
}

// optimize resolves the task's resources unless the cluster already exists, the task already
// names its resources, or the backend cannot launch arbitrary resources.
func (orch *Orchestrator) optimize(ctx context.Context, logger log.Logger, req *Request) (*task.Dag, error) {
	existing, err := orch.registry.GetHandle(ctx, req.ClusterName)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		logger.Debugf("Cluster exists, skipping optimization")
		return req.Dag, nil
	}

	if req.Dag.Tasks[0].BestResources != nil || !orch.backend.Capabilities().Optimize || orch.optimizer == nil {
		return req.Dag, nil
	}

	return orch.optimizer.Optimize(ctx, req.Dag, req.Target)
}

// execute runs the task and then the backend's post-execute hook, which runs on every exit
// path, including failure, panic and cancellation of ctx.
func (orch *Orchestrator) execute(ctx context.Context, logger log.Logger, req *Request, handle *cluster.Handle, t *task.Task) (err error) {
	defer func() {
		if postErr := orch.backend.PostExecute(context.WithoutCancel(ctx), handle, req.Teardown); postErr != nil {
			logger.Warnf("Post-execute hook failed: %v", postErr)

			if err == nil {
				err = postErr
			}
		}
	}()

	if err := orch.registry.UpdateLastUse(ctx, req.ClusterName); err != nil && !errors.Is(err, registry.ErrNotFound) {
		return err
	}

	return orch.backend.Execute(ctx, handle, t, req.Detach)
}
