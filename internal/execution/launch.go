package execution

import (
	"context"
	"path/filepath"

	"github.com/gruntwork-io/clusterflow/internal/cluster"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/internal/locks"
	"github.com/gruntwork-io/clusterflow/pkg/log"
)

var (
	// execStages is what Exec runs against an UP cluster.
	execStages = Stages{StageSyncWorkdir, StageExec}
	// fastPathStages is what ExecOrLaunch runs against an UP cluster.
	fastPathStages = Stages{StageSyncWorkdir, StageExec, StageSyncFileMounts}
)

// ExecOrLaunchLockPath returns the lock file guarding the status check of clusterName.
func ExecOrLaunchLockPath(lockDir, clusterName string) string {
	return filepath.Join(lockDir, "."+clusterName+".lock.exec_or_launch")
}

// Launch provisions a cluster and runs the pipeline on it, restricted to req.Stages if set.
func (orch *Orchestrator) Launch(ctx context.Context, req *Request) error {
	if !req.IsController {
		if err := orch.names.CheckNameNotReserved(req.ClusterName, "clusterflow launch"); err != nil {
			return errors.ErrorWithExitCode{Err: err, ExitCode: 1}
		}
	}

	launch := *req
	launch.Handle = nil

	return orch.Execute(ctx, &launch)
}

// Exec runs the task on a cluster that is already UP, syncing only the working directory.
func (orch *Orchestrator) Exec(ctx context.Context, req *Request) error {
	if req.ClusterName == "" {
		return usageError("A cluster name is required to exec on an existing cluster.")
	}

	if err := checkClusterName(req.ClusterName); err != nil {
		return err
	}

	if err := orch.names.CheckNameNotReserved(req.ClusterName, "clusterflow exec"); err != nil {
		return errors.ErrorWithExitCode{Err: err, ExitCode: 1}
	}

	status, handle, err := orch.registry.RefreshStatusHandle(ctx, req.ClusterName)
	if err != nil {
		return err
	}

	if handle == nil {
		return usageError("Cluster %q not found. Use `clusterflow launch` to provision first.", req.ClusterName)
	}

	if status != cluster.StatusUp {
		return usageError("Cluster %q is not up. Use `clusterflow status` to check the status.", req.ClusterName)
	}

	exec := *req
	exec.Handle = handle
	exec.Stages = execStages

	return orch.Execute(ctx, &exec)
}

// ExecOrLaunch runs the task on the cluster if it is UP, and launches it otherwise.
//
// The status check runs under a cross-process lock per cluster name. On the fast path the lock
// is released before the task runs. On the slow path it is held until the launch returns, so
// that a concurrent caller waits and then finds the cluster UP instead of launching it again.
func (orch *Orchestrator) ExecOrLaunch(ctx context.Context, req *Request) error {
	if !req.IsController {
		if err := orch.names.CheckNameNotReserved(req.ClusterName, "clusterflow run"); err != nil {
			return errors.ErrorWithExitCode{Err: err, ExitCode: 1}
		}
	}

	if req.ClusterName == "" {
		req.ClusterName = cluster.GenerateName()
	}

	if err := checkClusterName(req.ClusterName); err != nil {
		return err
	}

	logger := orch.logger.WithField(log.FieldKeyCluster, req.ClusterName)

	lock, err := locks.Acquire(ctx, logger, ExecOrLaunchLockPath(orch.lockDir, req.ClusterName))
	if err != nil {
		return err
	}
	defer lock.Unlock() //nolint:errcheck

	status, handle, err := orch.registry.RefreshStatusHandle(ctx, req.ClusterName)
	if err != nil {
		return err
	}

	if handle != nil && status == cluster.StatusUp {
		if err := lock.Unlock(); err != nil {
			return err
		}

		logger.Infof("Cluster is up, running on the existing cluster")

		fast := *req
		fast.Handle = handle
		fast.Stages = fastPathStages

		return orch.Execute(ctx, &fast)
	}

	logger.Infof("Cluster is %s, launching", status)

	return orch.Launch(ctx, req)
}
