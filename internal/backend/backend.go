// Package backend defines the contract between the execution pipeline and whatever
// provisions and runs clusters.
package backend

import (
	"context"

	"github.com/gruntwork-io/clusterflow/internal/cluster"
	"github.com/gruntwork-io/clusterflow/internal/task"
)

// Capabilities are the optional features a backend supports.
type Capabilities struct {
	// Autostop means the backend can stop an idle cluster on its own.
	Autostop bool
	// Optimize means the backend can launch whatever resources an optimizer picks.
	Optimize bool
}

// ProvisionOptions are passed to Backend.Provision.
type ProvisionOptions struct {
	ClusterName string
	DryRun      bool
	StreamLogs  bool
}

// Backend provisions clusters and runs tasks on them. Every call after Provision takes the
// handle Provision returned.
type Backend interface {
	// Name identifies the backend in error messages.
	Name() string
	Capabilities() Capabilities

	// RegisterInfo hands the backend the graph being run and the optimization target.
	RegisterInfo(dag *task.Dag, target string)

	Provision(ctx context.Context, t *task.Task, res *task.Resources, opts ProvisionOptions) (*cluster.Handle, error)
	SyncWorkdir(ctx context.Context, handle *cluster.Handle, workdir string) error
	SyncFileMounts(ctx context.Context, handle *cluster.Handle, fileMounts map[string]string, storageMounts []*task.Storage) error
	Setup(ctx context.Context, handle *cluster.Handle, t *task.Task) error
	SetAutostop(ctx context.Context, handle *cluster.Handle, idleMinutes int) error
	Execute(ctx context.Context, handle *cluster.Handle, t *task.Task, detach bool) error
	// PostExecute always runs after Execute, including when Execute failed or was interrupted.
	PostExecute(ctx context.Context, handle *cluster.Handle, teardown bool) error
	Teardown(ctx context.Context, handle *cluster.Handle) error
	TeardownEphemeralStorage(ctx context.Context, t *task.Task) error
}

// ErrUnknownBackend is returned by a Factory for a backend name it does not know.
type ErrUnknownBackend struct {
	Name string
}

func (err ErrUnknownBackend) Error() string {
	return "unknown backend " + err.Name
}
