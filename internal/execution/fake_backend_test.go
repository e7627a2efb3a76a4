package execution_test

import (
	"context"
	"slices"
	"sync"

	"github.com/gruntwork-io/clusterflow/internal/backend"
	"github.com/gruntwork-io/clusterflow/internal/cluster"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/internal/optimizer"
	"github.com/gruntwork-io/clusterflow/internal/registry"
	"github.com/gruntwork-io/clusterflow/internal/task"
)

// recorder collects the names of the collaborator calls made during a run.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (rec *recorder) record(call string) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.calls = append(rec.calls, call)
}

func (rec *recorder) Calls() []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	return slices.Clone(rec.calls)
}

type fakeBackend struct {
	*recorder

	caps    backend.Capabilities
	failOn  string
	panicOn string

	// store, if set, records provisioned clusters as UP.
	store registry.Store
	// onExecute runs inside Execute before it returns.
	onExecute func()

	mu              sync.Mutex
	executedWith    *cluster.Handle
	postExecuteErr  error
	postExecuteRuns int
}

var _ backend.Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		recorder: &recorder{},
		caps:     backend.Capabilities{Autostop: true, Optimize: true},
	}
}

func (b *fakeBackend) call(name string) error {
	b.record(name)

	if b.panicOn == name {
		panic("panic in " + name)
	}

	if b.failOn == name {
		return errors.Errorf("%s failed", name)
	}

	return nil
}

func (b *fakeBackend) Name() string                       { return "fake" }
func (b *fakeBackend) Capabilities() backend.Capabilities { return b.caps }
func (b *fakeBackend) RegisterInfo(*task.Dag, string)     {}

func (b *fakeBackend) Provision(ctx context.Context, _ *task.Task, res *task.Resources, opts backend.ProvisionOptions) (*cluster.Handle, error) {
	if err := b.call("Provision"); err != nil {
		return nil, err
	}

	handle := &cluster.Handle{ClusterName: opts.ClusterName, Backend: b.Name(), Resources: res.String()}

	if b.store != nil && !opts.DryRun {
		if err := b.store.Upsert(ctx, &cluster.Record{Name: opts.ClusterName, Status: cluster.StatusUp, Handle: handle}); err != nil {
			return nil, err
		}
	}

	return handle, nil
}

func (b *fakeBackend) SyncWorkdir(context.Context, *cluster.Handle, string) error {
	return b.call("SyncWorkdir")
}

func (b *fakeBackend) SyncFileMounts(context.Context, *cluster.Handle, map[string]string, []*task.Storage) error {
	return b.call("SyncFileMounts")
}

func (b *fakeBackend) Setup(context.Context, *cluster.Handle, *task.Task) error {
	return b.call("Setup")
}

func (b *fakeBackend) SetAutostop(context.Context, *cluster.Handle, int) error {
	return b.call("SetAutostop")
}

func (b *fakeBackend) Execute(ctx context.Context, handle *cluster.Handle, _ *task.Task, _ bool) error {
	b.mu.Lock()
	b.executedWith = handle
	b.mu.Unlock()

	if b.onExecute != nil {
		b.onExecute()

		if err := ctx.Err(); err != nil {
			b.record("Execute")
			return errors.New(err)
		}
	}

	return b.call("Execute")
}

func (b *fakeBackend) PostExecute(ctx context.Context, _ *cluster.Handle, _ bool) error {
	b.mu.Lock()
	b.postExecuteErr = ctx.Err()
	b.postExecuteRuns++
	b.mu.Unlock()

	return b.call("PostExecute")
}

func (b *fakeBackend) Teardown(context.Context, *cluster.Handle) error {
	return b.call("Teardown")
}

func (b *fakeBackend) TeardownEphemeralStorage(context.Context, *task.Task) error {
	return b.call("TeardownEphemeralStorage")
}

// fakeOptimizer resolves every task to a fixed instance type.
type fakeOptimizer struct {
	*recorder
}

func (opt *fakeOptimizer) Optimize(_ context.Context, dag *task.Dag, _ optimizer.Target) (*task.Dag, error) {
	opt.record("Optimize")

	tasks := make([]*task.Task, 0, dag.Len())

	for _, t := range dag.Tasks {
		optimized := *t
		optimized.BestResources = &task.Resources{Name: "picked", InstanceType: "m5.large"}
		tasks = append(tasks, &optimized)
	}

	return task.NewDag(tasks...), nil
}
