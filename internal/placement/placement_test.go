package placement_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gruntwork-io/clusterflow/internal/cluster"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/internal/execution"
	"github.com/gruntwork-io/clusterflow/internal/placement"
	"github.com/gruntwork-io/clusterflow/internal/queue"
	"github.com/gruntwork-io/clusterflow/internal/shard"
	"github.com/gruntwork-io/clusterflow/internal/task"
	"github.com/gruntwork-io/clusterflow/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const controllerBase = "ctl"

type fakeRunner struct {
	mu       sync.Mutex
	requests []*execution.Request
	err      error
	during   func()
}

func (runner *fakeRunner) ExecOrLaunch(_ context.Context, req *execution.Request) error {
	runner.mu.Lock()
	runner.requests = append(runner.requests, req)
	runner.mu.Unlock()

	if runner.during != nil {
		runner.during()
	}

	return runner.err
}

type staticBuilder struct {
	err error
}

func (builder staticBuilder) Build(_ context.Context, _ *placement.Request, controllerName string) (*task.Dag, error) {
	if builder.err != nil {
		return nil, builder.err
	}

	return task.NewDag(&task.Task{Name: controllerName, Run: "true"}), nil
}

func newLogger() log.Logger {
	return log.New(log.WithOutput(io.Discard))
}

func newPlacer(lockDir string, capacity int, leaseTTL time.Duration, runner placement.Runner, builder placement.TaskBuilder) *placement.Placer {
	logger := newLogger()
	selector := shard.NewSelector(logger, nil, placement.FileQueues(logger, lockDir, controllerBase, capacity, leaseTTL))

	return placement.NewPlacer(logger, selector, runner, builder,
		placement.WithControllerBase(controllerBase),
		placement.WithIdleMinutes(7),
		placement.WithLeaseTTL(leaseTTL),
	)
}

func occupancy(t *testing.T, lockDir string, index int) int {
	t.Helper()

	q := queue.NewFileQueue(newLogger(), placement.QueuePath(lockDir, shard.ControllerName(controllerBase, index)), 1)

	n, err := q.Occupancy(t.Context())
	require.NoError(t, err)

	return n
}

func TestQueuePath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("/locks", ".ctl-5.lock.queue"), placement.QueuePath("/locks", "ctl-5"))
}

func TestSubmitOnRootShard(t *testing.T) {
	t.Parallel()

	lockDir := t.TempDir()
	runner := &fakeRunner{}
	placer := newPlacer(lockDir, queue.Capacity(4), queue.DefaultLeaseTTL, runner, staticBuilder{})

	got, err := placer.Submit(t.Context(), &placement.Request{ClusterName: "job", Detach: true})
	require.NoError(t, err)

	assert.Equal(t, &placement.Placement{Shard: 1, ControllerName: controllerBase, ClusterName: "job"}, got)

	require.Len(t, runner.requests, 1)

	req := runner.requests[0]
	assert.Equal(t, controllerBase, req.ClusterName)
	assert.True(t, req.IsController)
	assert.True(t, req.Detach)
	assert.True(t, req.StreamLogs)
	assert.Equal(t, 7, req.IdleMinutesToAutostop)
	assert.Equal(t, controllerBase, req.Dag.Tasks[0].Name)

	assert.Zero(t, occupancy(t, lockDir, 1))
}

func TestSubmitSpillsPastFullShard(t *testing.T) {
	t.Parallel()

	lockDir := t.TempDir()

	holder := queue.NewFileQueue(newLogger(), placement.QueuePath(lockDir, controllerBase), 1)
	entered, err := holder.Enter(t.Context())
	require.NoError(t, err)
	require.True(t, entered)

	runner := &fakeRunner{}
	placer := newPlacer(lockDir, 1, queue.DefaultLeaseTTL, runner, staticBuilder{})

	got, err := placer.Submit(t.Context(), &placement.Request{ClusterName: "job"})
	require.NoError(t, err)

	next := shard.Next("job", 1)
	assert.Equal(t, next, got.Shard)
	assert.Equal(t, shard.ControllerName(controllerBase, next), got.ControllerName)
	assert.Equal(t, got.ControllerName, runner.requests[0].ClusterName)

	assert.Equal(t, 1, occupancy(t, lockDir, 1), "the holder keeps its slot")
	assert.Zero(t, occupancy(t, lockDir, next))
}

func TestSubmitReleasesSlotOnFailure(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		runner  *fakeRunner
		builder staticBuilder
	}{
		{name: "runner fails", runner: &fakeRunner{err: errors.New("exec failed")}},
		{name: "builder fails", runner: &fakeRunner{}, builder: staticBuilder{err: errors.New("bad task")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			lockDir := t.TempDir()
			placer := newPlacer(lockDir, 1, queue.DefaultLeaseTTL, tc.runner, tc.builder)

			got, err := placer.Submit(t.Context(), &placement.Request{ClusterName: "job"})
			require.Error(t, err)
			require.NotNil(t, got)
			assert.Equal(t, 1, got.Shard)

			assert.Zero(t, occupancy(t, lockDir, 1))
		})
	}
}

func TestSubmitKeepsSlotAliveWhileRunning(t *testing.T) {
	t.Parallel()

	const leaseTTL = 150 * time.Millisecond

	lockDir := t.TempDir()

	var during int

	runner := &fakeRunner{during: func() {
		time.Sleep(3 * leaseTTL)
		during = occupancy(t, lockDir, 1)
	}}

	placer := newPlacer(lockDir, 1, leaseTTL, runner, staticBuilder{})

	_, err := placer.Submit(t.Context(), &placement.Request{ClusterName: "job"})
	require.NoError(t, err)

	assert.Equal(t, 1, during)
	assert.Zero(t, occupancy(t, lockDir, 1))
}

func TestSubmitGeneratesClusterName(t *testing.T) {
	t.Parallel()

	placer := newPlacer(t.TempDir(), 8, queue.DefaultLeaseTTL, &fakeRunner{}, staticBuilder{})

	got, err := placer.Submit(t.Context(), &placement.Request{})
	require.NoError(t, err)
	assert.Regexp(t, `^clusterflow-[0-9a-f]{8}$`, got.ClusterName)
}

func TestControllerTaskBuilder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "job.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
task "job" {
  run = "echo hello"
}
`), 0o600))

	res := &task.Resources{Name: "controller", InstanceType: "m5.large"}
	builder := placement.NewControllerTaskBuilder("clusterflow", res)

	dag, err := builder.Build(t.Context(), &placement.Request{TaskPath: path, ClusterName: "job", Detach: true}, "ctl-2")
	require.NoError(t, err)
	require.Equal(t, 1, dag.Len())

	controllerTask := dag.Tasks[0]
	assert.Equal(t, "ctl-2", controllerTask.Name)
	assert.Equal(t, path, controllerTask.FileMounts["clusterflow/tasks/job.hcl"])
	assert.Equal(t, `clusterflow controller run "$CLUSTERFLOW_MOUNTS_DIR"/clusterflow/tasks/job.hcl --cluster job --detach`, controllerTask.Run)
	assert.Equal(t, "ctl-2", controllerTask.Envs["CLUSTERFLOW_CONTROLLER"])
	assert.Same(t, res, controllerTask.BestResources)

	_, err = builder.Build(t.Context(), &placement.Request{TaskPath: filepath.Join(t.TempDir(), "missing.hcl")}, "ctl")
	require.Error(t, err)
}

func TestControllerTaskBuilderQuotesCommand(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "job.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
task "job" {
  run = "echo hello"
}
`), 0o600))

	testCases := []struct {
		command  string
		expected string
	}{
		{
			command:  `"/opt/cluster flow/bin/clusterflow"`,
			expected: `'/opt/cluster flow/bin/clusterflow' controller run "$CLUSTERFLOW_MOUNTS_DIR"/clusterflow/tasks/job.hcl --cluster job`,
		},
		{
			command:  "env CLUSTERFLOW_LOG_LEVEL=debug clusterflow",
			expected: `env CLUSTERFLOW_LOG_LEVEL=debug clusterflow controller run "$CLUSTERFLOW_MOUNTS_DIR"/clusterflow/tasks/job.hcl --cluster job`,
		},
	}

	for _, tc := range testCases {
		builder := placement.NewControllerTaskBuilder(tc.command, &task.Resources{InstanceType: "m5.large"})

		dag, err := builder.Build(t.Context(), &placement.Request{TaskPath: path, ClusterName: "job"}, "ctl")
		require.NoError(t, err)
		assert.Equal(t, tc.expected, dag.Tasks[0].Run)
	}

	_, err := placement.NewControllerTaskBuilder("  ", nil).Build(t.Context(), &placement.Request{TaskPath: path, ClusterName: "job"}, "ctl")
	require.ErrorIs(t, err, placement.ErrNoControllerCommand)
}

func TestSubmitRejectsInvalidClusterNames(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"x; touch /tmp/pwned", "../x", "a b"} {
		lockDir := t.TempDir()
		runner := &fakeRunner{}
		placer := newPlacer(lockDir, 8, queue.DefaultLeaseTTL, runner, staticBuilder{})

		_, err := placer.Submit(t.Context(), &placement.Request{ClusterName: name})

		var invalid cluster.InvalidNameError
		require.ErrorAs(t, err, &invalid, name)
		assert.Empty(t, runner.requests, name)
		assert.Zero(t, occupancy(t, lockDir, 1), name)
	}
}

func TestSubmitWithZeroLeaseTTL(t *testing.T) {
	t.Parallel()

	lockDir := t.TempDir()
	runner := &fakeRunner{}
	logger := newLogger()
	selector := shard.NewSelector(logger, nil, placement.FileQueues(logger, lockDir, controllerBase, 8, queue.DefaultLeaseTTL))

	for _, ttl := range []time.Duration{0, 2 * time.Nanosecond, -time.Second} {
		placer := placement.NewPlacer(logger, selector, runner, staticBuilder{},
			placement.WithControllerBase(controllerBase),
			placement.WithLeaseTTL(ttl),
		)

		_, err := placer.Submit(t.Context(), &placement.Request{ClusterName: "job"})
		require.NoError(t, err, ttl)
	}

	assert.Len(t, runner.requests, 3)
}
