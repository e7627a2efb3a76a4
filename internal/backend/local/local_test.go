package local_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gruntwork-io/clusterflow/internal/backend"
	"github.com/gruntwork-io/clusterflow/internal/backend/local"
	"github.com/gruntwork-io/clusterflow/internal/cluster"
	"github.com/gruntwork-io/clusterflow/internal/registry"
	"github.com/gruntwork-io/clusterflow/internal/task"
	"github.com/gruntwork-io/clusterflow/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) (*local.Backend, *registry.MemoryRegistry, *bytes.Buffer) {
	t.Helper()

	store := registry.NewMemoryRegistry()
	out := new(bytes.Buffer)

	return local.New(log.New(), t.TempDir(), store, out), store, out
}

func TestProvisionRecordsCluster(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	b, store, _ := newBackend(t)
	res := &task.Resources{Cloud: "local", InstanceType: "host"}

	handle, err := b.Provision(ctx, &task.Task{Name: "train"}, res, backend.ProvisionOptions{ClusterName: "foo"})
	require.NoError(t, err)
	assert.Equal(t, "foo", handle.ClusterName)
	assert.DirExists(t, handle.Head)

	record, err := store.Get(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, cluster.StatusUp, record.Status)
	assert.Equal(t, handle.Head, record.Handle.Head)
	assert.False(t, record.LaunchedAt.IsZero())
}

func TestProvisionDryRunHasNoSideEffects(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	b, store, _ := newBackend(t)

	handle, err := b.Provision(ctx, &task.Task{Name: "train"}, nil, backend.ProvisionOptions{ClusterName: "foo", DryRun: true})
	require.NoError(t, err)
	assert.NoDirExists(t, handle.Head)

	_, err = store.Get(ctx, "foo")
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestSyncSetupExecute(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	b, _, out := newBackend(t)

	workdir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "input.txt"), []byte("hello"), 0o600))

	mountSrc := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(mountSrc, []byte("a: 1"), 0o600))

	storageSrc := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(storageSrc, "data.csv"), []byte("1,2"), 0o600))

	tsk := &task.Task{
		Name:          "train",
		Workdir:       workdir,
		Setup:         "echo setup-done > setup.txt",
		Run:           "cat input.txt; echo \" $GREETING $CLUSTERFLOW_CLUSTER_NAME\"",
		Envs:          map[string]string{"GREETING": "hi"},
		FileMounts:    map[string]string{"/etc/app/config.yaml": mountSrc},
		StorageMounts: []*task.Storage{{Name: "dataset", Source: storageSrc, MountPath: "/data"}},
	}

	handle, err := b.Provision(ctx, tsk, nil, backend.ProvisionOptions{ClusterName: "foo"})
	require.NoError(t, err)

	require.NoError(t, b.SyncWorkdir(ctx, handle, tsk.Workdir))
	require.NoError(t, b.SyncFileMounts(ctx, handle, tsk.FileMounts, tsk.StorageMounts))

	assert.FileExists(t, filepath.Join(handle.Head, "mounts", "etc", "app", "config.yaml"))
	assert.FileExists(t, filepath.Join(handle.Head, "mounts", "data", "data.csv"))
	assert.FileExists(t, filepath.Join(b.StorageDir("dataset"), "data.csv"))

	require.NoError(t, b.Setup(ctx, handle, tsk))
	assert.FileExists(t, filepath.Join(handle.Head, "workdir", "setup.txt"))

	require.NoError(t, b.Execute(ctx, handle, tsk, false))
	assert.Contains(t, out.String(), "hello hi foo")

	require.NoError(t, b.PostExecute(ctx, handle, false))
}

func TestExecuteFailurePropagates(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	b, _, _ := newBackend(t)

	handle, err := b.Provision(ctx, &task.Task{Name: "t"}, nil, backend.ProvisionOptions{ClusterName: "foo"})
	require.NoError(t, err)

	require.Error(t, b.Execute(ctx, handle, &task.Task{Name: "t", Run: "exit 3"}, false))
}

func TestTeardown(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	b, store, _ := newBackend(t)

	storageSrc := t.TempDir()
	tsk := &task.Task{
		Name: "t",
		StorageMounts: []*task.Storage{
			{Name: "scratch", Source: storageSrc, MountPath: "/scratch"},
			{Name: "models", Source: storageSrc, MountPath: "/models", Persistent: true},
		},
	}

	handle, err := b.Provision(ctx, tsk, nil, backend.ProvisionOptions{ClusterName: "foo"})
	require.NoError(t, err)
	require.NoError(t, b.SyncFileMounts(ctx, handle, nil, tsk.StorageMounts))

	require.NoError(t, b.TeardownEphemeralStorage(ctx, tsk))
	assert.NoDirExists(t, b.StorageDir("scratch"))
	assert.DirExists(t, b.StorageDir("models"))

	require.NoError(t, b.Teardown(ctx, handle))
	assert.NoDirExists(t, handle.Head)

	_, err = store.Get(ctx, "foo")
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestProbe(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	b, store, _ := newBackend(t)
	store.WithProber(b)

	handle, err := b.Provision(ctx, &task.Task{Name: "t"}, nil, backend.ProvisionOptions{ClusterName: "foo"})
	require.NoError(t, err)

	status, _, err := store.RefreshStatusHandle(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, cluster.StatusUp, status)

	record, err := store.Get(ctx, "foo")
	require.NoError(t, err)

	record.AutostopMinutes = 1
	record.LastUse = time.Now().Add(-time.Hour)
	require.NoError(t, store.Upsert(ctx, record))

	status, _, err = store.RefreshStatusHandle(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, cluster.StatusStopped, status)

	require.NoError(t, os.RemoveAll(handle.Head))

	status, handle, err = store.RefreshStatusHandle(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, cluster.StatusAbsent, status)
	assert.Nil(t, handle)
}
