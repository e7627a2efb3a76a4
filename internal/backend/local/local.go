// Package local implements a backend whose "clusters" are directories on this host and whose
// commands run as local processes. It is the default backend and the one tests run against.
package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gruntwork-io/clusterflow/internal/backend"
	"github.com/gruntwork-io/clusterflow/internal/cluster"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/internal/os/exec"
	"github.com/gruntwork-io/clusterflow/internal/registry"
	"github.com/gruntwork-io/clusterflow/internal/task"
	"github.com/gruntwork-io/clusterflow/pkg/log"
	"github.com/gruntwork-io/clusterflow/util"
	"golang.org/x/sync/errgroup"
)

// Name is the backend identifier.
const Name = "local"

const (
	workdirName  = "workdir"
	mountsName   = "mounts"
	logsName     = "logs"
	teardownWait = 200 * time.Millisecond
)

// Backend runs clusters as directories under <stateDir>/clusters.
type Backend struct {
	logger   log.Logger
	stateDir string
	store    registry.Store
	writer   io.Writer
	now      func() time.Time

	dag    *task.Dag
	target string
}

// New returns a local backend keeping its clusters under stateDir and recording them in store.
func New(logger log.Logger, stateDir string, store registry.Store, writer io.Writer) *Backend {
	return &Backend{
		logger:   logger.WithField(log.FieldKeyPrefix, Name),
		stateDir: stateDir,
		store:    store,
		writer:   writer,
		now:      time.Now,
	}
}

func (b *Backend) Name() string {
	return Name
}

func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{Autostop: true, Optimize: true}
}

func (b *Backend) RegisterInfo(dag *task.Dag, target string) {
	b.logger.Debugf("Running %s optimized for %s", dag, target)

	b.dag = dag
	b.target = target
}

// ClusterDir returns the directory of the named cluster.
func (b *Backend) ClusterDir(name string) string {
	return filepath.Join(b.stateDir, "clusters", name)
}

// StorageDir returns where the named storage lives between clusters.
func (b *Backend) StorageDir(name string) string {
	return filepath.Join(b.stateDir, "storage", name)
}

func (b *Backend) Provision(ctx context.Context, t *task.Task, res *task.Resources, opts backend.ProvisionOptions) (*cluster.Handle, error) {
	head := b.ClusterDir(opts.ClusterName)

	handle := &cluster.Handle{
		ClusterName: opts.ClusterName,
		Backend:     Name,
		Resources:   res.String(),
		Head:        head,
	}

	if opts.DryRun {
		b.logger.Infof("Would provision cluster %s on %s for %s", opts.ClusterName, res, t)
		return handle, nil
	}

	record, err := b.store.Get(ctx, opts.ClusterName)

	switch {
	case errors.Is(err, registry.ErrNotFound):
		record = &cluster.Record{Name: opts.ClusterName, LaunchedAt: b.now()}
	case err != nil:
		return nil, err
	default:
		b.logger.Infof("Cluster %s exists (%s), restarting it", opts.ClusterName, record.Status)
	}

	record.Status = cluster.StatusInit
	record.Handle = handle

	if err := b.store.Upsert(ctx, record); err != nil {
		return nil, err
	}

	for _, dir := range []string{head, filepath.Join(head, workdirName), filepath.Join(head, mountsName), filepath.Join(head, logsName)} {
		if err := util.EnsureDirectory(dir); err != nil {
			return nil, err
		}
	}

	record.Status = cluster.StatusUp

	if err := b.store.Upsert(ctx, record); err != nil {
		return nil, err
	}

	b.logger.Infof("Cluster %s is up at %s", opts.ClusterName, head)

	return handle, nil
}

func (b *Backend) SyncWorkdir(_ context.Context, handle *cluster.Handle, workdir string) error {
	b.logger.Infof("Syncing workdir %s to cluster %s", workdir, handle.ClusterName)

	return util.CopyFolderContents(workdir, filepath.Join(handle.Head, workdirName))
}

func (b *Backend) SyncFileMounts(ctx context.Context, handle *cluster.Handle, fileMounts map[string]string, storageMounts []*task.Storage) error {
	g, _ := errgroup.WithContext(ctx)

	for target, source := range fileMounts {
		g.Go(func() error {
			b.logger.Debugf("Mounting %s at %s", source, target)
			return util.CopyPath(source, b.mountPath(handle, target))
		})
	}

	for _, storage := range storageMounts {
		g.Go(func() error {
			dir := b.StorageDir(storage.Name)

			if storage.Source != "" && !util.FileExists(dir) {
				b.logger.Debugf("Uploading %s to storage %s", storage.Source, storage.Name)

				if err := util.CopyPath(storage.Source, dir); err != nil {
					return err
				}
			}

			if err := util.EnsureDirectory(dir); err != nil {
				return err
			}

			b.logger.Debugf("Mounting storage %s at %s", storage.Name, storage.MountPath)

			return util.CopyFolderContents(dir, b.mountPath(handle, storage.MountPath))
		})
	}

	return g.Wait()
}

func (b *Backend) Setup(ctx context.Context, handle *cluster.Handle, t *task.Task) error {
	if t.Setup == "" {
		return nil
	}

	b.logger.Infof("Running setup on cluster %s", handle.ClusterName)

	return b.shell(ctx, handle, t, t.Setup).Run()
}

func (b *Backend) SetAutostop(ctx context.Context, handle *cluster.Handle, idleMinutes int) error {
	b.logger.Infof("Cluster %s will stop after %d idle minute(s)", handle.ClusterName, idleMinutes)

	return b.store.SetAutostop(ctx, handle.ClusterName, idleMinutes)
}

func (b *Backend) Execute(ctx context.Context, handle *cluster.Handle, t *task.Task, detach bool) error {
	if t.Run == "" {
		b.logger.Infof("Task %s has no run command", t.Name)
		return nil
	}

	if !detach {
		return b.shell(ctx, handle, t, t.Run).Run()
	}

	logPath := filepath.Join(handle.Head, logsName, "run-"+strconv.FormatInt(b.now().UnixNano(), 10)+".log")

	logFile, err := os.Create(logPath)
	if err != nil {
		return errors.New(err)
	}
	defer logFile.Close() //nolint:errcheck

	// detached runs must outlive the submitting process
	cmd := b.shell(context.WithoutCancel(ctx), handle, t, t.Run)
	cmd.Configure(exec.WithOutput(logFile, logFile))

	if err := cmd.Start(); err != nil {
		return err
	}

	b.logger.Infof("Task %s is running in the background (pid %d), logs at %s", t.Name, cmd.Process.Pid, logPath)

	return errors.WithStackTrace(cmd.Process.Release())
}

func (b *Backend) PostExecute(_ context.Context, handle *cluster.Handle, teardown bool) error {
	if !teardown {
		b.logger.Infof("To tear down the cluster, run: clusterflow down %s", handle.ClusterName)
	}

	return nil
}

func (b *Backend) Teardown(ctx context.Context, handle *cluster.Handle) error {
	b.logger.Infof("Tearing down cluster %s", handle.ClusterName)

	err := util.DoWithRetry(ctx, "Removing "+handle.Head, 3, teardownWait, b.logger, func(context.Context) error {
		return os.RemoveAll(handle.Head)
	})
	if err != nil {
		return err
	}

	return b.store.Remove(ctx, handle.ClusterName)
}

func (b *Backend) TeardownEphemeralStorage(_ context.Context, t *task.Task) error {
	errs := &errors.MultiError{}

	for _, storage := range t.EphemeralStorage() {
		b.logger.Debugf("Deleting ephemeral storage %s", storage.Name)

		if err := os.RemoveAll(b.StorageDir(storage.Name)); err != nil {
			errs = errs.Append(errors.New(err))
		}
	}

	return errs.ErrorOrNil()
}

// Probe reports a cluster as absent once its directory is gone, and as stopped once it sat idle past
// its autostop threshold.
func (b *Backend) Probe(ctx context.Context, record *cluster.Record) (cluster.Status, error) {
	if record.Handle == nil || record.Handle.Backend != Name {
		return record.Status, nil
	}

	if !util.IsDir(record.Handle.Head) {
		return cluster.StatusAbsent, nil
	}

	if registry.AutostopExpired(record, b.now()) {
		b.logger.Infof("Cluster %s has been idle for over %d minute(s), stopping it", record.Name, record.AutostopMinutes)
		return cluster.StatusStopped, nil
	}

	return record.Status, nil
}

func (b *Backend) shell(ctx context.Context, handle *cluster.Handle, t *task.Task, script string) *exec.Cmd {
	env := map[string]string{
		"CLUSTERFLOW_CLUSTER_NAME": handle.ClusterName,
		"CLUSTERFLOW_NUM_NODES":    strconv.Itoa(max(t.NumNodes, 1)),
		"CLUSTERFLOW_MOUNTS_DIR":   filepath.Join(handle.Head, mountsName),
	}

	for key, val := range t.Envs {
		env[key] = val
	}

	cmd := exec.Shell(ctx, script)
	cmd.Configure(
		exec.WithLogger(b.logger),
		exec.WithDir(filepath.Join(handle.Head, workdirName)),
		exec.WithEnv(env),
		exec.WithOutput(b.writer, b.writer),
	)

	return cmd
}

func (b *Backend) mountPath(handle *cluster.Handle, target string) string {
	target = strings.TrimPrefix(filepath.Clean(target), string(filepath.Separator))
	target = strings.TrimPrefix(target, "~"+string(filepath.Separator))

	return filepath.Join(handle.Head, mountsName, target)
}

var _ backend.Backend = (*Backend)(nil)
var _ registry.Prober = (*Backend)(nil)
