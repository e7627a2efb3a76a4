//go:build !windows

package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gruntwork-io/clusterflow/cli"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTask = `
task "hello" {
  setup = "echo setting up"
  run   = "echo hello from $CLUSTERFLOW_CLUSTER_NAME"

  resources "small" {
    instance_type = "m5.large"
    hourly_cost   = 0.1
  }
}
`

type testApp struct {
	stateDir string
	taskPath string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	dir := t.TempDir()
	taskPath := filepath.Join(dir, "task.hcl")
	require.NoError(t, os.WriteFile(taskPath, []byte(testTask), 0o600))

	return &testApp{stateDir: filepath.Join(dir, "state"), taskPath: taskPath}
}

func (app *testApp) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	opts := options.NewOptionsWithWriters(stdout, stderr)
	opts.StatusCommand = "true"

	args = append([]string{cli.AppName, "--state-dir", app.stateDir}, args...)
	err := cli.NewApp(opts).RunContext(context.Background(), args)

	return stdout.String(), err
}

func TestLaunchStatusDown(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	out, err := app.run(t, "launch", "--cluster", "mine", app.taskPath)
	require.NoError(t, err)
	assert.Contains(t, out, "setting up")
	assert.Contains(t, out, "hello from mine")

	out, err = app.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "mine")
	assert.Contains(t, out, "UP")

	out, err = app.run(t, "down", "mine")
	require.NoError(t, err)
	assert.Contains(t, out, "Cluster mine terminated.")

	out, err = app.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No existing clusters.")
}

func TestRunReusesUpCluster(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	out, err := app.run(t, "run", "--cluster", "reuse", app.taskPath)
	require.NoError(t, err)
	assert.Contains(t, out, "setting up")

	out, err = app.run(t, "run", "--cluster", "reuse", app.taskPath)
	require.NoError(t, err)
	assert.NotContains(t, out, "setting up")
	assert.Contains(t, out, "hello from reuse")
}

func TestExecRequiresExistingCluster(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	_, err := app.run(t, "exec", "--cluster", "missing", app.taskPath)
	require.Error(t, err)

	exitCode, ok := errors.ExitCode(err)
	assert.True(t, ok)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, err.Error(), `Cluster "missing" not found`)
}

func TestLaunchRejectsControllerName(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	_, err := app.run(t, "launch", "--cluster", options.DefaultControllerName, app.taskPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved for internal use")
}

func TestDownUnknownCluster(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	_, err := app.run(t, "down", "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `cluster "ghost" not found`)
}

func TestVersion(t *testing.T) {
	t.Parallel()

	out, err := newTestApp(t).run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "clusterflow version "+cli.Version+"\n", out)
}

const spotTestTask = `
task "spot" {
  run           = "echo recovered on $CLUSTERFLOW_CLUSTER_NAME"
  spot_recovery = true

  resources "spot" {
    instance_type = "m5.large"
    use_spot      = true
  }
}
`

func TestSpotTaskNeedsControllerRun(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	spotPath := filepath.Join(filepath.Dir(app.taskPath), "spot.hcl")
	require.NoError(t, os.WriteFile(spotPath, []byte(spotTestTask), 0o600))

	_, err := app.run(t, "launch", "--cluster", "job", spotPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clusterflow controller submit")

	out, err := app.run(t, "controller", "run", "--cluster", "job", spotPath)
	require.NoError(t, err)
	assert.Contains(t, out, "recovered on job")

	_, err = app.run(t, "controller", "run", spotPath)
	require.Error(t, err)
}

func TestLaunchRejectsInvalidClusterName(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	marker := filepath.Join(t.TempDir(), "pwned")

	_, err := app.run(t, "launch", "--cluster", "x; touch "+marker, app.taskPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is invalid")
	assert.NoFileExists(t, marker)
}

func TestNoColorFlag(t *testing.T) {
	t.Parallel()

	out, err := newTestApp(t).run(t, "--no-color", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "clusterflow version")
}
