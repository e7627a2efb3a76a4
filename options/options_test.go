package options_test

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/gruntwork-io/clusterflow/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePaths(t *testing.T) {
	t.Parallel()

	stateDir := t.TempDir()

	opts := options.NewOptionsWithWriters(new(bytes.Buffer), new(bytes.Buffer))
	opts.StateDir = stateDir

	require.NoError(t, opts.ResolvePaths())
	assert.Equal(t, filepath.Join(stateDir, "locks"), opts.LockDir)
	assert.Equal(t, filepath.Join(stateDir, "state.db"), opts.RegistryPath)

	opts = options.NewOptionsWithWriters(new(bytes.Buffer), new(bytes.Buffer))
	opts.StateDir = stateDir
	opts.LockDir = "/shared/locks"

	require.NoError(t, opts.ResolvePaths())
	assert.Equal(t, "/shared/locks", opts.LockDir)
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	opts := options.NewOptions()
	cloned := opts.Clone()

	cloned.ControllerName = "other"
	cloned.Telemetry.TraceExporter = "console"

	assert.Equal(t, options.DefaultControllerName, opts.ControllerName)
	assert.Equal(t, "none", opts.Telemetry.TraceExporter)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		modify func(opts *options.Options)
		valid  bool
	}{
		{name: "defaults", modify: func(*options.Options) {}, valid: true},
		{name: "dynamodb", modify: func(opts *options.Options) { opts.QueueBackend = options.QueueBackendDynamoDB }, valid: true},
		{name: "unknown queue backend", modify: func(opts *options.Options) { opts.QueueBackend = "redis" }},
		{name: "short lease", modify: func(opts *options.Options) { opts.QueueLeaseTTL = time.Millisecond }},
		{name: "zero ratio", modify: func(opts *options.Options) { opts.OversubscriptionRatio = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			opts := options.NewOptions()
			tc.modify(opts)

			if tc.valid {
				require.NoError(t, opts.Validate())
			} else {
				require.Error(t, opts.Validate())
			}
		})
	}
}

func TestQueueCapacity(t *testing.T) {
	t.Parallel()

	opts := options.NewOptions()
	assert.Equal(t, 32, opts.QueueCapacity())
}
