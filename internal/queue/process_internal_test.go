//go:build !windows

package queue

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/gruntwork-io/clusterflow/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReclaimDeadHolder(t *testing.T) {
	t.Parallel()

	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())

	deadPID := cmd.Process.Pid
	host, err := os.Hostname()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), ".q.lock.queue")

	data, err := json.Marshal(ledger{Slots: []Slot{{
		Ticket:  "stale",
		Host:    host,
		PID:     deadPID,
		Expires: time.Now().Add(time.Hour),
	}}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	q := NewFileQueue(log.New(), path, 1)

	ok, err := q.Enter(t.Context())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProcessAlive(t *testing.T) {
	t.Parallel()

	assert.True(t, processAlive(os.Getpid()))
	assert.False(t, processAlive(0))
}
