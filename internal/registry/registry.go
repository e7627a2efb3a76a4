// Package registry persists cluster state keyed by cluster name.
package registry

import (
	"context"
	"time"

	"github.com/gruntwork-io/clusterflow/internal/cluster"
	"github.com/gruntwork-io/clusterflow/internal/errors"
)

// ErrNotFound is returned by Get when the cluster is not in the registry.
var ErrNotFound = errors.New("cluster not found in registry")

// Registry is the read contract the execution pipeline depends on.
type Registry interface {
	// GetHandle returns the handle for name, or nil if no such cluster is recorded.
	GetHandle(ctx context.Context, name string) (*cluster.Handle, error)

	// RefreshStatusHandle re-reads the cluster's status, probing the backend if a prober is set.
	// Returns StatusAbsent and a nil handle for unknown clusters.
	RefreshStatusHandle(ctx context.Context, name string) (cluster.Status, *cluster.Handle, error)

	// UpdateLastUse stamps the cluster as used now.
	UpdateLastUse(ctx context.Context, name string) error
}

// Store is the full registry, written by backends and read by status commands.
type Store interface {
	Registry

	Get(ctx context.Context, name string) (*cluster.Record, error)
	List(ctx context.Context) ([]*cluster.Record, error)
	Upsert(ctx context.Context, record *cluster.Record) error
	SetStatus(ctx context.Context, name string, status cluster.Status) error
	SetAutostop(ctx context.Context, name string, minutes int) error
	Remove(ctx context.Context, name string) error
	Close() error
}

// Prober reports the live status of a recorded cluster.
type Prober interface {
	Probe(ctx context.Context, record *cluster.Record) (cluster.Status, error)
}

// ProberFunc adapts a func to Prober.
type ProberFunc func(ctx context.Context, record *cluster.Record) (cluster.Status, error)

func (fn ProberFunc) Probe(ctx context.Context, record *cluster.Record) (cluster.Status, error) {
	return fn(ctx, record)
}

// refresh applies the shared refresh rules on top of a Store's Get/SetStatus/Remove.
func refresh(ctx context.Context, store Store, prober Prober, name string) (cluster.Status, *cluster.Handle, error) {
	record, err := store.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return cluster.StatusAbsent, nil, nil
	} else if err != nil {
		return cluster.StatusAbsent, nil, err
	}

	if prober == nil {
		return record.Status, record.Handle, nil
	}

	status, err := prober.Probe(ctx, record)
	if err != nil {
		return cluster.StatusAbsent, nil, errors.WithStackTraceAndPrefix(err, "probing cluster %q", name)
	}

	switch {
	case status == cluster.StatusAbsent:
		if err := store.Remove(ctx, name); err != nil {
			return cluster.StatusAbsent, nil, err
		}

		return cluster.StatusAbsent, nil, nil
	case status != record.Status:
		if err := store.SetStatus(ctx, name, status); err != nil {
			return cluster.StatusAbsent, nil, err
		}
	}

	return status, record.Handle, nil
}

// AutostopExpired reports whether an UP cluster has been idle longer than its autostop threshold.
func AutostopExpired(record *cluster.Record, now time.Time) bool {
	if record.Status != cluster.StatusUp || record.AutostopMinutes <= 0 {
		return false
	}

	idleSince := record.LastUse
	if idleSince.IsZero() {
		idleSince = record.LaunchedAt
	}

	return now.Sub(idleSince) > time.Duration(record.AutostopMinutes)*time.Minute
}
