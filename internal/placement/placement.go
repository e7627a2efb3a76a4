// Package placement binds controller submissions to one of several equivalent controller
// clusters. A submission claims a slot in a shard's admission queue, walking the shard tree
// past full shards, and then runs the controller task on that shard's controller.
package placement

import (
	"context"
	"time"

	"github.com/gruntwork-io/clusterflow/internal/cluster"
	"github.com/gruntwork-io/clusterflow/internal/execution"
	"github.com/gruntwork-io/clusterflow/internal/queue"
	"github.com/gruntwork-io/clusterflow/internal/shard"
	"github.com/gruntwork-io/clusterflow/internal/task"
	"github.com/gruntwork-io/clusterflow/pkg/log"
)

const (
	// DefaultControllerBase is the name of the controller serving shard 1.
	DefaultControllerBase = "clusterflow-controller"
	// DefaultIdleMinutes is how long an idle controller stays up.
	DefaultIdleMinutes = 10
)

// Request is one submission.
type Request struct {
	// TaskPath is the user's task file.
	TaskPath string
	// ClusterName is the cluster the user's task runs on. It also decides the shard walk,
	// so submissions for the same cluster follow the same path. Generated if empty.
	ClusterName string
	Detach      bool
}

// Placement is where a submission ran.
type Placement struct {
	Shard          int
	ControllerName string
	ClusterName    string
}

// Runner runs a task on a cluster, reusing the cluster if it is up.
type Runner interface {
	ExecOrLaunch(ctx context.Context, req *execution.Request) error
}

// TaskBuilder builds the task a controller runs for a submission.
type TaskBuilder interface {
	Build(ctx context.Context, req *Request, controllerName string) (*task.Dag, error)
}

// Placer submits requests onto controllers.
type Placer struct {
	logger         log.Logger
	selector       *shard.Selector
	runner         Runner
	builder        TaskBuilder
	controllerBase string
	idleMinutes    int
	leaseTTL       time.Duration
}

// Option configures a Placer.
type Option func(*Placer)

// WithControllerBase overrides DefaultControllerBase.
func WithControllerBase(base string) Option {
	return func(placer *Placer) {
		placer.controllerBase = base
	}
}

// WithIdleMinutes overrides DefaultIdleMinutes.
func WithIdleMinutes(minutes int) Option {
	return func(placer *Placer) {
		placer.idleMinutes = minutes
	}
}

// WithLeaseTTL is the lease of the queue slots the selector hands out. The slot is refreshed
// every third of it while the submission runs. A ttl too short to refresh is ignored.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(placer *Placer) {
		if ttl/3 > 0 {
			placer.leaseTTL = ttl
		}
	}
}

// NewPlacer returns a Placer that claims shards through selector and runs controller tasks
// built by builder through runner.
func NewPlacer(logger log.Logger, selector *shard.Selector, runner Runner, builder TaskBuilder, opts ...Option) *Placer {
	placer := &Placer{
		logger:         logger.WithField(log.FieldKeyPrefix, "placement"),
		selector:       selector,
		runner:         runner,
		builder:        builder,
		controllerBase: DefaultControllerBase,
		idleMinutes:    DefaultIdleMinutes,
		leaseTTL:       queue.DefaultLeaseTTL,
	}

	for _, opt := range opts {
		opt(placer)
	}

	return placer
}

// Submit claims a shard and runs the controller task for req on the shard's controller. The
// queue slot is released on every return path.
func (placer *Placer) Submit(ctx context.Context, req *Request) (placement *Placement, err error) {
	if req.ClusterName == "" {
		req.ClusterName = cluster.GenerateName()
	}

	if err := cluster.CheckNameValid(req.ClusterName); err != nil {
		return nil, err
	}

	logger := placer.logger.WithField(log.FieldKeyCluster, req.ClusterName)

	result, err := placer.selector.Walk(ctx, req.ClusterName)
	if err != nil {
		return nil, err
	}

	defer func() {
		if exitErr := result.Queue.Exit(context.WithoutCancel(ctx)); exitErr != nil {
			logger.Warnf("Failed to release slot on shard %d: %v", result.Index, exitErr)

			if err == nil {
				err = exitErr
			}
		}
	}()

	stop := queue.KeepAlive(ctx, logger, result.Queue, placer.leaseTTL/3)
	defer stop()

	placement = &Placement{
		Shard:          result.Index,
		ControllerName: shard.ControllerName(placer.controllerBase, result.Index),
		ClusterName:    req.ClusterName,
	}

	logger.Infof("Submitting to controller %s (shard %d)", placement.ControllerName, placement.Shard)

	dag, err := placer.builder.Build(ctx, req, placement.ControllerName)
	if err != nil {
		return placement, err
	}

	err = placer.runner.ExecOrLaunch(ctx, &execution.Request{
		Dag:                   dag,
		ClusterName:           placement.ControllerName,
		StreamLogs:            true,
		Detach:                req.Detach,
		IdleMinutesToAutostop: placer.idleMinutes,
		IsController:          true,
	})

	return placement, err
}
