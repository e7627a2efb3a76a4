// Package optimizer picks the resources each task of a graph runs on.
package optimizer

import (
	"context"
	"strings"

	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/internal/task"
	"github.com/gruntwork-io/clusterflow/pkg/log"
	"github.com/huandu/go-clone"
)

// Target is what the optimizer minimizes.
type Target string

const (
	// TargetCost picks the cheapest hourly candidate.
	TargetCost Target = "cost"
	// TargetTime picks the candidate with the highest throughput.
	TargetTime Target = "time"
)

// ParseTarget parses a target name, case-insensitively.
func ParseTarget(str string) (Target, error) {
	switch target := Target(strings.ToLower(str)); target {
	case TargetCost, TargetTime:
		return target, nil
	case "":
		return TargetCost, nil
	default:
		return "", errors.Errorf("invalid optimization target %q, expected %q or %q", str, TargetCost, TargetTime)
	}
}

// Optimizer resolves BestResources of every task. Implementations must not modify dag.
type Optimizer interface {
	Optimize(ctx context.Context, dag *task.Dag, target Target) (*task.Dag, error)
}

// NoLaunchableResourcesError is returned when none of a task's candidates can be launched.
type NoLaunchableResourcesError struct {
	Task string
}

func (err NoLaunchableResourcesError) Error() string {
	return "no launchable resources for task " + err.Task + ": every candidate needs an instance_type"
}

// Catalog chooses among the candidates declared on each task using their declared cost and throughput.
type Catalog struct {
	logger log.Logger
}

// NewCatalog returns a catalog optimizer.
func NewCatalog(logger log.Logger) *Catalog {
	return &Catalog{logger: logger.WithField(log.FieldKeyPrefix, "optimizer")}
}

func (catalog *Catalog) Optimize(_ context.Context, dag *task.Dag, target Target) (*task.Dag, error) {
	optimized := clone.Clone(dag).(*task.Dag)

	for _, t := range optimized.Tasks {
		best := pick(t.Resources, target)
		if best == nil {
			return nil, errors.New(NoLaunchableResourcesError{Task: t.Name})
		}

		catalog.logger.Infof("Optimizer picked %s for %s (minimizing %s)", best, t, target)

		t.BestResources = best
	}

	return optimized, nil
}

func pick(candidates []*task.Resources, target Target) *task.Resources {
	var best *task.Resources

	for _, res := range candidates {
		if !res.IsLaunchable() {
			continue
		}

		if best == nil || better(res, best, target) {
			best = res
		}
	}

	return best
}

func better(res, than *task.Resources, target Target) bool {
	if target == TargetTime {
		if res.Throughput != than.Throughput {
			return res.Throughput > than.Throughput
		}

		return res.HourlyCost < than.HourlyCost
	}

	if res.HourlyCost != than.HourlyCost {
		return res.HourlyCost < than.HourlyCost
	}

	return res.Throughput > than.Throughput
}
