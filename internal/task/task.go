// Package task describes the workload clusterflow runs: a task, the resources it may run on,
// and the single-task graph the execution pipeline accepts.
package task

import (
	"fmt"
	"sort"
	"strings"
)

// Resources is one candidate placement for a task.
type Resources struct {
	Name         string  `hcl:"name,label"`
	Cloud        string  `hcl:"cloud,optional"`
	Region       string  `hcl:"region,optional"`
	InstanceType string  `hcl:"instance_type,optional"`
	Accelerators string  `hcl:"accelerators,optional"`
	HourlyCost   float64 `hcl:"hourly_cost,optional"`
	// Throughput is the relative speed of this candidate, used when optimizing for time.
	Throughput float64 `hcl:"throughput,optional"`
	UseSpot    bool    `hcl:"use_spot,optional"`
}

// IsLaunchable returns true if the resources name a concrete instance type.
func (res *Resources) IsLaunchable() bool {
	return res != nil && res.InstanceType != ""
}

func (res *Resources) String() string {
	if res == nil {
		return "<unresolved>"
	}

	parts := []string{}

	for _, part := range []string{res.Cloud, res.Region, res.InstanceType, res.Accelerators} {
		if part != "" {
			parts = append(parts, part)
		}
	}

	if res.UseSpot {
		parts = append(parts, "spot")
	}

	return strings.Join(parts, "/")
}

// Storage is a storage mount. Non-persistent storage is ephemeral and torn down with the cluster.
type Storage struct {
	Name       string `hcl:"name,label"`
	Source     string `hcl:"source"`
	MountPath  string `hcl:"mount"`
	Persistent bool   `hcl:"persistent,optional"`
}

// Task is a unit of work.
type Task struct {
	Name    string `hcl:"name,label"`
	Workdir string `hcl:"workdir,optional"`
	Setup   string `hcl:"setup,optional"`
	Run     string `hcl:"run,optional"`

	NumNodes int               `hcl:"num_nodes,optional"`
	Envs     map[string]string `hcl:"envs,optional"`

	// FileMounts maps a path on the cluster to a local path.
	FileMounts    map[string]string `hcl:"file_mounts,optional"`
	StorageMounts []*Storage        `hcl:"storage,block"`

	// SpotRecovery marks a task that needs managed interruption recovery.
	SpotRecovery bool `hcl:"spot_recovery,optional"`

	Resources []*Resources `hcl:"resources,block"`

	// BestResources is the resolved placement, nil until an optimizer (or the task file) picks one.
	BestResources *Resources
}

// NeedSpotRecovery returns true if the task must go through managed recovery submission.
func (task *Task) NeedSpotRecovery() bool {
	return task.SpotRecovery
}

// HasFileMounts returns true if the task declares any file or storage mounts.
func (task *Task) HasFileMounts() bool {
	return len(task.FileMounts) > 0 || len(task.StorageMounts) > 0
}

// EphemeralStorage returns the storage mounts that do not outlive the cluster.
func (task *Task) EphemeralStorage() []*Storage {
	var storages []*Storage

	for _, storage := range task.StorageMounts {
		if !storage.Persistent {
			storages = append(storages, storage)
		}
	}

	return storages
}

// SortedFileMountTargets returns the remote paths of file mounts in a stable order.
func (task *Task) SortedFileMountTargets() []string {
	targets := make([]string, 0, len(task.FileMounts))
	for target := range task.FileMounts {
		targets = append(targets, target)
	}

	sort.Strings(targets)

	return targets
}

func (task *Task) String() string {
	return fmt.Sprintf("Task<%s>", task.Name)
}

// Dag is the task graph handed to the pipeline. clusterflow only runs single-task graphs.
type Dag struct {
	Tasks []*Task
}

// NewDag returns a graph of the given tasks.
func NewDag(tasks ...*Task) *Dag {
	return &Dag{Tasks: tasks}
}

// Len returns the number of tasks.
func (dag *Dag) Len() int {
	if dag == nil {
		return 0
	}

	return len(dag.Tasks)
}

func (dag *Dag) String() string {
	names := make([]string, 0, dag.Len())
	for _, task := range dag.Tasks {
		names = append(names, task.Name)
	}

	return fmt.Sprintf("Dag[%s]", strings.Join(names, ", "))
}
