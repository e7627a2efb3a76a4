package task

import (
	"path/filepath"

	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

type taskFile struct {
	Tasks []*Task `hcl:"task,block"`
}

// ParseFile reads a task file and returns its graph. Relative local paths (workdir,
// file mount sources, storage sources) are resolved against the file's directory.
//
//	task "train" {
//	  workdir = "./src"
//	  run     = "python train.py"
//	  resources "gpu" {
//	    cloud         = "aws"
//	    instance_type = "p3.2xlarge"
//	  }
//	}
func ParseFile(path string) (*Dag, error) {
	var file taskFile

	if err := hclsimple.DecodeFile(path, nil, &file); err != nil {
		return nil, errors.WithStackTraceAndPrefix(err, "parsing task file %s", path)
	}

	if len(file.Tasks) == 0 {
		return nil, errors.Errorf("task file %s declares no task blocks", path)
	}

	baseDir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, errors.New(err)
	}

	for _, task := range file.Tasks {
		task.resolvePaths(baseDir)
		task.BestResources = launchableResources(task.Resources)
	}

	return NewDag(file.Tasks...), nil
}

func (task *Task) resolvePaths(baseDir string) {
	task.Workdir = absPath(baseDir, task.Workdir)

	for target, source := range task.FileMounts {
		task.FileMounts[target] = absPath(baseDir, source)
	}

	for _, storage := range task.StorageMounts {
		storage.Source = absPath(baseDir, storage.Source)
	}
}

// launchableResources returns the only candidate if it is fully specified, so that such
// tasks skip optimization.
func launchableResources(candidates []*Resources) *Resources {
	if len(candidates) == 1 && candidates[0].IsLaunchable() {
		return candidates[0]
	}

	return nil
}

func absPath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(baseDir, path)
}
